package batch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/teemow/homedash/internal/oauth"
)

// Item statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Result is the outcome of one item.
type Result struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Outcome aggregates the results of a batch.
type Outcome struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped,omitempty"`
	Results    []Result `json:"results"`
}

// ParseIDs reads a parameter that is either a single string or an array of
// strings.
func ParseIDs(param any, name string) ([]string, error) {
	switch v := param.(type) {
	case nil:
		return nil, fmt.Errorf("%s is required", name)
	case string:
		if v == "" {
			return nil, fmt.Errorf("%s cannot be empty", name)
		}
		return []string{v}, nil
	case []string:
		if len(v) == 0 {
			return nil, fmt.Errorf("%s cannot be empty", name)
		}
		return v, nil
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%s cannot be empty", name)
		}
		ids := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", name, i)
			}
			if s == "" {
				return nil, fmt.Errorf("%s[%d] cannot be empty", name, i)
			}
			ids = append(ids, s)
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", name)
	}
}

// Run calls fn for each ID in order. If fn fails because the session has to
// be reconnected, the remaining IDs are skipped and that error is returned with the
// partial outcome.
func Run(ctx context.Context, ids []string, fn func(ctx context.Context, id string) (string, error)) (*Outcome, error) {
	out := &Outcome{Total: len(ids), Results: make([]Result, 0, len(ids))}

	var authErr error
	for _, id := range ids {
		if authErr != nil || ctx.Err() != nil {
			out.Results = append(out.Results, Result{ID: id, Status: StatusSkipped})
			out.Skipped++
			continue
		}

		msg, err := fn(ctx, id)
		if err != nil {
			out.Results = append(out.Results, Result{ID: id, Status: StatusError, Error: err.Error()})
			out.Failed++
			if needsReconnect(err) {
				authErr = err
			}
			continue
		}
		out.Results = append(out.Results, Result{ID: id, Status: StatusSuccess, Result: msg})
		out.Successful++
	}

	return out, authErr
}

// JSON renders the outcome as indented JSON.
func (o *Outcome) JSON() string {
	data, _ := json.MarshalIndent(o, "", "  ")
	return string(data)
}

func needsReconnect(err error) bool {
	switch oauth.KindOf(err) {
	case oauth.KindExpiredOrRevoked, oauth.KindScopeInsufficient:
		return true
	}
	return false
}
