package request

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 64 << 10

// StatusError is a non-2xx response from a REST endpoint called without a
// generated client library.
type StatusError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
	// Code and Message are filled from a Microsoft Graph error body.
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// CheckResponse returns nil for a 2xx response and a *StatusError otherwise.
// The body of an error response is consumed.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	e := &StatusError{
		StatusCode: resp.StatusCode,
		Body:       string(data),
	}
	if resp.Request != nil {
		e.Method = resp.Request.Method
		if resp.Request.URL != nil {
			u := *resp.Request.URL
			u.RawQuery = ""
			e.URL = u.String()
		}
	}

	var graph struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if strings.HasPrefix(strings.TrimSpace(e.Body), "{") && json.Unmarshal(data, &graph) == nil {
		e.Code = graph.Error.Code
		e.Message = graph.Error.Message
	}
	return e
}
