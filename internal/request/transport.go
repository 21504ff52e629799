package request

import (
	"net/http"
	"sync/atomic"
)

// statusRecorder remembers the response statuses seen during one call.
type statusRecorder struct {
	base         http.RoundTripper
	last         atomic.Int32
	unauthorized atomic.Bool
}

func (r *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	r.last.Store(int32(resp.StatusCode))
	if resp.StatusCode == http.StatusUnauthorized {
		r.unauthorized.Store(true)
	}
	return resp, nil
}

func (r *statusRecorder) lastStatus() int {
	return int(r.last.Load())
}
