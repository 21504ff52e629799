package popup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teemow/homedash/internal/provider"
)

const testOrigin = "http://127.0.0.1:8765"

type fakeWindow struct {
	closed     atomic.Bool
	closeCalls atomic.Int32
}

func (w *fakeWindow) Closed() bool { return w.closed.Load() }

func (w *fakeWindow) Close() error {
	w.closeCalls.Add(1)
	w.closed.Store(true)
	return nil
}

// closeByUser simulates the user dismissing the window.
func (w *fakeWindow) closeByUser() { w.closed.Store(true) }

type fakeOpener struct {
	mu      sync.Mutex
	err     error
	windows []*fakeWindow
	opened  chan string
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{opened: make(chan string, 16)}
}

func (o *fakeOpener) Open(_ context.Context, url string) (Window, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	w := &fakeWindow{}
	o.windows = append(o.windows, w)
	o.opened <- url
	return w, nil
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.windows)
}

func (o *fakeOpener) window(i int) *fakeWindow {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.windows[i]
}

func (o *fakeOpener) waitOpened(t *testing.T) string {
	t.Helper()
	select {
	case url := <-o.opened:
		return url
	case <-time.After(2 * time.Second):
		t.Fatal("authorization window was never opened")
		return ""
	}
}

func newTestChannel(t *testing.T, opener Opener, mutate func(*Config)) (*Channel, *Bus) {
	t.Helper()

	cfg := Config{
		ClientIDs: map[provider.ID]string{
			provider.Google:    "google-client",
			provider.Microsoft: "ms-client",
		},
		RedirectURI:  testOrigin + "/oauth/callback",
		AppOrigin:    testOrigin,
		Timeout:      time.Minute,
		PollInterval: 10 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	bus := NewBus()
	ch, err := NewChannel(cfg, provider.NewRegistry(""), bus, opener,
		WithStateGenerator(func() (string, error) { return "state-1", nil }))
	require.NoError(t, err)
	return ch, bus
}

type authResult struct {
	grant *Grant
	err   error
}

func authorizeAsync(ctx context.Context, ch *Channel, req Request) <-chan authResult {
	out := make(chan authResult, 1)
	go func() {
		g, err := ch.Authorize(ctx, req)
		out <- authResult{grant: g, err: err}
	}()
	return out
}

func waitResult(t *testing.T, results <-chan authResult) authResult {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("authorization did not finish")
		return authResult{}
	}
}

func assertPending(t *testing.T, results <-chan authResult) {
	t.Helper()
	select {
	case r := <-results:
		t.Fatalf("authorization finished unexpectedly: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
}
