package popup

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/pkg/browser"
)

// Window is an open authorization window.
type Window interface {
	// Closed reports whether the user closed the window.
	Closed() bool
	// Close closes the window.
	Close() error
}

// Opener opens a window showing url.
type Opener interface {
	Open(ctx context.Context, url string) (Window, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string) (Window, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, url string) (Window, error) {
	return f(ctx, url)
}

// BrowserOpener opens the consent page in the system browser.
//
// A browser tab cannot be observed or closed from here, so its Window only
// reports closed once Close was called; flows end through the callback
// message, Cancel or the timeout.
type BrowserOpener struct {
	// OnOpen is called with the URL before the browser is launched, so the
	// caller can print it for headless machines.
	OnOpen func(url string)
}

func init() {
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
}

// Open implements Opener.
func (o BrowserOpener) Open(_ context.Context, url string) (Window, error) {
	if o.OnOpen != nil {
		o.OnOpen(url)
	}
	if err := browser.OpenURL(url); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return &browserWindow{}, nil
}

type browserWindow struct {
	closed atomic.Bool
}

func (w *browserWindow) Closed() bool {
	return w.closed.Load()
}

func (w *browserWindow) Close() error {
	w.closed.Store(true)
	return nil
}
