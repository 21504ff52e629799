package popup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/provider"
)

var calendarReq = Request{
	Provider: provider.Google,
	Scopes:   oauth.ScopeSet{"https://www.googleapis.com/auth/calendar"},
}

func successMessage(token string) Message {
	return Message{
		Origin:      testOrigin,
		Type:        "GOOGLE_AUTH_SUCCESS",
		AccessToken: token,
		State:       "google.state-1",
		ExpiresIn:   3599,
	}
}

func TestAuthorize_Success(t *testing.T) {
	opener := newFakeOpener()
	ch, bus := newTestChannel(t, opener, nil)

	results := authorizeAsync(context.Background(), ch, calendarReq)
	raw := opener.waitOpened(t)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "token", u.Query().Get("response_type"))
	assert.Equal(t, "google.state-1", u.Query().Get("state"))
	assert.Equal(t, testOrigin+"/oauth/callback", u.Query().Get("redirect_uri"))

	assert.True(t, ch.InFlight(provider.Google))
	assert.Equal(t, 1, bus.Len())

	bus.Post(successMessage("abc"))

	r := waitResult(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, "abc", r.grant.AccessToken)
	assert.Equal(t, calendarReq.Scopes, r.grant.GrantedScopes, "missing scope parameter means all requested")
	assert.Equal(t, 3599*time.Second, r.grant.ExpiresIn)

	assert.Equal(t, 0, bus.Len(), "listener removed")
	assert.False(t, ch.InFlight(provider.Google))
	assert.Equal(t, int32(1), opener.window(0).closeCalls.Load())
}

func TestAuthorize_LogsFlowID(t *testing.T) {
	opener := newFakeOpener()
	var logs bytes.Buffer
	ch, err := NewChannel(Config{
		ClientIDs:    map[provider.ID]string{provider.Google: "google-client"},
		RedirectURI:  testOrigin + "/oauth/callback",
		AppOrigin:    testOrigin,
		Timeout:      time.Minute,
		PollInterval: 10 * time.Millisecond,
	}, provider.NewRegistry(""), NewBus(), opener,
		WithStateGenerator(func() (string, error) { return "state-1", nil }),
		WithLogger(slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	require.NoError(t, err)

	results := authorizeAsync(context.Background(), ch, calendarReq)
	opener.waitOpened(t)
	ch.bus.Post(successMessage("abc"))
	require.NoError(t, waitResult(t, results).err)

	var flowIDs []string
	for _, line := range bytes.Split(bytes.TrimSpace(logs.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		id, _ := entry["flow_id"].(string)
		flowIDs = append(flowIDs, id)
	}
	require.Len(t, flowIDs, 2, "window opened and authorization succeeded")
	assert.Equal(t, flowIDs[0], flowIDs[1])
	_, err = uuid.Parse(flowIDs[0])
	assert.NoError(t, err)
}

func TestAuthorize_ConcurrentCallersShareOneWindow(t *testing.T) {
	opener := newFakeOpener()
	ch, bus := newTestChannel(t, opener, nil)

	const callers = 5
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)

	first := authorizeAsync(context.Background(), ch, calendarReq)
	opener.waitOpened(t)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := ch.Authorize(context.Background(), calendarReq)
			errs[i] = err
			if g != nil {
				tokens[i] = g.AccessToken
			}
		}(i)
	}

	// let the joiners attach before resolving
	time.Sleep(50 * time.Millisecond)
	bus.Post(successMessage("abc"))

	wg.Wait()
	r := waitResult(t, first)
	require.NoError(t, r.err)

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "abc", tokens[i])
	}
	assert.Equal(t, 1, opener.count(), "exactly one window opened")
}

func TestAuthorize_ForeignOriginIgnored(t *testing.T) {
	opener := newFakeOpener()
	ch, bus := newTestChannel(t, opener, nil)

	results := authorizeAsync(context.Background(), ch, calendarReq)
	opener.waitOpened(t)

	forged := successMessage("stolen")
	forged.Origin = "https://evil.example"
	bus.Post(forged)
	assertPending(t, results)

	bus.Post(successMessage("abc"))
	r := waitResult(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, "abc", r.grant.AccessToken)
}

func TestAuthorize_StateMismatchIgnored(t *testing.T) {
	opener := newFakeOpener()
	ch, bus := newTestChannel(t, opener, nil)

	results := authorizeAsync(context.Background(), ch, calendarReq)
	opener.waitOpened(t)

	replay := successMessage("old")
	replay.State = "state-0"
	bus.Post(replay)
	assertPending(t, results)

	// messages without state are accepted
	noState := successMessage("abc")
	noState.State = ""
	bus.Post(noState)

	r := waitResult(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, "abc", r.grant.AccessToken)
}

func TestAuthorize_OtherProviderMessageIgnored(t *testing.T) {
	opener := newFakeOpener()
	ch, bus := newTestChannel(t, opener, nil)

	results := authorizeAsync(context.Background(), ch, calendarReq)
	opener.waitOpened(t)

	bus.Post(Message{Origin: testOrigin, Type: "MICROSOFT_AUTH_SUCCESS", AccessToken: "ms"})
	assertPending(t, results)

	require.True(t, ch.Cancel(provider.Google))
	r := waitResult(t, results)
	assert.True(t, oauth.IsKind(r.err, oauth.KindUserCancelled))
}

func TestAuthorize_GrantedScopesFromMessage(t *testing.T) {
	opener := newFakeOpener()
	ch, bus := newTestChannel(t, opener, nil)

	results := authorizeAsync(context.Background(), ch, Request{
		Provider: provider.Microsoft,
		Scopes:   oauth.ScopeSet{provider.GraphUserRead, provider.GraphFilesReadWrite},
	})
	opener.waitOpened(t)

	bus.Post(Message{
		Origin:      testOrigin,
		Type:        "MICROSOFT_AUTH_SUCCESS",
		AccessToken: "ms-token",
		Scope:       "https://graph.microsoft.com/User.Read",
	})

	r := waitResult(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, oauth.ScopeSet{provider.GraphUserRead}, r.grant.GrantedScopes)
}

func TestAuthorize_Timeout(t *testing.T) {
	opener := newFakeOpener()
	ch, bus := newTestChannel(t, opener, func(c *Config) {
		c.Timeout = 50 * time.Millisecond
	})

	start := time.Now()
	_, err := ch.Authorize(context.Background(), calendarReq)
	require.Error(t, err)

	assert.True(t, errors.Is(err, oauth.ErrTimeout))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, int32(1), opener.window(0).closeCalls.Load(), "window force-closed")
	assert.Equal(t, 0, bus.Len())
	assert.False(t, ch.InFlight(provider.Google))
}

func TestAuthorize_WindowClosedByUser(t *testing.T) {
	opener := newFakeOpener()
	ch, bus := newTestChannel(t, opener, nil)

	results := authorizeAsync(context.Background(), ch, calendarReq)
	opener.waitOpened(t)
	opener.window(0).closeByUser()

	r := waitResult(t, results)
	assert.True(t, oauth.IsKind(r.err, oauth.KindUserCancelled))
	assert.Equal(t, int32(0), opener.window(0).closeCalls.Load(), "already closed window is not closed again")
	assert.Equal(t, 0, bus.Len())
}

func TestAuthorize_PopupBlocked(t *testing.T) {
	opener := newFakeOpener()
	opener.err = errors.New("no display")
	ch, bus := newTestChannel(t, opener, nil)

	_, err := ch.Authorize(context.Background(), calendarReq)
	assert.True(t, oauth.IsKind(err, oauth.KindPopupBlocked))
	assert.Equal(t, 0, bus.Len())
	assert.False(t, ch.InFlight(provider.Google))
}

func TestAuthorize_ProviderError(t *testing.T) {
	tests := []struct {
		name     string
		errCode  string
		wantKind oauth.Kind
	}{
		{"declined", "access_denied", oauth.KindUserCancelled},
		{"server error", "server_error", oauth.KindNetworkFailure},
		{"invalid scope", "invalid_scope", oauth.KindNetworkFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opener := newFakeOpener()
			ch, bus := newTestChannel(t, opener, nil)

			results := authorizeAsync(context.Background(), ch, calendarReq)
			opener.waitOpened(t)

			bus.Post(Message{
				Origin:           testOrigin,
				Type:             "GOOGLE_AUTH_ERROR",
				Error:            tt.errCode,
				ErrorDescription: "details",
				State:            "google.state-1",
			})

			r := waitResult(t, results)
			assert.Equal(t, tt.wantKind, oauth.KindOf(r.err))
			assert.Contains(t, r.err.Error(), tt.errCode)
		})
	}
}

func TestAuthorize_SuccessWithoutToken(t *testing.T) {
	opener := newFakeOpener()
	ch, bus := newTestChannel(t, opener, nil)

	results := authorizeAsync(context.Background(), ch, calendarReq)
	opener.waitOpened(t)
	bus.Post(successMessage(""))

	r := waitResult(t, results)
	assert.True(t, oauth.IsKind(r.err, oauth.KindNetworkFailure))
}

func TestCancel(t *testing.T) {
	opener := newFakeOpener()
	ch, bus := newTestChannel(t, opener, nil)

	assert.False(t, ch.Cancel(provider.Google), "nothing in flight")

	results := authorizeAsync(context.Background(), ch, calendarReq)
	opener.waitOpened(t)

	assert.True(t, ch.Cancel(provider.Google))
	r := waitResult(t, results)
	assert.True(t, errors.Is(r.err, oauth.ErrUserCancelled))
	assert.Equal(t, int32(1), opener.window(0).closeCalls.Load())
	assert.Equal(t, 0, bus.Len())

	// a late message after teardown reaches nobody
	bus.Post(successMessage("late"))
	assert.False(t, ch.InFlight(provider.Google))
}

func TestAuthorize_CallerContextDoesNotCancelFlow(t *testing.T) {
	opener := newFakeOpener()
	ch, bus := newTestChannel(t, opener, nil)

	ctx, cancel := context.WithCancel(context.Background())
	abandoned := authorizeAsync(ctx, ch, calendarReq)
	opener.waitOpened(t)

	other := authorizeAsync(context.Background(), ch, calendarReq)
	assertPending(t, other)

	cancel()
	r := waitResult(t, abandoned)
	assert.True(t, oauth.IsKind(r.err, oauth.KindUserCancelled))
	assert.ErrorIs(t, r.err, context.Canceled)
	assert.True(t, ch.InFlight(provider.Google))

	bus.Post(successMessage("abc"))
	r = waitResult(t, other)
	require.NoError(t, r.err)
	assert.Equal(t, "abc", r.grant.AccessToken)
	assert.Equal(t, 1, opener.count(), "second caller joined the running flow")
}

func TestAuthorize_RacingTerminalSignals(t *testing.T) {
	for i := 0; i < 50; i++ {
		opener := newFakeOpener()
		ch, bus := newTestChannel(t, opener, func(c *Config) {
			c.Timeout = 20 * time.Millisecond
			c.PollInterval = time.Millisecond
		})

		results := authorizeAsync(context.Background(), ch, calendarReq)
		opener.waitOpened(t)
		w := opener.window(0)

		start := make(chan struct{})
		var wg sync.WaitGroup
		signals := []func(){
			func() { bus.Post(successMessage("abc")) },
			func() { ch.Cancel(provider.Google) },
			w.closeByUser,
		}
		for _, signal := range signals {
			wg.Add(1)
			go func(signal func()) {
				defer wg.Done()
				<-start
				signal()
			}(signal)
		}
		close(start)

		r := waitResult(t, results)
		wg.Wait()

		if r.err == nil {
			assert.Equal(t, "abc", r.grant.AccessToken)
		} else {
			kind := oauth.KindOf(r.err)
			assert.Contains(t, []oauth.Kind{oauth.KindUserCancelled, oauth.KindTimeout}, kind, "got %v", r.err)
		}
		assertPending(t, results)
		assert.LessOrEqual(t, w.closeCalls.Load(), int32(1))
		assert.Equal(t, 0, bus.Len())
		assert.False(t, ch.InFlight(provider.Google))
		assert.Equal(t, 1, opener.count())
	}
}

func TestAuthorize_RejectConcurrent(t *testing.T) {
	opener := newFakeOpener()
	ch, bus := newTestChannel(t, opener, func(c *Config) {
		c.RejectConcurrent = true
	})

	results := authorizeAsync(context.Background(), ch, calendarReq)
	opener.waitOpened(t)

	_, err := ch.Authorize(context.Background(), calendarReq)
	assert.True(t, errors.Is(err, oauth.ErrBusy))

	bus.Post(successMessage("abc"))
	r := waitResult(t, results)
	require.NoError(t, r.err)
}

func TestAuthorize_RejectConcurrentRacingCallers(t *testing.T) {
	opener := newFakeOpener()
	ch, bus := newTestChannel(t, opener, func(c *Config) {
		c.RejectConcurrent = true
	})

	const callers = 8
	start := make(chan struct{})
	results := make(chan authResult, callers)
	for i := 0; i < callers; i++ {
		go func() {
			<-start
			g, err := ch.Authorize(context.Background(), calendarReq)
			results <- authResult{grant: g, err: err}
		}()
	}
	close(start)

	for i := 0; i < callers-1; i++ {
		r := waitResult(t, results)
		require.ErrorIs(t, r.err, oauth.ErrBusy, "only one caller may start a flow")
	}

	opener.waitOpened(t)
	bus.Post(successMessage("abc"))
	r := waitResult(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, 1, opener.count())
	assert.False(t, ch.InFlight(provider.Google))
}

func TestAuthorize_NoClientID(t *testing.T) {
	opener := newFakeOpener()
	ch, _ := newTestChannel(t, opener, func(c *Config) {
		c.ClientIDs = nil
	})

	_, err := ch.Authorize(context.Background(), calendarReq)
	assert.True(t, oauth.IsKind(err, oauth.KindNetworkFailure))
	assert.Equal(t, 0, opener.count())
}

func TestNewChannel_Validation(t *testing.T) {
	_, err := NewChannel(Config{AppOrigin: testOrigin}, nil, NewBus(), newFakeOpener())
	assert.Error(t, err)

	_, err = NewChannel(Config{}, provider.NewRegistry(""), NewBus(), newFakeOpener())
	assert.Error(t, err)

	ch, err := NewChannel(Config{AppOrigin: testOrigin}, provider.NewRegistry(""), NewBus(), newFakeOpener())
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, ch.cfg.Timeout)
	assert.Equal(t, DefaultPollInterval, ch.cfg.PollInterval)
}
