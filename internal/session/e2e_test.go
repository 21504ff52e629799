package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/popup"
	"github.com/teemow/homedash/internal/provider"
	"github.com/teemow/homedash/internal/request"
	"github.com/teemow/homedash/internal/tokenstore"
)

const appOrigin = "http://127.0.0.1:8765"

type window struct{ closed atomic.Bool }

func (w *window) Closed() bool { return w.closed.Load() }
func (w *window) Close() error { w.closed.Store(true); return nil }

func TestEndToEnd_ConnectAndCall(t *testing.T) {
	var gotAuth atomic.Value
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer api.Close()

	bus := popup.NewBus()
	opened := make(chan string, 1)
	opener := popup.OpenerFunc(func(_ context.Context, u string) (popup.Window, error) {
		opened <- u
		return &window{}, nil
	})

	channel, err := popup.NewChannel(popup.Config{
		ClientIDs:    map[provider.ID]string{provider.Google: "client"},
		RedirectURI:  appOrigin + "/oauth/callback",
		AppOrigin:    appOrigin,
		PollInterval: 10 * time.Millisecond,
	}, provider.NewRegistry(""), bus, opener)
	require.NoError(t, err)

	store := tokenstore.New(tokenstore.WithBackend(tokenstore.NewMemoryBackend()))
	mgr, err := NewManager(DefaultSessions(), store, channel, request.NewWrapper(store))
	require.NoError(t, err)

	cal, err := mgr.Get(Calendar)
	require.NoError(t, err)
	assert.False(t, cal.IsConnected())

	done := make(chan error, 1)
	go func() { done <- cal.Connect(context.Background()) }()

	var authURL string
	select {
	case authURL = <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("no window opened")
	}
	u, err := url.Parse(authURL)
	require.NoError(t, err)

	// what the landing page posts after the provider redirect
	bus.Post(popup.Message{
		Origin:      appOrigin,
		Type:        "GOOGLE_AUTH_SUCCESS",
		AccessToken: "abc",
		Scope:       u.Query().Get("scope"),
		State:       u.Query().Get("state"),
		ExpiresIn:   3599,
	})
	require.NoError(t, <-done)
	assert.Equal(t, StateConnected, cal.State())

	err = cal.WithAuth(context.Background(), nil, func(ctx context.Context, c *http.Client) error {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, api.URL, nil)
		resp, err := c.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return request.CheckResponse(resp)
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", gotAuth.Load())
	assert.Equal(t, 0, bus.Len())
}

func TestEndToEnd_SiblingJoinsRunningFlow(t *testing.T) {
	ctx := context.Background()
	bus := popup.NewBus()
	opened := make(chan string, 2)
	opener := popup.OpenerFunc(func(_ context.Context, u string) (popup.Window, error) {
		opened <- u
		return &window{}, nil
	})
	channel, err := popup.NewChannel(popup.Config{
		ClientIDs:    map[provider.ID]string{provider.Google: "client"},
		RedirectURI:  appOrigin + "/oauth/callback",
		AppOrigin:    appOrigin,
		PollInterval: 10 * time.Millisecond,
	}, provider.NewRegistry(""), bus, opener)
	require.NoError(t, err)

	store := tokenstore.New()
	mgr, err := NewManager(DefaultSessions(), store, channel, request.NewWrapper(store))
	require.NoError(t, err)
	cal, _ := mgr.Get(Calendar)
	gm, _ := mgr.Get(Gmail)

	approve := func(authURL string) {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		bus.Post(popup.Message{
			Origin:      appOrigin,
			Type:        "GOOGLE_AUTH_SUCCESS",
			AccessToken: "abc",
			Scope:       u.Query().Get("scope"),
			State:       u.Query().Get("state"),
			ExpiresIn:   3599,
		})
	}

	calDone := make(chan error, 1)
	go func() { calDone <- cal.Connect(ctx) }()
	first := <-opened

	gmDone := make(chan error, 1)
	go func() { gmDone <- gm.Connect(ctx) }()
	require.Eventually(t, func() bool { return gm.State() == StateConnecting }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	// gmail shares calendar's window and gets calendar's grant
	approve(first)
	require.NoError(t, <-calDone)
	assert.True(t, oauth.IsKind(<-gmDone, oauth.KindScopeInsufficient))
	assert.Equal(t, StateConnected, cal.State())
	assert.Equal(t, StateDisconnected, gm.State())
	assert.Empty(t, opened, "one window for both sessions")

	// the retry asks for the union and keeps calendar connected
	go func() { gmDone <- gm.Connect(ctx) }()
	second := <-opened
	u, err := url.Parse(second)
	require.NoError(t, err)
	assert.Equal(t, "consent", u.Query().Get("prompt"))
	approve(second)
	require.NoError(t, <-gmDone)
	assert.Equal(t, StateConnected, gm.State())
	assert.Equal(t, StateConnected, cal.State())
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.New()
	auth := &fakeAuthorizer{grant: grantAll("abc")}

	mgr, err := NewManager(DefaultSessions(), store, auth, request.NewWrapper(store))
	require.NoError(t, err)
	assert.Equal(t, []string{Calendar, Gmail, OneDrive}, mgr.Names())

	_, err = mgr.Get("tasks")
	assert.Error(t, err)

	assert.Len(t, mgr.ForProvider(provider.Google), 2)

	cal, _ := mgr.Get(Calendar)
	gm, _ := mgr.Get(Gmail)
	require.NoError(t, cal.Connect(ctx))
	require.NoError(t, gm.Connect(ctx))
	assert.Equal(t, StateConnected, cal.State(), "gmail consent kept calendar scopes")

	var cal0 Status
	for _, st := range mgr.Status() {
		if st.Name == Calendar {
			cal0 = st
		}
	}
	assert.Equal(t, StateConnected, cal0.State)
	assert.Empty(t, cal0.Missing)
	assert.False(t, cal0.ExpiresAt.IsZero())

	require.NoError(t, mgr.Disconnect(ctx, Gmail))
	assert.Equal(t, StateDisconnected, gm.State())
	assert.Equal(t, StateDisconnected, cal.State(), "sibling disconnected, not expired")

	od, _ := mgr.Get(OneDrive)
	require.NoError(t, od.Connect(ctx))
	require.NoError(t, mgr.DisconnectAll(ctx))
	assert.Empty(t, store.Providers())
}

func TestNewManager_DuplicateName(t *testing.T) {
	store := tokenstore.New()
	_, err := NewManager([]Config{calendarConfig, calendarConfig}, store, &fakeAuthorizer{grant: grantAll("x")}, request.NewWrapper(store))
	assert.Error(t, err)
}

var (
	_ Authorizer = (*popup.Channel)(nil)
	_ Caller     = (*request.Wrapper)(nil)
)
