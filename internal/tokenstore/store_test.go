package tokenstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/homedash/internal/oauth"
	"github.com/teemow/homedash/internal/provider"
)

var (
	calendarScopes = oauth.ScopeSet{"https://www.googleapis.com/auth/calendar"}
	gmailScopes    = oauth.ScopeSet{"https://www.googleapis.com/auth/gmail.modify"}
)

func newCred(token string, scopes oauth.ScopeSet) *oauth.Credential {
	return oauth.NewCredential("", token, scopes, time.Now(), 0)
}

func TestStore_GetSetClear(t *testing.T) {
	ctx := context.Background()
	s := New()

	assert.Nil(t, s.Get(provider.Google))

	require.NoError(t, s.Set(ctx, provider.Google, newCred("abc", calendarScopes)))

	got := s.Get(provider.Google)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.AccessToken)
	assert.Equal(t, "google", got.Provider)

	// wholesale replace
	require.NoError(t, s.Set(ctx, provider.Google, newCred("def", gmailScopes)))
	got = s.Get(provider.Google)
	assert.Equal(t, "def", got.AccessToken)
	assert.Equal(t, gmailScopes, got.GrantedScopes)

	require.NoError(t, s.Clear(ctx, provider.Google))
	assert.Nil(t, s.Get(provider.Google))

	// idempotent
	require.NoError(t, s.Clear(ctx, provider.Google))
}

func TestStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, provider.Google, newCred("abc", calendarScopes)))

	got := s.Get(provider.Google)
	got.AccessToken = "mutated"
	got.GrantedScopes[0] = "mutated"

	again := s.Get(provider.Google)
	assert.Equal(t, "abc", again.AccessToken)
	assert.Equal(t, calendarScopes, again.GrantedScopes)
}

func TestStore_SetNil(t *testing.T) {
	assert.Error(t, New().Set(context.Background(), provider.Google, nil))
}

func TestStore_IsValid(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))

	assert.False(t, s.IsValid(provider.Google, calendarScopes), "no credential")

	require.NoError(t, s.Set(ctx, provider.Google, newCred("abc", calendarScopes)))
	assert.True(t, s.IsValid(provider.Google, calendarScopes))
	assert.True(t, s.IsValid(provider.Google, nil))
	assert.False(t, s.IsValid(provider.Google, calendarScopes.Union(gmailScopes)), "insufficient scopes")
	assert.False(t, s.IsValid(provider.Microsoft, nil), "other provider")

	expiring := oauth.NewCredential("", "xyz", calendarScopes, now.Add(-2*time.Hour), time.Hour)
	require.NoError(t, s.Set(ctx, provider.Google, expiring))
	assert.False(t, s.IsValid(provider.Google, calendarScopes), "expiry hint passed")
}

func TestStore_Status(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := New(WithClock(func() time.Time { return now }))

	_, status := s.Status(provider.Microsoft, nil)
	assert.Equal(t, StatusMissing, status)

	require.NoError(t, s.Set(ctx, provider.Microsoft, newCred("t", oauth.ScopeSet{"User.Read"})))
	cred, status := s.Status(provider.Microsoft, oauth.ScopeSet{"Files.ReadWrite"})
	assert.Equal(t, StatusInsufficient, status)
	assert.Equal(t, "t", cred.AccessToken)

	require.NoError(t, s.Set(ctx, provider.Microsoft, oauth.NewCredential("", "t", nil, now.Add(-time.Hour), time.Minute)))
	_, status = s.Status(provider.Microsoft, nil)
	assert.Equal(t, StatusExpired, status)

	assert.Equal(t, []provider.ID{provider.Microsoft}, s.Providers())
}

func TestStore_PersistAndLoad(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	key, err := oauth.GenerateEncryptionKey()
	require.NoError(t, err)
	sealer, err := oauth.NewSealer(key)
	require.NoError(t, err)

	s := New(WithBackend(backend), WithSealer(sealer))
	require.NoError(t, s.Set(ctx, provider.Google, newCred("abc", calendarScopes)))
	require.NoError(t, s.Set(ctx, provider.Microsoft, newCred("ms", oauth.ScopeSet{"User.Read"})))
	assert.Equal(t, 2, backend.Len())

	raw, err := backend.Load(ctx, "google")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "abc", "blob must be sealed")

	restored := New(WithBackend(backend), WithSealer(sealer))
	require.NoError(t, restored.Load(ctx))
	assert.True(t, restored.IsValid(provider.Google, calendarScopes))
	assert.Equal(t, "ms", restored.Get(provider.Microsoft).AccessToken)

	require.NoError(t, restored.Clear(ctx, provider.Google))
	_, err = backend.Load(ctx, "google")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_LoadSkipsUnreadable(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(ctx, "google", []byte("not json")))
	require.NoError(t, backend.Save(ctx, "microsoft", []byte(`{"access_token":"ms","granted_scopes":["User.Read"]}`)))

	s := New(WithBackend(backend))
	require.NoError(t, s.Load(ctx))

	assert.Nil(t, s.Get(provider.Google))
	cred := s.Get(provider.Microsoft)
	require.NotNil(t, cred)
	assert.Equal(t, "microsoft", cred.Provider)
}

type failingBackend struct{ err error }

func (f failingBackend) Load(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingBackend) Save(context.Context, string, []byte) error   { return f.err }
func (f failingBackend) Delete(context.Context, string) error         { return f.err }

func TestStore_BackendFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	s := New(WithBackend(failingBackend{err: boom}))

	err := s.Set(ctx, provider.Google, newCred("abc", calendarScopes))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "abc", s.Get(provider.Google).AccessToken, "memory is authoritative")

	assert.ErrorIs(t, s.Clear(ctx, provider.Google), boom)
	assert.Nil(t, s.Get(provider.Google))

	assert.ErrorIs(t, s.Load(ctx), boom)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := New(WithBackend(NewMemoryBackend()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Set(ctx, provider.Google, newCred("abc", calendarScopes))
		}()
		go func() {
			defer wg.Done()
			_ = s.IsValid(provider.Google, calendarScopes)
			_ = s.Get(provider.Google)
		}()
	}
	wg.Wait()

	assert.True(t, s.IsValid(provider.Google, calendarScopes))
}

func TestStore_Invalidate(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := New(WithBackend(backend))

	removed, err := s.Invalidate(ctx, provider.Google, "abc")
	require.NoError(t, err)
	assert.False(t, removed, "nothing stored")

	require.NoError(t, s.Set(ctx, provider.Google, newCred("new", calendarScopes)))

	removed, err = s.Invalidate(ctx, provider.Google, "old")
	require.NoError(t, err)
	assert.False(t, removed, "stale token must not evict a newer grant")
	assert.NotNil(t, s.Get(provider.Google))

	removed, err = s.Invalidate(ctx, provider.Google, "new")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Nil(t, s.Get(provider.Google))
	assert.Equal(t, 0, backend.Len())
}
