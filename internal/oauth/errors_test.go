package oauth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthError_Is(t *testing.T) {
	err := fmt.Errorf("connect calendar: %w", Timeout("google"))

	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrUserCancelled))
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.True(t, IsKind(err, KindTimeout))
}

func TestAuthError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NetworkFailure("microsoft", 0, "", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrNetworkFailure))
	assert.Contains(t, err.Error(), "connection reset")
	assert.Contains(t, err.Error(), "microsoft")
}

func TestAuthError_StatusInMessage(t *testing.T) {
	err := NetworkFailure("google", 503, "backend unavailable", nil)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, 503, authErr.Status)
	assert.Equal(t, "backend unavailable", authErr.Body)
	assert.Contains(t, err.Error(), "status 503")
}

func TestKindOf_NonAuthError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.False(t, IsKind(nil, KindTimeout))
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"popup blocked", PopupBlocked("google", nil), "could not be opened"},
		{"expired", ExpiredOrRevoked("google", nil), "reconnect"},
		{"scope", ScopeInsufficient("google", ScopeSet{"x"}), "permissions"},
		{"timeout", Timeout("google"), "timed out"},
		{"plain", errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, UserMessage(tt.err), tt.contains)
		})
	}

	assert.Empty(t, UserMessage(nil))
}
