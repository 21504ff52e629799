package oauth

import (
	"errors"
	"fmt"
)

// Kind tags an AuthError with one of the failure classes feature code has to
// handle.
type Kind string

const (
	KindPopupBlocked      Kind = "popup_blocked"
	KindUserCancelled     Kind = "user_cancelled"
	KindTimeout           Kind = "timeout"
	KindExpiredOrRevoked  Kind = "expired_or_revoked"
	KindNetworkFailure    Kind = "network_failure"
	KindScopeInsufficient Kind = "scope_insufficient"
	// KindBusy is returned by channels configured to reject, rather than join,
	// a second authorization for a provider that already has one in flight.
	KindBusy Kind = "busy"
)

// Sentinel values for errors.Is. They match any AuthError of the same kind.
var (
	ErrPopupBlocked      = &AuthError{Kind: KindPopupBlocked}
	ErrUserCancelled     = &AuthError{Kind: KindUserCancelled}
	ErrTimeout           = &AuthError{Kind: KindTimeout}
	ErrExpiredOrRevoked  = &AuthError{Kind: KindExpiredOrRevoked}
	ErrNetworkFailure    = &AuthError{Kind: KindNetworkFailure}
	ErrScopeInsufficient = &AuthError{Kind: KindScopeInsufficient}
	ErrBusy              = &AuthError{Kind: KindBusy}
)

// AuthError is the only error type the session coordinators hand to feature
// code. Status and Body are set for NetworkFailure errors caused by an HTTP
// response.
type AuthError struct {
	Kind     Kind
	Provider string
	Message  string
	Status   int
	Body     string
	Err      error
}

// Error implements the error interface
func (e *AuthError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches another AuthError of the same kind, which lets callers write
// errors.Is(err, oauth.ErrTimeout).
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewAuthError creates a new AuthError.
func NewAuthError(kind Kind, provider, message string, cause error) *AuthError {
	return &AuthError{
		Kind:     kind,
		Provider: provider,
		Message:  message,
		Err:      cause,
	}
}

// Constructors for each kind.
var (
	PopupBlocked = func(provider string, cause error) *AuthError {
		return NewAuthError(KindPopupBlocked, provider, "authorization window could not be opened", cause)
	}

	UserCancelled = func(provider, message string, cause error) *AuthError {
		if message == "" {
			message = "authorization cancelled"
		}
		return NewAuthError(KindUserCancelled, provider, message, cause)
	}

	Timeout = func(provider string) *AuthError {
		return NewAuthError(KindTimeout, provider, "authorization timed out", nil)
	}

	ExpiredOrRevoked = func(provider string, cause error) *AuthError {
		return NewAuthError(KindExpiredOrRevoked, provider, "authorization expired or revoked", cause)
	}

	ScopeInsufficient = func(provider string, missing ScopeSet) *AuthError {
		return NewAuthError(KindScopeInsufficient, provider, "missing scopes: "+missing.String(), nil)
	}

	Busy = func(provider string) *AuthError {
		return NewAuthError(KindBusy, provider, "authorization already in progress", nil)
	}
)

// NetworkFailure wraps a non-auth failure. status and body are zero/empty when
// the failure happened before a response was received.
func NetworkFailure(provider string, status int, body string, cause error) *AuthError {
	return &AuthError{
		Kind:     KindNetworkFailure,
		Provider: provider,
		Message:  "request failed",
		Status:   status,
		Body:     body,
		Err:      cause,
	}
}

// KindOf returns the kind of the first AuthError in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return ""
}

// IsKind reports whether err carries an AuthError of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage renders the hint shown next to a failed provider action.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindPopupBlocked:
		return "The sign-in window could not be opened. Open the sign-in link in a browser and try again."
	case KindUserCancelled:
		return "Sign-in was cancelled."
	case KindTimeout:
		return "Sign-in timed out. Please try again."
	case KindExpiredOrRevoked:
		return "Your connection expired. Please reconnect your account."
	case KindScopeInsufficient:
		return "Additional permissions are required. Please reconnect your account."
	case KindBusy:
		return "A sign-in is already in progress."
	case KindNetworkFailure:
		return "The provider request failed. Please try again later."
	case "":
		if err == nil {
			return ""
		}
	}
	return err.Error()
}
