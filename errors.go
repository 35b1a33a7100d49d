package authclient

import (
	"errors"
	"fmt"
)

// ErrorKind is the class of failure an operation ended with.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota

	// KindNetworkFailure covers transport errors, timeouts and transient
	// upstream statuses. The caller may retry later.
	KindNetworkFailure

	// KindInvalidCredentials is returned when the provider rejects a login.
	KindInvalidCredentials

	// KindTokenExpired marks a token past its expiry. The manager uses it
	// internally to trigger a refresh and does not surface it.
	KindTokenExpired

	// KindTokenInvalid is returned when the provider rejects an access or
	// refresh token. The session must log in again.
	KindTokenInvalid

	// KindProviderError is an unexpected response shape or status.
	KindProviderError

	// KindUnauthenticated is returned when there is no session to work with.
	KindUnauthenticated
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetworkFailure:
		return "network_failure"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindTokenExpired:
		return "token_expired"
	case KindTokenInvalid:
		return "token_invalid"
	case KindProviderError:
		return "provider_error"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// AuthError is the error type returned by the provider client and the
// session manager.
type AuthError struct {
	Kind ErrorKind

	// Op is the provider operation that failed, empty for local failures.
	Op Operation

	// StatusCode is the HTTP status of the provider response, 0 if none.
	StatusCode int

	// Code is the provider supplied error message or code, if any.
	Code string

	// Err is the underlying cause.
	Err error
}

func (e *AuthError) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = string(e.Op) + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any *AuthError of the same kind, so the sentinels below work
// with errors.Is regardless of operation or status.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNetworkFailure     = &AuthError{Kind: KindNetworkFailure}
	ErrInvalidCredentials = &AuthError{Kind: KindInvalidCredentials}
	ErrTokenExpired       = &AuthError{Kind: KindTokenExpired}
	ErrTokenInvalid       = &AuthError{Kind: KindTokenInvalid}
	ErrProviderError      = &AuthError{Kind: KindProviderError}
	ErrNotAuthenticated   = &AuthError{Kind: KindUnauthenticated}
)

// KindOf returns the ErrorKind carried by err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	return KindOf(err) == KindNetworkFailure
}

func newAuthError(kind ErrorKind, op Operation, status int, code string, err error) *AuthError {
	return &AuthError{Kind: kind, Op: op, StatusCode: status, Code: code, Err: err}
}
