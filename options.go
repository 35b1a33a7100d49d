package authclient

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRefreshLeeway is how long before expiry a token is refreshed.
	DefaultRefreshLeeway = 30 * time.Second

	// DefaultCallTimeout bounds each provider call made by the manager.
	DefaultCallTimeout = 10 * time.Second
)

// ManagerOption configures a SessionManager
type ManagerOption func(*SessionManager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRefreshLeeway sets how long before expiry the access token is
// proactively refreshed.
func WithRefreshLeeway(d time.Duration) ManagerOption {
	return func(m *SessionManager) {
		if d >= 0 {
			m.refreshLeeway = d
		}
	}
}

// WithCallTimeout bounds each login and refresh call. A call that times out
// fails with KindNetworkFailure.
func WithCallTimeout(d time.Duration) ManagerOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.callTimeout = d
		}
	}
}

// WithRefreshLimiter throttles refresh calls. Waiting for the limiter counts
// against the call timeout, and a refresh that cannot get a slot in time
// fails with KindNetworkFailure.
func WithRefreshLimiter(l *rate.Limiter) ManagerOption {
	return func(m *SessionManager) {
		m.limiter = l
	}
}

// WithStrongAuthCheck makes CheckAuth confirm the token with a user lookup
// instead of trusting the local expiry.
func WithStrongAuthCheck(enabled bool) ManagerOption {
	return func(m *SessionManager) {
		m.strongCheck = enabled
	}
}

// WithRevoker sets who revokes the refresh token in Revoke. When unset the
// provider is used if it implements Revoker.
func WithRevoker(r Revoker) ManagerOption {
	return func(m *SessionManager) {
		m.revoker = r
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *SessionManager) {
		if now != nil {
			m.clock = now
		}
	}
}
