package authclient

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// SessionManager owns the authentication lifecycle of one session: it logs
// in, hands out access tokens, refreshes them before they expire and
// forgets them on logout. It is safe for concurrent use; concurrent callers
// that need a refresh share a single provider call.
type SessionManager struct {
	provider IdentityProvider
	store    TokenStore
	revoker  Revoker
	logger   *slog.Logger
	clock    func() time.Time

	refreshLeeway time.Duration
	callTimeout   time.Duration
	strongCheck   bool
	limiter       *rate.Limiter

	flight singleflight.Group

	mu         sync.Mutex
	state      SessionState
	generation uint64
	tokens     *TokenSet
	rejected   string // access token the provider refused while it was current
	loaded     bool
}

// NewSessionManager creates a manager for the session whose tokens live in store.
func NewSessionManager(provider IdentityProvider, store TokenStore, opts ...ManagerOption) *SessionManager {
	m := &SessionManager{
		provider:      provider,
		store:         store,
		logger:        slog.Default(),
		clock:         time.Now,
		refreshLeeway: DefaultRefreshLeeway,
		callTimeout:   DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.revoker == nil {
		if r, ok := provider.(Revoker); ok {
			m.revoker = r
		}
	}
	return m
}

// State returns the current authentication state.
func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Tokens returns a copy of the tokens currently held, or nil.
func (m *SessionManager) Tokens() *TokenSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens.Clone()
}

// Login authenticates with the provider and stores the resulting tokens.
// Any failure leaves the session logged out with an empty store. Login is
// never retried. A Logout or another Login made while the call is in
// flight wins, and this login's result is discarded.
func (m *SessionManager) Login(ctx context.Context, username, password string) error {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	tokens, err := m.provider.Login(callCtx, Credentials{Username: username, Password: password})
	cancel()
	err = wrapProviderErr(OpLogin, err)
	if err == nil && !tokens.Complete() {
		err = newAuthError(KindProviderError, OpLogin, 0, "incomplete token set", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != gen {
		// a logout or a later login took over while the call was in flight
		m.logger.Debug("discarding login result for a superseded session")
		return newAuthError(KindUnauthenticated, OpLogin, 0, "session changed during login", nil)
	}
	m.generation++

	if err != nil {
		m.logger.Info("login failed", "kind", KindOf(err).String())
		if clearErr := m.resetLocked(ctx); clearErr != nil {
			m.logger.Warn("failed to clear token store", "error", clearErr)
		}
		return err
	}
	if err := m.store.Set(ctx, tokens); err != nil {
		if clearErr := m.resetLocked(ctx); clearErr != nil {
			m.logger.Warn("failed to clear token store", "error", clearErr)
		}
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	m.tokens = tokens
	m.rejected = ""
	m.state = StateAuthenticated
	m.loaded = true
	m.logger.Debug("logged in", "expires_at", tokens.ExpiresAt)
	return nil
}

// EnsureValidToken returns an access token that is not known to be expired.
// A cached token is returned without any network call. Otherwise the token
// is refreshed once; concurrent callers wait for that refresh and share its
// result. When the refresh token is rejected the session is logged out and
// the error is returned, so the caller must log in again.
func (m *SessionManager) EnsureValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if err := m.loadLocked(ctx); err != nil {
		m.mu.Unlock()
		return "", err
	}
	tokens, gen := m.tokens, m.generation
	if tokens == nil {
		m.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	if m.state == StateAuthenticated && !tokens.IsExpiringSoon(m.clock(), tokens.RefreshLeeway(m.refreshLeeway)) {
		m.mu.Unlock()
		return tokens.AccessToken, nil
	}
	m.mu.Unlock()

	token, err := m.refresh(ctx, gen, tokens)
	if err == nil {
		return token, nil
	}

	// a transient failure inside the leeway still leaves a usable token
	if kind := KindOf(err); ctx.Err() == nil && (kind == KindNetworkFailure || kind == KindProviderError) {
		m.mu.Lock()
		usable := m.generation == gen && m.tokens == tokens && m.state == StateAuthenticated && !tokens.IsExpired(m.clock())
		m.mu.Unlock()
		if usable {
			return tokens.AccessToken, nil
		}
	}
	return "", err
}

// refresh joins or starts the refresh for generation gen. The provider call
// runs detached from ctx so a departing caller does not fail the others.
func (m *SessionManager) refresh(ctx context.Context, gen uint64, stale *TokenSet) (string, error) {
	detached := context.WithoutCancel(ctx)
	ch := m.flight.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return m.doRefresh(detached, gen, stale)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", newAuthError(KindNetworkFailure, OpRefresh, 0, "", ctx.Err())
	}
}

func (m *SessionManager) doRefresh(ctx context.Context, gen uint64, stale *TokenSet) (string, error) {
	m.mu.Lock()
	if m.generation != gen || m.tokens == nil {
		m.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	current := m.tokens
	if current != stale && m.state == StateAuthenticated && !current.IsExpiringSoon(m.clock(), current.RefreshLeeway(m.refreshLeeway)) {
		// an earlier refresh finished after the caller looked
		m.mu.Unlock()
		return current.AccessToken, nil
	}
	m.state = StateRefreshing
	m.mu.Unlock()

	fresh, err := m.callRefresh(ctx, current.RefreshToken)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != gen {
		m.logger.Debug("discarding refresh result for a superseded session")
		return "", newAuthError(KindUnauthenticated, OpRefresh, 0, "session changed during refresh", nil)
	}
	if err != nil {
		if KindOf(err) == KindTokenInvalid {
			m.logger.Info("refresh token rejected, session ended")
			m.generation++
			if clearErr := m.resetLocked(ctx); clearErr != nil {
				m.logger.Warn("failed to clear token store", "error", clearErr)
			}
			return "", err
		}
		m.logger.Warn("token refresh failed, keeping current tokens", "error", err)
		m.state = m.idleStateLocked()
		return "", err
	}

	m.tokens = fresh
	m.rejected = ""
	m.state = StateAuthenticated
	if err := m.store.Set(ctx, fresh); err != nil {
		// the provider has already rotated the refresh token, so the fresh
		// set stays authoritative in memory
		m.logger.Error("failed to store refreshed tokens", "error", err)
	}
	return fresh.AccessToken, nil
}

func (m *SessionManager) callRefresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	ctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, newAuthError(KindNetworkFailure, OpRefresh, 0, "refresh throttled", err)
		}
	}
	fresh, err := m.provider.Refresh(ctx, refreshToken)
	if err = wrapProviderErr(OpRefresh, err); err != nil {
		return nil, err
	}
	if !fresh.Complete() {
		return nil, newAuthError(KindProviderError, OpRefresh, 0, "incomplete token set", nil)
	}
	return fresh, nil
}

// Invalidate reports that accessToken was rejected by the provider or by a
// downstream API. If it is still the current token, the next
// EnsureValidToken refreshes even though the token has not expired.
func (m *SessionManager) Invalidate(accessToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil || m.tokens.AccessToken != accessToken {
		return
	}
	m.rejected = accessToken
	if m.state == StateAuthenticated {
		m.state = StateInvalid
	}
}

// CheckAuth reports whether the session holds a usable token. With
// WithStrongAuthCheck the token is also confirmed by a user lookup.
func (m *SessionManager) CheckAuth(ctx context.Context) bool {
	if m.strongCheck {
		_, err := m.GetUserDetails(ctx)
		return err == nil
	}
	_, err := m.EnsureValidToken(ctx)
	return err == nil
}

// GetUserDetails fetches the profile of the logged in user. If the provider
// rejects the access token, the manager refreshes and retries exactly once.
func (m *SessionManager) GetUserDetails(ctx context.Context) (*UserProfile, error) {
	token, err := m.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}
	profile, err := m.fetchProfile(ctx, token)
	if KindOf(err) != KindTokenInvalid {
		return profile, err
	}

	m.logger.Debug("access token rejected by provider, refreshing")
	m.Invalidate(token)
	if token, err = m.EnsureValidToken(ctx); err != nil {
		return nil, err
	}
	profile, err = m.fetchProfile(ctx, token)
	if KindOf(err) == KindTokenInvalid {
		m.Invalidate(token)
	}
	return profile, err
}

func (m *SessionManager) fetchProfile(ctx context.Context, token string) (*UserProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()
	profile, err := m.provider.FetchUserProfile(ctx, token)
	return profile, wrapProviderErr(OpUserInfo, err)
}

// Logout forgets the session's tokens without contacting the provider.
// The in-memory session is always logged out and any refresh still in
// flight is discarded; the returned error only reports a store failure.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	if err := m.resetLocked(ctx); err != nil {
		m.logger.Warn("failed to clear token store on logout", "error", err)
		return fmt.Errorf("failed to clear token store: %w", err)
	}
	return nil
}

// Revoke invalidates the refresh token at the provider and then logs out.
// The session is logged out locally even when revocation fails.
func (m *SessionManager) Revoke(ctx context.Context) error {
	m.mu.Lock()
	loadErr := m.loadLocked(ctx)
	tokens := m.tokens
	m.mu.Unlock()

	var revokeErr error
	if loadErr == nil && tokens != nil && m.revoker != nil {
		callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
		revokeErr = wrapProviderErr(OpRevoke, m.revoker.RevokeRefreshToken(callCtx, tokens.RefreshToken))
		cancel()
	}
	if err := m.Logout(ctx); err != nil {
		return err
	}
	return revokeErr
}

func (m *SessionManager) loadLocked(ctx context.Context) error {
	if m.loaded {
		return nil
	}
	tokens, err := m.store.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tokens: %w", err)
	}
	m.loaded = true
	if tokens.Complete() {
		m.tokens = tokens
		m.state = StateAuthenticated
	}
	return nil
}

func (m *SessionManager) resetLocked(ctx context.Context) error {
	m.tokens = nil
	m.rejected = ""
	m.state = StateUnauthenticated
	m.loaded = true
	return m.store.Clear(ctx)
}

// idleStateLocked is the state to return to when a refresh did not replace
// the tokens.
func (m *SessionManager) idleStateLocked() SessionState {
	if m.tokens != nil && m.rejected == m.tokens.AccessToken {
		return StateInvalid
	}
	return StateAuthenticated
}
