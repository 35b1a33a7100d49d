package authclient

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Field names used by the provider payloads and by key/value shaped stores.
const (
	KeyAccessToken  = "token"
	KeyRefreshToken = "refreshToken"
	KeyIssuedAt     = "issuedAt"
	KeyExpiresAt    = "expiresAt"
)

// TokenSet is the pair of tokens held for one session.
type TokenSet struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	IssuedAt     time.Time `json:"issuedAt"`

	// ExpiresAt is zero when the expiry of the access token is unknown.
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Complete reports whether both tokens are present.
func (t *TokenSet) Complete() bool {
	return t != nil && t.AccessToken != "" && t.RefreshToken != ""
}

// HasRefreshToken returns true if a refresh token is available
func (t *TokenSet) HasRefreshToken() bool {
	return t != nil && t.RefreshToken != ""
}

// IsExpired returns true if the access token is known to have expired.
func (t *TokenSet) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// IsExpiringSoon returns true if the access token is known to expire within
// the given duration.
func (t *TokenSet) IsExpiringSoon(now time.Time, within time.Duration) bool {
	return !t.ExpiresAt.IsZero() && !now.Add(within).Before(t.ExpiresAt)
}

// RefreshLeeway caps leeway at half the token's lifetime, so a token that
// lives no longer than leeway is not due for refresh as soon as it arrives.
func (t *TokenSet) RefreshLeeway(leeway time.Duration) time.Duration {
	if t.ExpiresAt.IsZero() || t.IssuedAt.IsZero() {
		return leeway
	}
	if half := t.ExpiresAt.Sub(t.IssuedAt) / 2; half >= 0 && half < leeway {
		return half
	}
	return leeway
}

// Clone returns a copy that shares nothing with t.
func (t *TokenSet) Clone() *TokenSet {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Fields encodes the token set as flat string fields for key/value stores.
func (t *TokenSet) Fields() map[string]string {
	fields := map[string]string{
		KeyAccessToken:  t.AccessToken,
		KeyRefreshToken: t.RefreshToken,
		KeyIssuedAt:     formatTime(t.IssuedAt),
	}
	if !t.ExpiresAt.IsZero() {
		fields[KeyExpiresAt] = formatTime(t.ExpiresAt)
	}
	return fields
}

// TokenSetFromFields decodes the output of Fields. It returns nil when the
// fields do not hold both tokens, so a half written record reads as absent.
func TokenSetFromFields(fields map[string]string) *TokenSet {
	t := &TokenSet{
		AccessToken:  fields[KeyAccessToken],
		RefreshToken: fields[KeyRefreshToken],
		IssuedAt:     parseTime(fields[KeyIssuedAt]),
		ExpiresAt:    parseTime(fields[KeyExpiresAt]),
	}
	if !t.Complete() {
		return nil
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// newTokenSet builds a TokenSet from a login or refresh payload. Expiry comes
// from expiresIn when the provider sends it, otherwise from the exp claim of
// a JWT access token.
func newTokenSet(payload map[string]any, now time.Time) *TokenSet {
	t := &TokenSet{IssuedAt: now}
	t.AccessToken, _ = payload[KeyAccessToken].(string)
	t.RefreshToken, _ = payload[KeyRefreshToken].(string)

	if secs, ok := payload["expiresIn"].(float64); ok && secs > 0 {
		t.ExpiresAt = now.Add(time.Duration(secs) * time.Second)
		return t
	}
	if exp, iat, ok := jwtTimes(t.AccessToken); ok {
		t.ExpiresAt = exp
		if !iat.IsZero() {
			t.IssuedAt = iat
		}
	}
	return t
}

// jwtTimes reads exp and iat from an access token without verifying it.
// The provider signs the token; the client only needs to know when to
// refresh.
func jwtTimes(token string) (exp, iat time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, time.Time{}, false
	}
	e, err := claims.GetExpirationTime()
	if err != nil || e == nil {
		return time.Time{}, time.Time{}, false
	}
	if i, err := claims.GetIssuedAt(); err == nil && i != nil {
		iat = i.Time
	}
	return e.Time, iat, true
}

// SessionState is the authentication state of one session.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticated
	StateRefreshing

	// StateInvalid means the provider rejected the current access token
	// before it expired. The next EnsureValidToken refreshes.
	StateInvalid
)

func (s SessionState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateInvalid:
		return "invalid"
	default:
		return "unauthenticated"
	}
}
