package authclient

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// OAuth2Token converts the token set for use with golang.org/x/oauth2.
func (t *TokenSet) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

// TokenSetFromOAuth2 converts an oauth2.Token obtained elsewhere, e.g. to
// seed a TokenStore. It returns nil if either token is missing.
func TokenSetFromOAuth2(tok *oauth2.Token, issuedAt time.Time) *TokenSet {
	if tok == nil {
		return nil
	}
	t := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IssuedAt:     issuedAt,
		ExpiresAt:    tok.Expiry,
	}
	if !t.Complete() {
		return nil
	}
	return t
}

// TokenSource returns an oauth2.TokenSource that serves tokens through
// EnsureValidToken, so oauth2.NewClient and friends share the session's
// refresh handling.
func (m *SessionManager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, manager: m}
}

type sessionTokenSource struct {
	ctx     context.Context
	manager *SessionManager
}

func (s *sessionTokenSource) Token() (*oauth2.Token, error) {
	access, err := s.manager.EnsureValidToken(s.ctx)
	if err != nil {
		return nil, err
	}
	if tokens := s.manager.Tokens(); tokens != nil && tokens.AccessToken == access {
		return tokens.OAuth2Token(), nil
	}
	return &oauth2.Token{AccessToken: access}, nil
}
