package authclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwesidev/authclient/internal/providertest"
)

func newTestProvider(t *testing.T) (*ProviderClient, *providertest.Server) {
	t.Helper()
	server := providertest.New(t)
	server.AddUser("alice", "password1")
	return NewProviderClient(server.URL), server
}

func TestProviderClient_Login(t *testing.T) {
	client, _ := newTestProvider(t)

	tokens, err := client.Login(context.Background(), Credentials{Username: "alice", Password: "password1"})
	require.NoError(t, err)
	assert.True(t, tokens.Complete())
	// expiry is read from the JWT exp claim
	assert.WithinDuration(t, time.Now().Add(providertest.DefaultAccessTTL), tokens.ExpiresAt, 5*time.Second)
}

func TestProviderClient_LoginRejected(t *testing.T) {
	client, server := newTestProvider(t)

	_, err := client.Login(context.Background(), Credentials{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, server.Calls(providertest.PathLogin))
}

func TestProviderClient_LoginValidatesLocally(t *testing.T) {
	client, server := newTestProvider(t)

	_, err := client.Login(context.Background(), Credentials{Username: "alice"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Zero(t, server.Calls(providertest.PathLogin))
}

func TestProviderClient_RefreshRotates(t *testing.T) {
	client, _ := newTestProvider(t)
	ctx := context.Background()

	first, err := client.Login(ctx, Credentials{Username: "alice", Password: "password1"})
	require.NoError(t, err)

	second, err := client.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)

	// the old refresh token was consumed
	_, err = client.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestProviderClient_RefreshEmptyToken(t *testing.T) {
	client, server := newTestProvider(t)
	_, err := client.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.Zero(t, server.Calls(providertest.PathRefresh))
}

func TestProviderClient_FetchUserProfile(t *testing.T) {
	client, server := newTestProvider(t)
	ctx := context.Background()
	tokens, err := client.Login(ctx, Credentials{Username: "alice", Password: "password1"})
	require.NoError(t, err)

	profile, err := client.FetchUserProfile(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "1", profile.ID)
	assert.Equal(t, "alice", profile.String("username"))

	server.RejectNextUserInfo(1)
	_, err = client.FetchUserProfile(ctx, tokens.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = client.FetchUserProfile(ctx, "garbage")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestProviderClient_ServerUnavailable(t *testing.T) {
	client, server := newTestProvider(t)
	server.FailNext(providertest.PathLogin, http.StatusServiceUnavailable, "", 1)

	_, err := client.Login(context.Background(), Credentials{Username: "alice", Password: "password1"})
	assert.ErrorIs(t, err, ErrNetworkFailure)
	assert.True(t, IsRetryable(err))
}

func TestProviderClient_MalformedResponse(t *testing.T) {
	client, server := newTestProvider(t)
	server.FailNext(providertest.PathLogin, http.StatusOK, "<html>oops</html>", 1)

	_, err := client.Login(context.Background(), Credentials{Username: "alice", Password: "password1"})
	assert.ErrorIs(t, err, ErrProviderError)
}

func TestProviderClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewProviderClient(url)
	_, err := client.Login(context.Background(), Credentials{Username: "alice", Password: "password1"})
	assert.ErrorIs(t, err, ErrNetworkFailure)
}

func TestProviderClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the server only notices a client hanging up once the body is read
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client := NewProviderClient(server.URL, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := client.Login(context.Background(), Credentials{Username: "alice", Password: "password1"})
	assert.ErrorIs(t, err, ErrNetworkFailure)
}

func TestProviderClient_RequestHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"id":7}`))
	}))
	t.Cleanup(server.Close)

	client := NewProviderClient(server.URL+"/", WithTokenHeader("X-Auth-Token"))
	_, err := client.FetchUserProfile(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, "T1", got.Get("X-Auth-Token"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
	assert.Equal(t, server.URL, client.BaseURL())
}

func TestProviderClient_Revoke(t *testing.T) {
	client, server := newTestProvider(t)
	ctx := context.Background()
	tokens, err := client.Login(ctx, Credentials{Username: "alice", Password: "password1"})
	require.NoError(t, err)

	require.NoError(t, client.RevokeRefreshToken(ctx, tokens.RefreshToken))
	_, err = client.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	err = client.RevokeRefreshToken(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrProviderError)
	assert.Equal(t, 2, server.Calls(providertest.PathLogout))
}

func TestProviderClient_RegisterAndResetPassword(t *testing.T) {
	client, server := newTestProvider(t)
	ctx := context.Background()

	err := client.Register(ctx, RegistrationRequest{
		Username:     "bob",
		Password:     "password1",
		FirstName:    "Bob",
		LastName:     "Builder",
		EmailAddress: "bob@example.com",
	})
	require.NoError(t, err)

	err = client.Register(ctx, RegistrationRequest{Username: "bob", Password: "short"})
	assert.ErrorIs(t, err, ErrProviderError)

	require.NoError(t, client.RequestPasswordReset(ctx, "bob"))
	code := server.ResetCode("bob")
	require.NotEmpty(t, code)
	require.NoError(t, client.ResetPassword(ctx, code, "password2"))

	_, err = client.Login(ctx, Credentials{Username: "bob", Password: "password2"})
	assert.NoError(t, err)

	err = client.RequestPasswordReset(ctx, "nobody")
	assert.ErrorIs(t, err, ErrProviderError)
}

func TestSessionManager_EndToEnd(t *testing.T) {
	client, server := newTestProvider(t)
	ctx := context.Background()
	store := NewMemoryTokenStore()
	m := NewSessionManager(client, store)

	require.NoError(t, m.Login(ctx, "alice", "password1"))
	first := m.Tokens()

	profile, err := m.GetUserDetails(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.String("username"))

	// the server revokes the access token; the manager refreshes once
	server.RevokeAccessToken(first.AccessToken)
	profile, err = m.GetUserDetails(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", profile.ID)
	assert.Equal(t, 1, server.Calls(providertest.PathRefresh))
	assert.NotEqual(t, first.RefreshToken, m.Tokens().RefreshToken)

	// all refresh tokens revoked and the access token rejected: the session ends
	server.RevokeRefreshTokens()
	server.RevokeAccessToken(m.Tokens().AccessToken)
	_, err = m.GetUserDetails(ctx)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.Equal(t, StateUnauthenticated, m.State())

	stored, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}
