// Package authclient manages the token lifecycle of sessions authenticated
// against a kwesidev style auth server.
//
// The server issues a short lived access token and a long lived refresh
// token on login. A SessionManager holds that pair for one session, hands
// out access tokens, refreshes them shortly before they expire and forgets
// them on logout. Concurrent callers of one session share a single refresh
// call, and a logout always wins over a refresh that is still in flight.
//
// # Basic Usage
//
//	provider := authclient.NewProviderClient("http://localhost:8080")
//	session := authclient.NewSessionManager(provider, authclient.NewMemoryTokenStore())
//
//	if err := session.Login(ctx, "alice", "secret"); err != nil {
//	    // errors.Is(err, authclient.ErrInvalidCredentials) etc.
//	}
//
//	profile, err := session.GetUserDetails(ctx)
//	...
//	session.Logout(ctx)
//
// # Token Stores
//
// Tokens live in a TokenStore, one per session. MemoryTokenStore keeps them
// in process; the stores/ subpackages persist them to files, an scs web
// session, Redis, a SQL database through GORM or Google Cloud Datastore.
//
// # Errors
//
// Every failure is an *AuthError with an ErrorKind. Use errors.Is against
// the Err* sentinels or KindOf to branch on the kind:
//
//   - ErrNetworkFailure: transient, the caller may retry
//   - ErrInvalidCredentials: the login was rejected
//   - ErrTokenInvalid: the session ended and must log in again
//   - ErrProviderError: the server answered in an unexpected way
//   - ErrNotAuthenticated: there is no session
//
// # Outbound Requests
//
// SessionManager.HTTPClient and SessionManager.TokenSource attach the
// session's token to requests against other APIs and retry once after a
// 401. The grpc subpackage does the same for gRPC clients.
//
// # Configuration
//
// LoadConfig reads AUTH_SERVER_URL and the other AUTH_* variables from the
// environment.
package authclient
