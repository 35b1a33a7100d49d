package authclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profileHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile := ProfileFromContext(r.Context())
		if profile == nil {
			w.Write([]byte("anonymous"))
			return
		}
		w.Write([]byte(profile.String("username")))
	})
}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestMiddleware_EnsureUser(t *testing.T) {
	m, _, store := newTestManager(t)
	seed(t, store, testNow.Add(10*time.Minute))
	mw := &Middleware{Session: func(*http.Request) *SessionManager { return m }}

	rec := serve(mw.EnsureUser(profileHandler(t)), "/me")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())
}

func TestMiddleware_EnsureUserRejects(t *testing.T) {
	m, _, _ := newTestManager(t)
	mw := &Middleware{Session: func(*http.Request) *SessionManager { return m }}

	rec := serve(mw.EnsureUser(profileHandler(t)), "/me")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	noSession := &Middleware{Session: func(*http.Request) *SessionManager { return nil }}
	rec = serve(noSession.EnsureUser(profileHandler(t)), "/me")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_EnsureUserRedirects(t *testing.T) {
	mw := &Middleware{
		Session:     func(*http.Request) *SessionManager { return nil },
		GetRedirURL: func(*http.Request) string { return "/login" },
	}

	rec := serve(mw.EnsureUser(profileHandler(t)), "/my%20page")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?callbackURL=%2Fmy%20page", rec.Header().Get("Location"))
}

func TestMiddleware_EnsureUserUnavailable(t *testing.T) {
	m, p, store := newTestManager(t)
	seed(t, store, testNow.Add(-time.Minute))
	p.refreshErr = newAuthError(KindNetworkFailure, OpRefresh, 503, "", nil)
	mw := &Middleware{Session: func(*http.Request) *SessionManager { return m }}

	rec := serve(mw.EnsureUser(profileHandler(t)), "/me")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMiddleware_ExtractUser(t *testing.T) {
	m, _, store := newTestManager(t)
	mw := &Middleware{Session: func(*http.Request) *SessionManager { return m }}
	h := mw.ExtractUser(profileHandler(t))

	rec := serve(h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	seed(t, store, testNow.Add(10*time.Minute))
	m2 := NewSessionManager(newFakeProvider(), store, WithClock(fixedClock))
	mw.Session = func(*http.Request) *SessionManager { return m2 }
	rec = serve(h, "/")
	assert.Equal(t, "alice", rec.Body.String())
}
