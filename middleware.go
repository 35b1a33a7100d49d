package authclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type profileKey struct{}

// Middleware guards HTTP handlers with a session's authentication state.
type Middleware struct {
	// Session resolves the SessionManager of the request, or nil if the
	// request carries no session.
	Session func(r *http.Request) *SessionManager

	// CallbackURLParam names the query parameter the login redirect carries
	// the original path in.
	CallbackURLParam string

	// GetRedirURL returns the login page to redirect to. When nil or empty,
	// EnsureUser answers with a 401 instead.
	GetRedirURL func(r *http.Request) string

	Logger *slog.Logger
}

// EnsureReasonableDefaults fills in unset fields.
func (a *Middleware) EnsureReasonableDefaults() {
	if a.CallbackURLParam == "" {
		a.CallbackURLParam = "callbackURL"
	}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
}

// ExtractUser loads the logged in user's profile into the request context
// when there is one. It does not reject anonymous requests; use EnsureUser
// for that.
func (a *Middleware) ExtractUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if profile, _ := a.loadProfile(r); profile != nil {
			r = WithProfile(r, profile)
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureUser only lets requests of logged in users through. Others are
// redirected to the login page or get a 401.
func (a *Middleware) EnsureUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile, err := a.loadProfile(r)
		if profile != nil {
			next.ServeHTTP(w, WithProfile(r, profile))
			return
		}
		if IsRetryable(err) {
			http.Error(w, "Authentication server unavailable", http.StatusServiceUnavailable)
			return
		}

		redirURL := ""
		if a.GetRedirURL != nil {
			redirURL = a.GetRedirURL(r)
		}
		if redirURL == "" {
			http.Error(w, "Login Required", http.StatusUnauthorized)
			return
		}
		encoded := strings.ReplaceAll(url.QueryEscape(r.URL.Path), "+", "%20")
		http.Redirect(w, r, fmt.Sprintf("%s?%s=%s", redirURL, a.CallbackURLParam, encoded), http.StatusFound)
	})
}

func (a *Middleware) loadProfile(r *http.Request) (*UserProfile, error) {
	if profile := ProfileFromContext(r.Context()); profile != nil {
		return profile, nil
	}
	if a.Session == nil {
		return nil, ErrNotAuthenticated
	}
	m := a.Session(r)
	if m == nil {
		return nil, ErrNotAuthenticated
	}
	profile, err := m.GetUserDetails(r.Context())
	if err != nil {
		a.Logger.Debug("no authenticated user", "path", r.URL.Path, "kind", KindOf(err).String())
		return nil, err
	}
	return profile, nil
}

// WithProfile returns a copy of r carrying profile in its context.
func WithProfile(r *http.Request, profile *UserProfile) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), profileKey{}, profile))
}

// ProfileFromContext returns the profile stored by ExtractUser or
// EnsureUser, or nil.
func ProfileFromContext(ctx context.Context) *UserProfile {
	profile, _ := ctx.Value(profileKey{}).(*UserProfile)
	return profile
}
