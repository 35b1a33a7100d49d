package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/kwesidev/authclient"
	"github.com/kwesidev/authclient/internal/logging"
)

const sessionIDKey = "sid"

func (app *Application) initHTTP() {
	mw := &authclient.Middleware{
		Session: app.sessionFor,
		Logger:  app.logger,
	}

	r := mux.NewRouter()
	r.Use(logging.HTTPMiddleware(app.logger))
	r.HandleFunc("/login", app.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", app.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/check", app.handleCheck).Methods(http.MethodGet)
	r.HandleFunc("/register", app.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/password/reset-request", app.handlePasswordResetRequest).Methods(http.MethodPost)
	r.HandleFunc("/password/reset", app.handlePasswordReset).Methods(http.MethodPost)
	r.Handle("/me", mw.EnsureUser(http.HandlerFunc(app.handleMe))).Methods(http.MethodGet)
	app.router = r

	app.server = &http.Server{
		Addr:              ":" + app.cfg.Port,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// sessionFor returns the manager of the request's session, or nil.
func (app *Application) sessionFor(r *http.Request) *authclient.SessionManager {
	sid := app.sessions.GetString(r.Context(), sessionIDKey)
	if sid == "" {
		return nil
	}
	return app.registry.Get(sid)
}

func (app *Application) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds authclient.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	// a login starts a new session to avoid fixation
	if old := app.sessions.GetString(ctx, sessionIDKey); old != "" {
		app.registry.Remove(old)
	}
	if err := app.sessions.RenewToken(ctx); err != nil {
		writeJSONError(w, "failed to renew session", http.StatusInternalServerError)
		return
	}
	sid := uuid.NewString()
	app.sessions.Put(ctx, sessionIDKey, sid)

	if err := app.registry.Get(sid).Login(ctx, creds.Username, creds.Password); err != nil {
		logging.FromContext(ctx).Info("login failed", "username", creds.Username, "kind", authclient.KindOf(err).String())
		writeAuthError(w, err)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (app *Application) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m := app.sessionFor(r)
	if m != nil {
		var err error
		if r.URL.Query().Get("revoke") == "true" {
			err = m.Revoke(ctx)
		} else {
			err = m.Logout(ctx)
		}
		if err != nil {
			logging.FromContext(ctx).Warn("logout incomplete", "error", err)
		}
		app.registry.Remove(app.sessions.GetString(ctx, sessionIDKey))
	}
	if err := app.sessions.Destroy(ctx); err != nil {
		logging.FromContext(ctx).Warn("error destroying session", "error", err)
	}

	if to := r.URL.Query().Get("to"); isLocalPath(to) {
		http.Redirect(w, r, to, http.StatusFound)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

// isLocalPath reports whether to is a path on this host. Scheme relative
// URLs ("//evil.example") and backslash variants browsers treat the same
// way are rejected.
func isLocalPath(to string) bool {
	if !strings.HasPrefix(to, "/") || strings.HasPrefix(to, "//") || strings.HasPrefix(to, "/\\") {
		return false
	}
	u, err := url.Parse(to)
	return err == nil && u.Scheme == "" && u.Host == ""
}

func (app *Application) handleCheck(w http.ResponseWriter, r *http.Request) {
	authenticated := false
	if m := app.sessionFor(r); m != nil {
		authenticated = m.CheckAuth(r.Context())
	}
	writeJSON(w, map[string]any{"authenticated": authenticated})
}

func (app *Application) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, authclient.ProfileFromContext(r.Context()))
}

func (app *Application) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req authclient.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := app.provider.Register(r.Context(), req); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (app *Application) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := app.provider.RequestPasswordReset(r.Context(), req.Username); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (app *Application) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := app.provider.ResetPassword(r.Context(), req.Code, req.Password); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

// writeAuthError maps an error kind to an HTTP status.
func writeAuthError(w http.ResponseWriter, err error) {
	var invalid validator.ValidationErrors
	var ae *authclient.AuthError
	if errors.As(err, &invalid) || (errors.As(err, &ae) && ae.StatusCode >= 400 && ae.StatusCode < 500 && ae.Kind == authclient.KindProviderError) {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := http.StatusInternalServerError
	switch authclient.KindOf(err) {
	case authclient.KindInvalidCredentials, authclient.KindTokenInvalid, authclient.KindUnauthenticated:
		status = http.StatusUnauthorized
	case authclient.KindNetworkFailure:
		status = http.StatusServiceUnavailable
	case authclient.KindProviderError:
		status = http.StatusBadGateway
	}
	writeJSONError(w, authclient.KindOf(err).String(), status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
