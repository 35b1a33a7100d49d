// Package providertest runs an in-process auth server that speaks the same
// JSON protocol as the kwesidev auth server, for tests and the demo app.
package providertest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

// Paths served by the fake server.
const (
	PathLogin                = "/api/auth/login"
	PathRefresh              = "/api/auth/tokenRefresh"
	PathUser                 = "/api/user"
	PathLogout               = "/api/auth/logout"
	PathRegister             = "/api/auth/register"
	PathPasswordResetRequest = "/api/auth/passwordResetRequest"
	PathPasswordReset        = "/api/auth/verifyAndChangePassword"
)

const DefaultAccessTTL = 15 * time.Minute

type user struct {
	ID           int
	Username     string
	PasswordHash []byte
	FirstName    string
	LastName     string
	EmailAddress string
	Roles        []string
}

type authClaims struct {
	UserId int      `json:"userId"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

type failure struct {
	status int
	body   string
	left   int
}

// Provider is the fake auth server. The zero value is not usable; create one
// with NewProvider or New.
type Provider struct {
	secret   []byte
	validate *validator.Validate

	mu           sync.Mutex
	clock        func() time.Time
	accessTTL    time.Duration
	nextID       int
	users        map[string]*user
	refresh      map[string]int // refresh token -> user id
	revoked      map[string]bool
	resetCodes   map[string]string // code -> username
	rejectLookup int
	failures     map[string]*failure
	calls        map[string]int
}

// NewProvider creates a fake auth server without starting a listener.
func NewProvider() *Provider {
	return &Provider{
		secret:     []byte(uuid.NewString()),
		validate:   validator.New(),
		clock:      time.Now,
		accessTTL:  DefaultAccessTTL,
		users:      make(map[string]*user),
		refresh:    make(map[string]int),
		revoked:    make(map[string]bool),
		resetCodes: make(map[string]string),
		failures:   make(map[string]*failure),
		calls:      make(map[string]int),
	}
}

// Server is a Provider listening on a local httptest server.
type Server struct {
	*Provider
	*httptest.Server
}

// New starts a fake auth server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	p := NewProvider()
	s := &Server{Provider: p, Server: httptest.NewServer(p.Router())}
	t.Cleanup(s.Close)
	return s
}

// Router returns the HTTP routes of the fake server.
func (p *Provider) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(p.countAndFail)
	r.HandleFunc(PathLogin, p.handleLogin).Methods(http.MethodPost)
	r.HandleFunc(PathRefresh, p.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc(PathUser, p.handleUser).Methods(http.MethodGet)
	r.HandleFunc(PathLogout, p.handleLogout).Methods(http.MethodPost)
	r.HandleFunc(PathRegister, p.handleRegister).Methods(http.MethodPost)
	r.HandleFunc(PathPasswordResetRequest, p.handlePasswordResetRequest).Methods(http.MethodPost)
	r.HandleFunc(PathPasswordReset, p.handlePasswordReset).Methods(http.MethodPost)
	return r
}

// AddUser registers a user and returns its id.
func (p *Provider) AddUser(username, password string) int {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addUserLocked(&user{Username: username, PasswordHash: hash, Roles: []string{"USER"}})
}

func (p *Provider) addUserLocked(u *user) int {
	p.nextID++
	u.ID = p.nextID
	p.users[u.Username] = u
	return u.ID
}

// SetAccessTTL sets the lifetime of access tokens issued from now on.
func (p *Provider) SetAccessTTL(ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTTL = ttl
}

// SetClock replaces time.Now for token issuance and validation.
func (p *Provider) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = now
}

// RevokeAccessToken makes user lookups with token fail as expired.
func (p *Provider) RevokeAccessToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked[token] = true
}

// RevokeRefreshTokens forgets every refresh token issued so far.
func (p *Provider) RevokeRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refresh = make(map[string]int)
}

// RejectNextUserInfo makes the next n user lookups answer 200 with
// {"error": "expired"} instead of the user.
func (p *Provider) RejectNextUserInfo(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejectLookup = n
}

// FailNext makes the next n requests to path answer with status and body.
func (p *Provider) FailNext(path string, status int, body string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[path] = &failure{status: status, body: body, left: n}
}

// Calls returns how many requests path has received.
func (p *Provider) Calls(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[path]
}

// ResetCode returns the password reset code last issued for username.
func (p *Provider) ResetCode(username string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	for code, name := range p.resetCodes {
		if name == username {
			return code
		}
	}
	return ""
}

// IssueTokens returns a fresh token pair for username, as a login would.
func (p *Provider) IssueTokens(username string) (access, refresh string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[username]
	if !ok {
		return "", "", errors.New("unknown user")
	}
	return p.issueLocked(u)
}

func (p *Provider) issueLocked(u *user) (string, string, error) {
	now := p.clock()
	claims := authClaims{
		UserId: u.ID,
		Roles:  u.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.accessTTL)),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", "", err
	}
	refresh := uuid.NewString()
	p.refresh[refresh] = u.ID
	return access, refresh, nil
}

func (p *Provider) countAndFail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.calls[r.URL.Path]++
		f := p.failures[r.URL.Path]
		var status int
		var body string
		if f != nil && f.left > 0 {
			f.left--
			status, body = f.status, f.body
		}
		p.mu.Unlock()

		if status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			w.Write([]byte(body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (p *Provider) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if !p.decode(w, r, &req) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[req.Username]
	if !ok || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		jsonError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}
	p.writeTokensLocked(w, u)
}

func (p *Provider) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !p.decode(w, r, &req) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.refresh[req.RefreshToken]
	if !ok {
		jsonError(w, "Failed to generate Token", http.StatusUnauthorized)
		return
	}
	delete(p.refresh, req.RefreshToken)
	p.writeTokensLocked(w, p.userByIDLocked(id))
}

func (p *Provider) writeTokensLocked(w http.ResponseWriter, u *user) {
	access, refresh, err := p.issueLocked(u)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]any{"token": access, "refreshToken": refresh})
}

func (p *Provider) handleUser(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("token")

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rejectLookup > 0 {
		p.rejectLookup--
		jsonResponse(w, map[string]any{"error": "expired"})
		return
	}
	if p.revoked[token] {
		jsonError(w, "expired", http.StatusUnauthorized)
		return
	}

	claims := &authClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.clock))
	if err != nil {
		jsonError(w, "Invalid or expired token", http.StatusUnauthorized)
		return
	}
	u := p.userByIDLocked(claims.UserId)
	if u == nil {
		jsonError(w, "User not found", http.StatusUnauthorized)
		return
	}
	jsonResponse(w, map[string]any{
		"id":           u.ID,
		"username":     u.Username,
		"firstName":    u.FirstName,
		"lastName":     u.LastName,
		"emailAddress": u.EmailAddress,
		"roles":        u.Roles,
	})
}

func (p *Provider) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !p.decode(w, r, &req) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.refresh[req.RefreshToken]; !ok {
		jsonError(w, "Failed to logout ", http.StatusBadRequest)
		return
	}
	delete(p.refresh, req.RefreshToken)
	jsonResponse(w, map[string]any{"success": true})
}

func (p *Provider) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username     string `json:"username" validate:"required"`
		Password     string `json:"password" validate:"required"`
		FirstName    string `json:"firstName" validate:"required"`
		LastName     string `json:"lastName" validate:"required"`
		EmailAddress string `json:"emailAddress" validate:"required,email"`
		PhoneNumber  string `json:"phoneNumber"`
	}
	if !p.decode(w, r, &req) {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		jsonError(w, "Failed to register user", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.users[req.Username]; exists {
		jsonError(w, "Failed to register user", http.StatusBadRequest)
		return
	}
	p.addUserLocked(&user{
		Username:     req.Username,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		EmailAddress: req.EmailAddress,
		Roles:        []string{"USER"},
	})
	jsonResponse(w, map[string]any{"success": true})
}

func (p *Provider) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
	}
	if !p.decode(w, r, &req) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.users[req.Username]; !ok {
		jsonError(w, "Failed to Send Reset password Request ", http.StatusBadRequest)
		return
	}
	p.resetCodes[uuid.NewString()] = req.Username
	jsonResponse(w, map[string]any{"success": true})
}

func (p *Provider) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string `json:"code" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if !p.decode(w, r, &req) {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		jsonError(w, "Failed to Update Password ", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	username, ok := p.resetCodes[req.Code]
	if !ok {
		jsonError(w, "Failed to Update Password ", http.StatusBadRequest)
		return
	}
	delete(p.resetCodes, req.Code)
	p.users[username].PasswordHash = hash
	jsonResponse(w, map[string]any{"success": true})
}

func (p *Provider) userByIDLocked(id int) *user {
	for _, u := range p.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// decode reads and validates a JSON body, answering 400 on failure.
func (p *Provider) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := p.validate.Struct(v); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func jsonResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// UserID formats a user id the way profiles carry it.
func UserID(id int) string {
	return strconv.Itoa(id)
}
