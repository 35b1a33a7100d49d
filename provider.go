package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IdentityProvider is the set of provider calls the SessionManager needs.
// ProviderClient implements it; tests substitute their own.
type IdentityProvider interface {
	Login(ctx context.Context, creds Credentials) (*TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
	FetchUserProfile(ctx context.Context, accessToken string) (*UserProfile, error)
}

// Revoker is implemented by providers that can invalidate a refresh token.
type Revoker interface {
	RevokeRefreshToken(ctx context.Context, refreshToken string) error
}

// Endpoints are the provider paths, relative to the base URL.
type Endpoints struct {
	Login                string `env:"AUTH_LOGIN_PATH,default=/api/auth/login"`
	Refresh              string `env:"AUTH_REFRESH_PATH,default=/api/auth/tokenRefresh"`
	UserInfo             string `env:"AUTH_USERINFO_PATH,default=/api/user"`
	Logout               string `env:"AUTH_LOGOUT_PATH,default=/api/auth/logout"`
	Register             string `env:"AUTH_REGISTER_PATH,default=/api/auth/register"`
	PasswordResetRequest string `env:"AUTH_PASSWORD_RESET_REQUEST_PATH,default=/api/auth/passwordResetRequest"`
	PasswordReset        string `env:"AUTH_PASSWORD_RESET_PATH,default=/api/auth/verifyAndChangePassword"`
}

// DefaultEndpoints returns the paths served by the kwesidev auth server.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:                "/api/auth/login",
		Refresh:              "/api/auth/tokenRefresh",
		UserInfo:             "/api/user",
		Logout:               "/api/auth/logout",
		Register:             "/api/auth/register",
		PasswordResetRequest: "/api/auth/passwordResetRequest",
		PasswordReset:        "/api/auth/verifyAndChangePassword",
	}
}

// EnsureDefaults fills in any unset path.
func (e *Endpoints) EnsureDefaults() {
	d := DefaultEndpoints()
	if e.Login == "" {
		e.Login = d.Login
	}
	if e.Refresh == "" {
		e.Refresh = d.Refresh
	}
	if e.UserInfo == "" {
		e.UserInfo = d.UserInfo
	}
	if e.Logout == "" {
		e.Logout = d.Logout
	}
	if e.Register == "" {
		e.Register = d.Register
	}
	if e.PasswordResetRequest == "" {
		e.PasswordResetRequest = d.PasswordResetRequest
	}
	if e.PasswordReset == "" {
		e.PasswordReset = d.PasswordReset
	}
}

// DefaultTokenHeader is the request header the provider reads the access
// token from.
const DefaultTokenHeader = "token"

// ProviderClient issues requests to the identity provider. It keeps no
// session state and never retries.
type ProviderClient struct {
	baseURL     string
	endpoints   Endpoints
	tokenHeader string
	httpClient  *http.Client
	logger      *slog.Logger
	clock       func() time.Time
}

// ProviderOption configures a ProviderClient
type ProviderOption func(*ProviderClient)

// WithHTTPClient sets the HTTP client used for provider calls (timeouts,
// TLS config, proxies).
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(c *ProviderClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithEndpoints overrides the provider paths. Unset paths keep their defaults.
func WithEndpoints(endpoints Endpoints) ProviderOption {
	return func(c *ProviderClient) {
		endpoints.EnsureDefaults()
		c.endpoints = endpoints
	}
}

// WithTokenHeader sets the header carrying the access token on user lookups.
func WithTokenHeader(name string) ProviderOption {
	return func(c *ProviderClient) {
		if name != "" {
			c.tokenHeader = name
		}
	}
}

// WithProviderLogger sets the logger for provider calls.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(c *ProviderClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewProviderClient creates a client for the provider at baseURL.
func NewProviderClient(baseURL string, opts ...ProviderOption) *ProviderClient {
	c := &ProviderClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		endpoints:   DefaultEndpoints(),
		tokenHeader: DefaultTokenHeader,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      slog.Default(),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the provider base URL.
func (c *ProviderClient) BaseURL() string {
	return c.baseURL
}

// Login exchanges credentials for a token set.
func (c *ProviderClient) Login(ctx context.Context, creds Credentials) (*TokenSet, error) {
	if err := validateRequest(OpLogin, KindInvalidCredentials, creds); err != nil {
		return nil, err
	}
	payload, err := c.call(ctx, OpLogin, http.MethodPost, c.endpoints.Login, creds, nil)
	if err != nil {
		return nil, err
	}
	return newTokenSet(payload, c.clock()), nil
}

// Refresh exchanges a refresh token for a new token set.
func (c *ProviderClient) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, newAuthError(KindTokenInvalid, OpRefresh, 0, "no refresh token", nil)
	}
	payload, err := c.call(ctx, OpRefresh, http.MethodPost, c.endpoints.Refresh, refreshRequest{RefreshToken: refreshToken}, nil)
	if err != nil {
		return nil, err
	}
	return newTokenSet(payload, c.clock()), nil
}

// FetchUserProfile looks up the user the access token belongs to.
func (c *ProviderClient) FetchUserProfile(ctx context.Context, accessToken string) (*UserProfile, error) {
	if accessToken == "" {
		return nil, newAuthError(KindTokenInvalid, OpUserInfo, 0, "no access token", nil)
	}
	headers := map[string]string{c.tokenHeader: accessToken}
	payload, err := c.call(ctx, OpUserInfo, http.MethodGet, c.endpoints.UserInfo, nil, headers)
	if err != nil {
		return nil, err
	}
	return newUserProfile(payload), nil
}

// RevokeRefreshToken deletes the refresh token at the provider.
func (c *ProviderClient) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	_, err := c.call(ctx, OpRevoke, http.MethodPost, c.endpoints.Logout, refreshRequest{RefreshToken: refreshToken}, nil)
	return err
}

// Register creates a user account.
func (c *ProviderClient) Register(ctx context.Context, req RegistrationRequest) error {
	if err := validateRequest(OpRegister, KindProviderError, req); err != nil {
		return err
	}
	_, err := c.call(ctx, OpRegister, http.MethodPost, c.endpoints.Register, req, nil)
	return err
}

// RequestPasswordReset asks the provider to send a reset code to the user.
func (c *ProviderClient) RequestPasswordReset(ctx context.Context, username string) error {
	req := passwordResetRequest{Username: username}
	if err := validateRequest(OpPasswordReset, KindProviderError, req); err != nil {
		return err
	}
	_, err := c.call(ctx, OpPasswordReset, http.MethodPost, c.endpoints.PasswordResetRequest, req, nil)
	return err
}

// ResetPassword sets a new password using a code from RequestPasswordReset.
func (c *ProviderClient) ResetPassword(ctx context.Context, code, newPassword string) error {
	req := passwordChangeRequest{Code: code, Password: newPassword}
	if err := validateRequest(OpPasswordReset, KindProviderError, req); err != nil {
		return err
	}
	_, err := c.call(ctx, OpPasswordReset, http.MethodPost, c.endpoints.PasswordReset, req, nil)
	return err
}

// call performs one request and classifies the outcome.
func (c *ProviderClient) call(ctx context.Context, op Operation, method, path string, body any, headers map[string]string) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	start := c.clock()
	payload, err := Classify(op, c.do(req))
	logger := c.logger.With("op", string(op), "req_id", requestID, "duration_ms", c.clock().Sub(start).Milliseconds())
	switch KindOf(err) {
	case KindUnknown:
		logger.Debug("provider call succeeded")
	case KindProviderError:
		logger.Warn("unexpected provider response", "error", err)
	default:
		logger.Debug("provider call failed", "error", err)
	}
	return payload, err
}

func (c *ProviderClient) do(req *http.Request) Response {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return Response{StatusCode: resp.StatusCode, Body: body}
}
