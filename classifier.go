package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Operation names a provider call.
type Operation string

const (
	OpLogin         Operation = "login"
	OpRefresh       Operation = "refresh"
	OpUserInfo      Operation = "userinfo"
	OpRevoke        Operation = "revoke"
	OpRegister      Operation = "register"
	OpPasswordReset Operation = "password_reset"
)

// Response is the raw outcome of one provider call. Err is set when the
// request never produced an HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
	Err        error
}

// Classify maps a provider response to its decoded JSON payload or to an
// *AuthError. It is the single place that decides whether a response
// carries the success fields expected for op.
func Classify(op Operation, resp Response) (map[string]any, error) {
	if resp.Err != nil {
		return nil, newAuthError(KindNetworkFailure, op, 0, "", resp.Err)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, newAuthError(KindNetworkFailure, op, resp.StatusCode, http.StatusText(resp.StatusCode), nil)
	}
	if resp.StatusCode >= 500 {
		return nil, newAuthError(KindProviderError, op, resp.StatusCode, errorMessage(resp.Body), nil)
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body, &payload); err != nil || payload == nil {
		if isRejection(resp.StatusCode, nil) {
			return nil, newAuthError(rejectionKind(op), op, resp.StatusCode, "", nil)
		}
		if err == nil {
			err = errors.New("empty response body")
		}
		return nil, newAuthError(KindProviderError, op, resp.StatusCode, "malformed response", err)
	}

	ok2xx := resp.StatusCode >= 200 && resp.StatusCode < 300
	if ok2xx && hasSuccessFields(op, payload) {
		return payload, nil
	}

	code := errorMessage(resp.Body)
	if op == OpUserInfo {
		// a user lookup without an id means the token was not accepted
		return nil, newAuthError(KindTokenInvalid, op, resp.StatusCode, code, nil)
	}
	if isRejection(resp.StatusCode, payload) {
		return nil, newAuthError(rejectionKind(op), op, resp.StatusCode, code, nil)
	}
	if code == "" {
		code = fmt.Sprintf("response is missing %s", successFieldNames(op))
	}
	return nil, newAuthError(KindProviderError, op, resp.StatusCode, code, nil)
}

func hasSuccessFields(op Operation, payload map[string]any) bool {
	switch op {
	case OpLogin, OpRefresh:
		return nonEmptyString(payload[KeyAccessToken]) && nonEmptyString(payload[KeyRefreshToken])
	case OpUserInfo:
		id, ok := payload["id"]
		return ok && id != nil && id != ""
	default:
		success, _ := payload["success"].(bool)
		return success
	}
}

func successFieldNames(op Operation) string {
	switch op {
	case OpLogin, OpRefresh:
		return KeyAccessToken + " and " + KeyRefreshToken
	case OpUserInfo:
		return "id"
	default:
		return "success"
	}
}

// isRejection reports whether the provider refused the request, as opposed
// to answering in an unexpected shape.
func isRejection(status int, payload map[string]any) bool {
	if status >= 400 && status < 500 {
		return true
	}
	if payload == nil {
		return false
	}
	if v, ok := payload["error"]; ok && v != nil && v != false {
		return true
	}
	return false
}

func rejectionKind(op Operation) ErrorKind {
	switch op {
	case OpLogin:
		return KindInvalidCredentials
	case OpRefresh, OpUserInfo:
		return KindTokenInvalid
	default:
		return KindProviderError
	}
}

// errorMessage pulls a human readable message out of an error body.
func errorMessage(body []byte) string {
	var e struct {
		Error       any    `json:"error"`
		Description string `json:"error_description"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	switch {
	case e.Description != "":
		return e.Description
	case e.Message != "":
		return e.Message
	}
	if s, ok := e.Error.(string); ok {
		return s
	}
	return ""
}

func nonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && s != ""
}

// wrapProviderErr gives errors from IdentityProvider implementations that
// do not use AuthError a kind: context expiry is a network failure,
// anything else a provider error.
func wrapProviderErr(op Operation, err error) error {
	if err == nil || KindOf(err) != KindUnknown {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newAuthError(KindNetworkFailure, op, 0, "", err)
	}
	return newAuthError(KindProviderError, op, 0, "", err)
}
