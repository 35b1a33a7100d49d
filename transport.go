package authclient

import (
	"io"
	"net/http"
)

// Transport is an http.RoundTripper that attaches the session's access token
// to each request. On a 401 response it marks the token invalid, refreshes
// and retries the request once.
type Transport struct {
	Manager *SessionManager

	// Base is the underlying transport. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	// Header carries the token. Defaults to DefaultTokenHeader.
	Header string

	// Prefix is prepended to the token value, e.g. "Bearer ".
	Prefix string
}

// Transport returns a Transport for m over base.
func (m *SessionManager) Transport(base http.RoundTripper) *Transport {
	return &Transport{Manager: m, Base: base}
}

// HTTPClient returns an http.Client whose requests carry the session's token.
func (m *SessionManager) HTTPClient() *http.Client {
	return &http.Client{Transport: m.Transport(nil)}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.Manager.EnsureValidToken(req.Context())
	if err != nil {
		return nil, err
	}

	resp, err := t.base().RoundTrip(t.withToken(req, token))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !replayable(req) {
		return resp, nil
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	t.Manager.Invalidate(token)
	token, err = t.Manager.EnsureValidToken(req.Context())
	if err != nil {
		return nil, err
	}
	retry := t.withToken(req, token)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	return t.base().RoundTrip(retry)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base == nil {
		return http.DefaultTransport
	}
	return t.Base
}

// withToken clones the request to avoid mutating the original
func (t *Transport) withToken(req *http.Request, token string) *http.Request {
	header := t.Header
	if header == "" {
		header = DefaultTokenHeader
	}
	out := req.Clone(req.Context())
	out.Header.Set(header, t.Prefix+token)
	return out
}

// replayable reports whether req can be sent a second time.
func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}
