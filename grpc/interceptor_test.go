package grpc

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/kwesidev/authclient"
)

// fakeSession hands out tokens t1, t2, ... and moves on after Invalidate.
type fakeSession struct {
	mu          sync.Mutex
	current     int
	ensureCalls int
	invalidated []string
	err         error
}

func (s *fakeSession) EnsureValidToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureCalls++
	if s.err != nil {
		return "", s.err
	}
	if s.current == 0 {
		s.current = 1
	}
	return fmt.Sprintf("t%d", s.current), nil
}

func (s *fakeSession) Invalidate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, token)
	if token == fmt.Sprintf("t%d", s.current) {
		s.current++
	}
}

func sentToken(ctx context.Context) string {
	md, _ := metadata.FromOutgoingContext(ctx)
	values := md.Get(DefaultMetadataKeyToken)
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

func TestNewPublicMethodsConfig(t *testing.T) {
	config := NewPublicMethodsConfig("/pkg.Svc/Method1", "/pkg.Svc/Method2")
	if !config.PublicMethods["/pkg.Svc/Method1"] {
		t.Error("expected Method1 to be public")
	}
	if config.PublicMethods["/pkg.Svc/Method3"] {
		t.Error("expected Method3 to not be public")
	}
	if config.Config == nil {
		t.Error("expected Config to be initialized")
	}
}

func TestUnaryClientInterceptor_AttachesToken(t *testing.T) {
	session := &fakeSession{}
	interceptor := UnaryClientInterceptor(session, nil)

	var got string
	err := interceptor(context.Background(), "/pkg.Svc/Method", nil, nil, nil,
		func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
			got = sentToken(ctx)
			return nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "t1" {
		t.Errorf("expected token t1, got %q", got)
	}
}

func TestUnaryClientInterceptor_RetriesOnceOnUnauthenticated(t *testing.T) {
	session := &fakeSession{}
	interceptor := UnaryClientInterceptor(session, nil)

	var sent []string
	err := interceptor(context.Background(), "/pkg.Svc/Method", nil, nil, nil,
		func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
			sent = append(sent, sentToken(ctx))
			if len(sent) == 1 {
				return status.Error(codes.Unauthenticated, "expired")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sent) != 2 || sent[0] != "t1" || sent[1] != "t2" {
		t.Errorf("expected tokens [t1 t2], got %v", sent)
	}
	if len(session.invalidated) != 1 || session.invalidated[0] != "t1" {
		t.Errorf("expected t1 to be invalidated, got %v", session.invalidated)
	}
}

func TestUnaryClientInterceptor_DoesNotRetryTwice(t *testing.T) {
	session := &fakeSession{}
	interceptor := UnaryClientInterceptor(session, nil)

	calls := 0
	err := interceptor(context.Background(), "/pkg.Svc/Method", nil, nil, nil,
		func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
			calls++
			return status.Error(codes.Unauthenticated, "expired")
		})
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestUnaryClientInterceptor_PublicMethodSkipsToken(t *testing.T) {
	session := &fakeSession{}
	interceptor := UnaryClientInterceptor(session, NewPublicMethodsConfig("/pkg.Svc/Health"))

	err := interceptor(context.Background(), "/pkg.Svc/Health", nil, nil, nil,
		func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
			if tok := sentToken(ctx); tok != "" {
				t.Errorf("expected no token, got %q", tok)
			}
			return nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.ensureCalls != 0 {
		t.Errorf("expected no token lookups, got %d", session.ensureCalls)
	}
}

func TestUnaryClientInterceptor_SessionErrors(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{authclient.ErrNotAuthenticated, codes.Unauthenticated},
		{authclient.ErrTokenInvalid, codes.Unauthenticated},
		{authclient.ErrNetworkFailure, codes.Unavailable},
	}
	for _, tt := range tests {
		session := &fakeSession{err: tt.err}
		interceptor := UnaryClientInterceptor(session, nil)
		err := interceptor(context.Background(), "/pkg.Svc/Method", nil, nil, nil,
			func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
				t.Error("invoker should not be called")
				return nil
			})
		if status.Code(err) != tt.code {
			t.Errorf("%v: expected %v, got %v", tt.err, tt.code, status.Code(err))
		}
	}
}

func TestStreamClientInterceptor_RetriesOnceOnUnauthenticated(t *testing.T) {
	session := &fakeSession{}
	interceptor := StreamClientInterceptor(session, nil)

	var sent []string
	_, err := interceptor(context.Background(), &grpc.StreamDesc{}, nil, "/pkg.Svc/Stream",
		func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
			sent = append(sent, sentToken(ctx))
			if len(sent) == 1 {
				return nil, status.Error(codes.Unauthenticated, "expired")
			}
			return nil, nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sent) != 2 || sent[1] != "t2" {
		t.Errorf("expected retry with t2, got %v", sent)
	}
}

func TestUnaryClientInterceptor_ConcurrentCalls(t *testing.T) {
	session := &fakeSession{}
	config := &InterceptorConfig{Config: &Config{MetadataKeyToken: "Authorization"}}
	interceptor := UnaryClientInterceptor(session, config)
	creds := &PerRPCCredentials{Session: session, Config: config.Config, Insecure: true}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- interceptor(context.Background(), "/pkg.Svc/Method", nil, nil, nil,
				func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
					md, _ := metadata.FromOutgoingContext(ctx)
					if got := md.Get("authorization"); len(got) != 1 || got[0] != "t1" {
						return fmt.Errorf("unexpected metadata %v", md)
					}
					return nil
				})
		}()
		go func() {
			defer wg.Done()
			md, err := creds.GetRequestMetadata(context.Background())
			if err == nil && md["authorization"] != "t1" {
				err = fmt.Errorf("unexpected metadata %v", md)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
}
