package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kwesidev/authclient"
)

// Session is the part of authclient.SessionManager the interceptors use.
type Session interface {
	EnsureValidToken(ctx context.Context) (string, error)
	Invalidate(accessToken string)
}

// InterceptorConfig configures the client interceptors.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// PublicMethods is a set of method names sent without a token.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// DefaultInterceptorConfig returns a config that sends the token on all methods.
func DefaultInterceptorConfig() *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig()
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

func ensureConfig(config *InterceptorConfig) *InterceptorConfig {
	if config == nil {
		config = DefaultInterceptorConfig()
	}
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	config.Config.EnsureDefaults()
	return config
}

// UnaryClientInterceptor returns a gRPC unary client interceptor that sends
// the session's access token. A call rejected with Unauthenticated is
// retried once with a refreshed token.
func UnaryClientInterceptor(session Session, config *InterceptorConfig) grpc.UnaryClientInterceptor {
	config = ensureConfig(config)

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if config.PublicMethods[method] {
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		token, err := session.EnsureValidToken(ctx)
		if err != nil {
			return toStatus(err)
		}
		err = invoker(TokenToOutgoingContext(ctx, token, config.Config), method, req, reply, cc, opts...)
		if status.Code(err) != codes.Unauthenticated {
			return err
		}

		session.Invalidate(token)
		if token, err = session.EnsureValidToken(ctx); err != nil {
			return toStatus(err)
		}
		return invoker(TokenToOutgoingContext(ctx, token, config.Config), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor that
// sends the session's access token. Opening the stream is retried once if
// it fails with Unauthenticated; errors on an open stream are not.
func StreamClientInterceptor(session Session, config *InterceptorConfig) grpc.StreamClientInterceptor {
	config = ensureConfig(config)

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		if config.PublicMethods[method] {
			return streamer(ctx, desc, cc, method, opts...)
		}

		token, err := session.EnsureValidToken(ctx)
		if err != nil {
			return nil, toStatus(err)
		}
		stream, err := streamer(TokenToOutgoingContext(ctx, token, config.Config), desc, cc, method, opts...)
		if status.Code(err) != codes.Unauthenticated {
			return stream, err
		}

		session.Invalidate(token)
		if token, err = session.EnsureValidToken(ctx); err != nil {
			return nil, toStatus(err)
		}
		return streamer(TokenToOutgoingContext(ctx, token, config.Config), desc, cc, method, opts...)
	}
}

// toStatus converts a session error into a gRPC status error.
func toStatus(err error) error {
	switch authclient.KindOf(err) {
	case authclient.KindNetworkFailure, authclient.KindProviderError:
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Unauthenticated, err.Error())
	}
}
