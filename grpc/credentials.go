package grpc

import (
	"context"

	"google.golang.org/grpc/credentials"
)

// PerRPCCredentials sends the session's access token with every call. Use
// it with grpc.WithPerRPCCredentials when the interceptors' retry is not
// wanted.
type PerRPCCredentials struct {
	Session Session
	Config  *Config

	// Insecure allows sending the token over a plaintext connection.
	Insecure bool
}

var _ credentials.PerRPCCredentials = (*PerRPCCredentials)(nil)

func (c *PerRPCCredentials) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	token, err := c.Session.EnsureValidToken(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return map[string]string{c.Config.metadataKey(): c.Config.prefix() + token}, nil
}

func (c *PerRPCCredentials) RequireTransportSecurity() bool {
	return !c.Insecure
}
