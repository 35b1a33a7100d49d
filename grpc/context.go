// Package grpc attaches a session's access token to outgoing gRPC calls
// and refreshes it when a server answers Unauthenticated.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

const (
	// DefaultMetadataKeyToken is the default gRPC metadata key carrying the
	// access token. It matches the HTTP header the auth server reads.
	DefaultMetadataKeyToken = "token"
)

// Config holds the metadata key configuration.
type Config struct {
	// MetadataKeyToken is the gRPC metadata key for the access token.
	// Defaults to "token".
	MetadataKeyToken string

	// Prefix is prepended to the token value, e.g. "Bearer ".
	Prefix string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{MetadataKeyToken: DefaultMetadataKeyToken}
}

// EnsureDefaults fills in default values for any unset fields. Call it
// once before sharing the config between goroutines.
func (c *Config) EnsureDefaults() {
	if key := c.metadataKey(); c.MetadataKeyToken != key {
		c.MetadataKeyToken = key
	}
}

// metadataKey returns the lower cased metadata key without modifying c, so
// it is safe on configs shared by concurrent calls.
func (c *Config) metadataKey() string {
	if c == nil || c.MetadataKeyToken == "" {
		return DefaultMetadataKeyToken
	}
	return strings.ToLower(c.MetadataKeyToken)
}

func (c *Config) prefix() string {
	if c == nil {
		return ""
	}
	return c.Prefix
}

// TokenToOutgoingContext adds the access token to outgoing gRPC context metadata.
func TokenToOutgoingContext(ctx context.Context, token string, config *Config) context.Context {
	return metadata.AppendToOutgoingContext(ctx, config.metadataKey(), config.prefix()+token)
}

// TokenFromIncomingContext returns the access token a client sent, so a
// server can forward it to the auth server. Returns "" if there is none.
func TokenFromIncomingContext(ctx context.Context, config *Config) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(config.metadataKey()); len(values) > 0 {
		return strings.TrimPrefix(values[0], config.prefix())
	}
	return ""
}
