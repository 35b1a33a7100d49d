package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc/metadata"
)

func TestConfigEnsureDefaults(t *testing.T) {
	config := &Config{}
	config.EnsureDefaults()
	if config.MetadataKeyToken != DefaultMetadataKeyToken {
		t.Errorf("expected %q, got %q", DefaultMetadataKeyToken, config.MetadataKeyToken)
	}

	config = &Config{MetadataKeyToken: "Authorization"}
	config.EnsureDefaults()
	if config.MetadataKeyToken != "authorization" {
		t.Errorf("expected lower cased key, got %q", config.MetadataKeyToken)
	}
}

func TestTokenToOutgoingContext(t *testing.T) {
	ctx := TokenToOutgoingContext(context.Background(), "abc", &Config{MetadataKeyToken: "authorization", Prefix: "Bearer "})
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}
	if got := md.Get("authorization"); len(got) != 1 || got[0] != "Bearer abc" {
		t.Errorf("unexpected metadata %v", got)
	}
}

func TestTokenFromIncomingContext(t *testing.T) {
	if got := TokenFromIncomingContext(context.Background(), nil); got != "" {
		t.Errorf("expected empty token, got %q", got)
	}

	md := metadata.Pairs("token", "abc")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	if got := TokenFromIncomingContext(ctx, nil); got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
}

func TestPerRPCCredentials(t *testing.T) {
	creds := &PerRPCCredentials{Session: &fakeSession{}, Insecure: true}
	md, err := creds.GetRequestMetadata(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md["token"] != "t1" {
		t.Errorf("expected t1, got %v", md)
	}
	if creds.RequireTransportSecurity() {
		t.Error("expected insecure credentials")
	}
}

func TestConfigNilAndUnnormalized(t *testing.T) {
	config := &Config{MetadataKeyToken: "X-Token"}
	ctx := TokenToOutgoingContext(context.Background(), "abc", config)
	md, _ := metadata.FromOutgoingContext(ctx)
	if got := md.Get("x-token"); len(got) != 1 || got[0] != "abc" {
		t.Errorf("unexpected metadata %v", md)
	}
	if config.MetadataKeyToken != "X-Token" {
		t.Errorf("expected config to be left alone, got %q", config.MetadataKeyToken)
	}

	ctx = TokenToOutgoingContext(context.Background(), "abc", nil)
	md, _ = metadata.FromOutgoingContext(ctx)
	if got := md.Get(DefaultMetadataKeyToken); len(got) != 1 {
		t.Errorf("expected default key, got %v", md)
	}
}
