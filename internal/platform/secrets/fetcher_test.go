package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSecretClient struct {
	values    map[string]string
	errors    map[string]error
	callCount map[string]int
	closed    bool
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:    map[string]string{},
		errors:    map[string]error{},
		callCount: map[string]int{},
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.callCount[req.GetName()]++
	if err, ok := f.errors[req.GetName()]; ok {
		return nil, err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (f *fakeSecretClient) Close() error {
	f.closed = true
	return nil
}

func writeFallback(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	return path
}

func TestFetcherResolvesAndCaches(t *testing.T) {
	client := newFakeSecretClient()
	resource := "projects/gemvault-prod/secrets/auth-jwt/versions/latest"
	client.values[resource] = "signing-key"

	f, err := NewFetcher(context.Background(), WithProject("gemvault-prod"), WithSecretManagerClient(client), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	for i := 0; i < 3; i++ {
		value, err := f.ResolveSecret(context.Background(), "secret://auth-jwt")
		if err != nil {
			t.Fatalf("ResolveSecret: %v", err)
		}
		if value != "signing-key" {
			t.Fatalf("unexpected value %q", value)
		}
	}
	if client.callCount[resource] != 1 {
		t.Fatalf("expected one remote call, got %d", client.callCount[resource])
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if client.closed {
		t.Fatalf("injected client must not be closed by the fetcher")
	}
}

func TestFetcherHonoursVersionAndProjectOverrides(t *testing.T) {
	client := newFakeSecretClient()
	client.values["projects/other/secrets/mongo-uri/versions/3"] = "mongodb://pinned"

	f, err := NewFetcher(context.Background(), WithProject("gemvault-prod"), WithSecretManagerClient(client), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	value, err := f.Resolve(context.Background(), "secret://mongo-uri?version=3&project=other")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if value != "mongodb://pinned" {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestFetcherFallsBackOnPermissionDenied(t *testing.T) {
	client := newFakeSecretClient()
	client.errors["projects/gemvault-prod/secrets/auth-jwt/versions/latest"] = status.Error(codes.PermissionDenied, "denied")
	path := writeFallback(t, "AUTH_JWT=local-key\n")

	f, err := NewFetcher(context.Background(), WithProject("gemvault-prod"), WithSecretManagerClient(client), WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	value, err := f.Resolve(context.Background(), "secret://auth-jwt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if value != "local-key" {
		t.Fatalf("expected fallback value, got %q", value)
	}
}

func TestFetcherDoesNotFallBackOnOtherErrors(t *testing.T) {
	client := newFakeSecretClient()
	client.errors["projects/gemvault-prod/secrets/auth-jwt/versions/latest"] = status.Error(codes.Internal, "boom")
	path := writeFallback(t, "AUTH_JWT=local-key\n")

	f, err := NewFetcher(context.Background(), WithProject("gemvault-prod"), WithSecretManagerClient(client), WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	_, err = f.Resolve(context.Background(), "secret://auth-jwt")
	if status.Code(errors.Unwrap(err)) != codes.Internal {
		t.Fatalf("expected internal error to surface, got %v", err)
	}
}

func TestFetcherWithoutProjectUsesFallbackOnly(t *testing.T) {
	path := writeFallback(t, "MONGO_URI=mongodb://localhost:27017\n")
	f, err := NewFetcher(context.Background(), WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	value, err := f.Resolve(context.Background(), "secret://mongo-uri")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if value != "mongodb://localhost:27017" {
		t.Fatalf("unexpected value %q", value)
	}
	if _, err := f.Resolve(context.Background(), "secret://absent"); err == nil {
		t.Fatalf("expected error for unknown secret")
	}
}

func TestParseReference(t *testing.T) {
	ref, err := parseReference("secret://auth-jwt?version=7")
	if err != nil {
		t.Fatalf("parseReference: %v", err)
	}
	if ref.Name != "auth-jwt" || ref.Version != "7" || ref.Project != "" {
		t.Fatalf("unexpected reference %+v", ref)
	}
	if _, err := parseReference("vault://auth-jwt"); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
	if _, err := parseReference("secret://"); err == nil {
		t.Fatalf("expected missing name error")
	}
}
