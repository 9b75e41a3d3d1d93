package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
	headerAPIKey       = "x-goog-api-key"
	headerAuthz        = "Authorization"
	bearerPrefix       = "Bearer "
)

var (
	// ErrAPIKeyEmpty indicates an API key credential without a key.
	ErrAPIKeyEmpty = errors.New("api key cannot be empty")
	// ErrNoCredential indicates a provider constructed without a credential.
	ErrNoCredential = errors.New("provider credential is required")
)

// Credential authorizes an outgoing provider request.
type Credential interface {
	Apply(ctx context.Context, req *http.Request) error
}

// APIKeyCredential sends a static API key header.
type APIKeyCredential struct {
	key string
}

// NewAPIKeyCredential returns a credential for key.
func NewAPIKeyCredential(key string) (*APIKeyCredential, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrAPIKeyEmpty
	}

	return &APIKeyCredential{key: key}, nil
}

// NewAPIKeyCredentialFromFile reads the key from a file such as a mounted secret.
func NewAPIKeyCredentialFromFile(path string) (*APIKeyCredential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read api key file: %w", err)
	}

	return NewAPIKeyCredential(string(data))
}

// Apply sets the API key header.
func (c *APIKeyCredential) Apply(_ context.Context, req *http.Request) error {
	req.Header.Set(headerAPIKey, c.key)

	return nil
}

// TokenCredential sends an OAuth2 bearer token.
type TokenCredential struct {
	source oauth2.TokenSource
}

// NewTokenCredential wraps source. The source is reused across requests, so
// pass a caching source such as oauth2.ReuseTokenSource.
func NewTokenCredential(source oauth2.TokenSource) *TokenCredential {
	return &TokenCredential{source: source}
}

// NewServiceAccountCredential builds a bearer credential from a service account key file.
func NewServiceAccountCredential(ctx context.Context, keyFile string) (*TokenCredential, error) {
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account key: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(data, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}

	return NewTokenCredential(jwtConfig.TokenSource(ctx)), nil
}

// NewDefaultCredential uses Application Default Credentials.
func NewDefaultCredential(ctx context.Context) (*TokenCredential, error) {
	source, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("failed to create default token source: %w", err)
	}

	return NewTokenCredential(source), nil
}

// Apply sets the Authorization header. A token that cannot be obtained is an
// auth failure.
func (c *TokenCredential) Apply(_ context.Context, req *http.Request) error {
	token, err := c.source.Token()
	if err != nil {
		return newFailure(FailureAuth, 0, "failed to obtain access token", err)
	}

	req.Header.Set(headerAuthz, bearerPrefix+token.AccessToken)

	return nil
}
