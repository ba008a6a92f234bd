// Package security guards the admin surface of the license server.
package security

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminAuthenticator verifies the bearer token presented on admin endpoints
// against a bcrypt hash loaded from configuration. The plaintext token never
// touches disk on the server side.
type AdminAuthenticator struct {
	tokenHash []byte
}

// NewAdminAuthenticator creates an authenticator from a bcrypt hash.
// An empty hash yields a disabled authenticator that rejects everything.
func NewAdminAuthenticator(tokenHash string) *AdminAuthenticator {
	return &AdminAuthenticator{tokenHash: []byte(tokenHash)}
}

// Enabled reports whether an admin token hash is configured.
func (a *AdminAuthenticator) Enabled() bool {
	return len(a.tokenHash) > 0
}

// Verify checks a plaintext token against the configured hash.
func (a *AdminAuthenticator) Verify(token string) bool {
	if !a.Enabled() || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.tokenHash, []byte(token)) == nil
}

// VerifyRequest extracts the bearer token from the Authorization header
// (falling back to X-API-Key) and verifies it.
func (a *AdminAuthenticator) VerifyRequest(r *http.Request) bool {
	return a.Verify(BearerToken(r))
}

// BearerToken pulls the credential from a request without validating it.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// HashToken produces a bcrypt hash suitable for the admin token_hash
// configuration value. Used by the CLI, never by the request path.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
