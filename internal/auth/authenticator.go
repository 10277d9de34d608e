// Package auth is the identity provider: password accounts, anonymous guests, signed tokens,
// and the client-side holder of the current identity.
package auth

import (
	"context"

	"github.com/mmynk/splitqr/internal/models"
)

// Authenticator verifies account credentials.
// Implementations can be swapped (passwords today) without touching the service layer.
type Authenticator interface {
	// Register creates a new account and returns it.
	Register(ctx context.Context, email, displayName, credential string) (*models.User, error)

	// Authenticate returns the account if the credential matches.
	Authenticate(ctx context.Context, email, credential string) (*models.User, error)

	// ValidateCredential checks the credential meets the implementation's requirements.
	ValidateCredential(credential string) error
}
