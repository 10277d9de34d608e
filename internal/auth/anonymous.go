package auth

import (
	"strings"

	"github.com/google/uuid"

	"github.com/mmynk/splitqr/internal/models"
)

// NewAnonymousIdentity issues a fresh guest identity. An empty name becomes "Guest".
func NewAnonymousIdentity(displayName string) models.Identity {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = "Guest"
	}
	return models.Identity{
		ID:          uuid.NewString(),
		DisplayName: name,
		IsAnonymous: true,
	}
}
