package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is the user resolved by the identity provider.
// The core only consumes ID, DisplayName, IsAnonymous and PhotoURL.
type Identity struct {
	ID          string
	DisplayName string
	Email       string
	PhotoURL    string
	IsAnonymous bool
}

// Participant builds the participant that represents this identity on a bill.
func (i Identity) Participant() Participant {
	name := i.DisplayName
	if name == "" {
		name = "Guest"
	}
	return Participant{
		ID:       i.ID,
		Initials: Initials(i.DisplayName),
		Color:    ColorFor(i.ID),
		Name:     name,
		PhotoURL: i.PhotoURL,
	}
}

// User represents a registered password account.
// Anonymous identities have no User record.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string

	Email        string
	DisplayName  string
	PasswordHash string

	// CreatedAt and UpdatedAt are Unix timestamps.
	CreatedAt int64
	UpdatedAt int64
}

// NewUser creates a User with a fresh ID and timestamps.
func NewUser(email, displayName, passwordHash string) *User {
	now := time.Now().Unix()
	return &User{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Identity returns the identity a signed-in account presents.
func (u *User) Identity() Identity {
	return Identity{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
	}
}
