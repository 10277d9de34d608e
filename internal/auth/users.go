package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmynk/splitqr/internal/docstore"
	"github.com/mmynk/splitqr/internal/models"
)

const (
	// UsersCollection holds one document per account, keyed by user ID.
	UsersCollection = "users"
	// EmailsCollection maps a normalized email to the owning user ID.
	EmailsCollection = "user_emails"
)

// Ensure DocumentUsers implements UserStorage
var _ UserStorage = (*DocumentUsers)(nil)

// DocumentUsers keeps accounts in a document store. Email uniqueness is enforced by
// creating the email document before the account.
type DocumentUsers struct {
	store docstore.Store
}

// NewDocumentUsers stores accounts in store.
func NewDocumentUsers(store docstore.Store) *DocumentUsers {
	return &DocumentUsers{store: store}
}

// CreateUser stores a new account, failing with ErrEmailExists if the email is taken.
func (u *DocumentUsers) CreateUser(ctx context.Context, user *models.User) error {
	emailRef := docstore.Doc(EmailsCollection, user.Email)
	if err := emailRef.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if _, err := u.store.Create(ctx, emailRef, docstore.Fields{"userID": user.ID}); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to reserve email: %w", err)
	}

	fields := docstore.Fields{
		"email":        user.Email,
		"displayName":  user.DisplayName,
		"passwordHash": user.PasswordHash,
		"createdAt":    user.CreatedAt,
		"updatedAt":    user.UpdatedAt,
	}
	if _, err := u.store.Create(ctx, docstore.Doc(UsersCollection, user.ID), fields); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}

// GetUserByEmail resolves an account through the email index.
func (u *DocumentUsers) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	emailRef := docstore.Doc(EmailsCollection, email)
	if emailRef.Validate() != nil {
		return nil, ErrUserNotFound
	}
	snap, err := u.store.Get(ctx, emailRef)
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, ErrUserNotFound
	}
	id, _ := snap.Fields["userID"].(string)
	if id == "" {
		return nil, ErrUserNotFound
	}
	return u.GetUserByID(ctx, id)
}

// GetUserByID loads an account.
func (u *DocumentUsers) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	ref := docstore.Doc(UsersCollection, id)
	if ref.Validate() != nil {
		return nil, ErrUserNotFound
	}
	snap, err := u.store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, ErrUserNotFound
	}
	str := func(key string) string {
		s, _ := snap.Fields[key].(string)
		return s
	}
	num := func(key string) int64 {
		f, _ := snap.Fields[key].(float64)
		return int64(f)
	}
	return &models.User{
		ID:           id,
		Email:        str("email"),
		DisplayName:  str("displayName"),
		PasswordHash: str("passwordHash"),
		CreatedAt:    num("createdAt"),
		UpdatedAt:    num("updatedAt"),
	}, nil
}
