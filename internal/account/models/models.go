package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "formalitys/pkg/domain-errors"
)

// Roles a platform account can hold.
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
)

// User is one platform account. Owners create and drive dossiers; admins can
// additionally override dossier state.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewUser constructs an account with a normalized email.
func NewUser(id uuid.UUID, email string, passwordHash string, role string, now time.Time) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeBadRequest, "a valid email address is required")
	}
	if role != RoleOwner && role != RoleAdmin {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown role: "+role)
	}
	return &User{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
	}, nil
}

// NormalizeEmail lowercases and trims an email for case-insensitive lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
