package store

import (
	"context"

	"github.com/google/uuid"

	"formalitys/internal/account/models"
)

// Store persists platform accounts.
type Store interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}
