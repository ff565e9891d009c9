package store

import (
	"context"

	"github.com/google/uuid"

	"formalitys/internal/dossier/models"
)

// Store persists dossiers. Implementations must serialize mutations per
// dossier: Execute runs its callback under the dossier's lock (mutex or
// SELECT ... FOR UPDATE) and Update enforces an optimistic version check, so
// whichever write commits second observes the first's result instead of
// blindly overwriting it.
type Store interface {
	Create(ctx context.Context, d *models.Dossier) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Dossier, error)
	// FindByGatewayReference resolves a dossier from its pending payment's
	// gateway reference. Returns sentinel.ErrNotFound for unknown references.
	FindByGatewayReference(ctx context.Context, reference string) (*models.Dossier, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Dossier, error)
	// Update persists a dossier read earlier. Fails with
	// sentinel.ErrVersionConflict when another write committed in between.
	Update(ctx context.Context, d *models.Dossier) error
	// Execute atomically loads, validates, and mutates one dossier. The
	// callback may mutate the dossier; returning an error aborts without
	// persisting anything. The committed dossier is returned.
	Execute(ctx context.Context, id uuid.UUID, fn func(d *models.Dossier) error) (*models.Dossier, error)
	// CountCompleted counts the owner's COMPLETED dossiers of one procedure
	// type. Backs the discount tier; never cached.
	CountCompleted(ctx context.Context, ownerID uuid.UUID, procedureType models.ProcedureType) (int, error)
}
