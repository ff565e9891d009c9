package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"formalitys/internal/dossier/models"
	"formalitys/pkg/platform/sentinel"
)

// InMemory keeps dossiers in a map guarded by a RWMutex. It favors clarity
// over performance and backs unit tests and single-node deployments.
type InMemory struct {
	mu       sync.RWMutex
	dossiers map[uuid.UUID]*models.Dossier
}

func NewInMemory() *InMemory {
	return &InMemory{dossiers: make(map[uuid.UUID]*models.Dossier)}
}

func (s *InMemory) Create(_ context.Context, d *models.Dossier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.dossiers[d.ID]; exists {
		return sentinel.ErrConflict
	}
	s.dossiers[d.ID] = d.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Dossier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.dossiers[id]; ok {
		return d.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindByGatewayReference(_ context.Context, reference string) (*models.Dossier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.dossiers {
		if d.Payment != nil && d.Payment.GatewayReference == reference {
			return d.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*models.Dossier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Dossier
	for _, d := range s.dossiers {
		if d.OwnerID == ownerID {
			out = append(out, d.Clone())
		}
	}
	return out, nil
}

func (s *InMemory) Update(_ context.Context, d *models.Dossier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.dossiers[d.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != d.Version {
		return sentinel.ErrVersionConflict
	}
	committed := d.Clone()
	committed.Version++
	s.dossiers[d.ID] = committed
	return nil
}

// Execute holds the store lock across validate-and-mutate so concurrent
// writers to the same dossier cannot interleave.
func (s *InMemory) Execute(_ context.Context, id uuid.UUID, fn func(d *models.Dossier) error) (*models.Dossier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.dossiers[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.Version++
	s.dossiers[id] = working
	return working.Clone(), nil
}

func (s *InMemory) CountCompleted(_ context.Context, ownerID uuid.UUID, procedureType models.ProcedureType) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, d := range s.dossiers {
		if d.OwnerID == ownerID && d.ProcedureType == procedureType && d.Status == models.StatusCompleted {
			count++
		}
	}
	return count, nil
}
