package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store is the append-only audit sink used by the publisher.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByDossier(ctx context.Context, dossierID uuid.UUID) ([]Event, error)
}

// InMemoryStore keeps audit events in memory for tests and single-node runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[uuid.UUID][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[uuid.UUID][]Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.DossierID] = append(s.events[event.DossierID], event)
	return nil
}

func (s *InMemoryStore) ListByDossier(_ context.Context, dossierID uuid.UUID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[dossierID]...), nil
}
