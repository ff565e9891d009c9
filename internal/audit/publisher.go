package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily. When an
// outbox channel is configured, events are also handed to the background
// worker for external delivery; a full outbox never blocks domain logic.
type Publisher struct {
	store  Store
	outbox chan<- Event
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// NewPublisherWithOutbox also forwards events to a worker-drained channel.
func NewPublisherWithOutbox(store Store, outbox chan<- Event) *Publisher {
	return &Publisher{store: store, outbox: outbox}
}

func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now()
	}
	if err := p.store.Append(ctx, base); err != nil {
		return err
	}
	if p.outbox != nil {
		select {
		case p.outbox <- base:
		default:
			// Dropping the external copy beats blocking a dossier mutation;
			// the store retains the authoritative record.
		}
	}
	return nil
}

func (p *Publisher) List(ctx context.Context, dossierID uuid.UUID) ([]Event, error) {
	return p.store.ListByDossier(ctx, dossierID)
}
