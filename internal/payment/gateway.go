package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Intent is the gateway's handle on a pending charge.
type Intent struct {
	Reference    string
	ClientSecret string
}

// Gateway creates charge intents with an external payment provider. Amounts
// are integer minor units.
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (Intent, error)
}

// FakeGateway issues locally generated references. It backs tests and demo
// deployments where no provider is configured.
type FakeGateway struct {
	mu      sync.Mutex
	intents map[string]fakeIntent
}

type fakeIntent struct {
	amount   int64
	metadata map[string]string
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{intents: make(map[string]fakeIntent)}
}

func (g *FakeGateway) CreateIntent(_ context.Context, amount int64, _ string, metadata map[string]string) (Intent, error) {
	if amount <= 0 {
		return Intent{}, fmt.Errorf("amount must be positive, got %d", amount)
	}
	reference := "pi_" + uuid.NewString()
	copied := make(map[string]string, len(metadata))
	for k, v := range metadata {
		copied[k] = v
	}
	g.mu.Lock()
	g.intents[reference] = fakeIntent{amount: amount, metadata: copied}
	g.mu.Unlock()
	return Intent{
		Reference:    reference,
		ClientSecret: reference + "_secret_" + uuid.NewString(),
	}, nil
}

// Amount reports the amount recorded for a reference, for test assertions.
func (g *FakeGateway) Amount(reference string) (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[reference]
	return intent.amount, ok
}

// Metadata reports the metadata recorded for a reference, for test assertions.
func (g *FakeGateway) Metadata(reference string) (map[string]string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[reference]
	return intent.metadata, ok
}
