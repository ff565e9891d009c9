package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"formalitys/pkg/platform/sentinel"
)

// refindexTTL bounds how long a gateway reference stays resolvable. Webhooks
// arriving later fall back to the store scan.
const refindexTTL = 30 * 24 * time.Hour

// ReferenceIndex maps gateway references to dossier IDs so webhook handling
// avoids a table scan. It is a cache: a miss is not an error condition, the
// service falls back to the store.
type ReferenceIndex interface {
	Put(ctx context.Context, reference string, dossierID uuid.UUID) error
	Lookup(ctx context.Context, reference string) (uuid.UUID, error)
}

// InMemoryIndex backs tests and single-node runs.
type InMemoryIndex struct {
	mu   sync.RWMutex
	refs map[string]uuid.UUID
}

func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{refs: make(map[string]uuid.UUID)}
}

func (i *InMemoryIndex) Put(_ context.Context, reference string, dossierID uuid.UUID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.refs[reference] = dossierID
	return nil
}

func (i *InMemoryIndex) Lookup(_ context.Context, reference string) (uuid.UUID, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if id, ok := i.refs[reference]; ok {
		return id, nil
	}
	return uuid.Nil, sentinel.ErrNotFound
}

// RedisIndex shares the reference index across instances.
type RedisIndex struct {
	client *redis.Client
}

func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

func redisKey(reference string) string {
	return "payment:ref:" + reference
}

func (i *RedisIndex) Put(ctx context.Context, reference string, dossierID uuid.UUID) error {
	return i.client.Set(ctx, redisKey(reference), dossierID.String(), refindexTTL).Err()
}

func (i *RedisIndex) Lookup(ctx context.Context, reference string) (uuid.UUID, error) {
	raw, err := i.client.Get(ctx, redisKey(reference)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, sentinel.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, sentinel.ErrNotFound
	}
	return id, nil
}
