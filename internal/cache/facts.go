package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// byteStore is the raw get/set half of domain.Cache.
type byteStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// factCodec implements the fact-set methods of domain.Cache on top of a
// byteStore. Fact sets are stored as JSON under "facts:<id>".
type factCodec struct {
	store byteStore
}

func factsKey(id string) string {
	return "facts:" + id
}

// GetFacts returns nil, nil when no fact set is cached under id.
func (f factCodec) GetFacts(ctx context.Context, id string) (domain.FactSet, error) {
	data, err := f.store.Get(ctx, factsKey(id))
	if err != nil || data == nil {
		return nil, err
	}

	var fs domain.FactSet
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("corrupt cached facts for %s: %w", id, err)
	}
	return fs, nil
}

// SetFacts caches fs under id.
func (f factCodec) SetFacts(ctx context.Context, id string, fs domain.FactSet, ttl time.Duration) error {
	data, err := json.Marshal(fs)
	if err != nil {
		return fmt.Errorf("failed to encode facts for %s: %w", id, err)
	}
	return f.store.Set(ctx, factsKey(id), data, ttl)
}
