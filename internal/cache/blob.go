package cache

import (
	"context"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// BlobStore exposes a cache as a single-key document store. Documents are
// written without expiry.
type BlobStore struct {
	cache domain.Cache
}

// NewBlobStore wraps c as a domain.BlobStore.
func NewBlobStore(c domain.Cache) *BlobStore {
	return &BlobStore{cache: c}
}

// GetBlob returns nil, nil if the key is absent.
func (b *BlobStore) GetBlob(ctx context.Context, key string) ([]byte, error) {
	return b.cache.Get(ctx, "blob:"+key)
}

// PutBlob replaces the document stored under key.
func (b *BlobStore) PutBlob(ctx context.Context, key string, value []byte) error {
	return b.cache.Set(ctx, "blob:"+key, value, 0)
}
