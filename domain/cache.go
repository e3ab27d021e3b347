package domain

import (
	"context"
	"errors"
)

// ErrNoCache is returned by CacheStore.Load when no configuration has ever
// been persisted, and by the no-op store unconditionally.
var ErrNoCache = errors.New("no cached configuration")

// CacheStore defines the contract for persisting the last successfully
// fetched configuration payload. The payload is opaque to the store; it is
// only ever moved whole. Every method is independently failable and failures
// must never be treated as fatal by callers.
type CacheStore interface {
	// Load returns the previously persisted payload, or ErrNoCache if none
	// exists.
	Load(ctx context.Context) ([]byte, error)

	// Persist replaces the stored payload.
	Persist(ctx context.Context, payload []byte) error

	// Clear removes the stored payload.
	Clear(ctx context.Context) error
}

// NopCacheStore is the null-object CacheStore selected when caching is
// disabled. Load always reports ErrNoCache; Persist and Clear succeed without
// doing anything.
type NopCacheStore struct{}

func (NopCacheStore) Load(ctx context.Context) ([]byte, error) {
	return nil, ErrNoCache
}

func (NopCacheStore) Persist(ctx context.Context, payload []byte) error {
	return nil
}

func (NopCacheStore) Clear(ctx context.Context) error {
	return nil
}
