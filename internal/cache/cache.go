// Package cache keeps fetched page asset bodies, keyed per document and
// per document revision ("generation").
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
)

const DefaultTTL = 24 * time.Hour

type Cache interface {
	Class() string
	Delete(ctx context.Context, key string) error
	Document() string
	Generation() int64
	// Get returns the value, whether it was found, and whether it belongs to
	// the current generation.
	Get(ctx context.Context, key string) ([]byte, bool, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	TTL() time.Duration
}

type CacheOptions struct {
	TTL *time.Duration
}

type CacheManager interface {
	// Cycle moves every cache to generation. Entries of the previous
	// generation stay readable as stale values unless force is set.
	Cycle(generation int64, force bool) error
	GetCache(class string, opts CacheOptions) Cache
	Close()
}

// NewCacheManager returns a valkey backed manager when addr is set and an
// in-memory one otherwise.
func NewCacheManager(addr, document string, ttl *time.Duration) (CacheManager, error) {
	if ttl == nil {
		ttl = new(DefaultTTL)
	}

	if addr == "" {
		return &InMemoryCacheManager{
			caches:   make(map[string]*InMemoryCache),
			document: document,
			ttl:      *ttl,
		}, nil
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		DisableCache: strings.Contains(addr, "127.0.0.1") || strings.Contains(addr, "localhost"),
		InitAddress:  []string{addr},
	})
	if err != nil {
		return nil, err
	}
	return &ValkeyCacheManager{
		caches:   make(map[string]*ValkeyCache),
		client:   client,
		document: document,
		ttl:      *ttl,
	}, nil
}
