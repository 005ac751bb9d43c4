package cache

import (
	"context"
	"slices"
	"sync"
	"time"
)

type InMemoryCache struct {
	class             string
	currentGeneration int64
	document          string
	mu                sync.RWMutex
	segments          map[int64]map[string]memoryCacheEntry
	stop              chan struct{}
	ttl               time.Duration
}

var _ Cache = (*InMemoryCache)(nil)

func (c *InMemoryCache) Class() string {
	return c.class
}

func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, seg := range c.segments {
		delete(seg, key)
	}
	return nil
}

func (c *InMemoryCache) Document() string {
	return c.document
}

func (c *InMemoryCache) Generation() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentGeneration
}

func (c *InMemoryCache) TTL() time.Duration {
	return c.ttl
}

func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, bool, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()

	if entry, found := c.segments[c.currentGeneration][key]; found {
		// expired entries are left for the reaper
		if now.After(entry.expiry) {
			return nil, false, true, nil
		}
		return slices.Clone(entry.value), true, true, nil
	}

	// At most one other generation is retained.
	for gen, seg := range c.segments {
		if gen == c.currentGeneration {
			continue
		}
		if entry, found := seg[key]; found && !now.After(entry.expiry) {
			return slices.Clone(entry.value), true, false, nil
		}
	}

	return nil, false, true, nil
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.segments[c.currentGeneration] == nil {
		c.segments[c.currentGeneration] = make(map[string]memoryCacheEntry)
	}

	c.segments[c.currentGeneration][key] = memoryCacheEntry{
		expiry: time.Now().Add(c.ttl),
		value:  slices.Clone(value),
	}
	return nil
}

func (c *InMemoryCache) cycle(oldGen, generation int64, force bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentGeneration = generation
	if c.segments[generation] == nil {
		c.segments[generation] = make(map[string]memoryCacheEntry)
	}
	for g := range c.segments {
		if g == generation || (!force && g == oldGen) {
			continue
		}
		delete(c.segments, g)
	}
}

func (c *InMemoryCache) reap() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, seg := range c.segments {
		for key, entry := range seg {
			if now.After(entry.expiry) {
				delete(seg, key)
			}
		}
	}
}

func (c *InMemoryCache) startReaper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.reap()
			case <-c.stop:
				return
			}
		}
	}()
}

type InMemoryCacheManager struct {
	caches            map[string]*InMemoryCache
	currentGeneration int64
	document          string
	mu                sync.RWMutex
	ttl               time.Duration
}

var _ CacheManager = (*InMemoryCacheManager)(nil)

func (m *InMemoryCacheManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for class, c := range m.caches {
		close(c.stop)
		delete(m.caches, class)
	}
}

func (m *InMemoryCacheManager) Cycle(generation int64, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldGen := m.currentGeneration
	m.currentGeneration = generation

	for _, c := range m.caches {
		c.cycle(oldGen, generation, force)
	}
	return nil
}

func (m *InMemoryCacheManager) GetCache(class string, opts CacheOptions) Cache {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.caches[class]; ok {
		return c
	}

	ttl := m.ttl
	if opts.TTL != nil {
		ttl = *opts.TTL
	}
	c := &InMemoryCache{
		class:             class,
		currentGeneration: m.currentGeneration,
		document:          m.document,
		segments:          make(map[int64]map[string]memoryCacheEntry),
		stop:              make(chan struct{}),
		ttl:               ttl,
	}
	c.startReaper(ttl)
	m.caches[class] = c
	return c
}

type memoryCacheEntry struct {
	expiry time.Time
	value  []byte
}
