package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
)

type ValkeyCache struct {
	client            valkey.Client
	class             string
	currentGeneration int64
	document          string
	mu                sync.RWMutex
	prefix            string // e.g. "{document:class:generation}:"
	prevPrefix        string // e.g. "{document:class:generation-1}:"
	ttl               time.Duration
}

var _ Cache = (*ValkeyCache)(nil)

func (s *ValkeyCache) Class() string {
	return s.class
}

func (s *ValkeyCache) Delete(ctx context.Context, key string) error {
	s.mu.RLock()
	curr := s.prefix
	prev := s.prevPrefix
	s.mu.RUnlock()

	keys := []string{curr + key}
	if prev != "" {
		keys = append(keys, prev+key)
	}

	cmd := s.client.B().Del().Key(keys...).Build()
	return s.client.Do(ctx, cmd).Error()
}

func (s *ValkeyCache) Document() string {
	return s.document
}

func (s *ValkeyCache) Generation() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentGeneration
}

func (s *ValkeyCache) TTL() time.Duration {
	return s.ttl
}

func (s *ValkeyCache) Get(ctx context.Context, key string) ([]byte, bool, bool, error) {
	s.mu.RLock()
	curr := s.prefix
	prev := s.prevPrefix
	s.mu.RUnlock()

	val, found, err := s.getValue(ctx, curr+key)
	if err != nil || found {
		return val, found, true, err
	}

	if prev != "" {
		val, found, err := s.getValue(ctx, prev+key)
		if found {
			return val, true, false, err
		}
	}

	return nil, false, true, nil
}

func (s *ValkeyCache) Set(ctx context.Context, key string, value []byte) error {
	s.mu.RLock()
	prefix := s.prefix
	s.mu.RUnlock()
	cmd := s.client.B().Set().Key(prefix + key).Value(valkey.BinaryString(value)).Px(s.ttl).Build()
	return s.client.Do(ctx, cmd).Error()
}

func (s *ValkeyCache) getValue(ctx context.Context, fullKey string) ([]byte, bool, error) {
	cmd := s.client.B().Get().Key(fullKey).Build()
	val, err := s.client.Do(ctx, cmd).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, false, nil
	}
	return val, err == nil, err
}

type ValkeyCacheManager struct {
	caches            map[string]*ValkeyCache
	client            valkey.Client
	currentGeneration int64
	document          string
	mu                sync.RWMutex
	ttl               time.Duration
}

var _ CacheManager = (*ValkeyCacheManager)(nil)

func (m *ValkeyCacheManager) Close() {
	m.client.Close()
}

func (m *ValkeyCacheManager) Cycle(generation int64, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentGeneration = generation

	for _, c := range m.caches {
		c.mu.Lock()
		if force {
			c.prevPrefix = ""
		} else {
			c.prevPrefix = c.prefix
		}
		c.currentGeneration = generation
		c.prefix = prefix(m.document, c.class, generation)
		c.mu.Unlock()
	}
	return nil
}

func (m *ValkeyCacheManager) GetCache(class string, opts CacheOptions) Cache {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.caches[class]; ok {
		return c
	}

	ttl := m.ttl
	if opts.TTL != nil {
		ttl = *opts.TTL
	}
	c := &ValkeyCache{
		client:            m.client,
		class:             class,
		currentGeneration: m.currentGeneration,
		document:          m.document,
		prefix:            prefix(m.document, class, m.currentGeneration),
		ttl:               ttl,
	}
	m.caches[class] = c
	return c
}

func prefix(document, class string, generation int64) string {
	return fmt.Sprintf("{%s:%s:%d}:", document, class, generation)
}
