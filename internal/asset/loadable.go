package asset

import (
	"context"
	"sync"

	"github.com/kdex-tech/kdex-pageview/internal/promise"
)

// loadable gives an asset idempotent Load/Unload. fetch runs without the lock;
// render and clear run under it, so an Unload never interleaves with a render.
type loadable[T any] struct {
	ctx    context.Context
	fetch  func(ctx context.Context) (T, error)
	render func(T)
	clear  func()

	mu       sync.Mutex
	inflight *promise.Op
	loaded   bool
}

func (l *loadable[T]) Load() *promise.Op {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded {
		return promise.Resolved()
	}
	if l.inflight != nil {
		return l.inflight
	}

	op := promise.New()
	l.inflight = op
	go func() {
		payload, err := l.fetch(l.ctx)

		l.mu.Lock()
		l.inflight = nil
		if err == nil {
			l.render(payload)
			l.loaded = true
		}
		l.mu.Unlock()

		op.Reject(err)
	}()
	return op
}

func (l *loadable[T]) Unload() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		return
	}
	l.clear()
	l.loaded = false
}

func (l *loadable[T]) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}
