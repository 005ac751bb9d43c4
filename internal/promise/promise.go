// Package promise provides a settle-once handle for asynchronous operations
// and a combinator that joins several of them.
package promise

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Op is the handle of an asynchronous operation. It settles exactly once,
// either resolved (nil error) or rejected.
type Op struct {
	done chan struct{}
	err  error
	once sync.Once
}

func New() *Op {
	return &Op{done: make(chan struct{})}
}

// Resolved returns an op that has already succeeded.
func Resolved() *Op {
	op := New()
	op.Resolve()
	return op
}

// Rejected returns an op that has already failed with err.
func Rejected(err error) *Op {
	op := New()
	op.Reject(err)
	return op
}

// Go runs fn on its own goroutine and settles the returned op with its result.
func Go(ctx context.Context, fn func(ctx context.Context) error) *Op {
	op := New()
	go func() {
		op.settle(fn(ctx))
	}()
	return op
}

// When joins ops into one op that resolves once all of them resolve, or
// rejects as soon as the first of them rejects. Nil ops are skipped.
func When(ops ...*Op) *Op {
	var g errgroup.Group
	joined := New()
	for _, op := range ops {
		if op == nil {
			continue
		}
		g.Go(func() error {
			<-op.done
			if op.err != nil {
				joined.settle(op.err)
			}
			return op.err
		})
	}
	go func() {
		joined.settle(g.Wait())
	}()
	return joined
}

func (o *Op) Resolve() {
	o.settle(nil)
}

// Reject settles the op with err. A nil err resolves it.
func (o *Op) Reject(err error) {
	o.settle(err)
}

// Done is closed when the op settles.
func (o *Op) Done() <-chan struct{} {
	return o.done
}

// Err returns the rejection reason. It is only meaningful after Done is closed.
func (o *Op) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Settled reports whether the op has settled.
func (o *Op) Settled() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the op settles or ctx is done.
func (o *Op) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Then invokes onSuccess or onFailure on a separate goroutine once the op
// settles. Either callback may be nil.
func (o *Op) Then(onSuccess func(), onFailure func(error)) {
	go func() {
		<-o.done
		if o.err != nil {
			if onFailure != nil {
				onFailure(o.err)
			}
			return
		}
		if onSuccess != nil {
			onSuccess()
		}
	}()
}

func (o *Op) settle(err error) {
	o.once.Do(func() {
		o.err = err
		close(o.done)
	})
}
