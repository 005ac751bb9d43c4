// Package bus is the publish/subscribe channel shared by the page controllers
// and the viewer shell.
package bus

import (
	"slices"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

type Handler func(msg Message)

type Bus struct {
	log  logr.Logger
	mu   sync.RWMutex
	subs []*subscription
}

// Subscription cancels delivery to its handler when Unsubscribe is called.
type Subscription interface {
	ID() string
	Unsubscribe()
}

type subscription struct {
	bus     *Bus
	handler Handler
	id      string
	topics  []Topic
}

func New(log logr.Logger) *Bus {
	return &Bus{log: log}
}

// Subscribe registers handler for the given topics. Messages on any other
// topic are never delivered to it.
func (b *Bus) Subscribe(handler Handler, topics ...Topic) Subscription {
	sub := &subscription{
		bus:     b,
		handler: handler,
		id:      uuid.NewString(),
		topics:  slices.Clone(topics),
	}
	b.log.V(1).Info("subscribe", "id", sub.id, "topics", topics)
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

// Publish delivers msg synchronously, in subscription order, to every
// subscriber of its topic. Handlers may publish or subscribe themselves.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if slices.Contains(sub.topics, msg.Topic()) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	b.log.V(1).Info("publish", "topic", msg.Topic(), "subscribers", len(targets))
	for _, sub := range targets {
		sub.handler(msg)
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Unsubscribe() {
	s.bus.log.V(1).Info("unsubscribe", "id", s.id)
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.bus.subs = slices.DeleteFunc(s.bus.subs, func(other *subscription) bool {
		return other == s
	})
}
