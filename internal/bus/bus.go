// Package bus is a synchronous, re-entrant pub/sub keyed by event name.
//
// Emit delivers to the listeners registered for the name in registration
// order, then to wildcard listeners. Listener errors and panics are logged
// and never stop delivery to the remaining listeners.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Wildcard is the name that subscribes to every event.
const Wildcard = "*"

// Envelope carries an emitted event to a listener.
type Envelope[T any] struct {
	EventName string
	Data      T
}

// Listener handles one delivery.
type Listener[T any] func(ctx context.Context, env Envelope[T]) error

type subscription[T any] struct {
	id   uint64
	fn   Listener[T]
	once bool
}

// Option configures a Bus.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for listener failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Bus is a synchronous event bus. Safe for concurrent use; the lock is
// never held while a listener runs, so listeners may subscribe,
// unsubscribe and emit re-entrantly.
type Bus[T any] struct {
	logger *slog.Logger

	mu        sync.Mutex
	nextID    uint64
	listeners map[string][]*subscription[T]
}

// New creates an empty Bus.
func New[T any](opts ...Option) *Bus[T] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Bus[T]{
		logger:    o.logger,
		listeners: make(map[string][]*subscription[T]),
	}
}

// On registers fn for name and returns a function that unsubscribes it.
// Calling the returned function more than once is a no-op.
func (b *Bus[T]) On(name string, fn Listener[T]) func() {
	return b.subscribe(name, fn, false)
}

// Once registers fn for a single delivery. The subscription is removed
// before fn runs, so a re-entrant emit of the same name does not reach it.
func (b *Bus[T]) Once(name string, fn Listener[T]) func() {
	return b.subscribe(name, fn, true)
}

func (b *Bus[T]) subscribe(name string, fn Listener[T], once bool) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription[T]{id: b.nextID, fn: fn, once: once}
	b.listeners[name] = append(b.listeners[name], sub)

	return func() {
		b.remove(name, sub.id)
	}
}

// remove deletes a subscription and reports whether it was still present.
func (b *Bus[T]) remove(name string, id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.listeners[name]
	for i, s := range subs {
		if s.id == id {
			b.listeners[name] = append(subs[:i:i], subs[i+1:]...)
			if len(b.listeners[name]) == 0 {
				delete(b.listeners, name)
			}
			return true
		}
	}
	return false
}

// snapshot copies the listener list for name.
func (b *Bus[T]) snapshot(name string) []*subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*subscription[T](nil), b.listeners[name]...)
}

// Emit synchronously delivers data to the listeners for name, then to the
// wildcard listeners. Emitting the wildcard name itself reaches wildcard
// listeners once.
func (b *Bus[T]) Emit(ctx context.Context, name string, data T) {
	env := Envelope[T]{EventName: name, Data: data}

	b.deliver(ctx, name, env)
	if name != Wildcard {
		b.deliver(ctx, Wildcard, env)
	}
}

func (b *Bus[T]) deliver(ctx context.Context, key string, env Envelope[T]) {
	for _, sub := range b.snapshot(key) {
		if sub.once && !b.remove(key, sub.id) {
			// Already consumed by a re-entrant emit.
			continue
		}
		if err := b.call(ctx, sub.fn, env); err != nil {
			b.logger.Error("event listener failed",
				"event", env.EventName,
				"listener_id", sub.id,
				"error", err,
			)
		}
	}
}

// call invokes fn and converts a panic into an error.
func (b *Bus[T]) call(ctx context.Context, fn Listener[T], env Envelope[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return fn(ctx, env)
}

// Clear removes the listeners for the given names, or every listener when
// no names are given.
func (b *Bus[T]) Clear(names ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(names) == 0 {
		b.listeners = make(map[string][]*subscription[T])
		return
	}
	for _, name := range names {
		delete(b.listeners, name)
	}
}

// ListenerCount returns the number of listeners registered for name.
func (b *Bus[T]) ListenerCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[name])
}
