// Package bus provides a lossy broadcast channel. Every subscriber owns a
// bounded ring; when a ring is full the oldest unread value is overwritten,
// so Publish never waits on a slow or absent reader.
package bus

import (
	"context"
	"errors"
	"sync"
)

// DefaultCapacity is used when New is given a capacity below 1.
const DefaultCapacity = 64

// ErrClosed is returned by Recv once the subscription (or its bus) is closed
// and every buffered value has been consumed.
var ErrClosed = errors.New("bus: subscription closed")

// Bus fans published values out to every live Subscription.
type Bus[T any] struct {
	mu       sync.RWMutex
	subs     map[*Subscription[T]]struct{}
	capacity int
	closed   bool
}

// New creates a bus whose subscribers each buffer up to capacity values.
func New[T any](capacity int) *Bus[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Bus[T]{
		subs:     make(map[*Subscription[T]]struct{}),
		capacity: capacity,
	}
}

// Capacity returns the per-subscriber buffer size.
func (b *Bus[T]) Capacity() int { return b.capacity }

// Subscribe registers a new cursor. It sees only values published after
// this call. Subscribing to a closed bus returns an already closed cursor.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		bus:    b,
		ring:   make([]T, b.capacity),
		notify: make(chan struct{}, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.closed = true
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish appends v to every subscriber's ring and returns the number of
// subscribers it reached.
func (b *Bus[T]) Publish(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	for s := range b.subs {
		s.push(v)
	}
	return len(b.subs)
}

// Subscribers returns the number of live cursors.
func (b *Bus[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close detaches every subscriber. Buffered values remain readable; after
// that Recv reports ErrClosed. Further publishes are discarded.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*Subscription[T]]struct{})
	b.mu.Unlock()

	for s := range subs {
		s.markClosed()
	}
}

// Subscription is one reader's independent, ordered view of the bus.
type Subscription[T any] struct {
	bus *Bus[T]

	mu      sync.Mutex
	ring    []T
	head    int // index of the oldest unread value
	count   int
	dropped uint64
	closed  bool

	notify chan struct{}
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.count == len(s.ring) {
		// Full: overwrite the oldest slot and advance the floor.
		s.ring[s.head] = v
		s.head = (s.head + 1) % len(s.ring)
		s.dropped++
	} else {
		s.ring[(s.head+s.count)%len(s.ring)] = v
		s.count++
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription[T]) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pop() (T, bool) {
	var zero T
	if s.count == 0 {
		return zero, false
	}
	v := s.ring[s.head]
	s.ring[s.head] = zero
	s.head = (s.head + 1) % len(s.ring)
	s.count--
	return v, true
}

// TryRecv returns the oldest unread value without blocking.
func (s *Subscription[T]) TryRecv() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pop()
}

// Recv blocks until a value is available, the context ends, or the
// subscription is closed and empty.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	for {
		s.mu.Lock()
		v, ok := s.pop()
		closed := s.closed
		s.mu.Unlock()
		if ok {
			return v, nil
		}
		if closed {
			var zero T
			return zero, ErrClosed
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Drain returns every buffered value, oldest first, without blocking.
func (s *Subscription[T]) Drain() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, 0, s.count)
	for {
		v, ok := s.pop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// Ready is signalled whenever a value is pushed or the subscription closes.
// It lets callers fold the subscription into their own select loops.
func (s *Subscription[T]) Ready() <-chan struct{} { return s.notify }

// Len returns the number of unread values.
func (s *Subscription[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Dropped returns how many values were overwritten before being read.
func (s *Subscription[T]) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Closed reports whether the subscription no longer receives values.
func (s *Subscription[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close unsubscribes. It is safe to call more than once and does not
// affect other subscribers.
func (s *Subscription[T]) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.markClosed()
}

func (s *Subscription[T]) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}
