package messenger

import (
	"context"
	"sync"
)

// Subscription is one live view of a provider's inbound payloads.
type Subscription struct {
	c      chan any
	done   chan struct{}
	onDrop func(payload any)

	mu     sync.Mutex
	closed bool
	err    error
	remove func()
	stop   func() bool
}

func newSubscription(bufferSize int, onDrop func(any)) *Subscription {
	return &Subscription{
		c:      make(chan any, bufferSize),
		done:   make(chan struct{}),
		onDrop: onDrop,
	}
}

// C returns the channel payloads are delivered on. It is closed when the
// subscription ends.
func (s *Subscription) C() <-chan any {
	return s.c
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the subscription ended: nil after Unsubscribe or when the
// target closed, the target's error when its event source failed, or the
// context's error when the subscribing context ended.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Unsubscribe stops delivery. No payload is delivered after it returns.
func (s *Subscription) Unsubscribe() {
	s.finish(nil)
}

// bind ties the subscription to its listener and context. If the
// subscription already ended, both are released immediately.
func (s *Subscription) bind(ctx context.Context, remove func()) {
	stop := context.AfterFunc(ctx, func() {
		s.finish(ctx.Err())
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		remove()
		stop()
		return
	}
	s.remove = remove
	s.stop = stop
	s.mu.Unlock()
}

func (s *Subscription) push(payload any) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	dropped := false
	select {
	case s.c <- payload:
	default:
		dropped = true
	}
	s.mu.Unlock()

	if dropped && s.onDrop != nil {
		s.onDrop(payload)
	}
}

func (s *Subscription) finish(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	remove, stop := s.remove, s.stop
	s.remove, s.stop = nil, nil
	s.mu.Unlock()

	if remove != nil {
		remove()
	}
	if stop != nil {
		stop()
	}

	// push never sends once closed is set
	close(s.c)
	close(s.done)
}
