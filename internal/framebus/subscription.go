package framebus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Subscription tracks one viewer's position on the bus. Next must be called
// from a single goroutine; Close may be called from any goroutine.
type Subscription struct {
	ID string

	bus       *Bus
	last      uint64
	done      chan struct{}
	closeOnce sync.Once
}

// Subscribe starts a subscription positioned at the current frame, so the
// first Next returns only a frame published after this call.
func (b *Bus) Subscribe() *Subscription {
	b.subscribers.Add(1)
	return &Subscription{
		ID:   uuid.NewString(),
		bus:  b,
		last: b.Seq(),
		done: make(chan struct{}),
	}
}

// Next waits up to timeout for the next non-empty frame. Empty frames are
// skipped; they only matter to the health monitor.
func (s *Subscription) Next(ctx context.Context, timeout time.Duration) (Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Frame{}, ErrTimeout
		}
		f, err := s.bus.waitNext(ctx, s.last, remaining, s.done)
		if err != nil {
			return Frame{}, err
		}
		s.last = f.Seq
		if !f.Empty() {
			return f, nil
		}
	}
}

// LastSeq returns the sequence number of the last frame delivered by Next.
func (s *Subscription) LastSeq() uint64 {
	return s.last
}

// Close ends the subscription and unblocks a pending Next.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.bus.subscribers.Add(-1)
	})
}
