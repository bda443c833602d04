// Package framebus distributes encoded frames from the single capture
// producer to any number of viewers.
//
// The bus holds one slot. Publish overwrites it and wakes every waiter; older
// frames are never queued, so a slow viewer skips frames instead of holding
// back the producer or other viewers.
package framebus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrTimeout is returned when no newer frame arrives within the wait window.
	ErrTimeout = errors.New("framebus: wait timed out")
	// ErrClosed is returned by Subscription.Next after Close.
	ErrClosed = errors.New("framebus: subscription closed")
)

// Frame is one encoded image. It must not be modified after Publish.
type Frame struct {
	Data       []byte
	Seq        uint64
	CapturedAt time.Time
}

// Empty reports whether the producer handed over no payload.
func (f Frame) Empty() bool {
	return len(f.Data) == 0
}

// Stats is a point-in-time view of producer activity. Reading it never
// blocks on the producer.
type Stats struct {
	Published        uint64
	Empty            uint64
	ConsecutiveEmpty uint64
	LastSeq          uint64
	LastPublish      time.Time
	Subscribers      int64
}

// Bus is a single-slot, latest-wins broadcast buffer.
type Bus struct {
	mu      sync.Mutex
	latest  Frame
	changed chan struct{}

	published   atomic.Uint64
	empty       atomic.Uint64
	emptyRun    atomic.Uint64
	lastPublish atomic.Int64
	subscribers atomic.Int64

	now func() time.Time
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		changed: make(chan struct{}),
		now:     time.Now,
	}
}

// Publish stores data as the latest frame and wakes all waiters. It never
// blocks on consumers. Ownership of data passes to the bus.
func (b *Bus) Publish(data []byte) Frame {
	now := b.now()

	b.mu.Lock()
	f := Frame{Data: data, Seq: b.latest.Seq + 1, CapturedAt: now}
	b.latest = f
	woken := b.changed
	b.changed = make(chan struct{})
	b.mu.Unlock()

	b.published.Add(1)
	b.lastPublish.Store(now.UnixNano())
	if f.Empty() {
		b.empty.Add(1)
		b.emptyRun.Add(1)
	} else {
		b.emptyRun.Store(0)
	}

	close(woken)
	return f
}

// Latest returns the frame currently in the slot.
func (b *Bus) Latest() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.latest.Seq > 0
}

// Seq returns the sequence number of the frame currently in the slot.
func (b *Bus) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest.Seq
}

// WaitNext blocks until a frame with Seq greater than after is in the slot
// and returns the newest one. It gives up after timeout or when ctx ends.
func (b *Bus) WaitNext(ctx context.Context, after uint64, timeout time.Duration) (Frame, error) {
	return b.waitNext(ctx, after, timeout, nil)
}

func (b *Bus) waitNext(ctx context.Context, after uint64, timeout time.Duration, done <-chan struct{}) (Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		b.mu.Lock()
		if b.latest.Seq > after {
			f := b.latest
			b.mu.Unlock()
			return f, nil
		}
		// Captured under the same lock as the seq check, so a publish
		// between the check and the select still closes this channel.
		woken := b.changed
		b.mu.Unlock()

		select {
		case <-woken:
		case <-timer.C:
			return Frame{}, ErrTimeout
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-done:
			return Frame{}, ErrClosed
		}
	}
}

// Stats returns producer counters without taking the slot lock.
func (b *Bus) Stats() Stats {
	s := Stats{
		Published:        b.published.Load(),
		Empty:            b.empty.Load(),
		ConsecutiveEmpty: b.emptyRun.Load(),
		Subscribers:      b.subscribers.Load(),
	}
	s.LastSeq = s.Published
	if ns := b.lastPublish.Load(); ns != 0 {
		s.LastPublish = time.Unix(0, ns)
	}
	return s
}
