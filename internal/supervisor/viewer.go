package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/gokucam/internal/framebus"
)

// Viewer is one preview consumer. Next never waits longer than the viewer
// timeout, so a disconnect is noticed within one interval.
type Viewer struct {
	sub     *framebus.Subscription
	sup     *Supervisor
	timeout time.Duration
	once    sync.Once
}

// ID identifies the viewer in logs.
func (v *Viewer) ID() string {
	return v.sub.ID
}

// Next returns the next non-empty frame. framebus.ErrTimeout means none
// arrived in time; the stream may be suspended or recovering, and callers
// should keep the connection open and wait again.
func (v *Viewer) Next(ctx context.Context) (framebus.Frame, error) {
	return v.sub.Next(ctx, v.timeout)
}

// Release unsubscribes the viewer. Safe to call more than once.
func (v *Viewer) Release() {
	v.once.Do(func() {
		v.sub.Close()
		v.sup.releaseViewer(v.ID())
	})
}
