// Package supervisor arbitrates the camera between live preview viewers and
// exclusive jobs, and restarts the pipeline when it stalls.
//
// Every transition runs under a single device lock, so the session is never
// observed half configured and no two callers transition at once. The lock
// is a weighted semaphore so waiting for it honours context cancellation.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/semaphore"

	"github.com/smazurov/gokucam/internal/camerr"
	"github.com/smazurov/gokucam/internal/config"
	"github.com/smazurov/gokucam/internal/device"
	"github.com/smazurov/gokucam/internal/events"
	"github.com/smazurov/gokucam/internal/framebus"
	"github.com/smazurov/gokucam/internal/health"
	"github.com/smazurov/gokucam/internal/logging"
	"github.com/smazurov/gokucam/internal/metrics"
)

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("supervisor closed")

// Session is the device lifecycle the supervisor drives. *device.Session
// satisfies it.
type Session interface {
	Open(ctx context.Context, cfg device.Config) error
	StartStreaming(ctx context.Context) error
	StopStreaming()
	Close(ctx context.Context)
	Snapshot(ctx context.Context) (framebus.Frame, error)
	State() device.State
	Encoder() device.Encoder
}

// Monitor is the stall detector. *health.Monitor satisfies it.
type Monitor interface {
	Arm()
	Disarm()
	Signals() <-chan health.Signal
}

// Options configures a Supervisor.
type Options struct {
	Device        device.Config
	ViewerTimeout time.Duration // per-wait timeout for viewers, default 1s
	// IdleLinger is how long the stream keeps running after the last
	// viewer leaves. Zero stops immediately, negative never stops.
	IdleLinger time.Duration
	Recovery   config.Recovery
	Events     *events.Bus
	Logger     logging.Logger
}

// Supervisor owns the device lock and the stream state machine.
type Supervisor struct {
	session Session
	bus     *framebus.Bus
	monitor Monitor
	opts    Options
	logger  logging.Logger
	lock    *semaphore.Weighted

	mu         sync.Mutex
	state      State
	since      time.Time
	degraded   bool
	announced  bool // degraded flag carried by the last StateChangedEvent
	viewers    int
	recoveries int
	lastErr    error
	idleTimer  *time.Timer
	closed     bool
}

// New creates an idle supervisor.
func New(session Session, bus *framebus.Bus, monitor Monitor, opts Options) *Supervisor {
	if opts.ViewerTimeout <= 0 {
		opts.ViewerTimeout = time.Second
	}
	if opts.Recovery.MaxAttempts <= 0 {
		opts.Recovery.MaxAttempts = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("supervisor")
	}
	metrics.SetState(StateIdle.String())
	return &Supervisor{
		session: session,
		bus:     bus,
		monitor: monitor,
		opts:    opts,
		logger:  opts.Logger,
		lock:    semaphore.NewWeighted(1),
		since:   time.Now(),
	}
}

// Start opens the device and begins streaming. Unlike viewer access, a
// failure here is returned rather than degraded.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.lock.Release(1)

	if err := s.startLocked(ctx); err != nil {
		s.recordErr(err)
		return err
	}
	s.setState(StateStreaming, "start")
	s.scheduleIdle()
	return nil
}

// Close stops streaming for good and leaves the supervisor Idle.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.mu.Unlock()

	if err := s.lock.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.lock.Release(1)
	s.stopLocked(ctx, StateIdle, "shutdown")
	return nil
}

// AcquireViewer registers a viewer and makes sure the stream is running.
// If the device cannot be started the viewer is still returned and the
// supervisor is marked degraded; frames appear once a later attempt works.
func (s *Supervisor) AcquireViewer(ctx context.Context) (*Viewer, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.lock.Release(1)

	s.mu.Lock()
	s.viewers++
	n := s.viewers
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	s.mu.Unlock()
	metrics.SetViewers(n)

	if err := s.ensureLocked(ctx, "viewer"); err != nil {
		s.logger.Warn("Stream unavailable, viewer will wait", "error", err)
	}

	v := &Viewer{
		sub:     s.bus.Subscribe(),
		sup:     s,
		timeout: s.opts.ViewerTimeout,
	}
	s.logger.Debug("Viewer connected", "viewer", v.ID(), "viewers", n)
	return v, nil
}

func (s *Supervisor) releaseViewer(id string) {
	s.mu.Lock()
	s.viewers--
	n := s.viewers
	s.mu.Unlock()
	metrics.SetViewers(n)
	s.logger.Debug("Viewer disconnected", "viewer", id, "viewers", n)
	s.scheduleIdle()
}

// Snapshot returns a fresh frame, starting the stream if necessary.
func (s *Supervisor) Snapshot(ctx context.Context) (framebus.Frame, error) {
	if err := s.acquire(ctx); err != nil {
		return framebus.Frame{}, err
	}
	err := s.ensureLocked(ctx, "snapshot")
	s.lock.Release(1)
	defer s.scheduleIdle()
	if err != nil {
		metrics.IncSnapshot(false)
		return framebus.Frame{}, err
	}

	f, err := s.session.Snapshot(ctx)
	metrics.IncSnapshot(err == nil)
	return f, err
}

// Exclusive releases the device, runs fn while holding the device lock,
// then restores preview: Streaming if viewers remain, Idle otherwise.
// Restoration runs even when fn fails or panics.
func (s *Supervisor) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.lock.Release(1)

	s.stopLocked(ctx, StateSuspended, "exclusive")
	defer s.resumeLocked(context.WithoutCancel(ctx))

	return fn(ctx)
}

func (s *Supervisor) resumeLocked(ctx context.Context) {
	s.mu.Lock()
	n, closed := s.viewers, s.closed
	s.mu.Unlock()

	if n == 0 || closed {
		s.setState(StateIdle, "exclusive done")
		return
	}
	s.setState(StateRecovering, "exclusive done")
	if err := s.cycleLocked(ctx); err != nil {
		s.degrade(err)
		return
	}
	s.setState(StateStreaming, "resumed")
}

// Restart closes and reopens the device regardless of health.
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.lock.Release(1)

	s.setState(StateRecovering, "manual restart")
	if err := s.cycleLocked(ctx); err != nil {
		s.degrade(err)
		return err
	}
	s.setState(StateStreaming, "restarted")
	s.scheduleIdle()
	return nil
}

// Run consumes health signals and performs recovery until ctx ends.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-s.monitor.Signals():
			s.recover(ctx, sig)
		}
	}
}

func (s *Supervisor) recover(ctx context.Context, sig health.Signal) {
	if err := s.lock.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.lock.Release(1)

	// The stream may have been stopped or handed off since the signal.
	if s.State() != StateStreaming {
		s.logger.Debug("Ignoring stale health signal", "condition", sig.Condition.String(), "state", s.State().String())
		return
	}

	s.opts.Events.Publish(events.StallEvent{
		Condition:   sig.Condition.String(),
		IdleMs:      sig.Idle.Milliseconds(),
		EmptyFrames: sig.Empty,
		Timestamp:   events.Now(),
	})
	s.mu.Lock()
	s.recoveries++
	s.mu.Unlock()

	s.logger.Warn("Recovering stream", "error", camerr.New(camerr.CodeStall, sig.Condition.String(), nil))
	s.setState(StateRecovering, sig.Condition.String())
	if err := s.cycleLocked(ctx); err != nil {
		s.degrade(err)
		return
	}
	s.setState(StateStreaming, "recovered")
}

// cycleLocked closes and reopens the session, retrying with backoff up to
// the configured number of attempts.
func (s *Supervisor) cycleLocked(ctx context.Context) error {
	rc := s.opts.Recovery
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rc.InitialBackoff.D()
	b.MaxInterval = rc.MaxBackoff.D()
	b.RandomizationFactor = 0

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		s.monitor.Disarm()
		s.session.StopStreaming()
		s.session.Close(ctx)
		if err := s.startLocked(ctx); err != nil {
			metrics.IncRecovery("failure")
			s.publishRecovery(attempt, "failure", err)
			return struct{}{}, err
		}
		metrics.IncRecovery("success")
		s.publishRecovery(attempt, "success", nil)
		return struct{}{}, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(rc.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("Recovery attempt failed", "attempt", attempt, "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		metrics.IncRecovery("exhausted")
		s.publishRecovery(attempt, "exhausted", err)
		return fmt.Errorf("recovery gave up after %d attempts: %w", attempt, err)
	}
	return nil
}

func (s *Supervisor) publishRecovery(attempt int, result string, err error) {
	ev := events.RecoveryEvent{Attempt: attempt, Result: result, Timestamp: events.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	s.opts.Events.Publish(ev)
}

// ensureLocked starts streaming if it is not running. One attempt only; a
// failure leaves the supervisor Idle and degraded.
func (s *Supervisor) ensureLocked(ctx context.Context, reason string) error {
	if s.State() == StateStreaming && s.session.State() == device.StateStreaming {
		return nil
	}
	if err := s.startLocked(ctx); err != nil {
		s.session.Close(ctx)
		s.degrade(err)
		return err
	}
	s.setState(StateStreaming, reason)
	return nil
}

func (s *Supervisor) startLocked(ctx context.Context) error {
	if err := s.session.Open(ctx, s.opts.Device); err != nil {
		return err
	}
	if err := s.session.StartStreaming(ctx); err != nil {
		return err
	}
	s.monitor.Arm()
	s.mu.Lock()
	s.degraded = false
	s.lastErr = nil
	s.mu.Unlock()
	metrics.SetDegraded(false)
	return nil
}

func (s *Supervisor) stopLocked(ctx context.Context, to State, reason string) {
	s.monitor.Disarm()
	s.session.StopStreaming()
	s.session.Close(ctx)
	s.setState(to, reason)
}

func (s *Supervisor) degrade(err error) {
	s.recordErr(err)
	s.mu.Lock()
	s.degraded = true
	s.mu.Unlock()
	metrics.SetDegraded(true)
	s.logger.Error("Stream degraded, will retry on next access", "error", err)
	s.setState(StateIdle, "degraded")
}

func (s *Supervisor) recordErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// scheduleIdle arms the linger timer when nobody is watching.
func (s *Supervisor) scheduleIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewers > 0 || s.closed || s.opts.IdleLinger < 0 || s.state != StateStreaming {
		return
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(s.opts.IdleLinger, s.idleIfUnused)
}

func (s *Supervisor) idleIfUnused() {
	ctx := context.Background()
	if err := s.lock.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.lock.Release(1)

	s.mu.Lock()
	busy := s.viewers > 0 || s.closed || s.state != StateStreaming
	s.mu.Unlock()
	if busy {
		return
	}
	s.stopLocked(ctx, StateIdle, "no viewers")
}

func (s *Supervisor) acquire(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return s.lock.Acquire(ctx, 1)
}

func (s *Supervisor) setState(to State, reason string) {
	s.mu.Lock()
	from, degraded := s.state, s.degraded
	if from == to && degraded == s.announced {
		s.mu.Unlock()
		return
	}
	if from != to {
		s.state = to
		s.since = time.Now()
	}
	s.announced = degraded
	s.mu.Unlock()

	if from != to {
		metrics.SetState(to.String())
		s.logger.Info("Stream state changed", "from", from.String(), "to", to.String(), "reason", reason)
	}
	s.opts.Events.Publish(events.StateChangedEvent{
		From:      from.String(),
		To:        to.String(),
		Degraded:  degraded,
		Reason:    reason,
		Timestamp: events.Now(),
	})
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Degraded reports whether automatic recovery has given up.
func (s *Supervisor) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Status returns a snapshot of supervisor state for reporting.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{
		State:      s.state.String(),
		Degraded:   s.degraded,
		Viewers:    s.viewers,
		Recoveries: s.recoveries,
		Since:      s.since,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	streaming := s.state == StateStreaming
	s.mu.Unlock()

	if streaming {
		st.Encoder = s.session.Encoder().Name
	}
	return st
}
