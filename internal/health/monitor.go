// Package health watches producer cadence on the frame bus and tells the
// supervisor when the capture pipeline has silently stalled.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/gokucam/internal/config"
	"github.com/smazurov/gokucam/internal/framebus"
	"github.com/smazurov/gokucam/internal/logging"
	"github.com/smazurov/gokucam/internal/metrics"
)

// Condition is the verdict of one health check.
type Condition int

const (
	ConditionOK Condition = iota
	// ConditionTimeout means no publish within the frame timeout. It is
	// logged but does not trigger recovery on its own.
	ConditionTimeout
	// ConditionStalled means StallAfter consecutive timeouts.
	ConditionStalled
	// ConditionEmptyFrames means the producer keeps publishing, but only
	// empty payloads.
	ConditionEmptyFrames
)

func (c Condition) String() string {
	switch c {
	case ConditionOK:
		return "ok"
	case ConditionTimeout:
		return "timeout"
	case ConditionStalled:
		return "stalled"
	case ConditionEmptyFrames:
		return "empty_frames"
	default:
		return fmt.Sprintf("condition(%d)", int(c))
	}
}

// Actionable reports whether c should trigger recovery.
func (c Condition) Actionable() bool {
	return c == ConditionStalled || c == ConditionEmptyFrames
}

// Source exposes producer statistics. *framebus.Bus satisfies it.
type Source interface {
	Stats() framebus.Stats
}

// Signal is sent to the supervisor when a condition becomes actionable.
type Signal struct {
	Condition Condition
	At        time.Time
	Idle      time.Duration // time since the last publish
	Empty     uint64        // consecutive empty frames
}

// Monitor evaluates Source once per interval. It reads only producer
// metadata and never blocks the producer or the device lock.
type Monitor struct {
	src     Source
	logger  logging.Logger
	signals chan Signal

	mu        sync.Mutex
	th        config.Health
	armed     bool
	armedAt   time.Time
	emptyBase uint64
	timeouts  int
}

// New creates a disarmed monitor.
func New(src Source, th config.Health, logger logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.GetLogger("health")
	}
	return &Monitor{
		src:     src,
		th:      th,
		logger:  logger,
		signals: make(chan Signal, 1),
	}
}

// Signals delivers actionable conditions. At most one is buffered; while
// the supervisor is busy further signals are dropped.
func (m *Monitor) Signals() <-chan Signal {
	return m.signals
}

// Thresholds returns the thresholds in effect.
func (m *Monitor) Thresholds() config.Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.th
}

// SetThresholds swaps thresholds on a running monitor.
func (m *Monitor) SetThresholds(th config.Health) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.th = th
	m.timeouts = 0
	m.logger.Info("Health thresholds updated",
		"interval", th.Interval.D(), "frame_timeout", th.FrameTimeout.D(),
		"stall_after", th.StallAfter, "empty_after", th.EmptyAfter)
}

// Arm starts watching a freshly (re)started stream. Counters restart, the
// startup grace begins, and any signal left over from the previous stream
// is discarded.
func (m *Monitor) Arm() {
	m.arm(time.Now())
}

func (m *Monitor) arm(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = true
	m.armedAt = now
	m.timeouts = 0
	m.emptyBase = m.src.Stats().Empty
	select {
	case <-m.signals:
	default:
	}
}

// Disarm stops evaluation, e.g. while the device is deliberately released.
func (m *Monitor) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = false
	m.timeouts = 0
}

// Armed reports whether the monitor is evaluating.
func (m *Monitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Check evaluates one interval ending at now.
func (m *Monitor) Check(now time.Time) Condition {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.armed {
		return ConditionOK
	}
	graceEnd := m.armedAt.Add(m.th.StartupGrace.D())
	if now.Before(graceEnd) {
		return ConditionOK
	}

	st := m.src.Stats()

	// Only empties published since Arm count against this stream.
	empties := st.ConsecutiveEmpty
	if since := st.Empty - m.emptyBase; since < empties {
		empties = since
	}
	if m.th.EmptyAfter > 0 && empties >= uint64(m.th.EmptyAfter) {
		m.fire(Signal{Condition: ConditionEmptyFrames, At: now, Empty: empties}, st)
		return ConditionEmptyFrames
	}

	last := st.LastPublish
	if last.Before(graceEnd) {
		last = graceEnd
	}
	idle := now.Sub(last)
	if idle < m.th.FrameTimeout.D() {
		m.timeouts = 0
		return ConditionOK
	}

	m.timeouts++
	m.logger.Info("No frame within timeout", "idle", idle, "consecutive", m.timeouts, "stall_after", m.th.StallAfter)
	if m.th.StallAfter > 0 && m.timeouts >= m.th.StallAfter {
		m.fire(Signal{Condition: ConditionStalled, At: now, Idle: idle}, st)
		return ConditionStalled
	}
	return ConditionTimeout
}

func (m *Monitor) fire(sig Signal, st framebus.Stats) {
	m.timeouts = 0
	m.emptyBase = st.Empty
	metrics.IncStall(sig.Condition.String())
	m.logger.Warn("Stream stall detected", "condition", sig.Condition.String(), "idle", sig.Idle, "empty", sig.Empty)
	select {
	case m.signals <- sig:
	default:
		m.logger.Debug("Stall signal dropped, recovery already pending")
	}
}

// Run checks on every interval until ctx ends. Interval changes made with
// SetThresholds apply from the next tick.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Check(now)
			if next := m.interval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func (m *Monitor) interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.th.Interval.D(); d > 0 {
		return d
	}
	return time.Second
}
