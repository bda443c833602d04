package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/smazurov/gokucam/internal/config"
	"github.com/smazurov/gokucam/internal/framebus"
	"github.com/smazurov/gokucam/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	mu sync.Mutex
	st framebus.Stats
}

func (f *fakeSource) Stats() framebus.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func (f *fakeSource) publish(at time.Time, empty bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.Published++
	f.st.LastSeq++
	f.st.LastPublish = at
	if empty {
		f.st.Empty++
		f.st.ConsecutiveEmpty++
	} else {
		f.st.ConsecutiveEmpty = 0
	}
}

var testThresholds = config.Health{
	Interval:     config.Duration(time.Second),
	FrameTimeout: config.Duration(time.Second),
	StallAfter:   3,
	EmptyAfter:   3,
	StartupGrace: config.Duration(time.Second),
}

func newArmed(t *testing.T, src *fakeSource, at time.Time) *Monitor {
	t.Helper()
	m := New(src, testThresholds, logging.GetLogger("test"))
	m.arm(at)
	return m
}

func pending(m *Monitor) (Signal, bool) {
	select {
	case s := <-m.Signals():
		return s, true
	default:
		return Signal{}, false
	}
}

func TestCheckStallAfterConsecutiveTimeouts(t *testing.T) {
	src := &fakeSource{}
	t0 := time.Unix(1000, 0)
	m := newArmed(t, src, t0)
	src.publish(t0.Add(time.Second), false)

	want := []Condition{
		ConditionOK,      // t0+2s, just under the frame timeout
		ConditionTimeout, // t0+3s
		ConditionTimeout, // t0+4s
		ConditionStalled, // t0+5s
		ConditionTimeout, // t0+6s, counters reset after signalling
		ConditionTimeout, // t0+7s
	}
	for i, w := range want {
		now := t0.Add(time.Duration(i+2)*time.Second - time.Millisecond)
		if got := m.Check(now); got != w {
			t.Fatalf("check %d: got %v, want %v", i, got, w)
		}
	}

	sig, ok := pending(m)
	if !ok || sig.Condition != ConditionStalled {
		t.Fatalf("signal = %+v, %v; want one stall", sig, ok)
	}
	if _, ok := pending(m); ok {
		t.Error("more than one signal queued")
	}
}

func TestCheckFramesResetTimeouts(t *testing.T) {
	src := &fakeSource{}
	t0 := time.Unix(1000, 0)
	m := newArmed(t, src, t0)

	now := t0.Add(3 * time.Second)
	if got := m.Check(now); got != ConditionTimeout {
		t.Fatalf("got %v, want timeout", got)
	}
	if got := m.Check(now.Add(time.Second)); got != ConditionTimeout {
		t.Fatalf("got %v, want timeout", got)
	}
	src.publish(now.Add(1500*time.Millisecond), false)
	if got := m.Check(now.Add(2 * time.Second)); got != ConditionOK {
		t.Fatalf("got %v after a frame, want ok", got)
	}
	if m.timeouts != 0 {
		t.Errorf("timeouts = %d, want reset", m.timeouts)
	}
}

func TestCheckEmptyFrames(t *testing.T) {
	src := &fakeSource{}
	t0 := time.Unix(1000, 0)

	// Empties left over from a previous stream do not count.
	src.publish(t0.Add(-time.Second), true)
	src.publish(t0.Add(-time.Second), true)
	m := newArmed(t, src, t0)

	now := t0.Add(2 * time.Second)
	src.publish(now, true)
	src.publish(now, true)
	if got := m.Check(now); got != ConditionOK {
		t.Fatalf("got %v with 2 fresh empties, want ok", got)
	}
	src.publish(now, true)
	if got := m.Check(now); got != ConditionEmptyFrames {
		t.Fatalf("got %v, want empty frames", got)
	}
	if sig, ok := pending(m); !ok || sig.Empty != 3 {
		t.Errorf("signal = %+v, %v", sig, ok)
	}
	if got := m.Check(now); got != ConditionOK {
		t.Errorf("got %v right after signalling, want ok", got)
	}
}

func TestCheckGraceAndDisarm(t *testing.T) {
	src := &fakeSource{}
	t0 := time.Unix(1000, 0)
	m := New(src, testThresholds, nil)

	if got := m.Check(t0.Add(time.Hour)); got != ConditionOK {
		t.Fatalf("disarmed monitor reported %v", got)
	}

	m.arm(t0)
	if got := m.Check(t0.Add(900 * time.Millisecond)); got != ConditionOK {
		t.Errorf("got %v during startup grace", got)
	}
	// Idle time counts from the end of the grace period.
	if got := m.Check(t0.Add(1900 * time.Millisecond)); got != ConditionOK {
		t.Errorf("got %v just after grace", got)
	}

	m.Disarm()
	if m.Armed() {
		t.Fatal("still armed")
	}
	if got := m.Check(t0.Add(time.Hour)); got != ConditionOK {
		t.Errorf("got %v after disarm", got)
	}
}

func TestArmDiscardsStaleSignal(t *testing.T) {
	src := &fakeSource{}
	t0 := time.Unix(1000, 0)
	m := newArmed(t, src, t0)
	for i := range 3 {
		m.Check(t0.Add(time.Duration(i+3) * time.Second))
	}
	if len(m.signals) != 1 {
		t.Fatalf("expected a pending signal")
	}
	m.arm(t0.Add(10 * time.Second))
	if _, ok := pending(m); ok {
		t.Error("re-arming kept the previous stream's signal")
	}
}

func TestSetThresholds(t *testing.T) {
	src := &fakeSource{}
	t0 := time.Unix(1000, 0)
	m := newArmed(t, src, t0)

	th := testThresholds
	th.StallAfter = 1
	m.SetThresholds(th)
	if got := m.Check(t0.Add(3 * time.Second)); got != ConditionStalled {
		t.Errorf("got %v, want stall with threshold 1", got)
	}
	if m.Thresholds().StallAfter != 1 {
		t.Error("Thresholds not updated")
	}
}

func TestRunSignalsStall(t *testing.T) {
	src := &fakeSource{}
	th := config.Health{
		Interval:     config.Duration(10 * time.Millisecond),
		FrameTimeout: config.Duration(10 * time.Millisecond),
		StallAfter:   2,
		EmptyAfter:   2,
	}
	m := New(src, th, nil)
	m.Arm()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case sig := <-m.Signals():
		if sig.Condition != ConditionStalled {
			t.Errorf("condition = %v, want stalled", sig.Condition)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no stall signal from Run")
	}
}
