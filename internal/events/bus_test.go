package events

import (
	"sync"
	"testing"
	"time"
)

const settle = 20 * time.Millisecond

// subscribeAll counts deliveries per event type.
func subscribeAll(t *testing.T, bus *Bus) *counter {
	t.Helper()
	c := &counter{got: make(map[string]int)}
	for _, unsub := range []func(){
		bus.Subscribe(func(StateChangedEvent) { c.add("state") }),
		bus.Subscribe(func(StallEvent) { c.add("stall") }),
		bus.Subscribe(func(RecoveryEvent) { c.add("recovery") }),
		bus.Subscribe(func(RecordingEvent) { c.add("recording") }),
		bus.Subscribe(func(SnapshotEvent) { c.add("snapshot") }),
	} {
		t.Cleanup(unsub)
	}
	return c
}

type counter struct {
	mu  sync.Mutex
	got map[string]int
}

func (c *counter) add(k string) {
	c.mu.Lock()
	c.got[k]++
	c.mu.Unlock()
}

func (c *counter) snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.got))
	for k, v := range c.got {
		out[k] = v
	}
	return out
}

func TestPublishRoutesByType(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{StateChangedEvent{From: "idle", To: "streaming"}, "state"},
		{StallEvent{Condition: "stalled"}, "stall"},
		{RecoveryEvent{Attempt: 1, Result: "success"}, "recovery"},
		{RecordingEvent{JobID: "j1", Status: "started"}, "recording"},
		{SnapshotEvent{Path: "a.jpg"}, "snapshot"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			bus := New()
			c := subscribeAll(t, bus)
			bus.Publish(tt.event)

			deadline := time.Now().Add(time.Second)
			for c.snapshot()[tt.want] == 0 {
				if time.Now().After(deadline) {
					t.Fatalf("%s subscriber never called", tt.want)
				}
				time.Sleep(time.Millisecond)
			}
			time.Sleep(settle)
			got := c.snapshot()
			if len(got) != 1 || got[tt.want] != 1 {
				t.Errorf("deliveries = %v, want only %s once", got, tt.want)
			}
		})
	}
}

func TestDeliveryOrder(t *testing.T) {
	bus := New()
	var (
		mu  sync.Mutex
		seq []string
	)
	done := make(chan struct{})
	unsub := bus.Subscribe(func(e StateChangedEvent) {
		mu.Lock()
		seq = append(seq, e.To)
		n := len(seq)
		mu.Unlock()
		if n == 4 {
			close(done)
		}
	})
	defer unsub()

	for _, to := range []string{"streaming", "recovering", "streaming", "suspended"} {
		bus.Publish(StateChangedEvent{To: to})
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	mu.Lock()
	defer mu.Unlock()
	want := []string{"streaming", "recovering", "streaming", "suspended"}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("order = %v, want %v", seq, want)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	received := make(chan RecoveryEvent, 2)
	unsub := bus.Subscribe(func(e RecoveryEvent) { received <- e })

	bus.Publish(RecoveryEvent{Attempt: 1})
	<-received
	unsub()

	bus.Publish(RecoveryEvent{Attempt: 2})
	select {
	case e := <-received:
		t.Fatalf("received %+v after unsubscribe", e)
	case <-time.After(settle):
	}
}

func TestConcurrentPublishers(t *testing.T) {
	const publishers, each = 8, 50
	bus := New()
	received := make(chan struct{}, publishers*each)
	unsub := bus.Subscribe(func(SnapshotEvent) { received <- struct{}{} })
	defer unsub()

	var wg sync.WaitGroup
	for range publishers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range each {
				bus.Publish(SnapshotEvent{Size: 1, Timestamp: Now()})
			}
		}()
	}
	wg.Wait()

	timeout := time.After(2 * time.Second)
	for range publishers * each {
		select {
		case <-received:
		case <-timeout:
			t.Fatal("not every event was delivered")
		}
	}
}

func TestNilBus(_ *testing.T) {
	var bus *Bus
	bus.Publish(StateChangedEvent{To: "idle"})
	bus.Subscribe(func(StateChangedEvent) {})()
	SubscribeToChannel[StallEvent](bus, make(chan any))()
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 4)
	unsub := SubscribeToChannel[RecordingEvent](bus, ch)
	defer unsub()

	bus.Publish(RecordingEvent{JobID: "abc", Status: "completed"})
	select {
	case v := <-ch:
		if got, ok := v.(RecordingEvent); !ok || got.JobID != "abc" {
			t.Fatalf("got %#v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

// A subscriber whose channel is full must not hold up the publisher.
func TestSubscribeToChannelDropsWhenFull(t *testing.T) {
	bus := New()
	ch := make(chan any)
	unsub := SubscribeToChannel[StallEvent](bus, ch)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for range 10 {
			bus.Publish(StallEvent{Condition: "stalled"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
}
