package led

import (
	"sync"

	"github.com/smazurov/gokucam/internal/events"
	"github.com/smazurov/gokucam/internal/logging"
)

// Indicator follows supervisor state changes: solid while streaming,
// blinking while recovering, recording or degraded, off when idle.
type Indicator struct {
	controller  Controller
	bus         *events.Bus
	logger      logging.Logger
	mu          sync.Mutex
	current     Pattern
	unsubscribe func()
}

// NewIndicator creates an indicator for controller.
func NewIndicator(controller Controller, bus *events.Bus, logger logging.Logger) *Indicator {
	return &Indicator{controller: controller, bus: bus, logger: logger}
}

// Start subscribes to state changes and switches the LED off.
func (i *Indicator) Start() {
	i.apply(Off)
	i.unsubscribe = i.bus.Subscribe(func(e events.StateChangedEvent) {
		i.apply(PatternFor(e.To, e.Degraded))
	})
	i.logger.Info("Status LED started", "led", i.controller.Name())
}

// Stop unsubscribes and switches the LED off.
func (i *Indicator) Stop() {
	if i.unsubscribe != nil {
		i.unsubscribe()
		i.unsubscribe = nil
	}
	i.apply(Off)
}

// Current returns the last pattern written.
func (i *Indicator) Current() Pattern {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current
}

func (i *Indicator) apply(p Pattern) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if p == i.current {
		return
	}
	if err := i.controller.Set(p); err != nil {
		i.logger.Warn("Failed to set status LED", "pattern", p, "error", err)
		return
	}
	i.current = p
}

// PatternFor maps a supervisor state name to an LED pattern.
func PatternFor(state string, degraded bool) Pattern {
	if degraded {
		return Blink
	}
	switch state {
	case "streaming":
		return Solid
	case "recovering", "suspended":
		return Blink
	default:
		return Off
	}
}
