package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is one log line kept in History.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Module  string         `json:"module"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// History keeps the most recent log entries in a fixed-size ring.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewHistory creates a ring holding at most size entries.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{entries: make([]Entry, size)}
}

// Add appends e, overwriting the oldest entry once the ring is full.
func (h *History) Add(e Entry) {
	h.mu.Lock()
	h.entries[h.next] = e
	h.next = (h.next + 1) % len(h.entries)
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()
}

// Entries returns the retained entries oldest first.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.full {
		return append([]Entry(nil), h.entries[:h.next]...)
	}
	out := make([]Entry, 0, len(h.entries))
	out = append(out, h.entries[h.next:]...)
	return append(out, h.entries[:h.next]...)
}

// Len returns the number of retained entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.entries)
	}
	return h.next
}

// Handler returns a slog.Handler that records into h.
func (h *History) Handler(level slog.Leveler) slog.Handler {
	return &historyHandler{history: h, level: level}
}

type historyHandler struct {
	history *History
	level   slog.Leveler
	attrs   []slog.Attr
	group   string
}

func (hh *historyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= hh.level.Level()
}

func (hh *historyHandler) Handle(_ context.Context, r slog.Record) error {
	e := Entry{
		Time:    r.Time,
		Level:   levelName(r.Level),
		Module:  "app",
		Message: r.Message,
	}
	add := func(a slog.Attr) bool {
		if a.Key == "module" && hh.group == "" {
			e.Module = a.Value.String()
			return true
		}
		if e.Attrs == nil {
			e.Attrs = make(map[string]any)
		}
		key := a.Key
		if hh.group != "" {
			key = hh.group + "." + key
		}
		v := a.Value.Resolve()
		switch v.Kind() {
		case slog.KindDuration:
			e.Attrs[key] = v.Duration().String()
		case slog.KindTime:
			e.Attrs[key] = v.Time().Format(time.RFC3339Nano)
		case slog.KindAny:
			if err, ok := v.Any().(error); ok {
				e.Attrs[key] = err.Error()
			} else {
				e.Attrs[key] = v.Any()
			}
		default:
			e.Attrs[key] = v.Any()
		}
		return true
	}
	for _, a := range hh.attrs {
		add(a)
	}
	r.Attrs(add)
	hh.history.Add(e)
	return nil
}

func (hh *historyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *hh
	next.attrs = append(append([]slog.Attr(nil), hh.attrs...), attrs...)
	return &next
}

func (hh *historyHandler) WithGroup(name string) slog.Handler {
	next := *hh
	if hh.group == "" {
		next.group = name
	} else {
		next.group = hh.group + "." + name
	}
	return &next
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
