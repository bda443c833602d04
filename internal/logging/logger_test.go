package logging

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func resetRegistry() {
	reg.mu.Lock()
	reg.loggers = make(map[string]*slog.Logger)
	reg.levels = make(map[string]*slog.LevelVar)
	reg.ready = false
	reg.history = nil
	reg.mu.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetRegistry()
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"supervisor": "debug",
			"api":        "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"supervisor", true, true, true},
		{"api", false, false, true},
		{"health", false, true, true},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			h := GetLogger(tt.module).Handler()
			if got := h.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := h.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := h.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestLoggerCreatedBeforeInitializePicksUpLevel(t *testing.T) {
	resetRegistry()
	early := GetLogger("device")
	if early.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be disabled before Initialize")
	}

	Initialize(Config{Level: "info", Modules: map[string]string{"device": "debug"}})

	if !GetLogger("device").Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be enabled after Initialize with module override")
	}
}

func TestSetModuleLevel(t *testing.T) {
	resetRegistry()
	Initialize(Config{Level: "info"})

	logger := GetLogger("recording")
	SetModuleLevel("recording", "error")
	if logger.Handler().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be disabled after raising level to error")
	}

	SetModuleLevel("recording", "bogus")
	if !logger.Handler().Enabled(context.Background(), slog.LevelError) {
		t.Error("unknown level must not change the current level")
	}
}

func TestHistoryCapturesModuleAndAttrs(t *testing.T) {
	resetRegistry()
	Initialize(Config{Level: "debug"})

	GetLogger("health").Warn("Frame timeout", "misses", 2, "error", errors.New("stale"))

	entries := GetHistory().Entries()
	if len(entries) == 0 {
		t.Fatal("expected history entry")
	}
	last := entries[len(entries)-1]
	if last.Module != "health" {
		t.Errorf("module = %q, want health", last.Module)
	}
	if last.Level != "warn" {
		t.Errorf("level = %q, want warn", last.Level)
	}
	if last.Attrs["misses"] != int64(2) {
		t.Errorf("misses = %v, want 2", last.Attrs["misses"])
	}
	if last.Attrs["error"] != "stale" {
		t.Errorf("error attr = %v, want stale", last.Attrs["error"])
	}
}

func TestHistoryWrapsOldestFirst(t *testing.T) {
	h := NewHistory(3)
	for i := range 5 {
		h.Add(Entry{Time: time.Unix(int64(i), 0), Message: string(rune('a' + i))})
	}

	got := h.Entries()
	if len(got) != 3 || h.Len() != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	want := []string{"c", "d", "e"}
	for i, e := range got {
		if e.Message != want[i] {
			t.Errorf("entries[%d] = %q, want %q", i, e.Message, want[i])
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want *slog.Level
	}{
		{"debug", ptr(slog.LevelDebug)},
		{"INFO", ptr(slog.LevelInfo)},
		{"warning", ptr(slog.LevelWarn)},
		{" error ", ptr(slog.LevelError)},
		{"verbose", nil},
	}
	for _, tt := range tests {
		got := parseLevel(tt.in)
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("parseLevel(%q) = %v, want nil", tt.in, *got)
		case tt.want != nil && (got == nil || *got != *tt.want):
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, *tt.want)
		}
	}
}

func ptr(l slog.Level) *slog.Level { return &l }
