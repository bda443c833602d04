package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const historySize = 500

// Logger is satisfied by *slog.Logger. Packages that only emit log lines
// accept this instead of the concrete type so tests can pass a discard logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config selects the global level, output format and per-module overrides.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type registry struct {
	mu      sync.RWMutex
	cfg     Config
	ready   bool
	loggers map[string]*slog.Logger
	levels  map[string]*slog.LevelVar
	history *History
	root    slog.LevelVar
}

var reg = &registry{
	loggers: make(map[string]*slog.Logger),
	levels:  make(map[string]*slog.LevelVar),
}

// Initialize configures logging for the process. Module loggers handed out
// before Initialize are rebuilt so they pick up the journal and history sinks.
func Initialize(cfg Config) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.cfg = cfg
	reg.ready = true
	if reg.history == nil {
		reg.history = NewHistory(historySize)
	}

	reg.root.Set(levelOr(cfg.Level, slog.LevelInfo))
	for module, lv := range reg.levels {
		lv.Set(reg.moduleLevel(module))
		reg.loggers[module] = slog.New(reg.handler(lv)).With("module", module)
	}

	slog.SetDefault(slog.New(reg.handler(&reg.root)))
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	reg.mu.RLock()
	l, ok := reg.loggers[module]
	reg.mu.RUnlock()
	if ok {
		return l
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if l, ok = reg.loggers[module]; ok {
		return l
	}

	lv := &slog.LevelVar{}
	lv.Set(reg.moduleLevel(module))
	l = slog.New(reg.handler(lv)).With("module", module)
	reg.loggers[module] = l
	reg.levels[module] = lv
	return l
}

// SetModuleLevel changes a module's level at runtime. Unknown level strings
// are ignored.
func SetModuleLevel(module, level string) {
	lvl := parseLevel(level)
	if lvl == nil {
		return
	}
	GetLogger(module)
	reg.mu.RLock()
	reg.levels[module].Set(*lvl)
	reg.mu.RUnlock()
}

// GetHistory returns the in-memory log history, or nil before Initialize.
func GetHistory() *History {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.history
}

// moduleLevel must be called with reg.mu held.
func (r *registry) moduleLevel(module string) slog.Level {
	if !r.ready {
		return slog.LevelInfo
	}
	lvl := levelOr(r.cfg.Level, slog.LevelInfo)
	if s, ok := r.cfg.Modules[module]; ok {
		lvl = levelOr(s, lvl)
	}
	return lvl
}

// handler builds the sink chain: stdout, journald when reachable, and the
// history buffer. Must be called with reg.mu held.
func (r *registry) handler(level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	var stdout slog.Handler
	if r.cfg.Format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}
	if !r.ready {
		return stdout
	}

	var sinks []slog.Handler
	if stdoutAttached() {
		sinks = append(sinks, stdout)
	}
	if JournalAvailable() {
		sinks = append(sinks, NewJournalHandler(level))
	}
	if r.history != nil {
		sinks = append(sinks, r.history.Handler(level))
	}

	switch len(sinks) {
	case 0:
		return stdout
	case 1:
		return sinks[0]
	default:
		return NewMultiHandler(sinks...)
	}
}

// stdoutAttached is false when stdout points at /dev/null.
func stdoutAttached() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	m := fi.Mode()
	return m&os.ModeCharDevice != 0 || m&os.ModeNamedPipe != 0 || m&os.ModeSocket != 0 || m.IsRegular()
}

func levelOr(s string, fallback slog.Level) slog.Level {
	if l := parseLevel(s); l != nil {
		return *l
	}
	return fallback
}

func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
