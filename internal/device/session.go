package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smazurov/gokucam/internal/camerr"
	"github.com/smazurov/gokucam/internal/framebus"
	"github.com/smazurov/gokucam/internal/logging"
	"github.com/smazurov/gokucam/internal/metrics"
)

// SessionOptions tunes a Session. Zero values take the defaults noted.
type SessionOptions struct {
	Encoders     []Encoder     // default DefaultEncoders(cfg.Quality) at start time
	ReleaseGrace time.Duration // sleep after Close so the driver lets go of the node
	SnapshotWait time.Duration // default 1s
	Logger       logging.Logger
}

// Session drives one Handle through Closed -> Configured -> Streaming and
// back. Transitions are serialised by an internal mutex, so no caller ever
// observes a half-configured device.
type Session struct {
	driver       Driver
	bus          *framebus.Bus
	encoders     []Encoder
	releaseGrace time.Duration
	snapshotWait time.Duration
	logger       logging.Logger

	mu          sync.Mutex
	state       State
	cfg         Config
	handle      Handle
	encoder     Encoder
	streamStart time.Time
	// streaming is cancelled by StopStreaming so a late frame from a
	// stopping encoder is dropped rather than published.
	streaming context.CancelFunc
	streamCtx context.Context
}

// NewSession creates a closed session publishing into bus.
func NewSession(driver Driver, bus *framebus.Bus, opts SessionOptions) *Session {
	if opts.SnapshotWait <= 0 {
		opts.SnapshotWait = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("device")
	}
	return &Session{
		driver:       driver,
		bus:          bus,
		encoders:     opts.Encoders,
		releaseGrace: opts.ReleaseGrace,
		snapshotWait: opts.SnapshotWait,
		logger:       opts.Logger,
	}
}

// Open acquires and configures the hardware. Opening with the config already
// in use is a no-op; a different config reopens the device.
func (s *Session) Open(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateClosed {
		if s.cfg == cfg {
			return nil
		}
		s.logger.Info("Reconfiguring device", "from", s.cfg, "to", cfg)
		s.closeLocked(ctx)
	}

	h, err := s.driver.Open(ctx, cfg)
	metrics.IncDeviceOpen(err == nil)
	if err != nil {
		s.logger.Warn("Device open failed", "driver", s.driver.Name(), "device", cfg.Device, "error", err)
		return camerr.New(camerr.CodeDeviceUnavailable, "open", err)
	}

	s.handle = h
	s.cfg = cfg
	s.state = StateConfigured
	s.logger.Info("Device opened", "driver", s.driver.Name(), "device", cfg.Device,
		"width", cfg.Width, "height", cfg.Height, "fps", cfg.FPS)
	return nil
}

// StartStreaming tries each encoder in order until one starts. It is a
// no-op while already streaming.
func (s *Session) StartStreaming(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateStreaming:
		return nil
	case StateClosed:
		return camerr.New(camerr.CodeDeviceUnavailable, "start streaming", errors.New("device not open"))
	}

	encoders := s.encoders
	if len(encoders) == 0 {
		encoders = DefaultEncoders(s.cfg.Quality)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	sink := func(frame []byte) {
		if streamCtx.Err() != nil {
			return
		}
		s.bus.Publish(frame)
		metrics.IncFrame(len(frame) == 0)
	}

	var errs []error
	for _, enc := range encoders {
		err := s.handle.Start(ctx, enc, sink)
		if err == nil {
			s.encoder = enc
			s.state = StateStreaming
			s.streamStart = time.Now()
			s.streaming = cancel
			s.streamCtx = streamCtx
			metrics.SetEncoder(enc.Name)
			s.logger.Info("Streaming started", "encoder", enc.Name, "kind", enc.Kind.String())
			return nil
		}
		s.logger.Warn("Encoder unavailable, trying next", "encoder", enc.Name, "error", err)
		errs = append(errs, err)
		if stopErr := s.handle.Stop(); stopErr != nil {
			s.logger.Debug("Stop after failed start", "encoder", enc.Name, "error", stopErr)
		}
		if ctx.Err() != nil {
			break
		}
	}
	cancel()
	return camerr.New(camerr.CodeEncoderUnsupported, "start streaming", errors.Join(errs...))
}

// StopStreaming halts encoding. Errors from the hardware are logged and
// swallowed; afterwards the session is Configured (or still Closed).
func (s *Session) StopStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if s.state != StateStreaming {
		return
	}
	s.streaming()
	if err := s.handle.Stop(); err != nil {
		s.logger.Warn("Encoder stop reported error", "encoder", s.encoder.Name, "error", err)
	}
	s.state = StateConfigured
	metrics.SetEncoder("")
	s.logger.Debug("Streaming stopped", "encoder", s.encoder.Name)
}

// Close stops streaming, releases the hardware and then waits the release
// grace period so a following Open (ours or an external recorder's) finds
// the node free.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(ctx)
}

func (s *Session) closeLocked(ctx context.Context) {
	if s.state == StateClosed {
		return
	}
	s.stopLocked()
	if err := s.handle.Close(); err != nil {
		s.logger.Warn("Device close reported error", "error", err)
	}
	s.handle = nil
	s.state = StateClosed
	s.logger.Info("Device closed", "release_grace", s.releaseGrace)

	if s.releaseGrace > 0 {
		t := time.NewTimer(s.releaseGrace)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
}

// Snapshot returns the latest frame produced since streaming (re)started,
// waiting up to the snapshot window for one to arrive.
func (s *Session) Snapshot(ctx context.Context) (framebus.Frame, error) {
	s.mu.Lock()
	state, since, streamCtx := s.state, s.streamStart, s.streamCtx
	s.mu.Unlock()

	if state != StateStreaming {
		return framebus.Frame{}, camerr.New(camerr.CodeNoFrame, "snapshot", errors.New("not streaming"))
	}
	if f, ok := s.bus.Latest(); ok && !f.Empty() && !f.CapturedAt.Before(since) {
		return f, nil
	}

	// Stop waiting if the stream is torn down underneath us.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(streamCtx, cancel)
	defer stop()

	sub := s.bus.Subscribe()
	defer sub.Close()
	f, err := sub.Next(waitCtx, s.snapshotWait)
	if err != nil {
		if ctx.Err() != nil {
			return framebus.Frame{}, ctx.Err()
		}
		return framebus.Frame{}, camerr.New(camerr.CodeNoFrame, "snapshot", err)
	}
	return f, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Encoder returns the encoder in use; zero when not streaming.
func (s *Session) Encoder() Encoder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming {
		return Encoder{}
	}
	return s.encoder
}

// Config returns the active configuration; zero when closed.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return Config{}
	}
	return s.cfg
}
