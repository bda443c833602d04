// Package engine assembles the frame bus, device session, health monitor,
// supervisor and recording coordinator into one camera instance.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/smazurov/gokucam/internal/camerr"
	"github.com/smazurov/gokucam/internal/config"
	"github.com/smazurov/gokucam/internal/device"
	"github.com/smazurov/gokucam/internal/events"
	"github.com/smazurov/gokucam/internal/ffmpeg"
	"github.com/smazurov/gokucam/internal/framebus"
	"github.com/smazurov/gokucam/internal/health"
	"github.com/smazurov/gokucam/internal/logging"
	"github.com/smazurov/gokucam/internal/recording"
	"github.com/smazurov/gokucam/internal/supervisor"
)

// Viewer is a live preview consumer.
type Viewer interface {
	Next(ctx context.Context) (framebus.Frame, error)
	Release()
}

// Option customises an Engine.
type Option func(*Engine)

// WithDriver replaces the driver chosen from configuration.
func WithDriver(d device.Driver) Option {
	return func(e *Engine) { e.driver = d }
}

// WithCapturer replaces the recording capturer chosen from configuration.
func WithCapturer(c recording.Capturer) Option {
	return func(e *Engine) { e.capturer = c }
}

// WithEvents publishes engine events on bus instead of a private one.
func WithEvents(bus *events.Bus) Option {
	return func(e *Engine) { e.events = bus }
}

// Engine is the single camera instance of the process.
type Engine struct {
	cfg      config.Camera
	driver   device.Driver
	capturer recording.Capturer
	events   *events.Bus
	logger   logging.Logger

	bus      *framebus.Bus
	session  *device.Session
	monitor  *health.Monitor
	sup      *supervisor.Supervisor
	recorder *recording.Coordinator

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates cfg and wires the components. Nothing touches the device
// until Start.
func New(cfg config.Camera, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, camerr.New(camerr.CodeInvalid, "configure", err)
	}
	e := &Engine{cfg: cfg, logger: logging.GetLogger("engine")}
	for _, opt := range opts {
		opt(e)
	}
	if e.driver == nil {
		e.driver = NewDriver(cfg)
	}
	if e.capturer == nil {
		e.capturer = NewCapturer(cfg)
	}
	if e.events == nil {
		e.events = events.New()
	}

	e.bus = framebus.New()
	e.session = device.NewSession(e.driver, e.bus, device.SessionOptions{
		ReleaseGrace: cfg.ReleaseGrace.D(),
		SnapshotWait: cfg.SnapshotWait.D(),
		Logger:       logging.GetLogger("device"),
	})
	e.monitor = health.New(e.bus, cfg.Health, logging.GetLogger("health"))
	e.sup = supervisor.New(e.session, e.bus, e.monitor, supervisor.Options{
		Device:        DeviceConfig(cfg),
		ViewerTimeout: cfg.ViewerTimeout.D(),
		IdleLinger:    cfg.IdleLinger.D(),
		Recovery:      cfg.Recovery,
		Events:        e.events,
		Logger:        logging.GetLogger("supervisor"),
	})
	e.recorder = recording.New(e.sup, e.capturer, cfg, e.events, logging.GetLogger("recording"))
	return e, nil
}

// DeviceConfig extracts the preview configuration.
func DeviceConfig(cfg config.Camera) device.Config {
	return device.Config{
		Device:  cfg.Device,
		Width:   cfg.Width,
		Height:  cfg.Height,
		FPS:     cfg.FPS,
		Quality: cfg.Quality,
	}
}

// NewDriver picks the capture stack for cfg.Driver.
func NewDriver(cfg config.Camera) device.Driver {
	return device.NewProcessDriver(Commands(cfg), 3*time.Second, logging.GetLogger("device"))
}

// Commands returns the preview command set for cfg.Driver.
func Commands(cfg config.Camera) device.Commands {
	switch cfg.Driver {
	case config.DriverV4L2:
		return device.FFmpegCommands{Bin: cfg.Binaries.FFmpeg}
	case config.DriverPattern:
		return device.FFmpegCommands{Bin: cfg.Binaries.FFmpeg, Pattern: true}
	default:
		return device.RpicamCommands{Vid: cfg.Binaries.RpicamVid, Jpeg: cfg.Binaries.RpicamJpeg}
	}
}

// NewCapturer picks the recording path for cfg.Driver. On the Pi camera
// rpicam-vid is tried first with ffmpeg on the V4L2 node as a fallback.
func NewCapturer(cfg config.Camera) recording.Capturer {
	log := logging.GetLogger("recording")
	ff := recording.NewFFmpegCapturer(cfg.Binaries.FFmpeg, ffmpeg.Source{
		Device:  cfg.Device,
		Pattern: cfg.Driver == config.DriverPattern,
	}, log)
	if cfg.Driver != config.DriverRpicam {
		return ff
	}
	return recording.NewChainCapturer(log, recording.NewRpicamCapturer(cfg.Binaries.RpicamVid, log), ff)
}

// Start opens the device and begins streaming. A device or encoder failure
// here is fatal: without a sensor there is nothing to degrade to.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.monitor.Run(runCtx)
	}()
	go func() {
		defer e.wg.Done()
		e.sup.Run(runCtx)
	}()

	if err := e.sup.Start(ctx); err != nil {
		e.stopLoops()
		return fmt.Errorf("start camera: %w", err)
	}
	e.logger.Info("Camera engine started", "driver", e.driver.Name(), "device", e.cfg.Device,
		"width", e.cfg.Width, "height", e.cfg.Height, "fps", e.cfg.FPS)
	return nil
}

// Stop halts recovery and releases the device.
func (e *Engine) Stop(ctx context.Context) error {
	e.stopLoops()
	return e.sup.Close(ctx)
}

func (e *Engine) stopLoops() {
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
		e.cancel = nil
	}
}

// Watch registers a preview viewer.
func (e *Engine) Watch(ctx context.Context) (Viewer, error) {
	v, err := e.sup.AcquireViewer(ctx)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Snapshot returns a fresh frame without writing it anywhere.
func (e *Engine) Snapshot(ctx context.Context) (framebus.Frame, error) {
	return e.sup.Snapshot(ctx)
}

// SaveSnapshot writes a fresh frame to the snapshot directory and returns
// its path.
func (e *Engine) SaveSnapshot(ctx context.Context) (string, error) {
	f, err := e.sup.Snapshot(ctx)
	if err != nil {
		e.events.Publish(events.SnapshotEvent{Error: err.Error(), Timestamp: events.Now()})
		return "", err
	}
	if err := os.MkdirAll(e.cfg.SnapshotDir, 0o755); err != nil {
		return "", err
	}
	path, err := writeNew(e.cfg.SnapshotDir, f.CapturedAt.Format(recording.TimestampLayout), ".jpg", f.Data)
	if err != nil {
		return "", err
	}
	e.logger.Info("Snapshot saved", "path", path, "bytes", len(f.Data))
	e.events.Publish(events.SnapshotEvent{Path: path, Size: len(f.Data), Timestamp: events.Now()})
	return path, nil
}

// writeNew writes data to dir/stem+ext, adding a _N suffix to the stem
// instead of replacing an existing file.
func writeNew(dir, stem, ext string, data []byte) (string, error) {
	for i := 0; ; i++ {
		name := stem + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		_, err = f.Write(data)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return path, err
	}
}

// Record runs an exclusive recording in mode for d. The returned job carries
// the mode actually used, which is the default one when mode is unknown, and
// the output file.
func (e *Engine) Record(ctx context.Context, mode string, d time.Duration) (recording.Job, error) {
	job := e.recorder.NewJob(mode, d)
	path, err := e.recorder.Record(ctx, job)
	job.Output = path
	return job, err
}

// Restart cycles the device.
func (e *Engine) Restart(ctx context.Context) error {
	return e.sup.Restart(ctx)
}

// Status reports supervisor state.
func (e *Engine) Status() supervisor.Status {
	return e.sup.Status()
}

// SetHealth applies new stall thresholds to the running monitor.
func (e *Engine) SetHealth(th config.Health) {
	e.monitor.SetThresholds(th)
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() config.Camera {
	return e.cfg
}
