// Package recording hands the camera to an exclusive high-quality capture
// and gives it back to the preview afterwards.
package recording

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/gokucam/internal/camerr"
	"github.com/smazurov/gokucam/internal/config"
	"github.com/smazurov/gokucam/internal/events"
	"github.com/smazurov/gokucam/internal/logging"
	"github.com/smazurov/gokucam/internal/metrics"
)

// TimestampLayout names recordings and snapshots.
const TimestampLayout = "20060102_150405"

// Job is one recording request. It lives only for the duration of Record.
type Job struct {
	ID       string
	Mode     string
	Duration time.Duration
	Preset   config.Preset
	Output   string
}

// Exclusive grants sole ownership of the device. *supervisor.Supervisor
// satisfies it.
type Exclusive interface {
	Exclusive(ctx context.Context, fn func(ctx context.Context) error) error
}

// Coordinator runs recording jobs one at a time under the device lock.
type Coordinator struct {
	owner    Exclusive
	capturer Capturer
	cfg      config.Camera
	events   *events.Bus
	logger   logging.Logger
	now      func() time.Time
}

// New creates a coordinator. cfg supplies presets, the output directory and
// the settle delay.
func New(owner Exclusive, capturer Capturer, cfg config.Camera, bus *events.Bus, logger logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.GetLogger("recording")
	}
	return &Coordinator{
		owner:    owner,
		capturer: capturer,
		cfg:      cfg,
		events:   bus,
		logger:   logger,
		now:      time.Now,
	}
}

// NewJob builds a job for mode. Unknown modes use the default preset.
func (c *Coordinator) NewJob(mode string, d time.Duration) Job {
	mode, preset := c.cfg.Preset(mode)
	name := fmt.Sprintf("%s_%s.mp4", c.now().Format(TimestampLayout), mode)
	return Job{
		ID:       uuid.NewString(),
		Mode:     mode,
		Duration: d,
		Preset:   preset,
		Output:   filepath.Join(c.cfg.SnapshotDir, name),
	}
}

// Record runs job and returns the output path. Preview is restored whether
// or not the capture succeeds.
func (c *Coordinator) Record(ctx context.Context, job Job) (string, error) {
	if job.Duration <= 0 {
		return "", camerr.New(camerr.CodeInvalid, "record", fmt.Errorf("duration must be positive, got %s", job.Duration))
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Preset == (config.Preset{}) || job.Output == "" {
		def := c.NewJob(job.Mode, job.Duration)
		job.Mode = def.Mode
		if job.Preset == (config.Preset{}) {
			job.Preset = def.Preset
		}
		if job.Output == "" {
			job.Output = def.Output
		}
	}
	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return "", camerr.New(camerr.CodeRecordingFailed, "record", err)
	}

	c.logger.Info("Recording requested", "job", job.ID, "mode", job.Mode, "duration", job.Duration, "output", job.Output,
		"width", job.Preset.Width, "height", job.Preset.Height, "fps", job.Preset.FPS,
		"bitrate", job.Preset.Bitrate, "rotation", job.Preset.Rotation)
	c.publish(job, "started", nil)

	settle := c.cfg.SettleDelay.D()
	var held time.Duration
	err := c.owner.Exclusive(ctx, func(ctx context.Context) error {
		start := time.Now()
		defer func() { held = time.Since(start) }()

		if err := sleep(ctx, settle); err != nil {
			return err
		}
		c.logger.Info("Capture started", "job", job.ID, "capturer", c.capturer.Name())
		capErr := c.capturer.Capture(ctx, job)
		// Let the capture tool drop the node before preview reopens it.
		_ = sleep(ctx, settle)
		return capErr
	})

	metrics.ObserveRecording(job.Mode, err == nil, held)
	if err != nil {
		c.logger.Error("Recording failed", "job", job.ID, "mode", job.Mode, "error", err)
		c.publish(job, "failed", err)
		return "", camerr.New(camerr.CodeRecordingFailed, "record", err)
	}
	c.logger.Info("Recording finished", "job", job.ID, "output", job.Output, "held", held)
	c.publish(job, "completed", nil)
	return job.Output, nil
}

func (c *Coordinator) publish(job Job, status string, err error) {
	ev := events.RecordingEvent{
		JobID:     job.ID,
		Mode:      job.Mode,
		Status:    status,
		Path:      job.Output,
		Timestamp: events.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
		ev.Path = ""
	}
	c.events.Publish(ev)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
