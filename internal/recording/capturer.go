package recording

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/smazurov/gokucam/internal/ffmpeg"
	"github.com/smazurov/gokucam/internal/logging"
	"github.com/smazurov/gokucam/internal/process"
	"github.com/smazurov/gokucam/internal/rpicam"
)

// captureSlack is how long a capture may run past its nominal duration
// before it is stopped.
const captureSlack = 15 * time.Second

// Capturer performs the exclusive capture for a job. It owns the sensor for
// the duration of the call.
type Capturer interface {
	Name() string
	Capture(ctx context.Context, job Job) error
}

// CommandCapturer records by running an external command.
type CommandCapturer struct {
	name   string
	build  func(Job) []string
	parser process.LogParser
	logger logging.Logger
}

// NewCommandCapturer creates a capturer whose argv is produced by build.
func NewCommandCapturer(name string, build func(Job) []string, parser process.LogParser, logger logging.Logger) *CommandCapturer {
	if logger == nil {
		logger = logging.GetLogger("recording")
	}
	return &CommandCapturer{name: name, build: build, parser: parser, logger: logger}
}

// NewRpicamCapturer records H.264 with rpicam-vid.
func NewRpicamCapturer(bin string, logger logging.Logger) *CommandCapturer {
	return NewCommandCapturer("rpicam-vid", func(j Job) []string {
		return rpicam.RecordArgs(bin, rpicam.Clip{
			Width:    j.Preset.Width,
			Height:   j.Preset.Height,
			FPS:      j.Preset.FPS,
			Bitrate:  j.Preset.Bitrate,
			Rotation: j.Preset.Rotation,
			Duration: j.Duration,
			Output:   j.Output,
		})
	}, rpicam.ParseLogLevel, logger)
}

// NewFFmpegCapturer records H.264 MP4 with ffmpeg from src.
func NewFFmpegCapturer(bin string, src ffmpeg.Source, logger logging.Logger) *CommandCapturer {
	return NewCommandCapturer("ffmpeg", func(j Job) []string {
		return ffmpeg.RecordArgs(bin, src, ffmpeg.Clip{
			Width:    j.Preset.Width,
			Height:   j.Preset.Height,
			FPS:      j.Preset.FPS,
			Bitrate:  j.Preset.Bitrate,
			Rotation: j.Preset.Rotation,
			Duration: j.Duration,
			Output:   j.Output,
		})
	}, ffmpeg.ParseLogLevel, logger)
}

func (c *CommandCapturer) Name() string { return c.name }

// Capture runs the command and checks it left a non-empty file behind.
func (c *CommandCapturer) Capture(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, job.Duration+captureSlack)
	defer cancel()

	p, err := process.Command(c.name, c.build(job), c.logger)
	if err != nil {
		return err
	}
	p.SetLogParser(c.logger, c.parser)

	code, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s did not finish: %w", c.name, ctx.Err())
	}
	if code != 0 {
		return fmt.Errorf("%s exited with status %d", c.name, code)
	}
	info, err := os.Stat(job.Output)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s wrote an empty file", c.name)
	}
	return nil
}

// ChainCapturer tries each capturer in turn until one succeeds.
type ChainCapturer struct {
	capturers []Capturer
	logger    logging.Logger
}

// NewChainCapturer creates a fallback chain.
func NewChainCapturer(logger logging.Logger, capturers ...Capturer) *ChainCapturer {
	if logger == nil {
		logger = logging.GetLogger("recording")
	}
	return &ChainCapturer{capturers: capturers, logger: logger}
}

func (c *ChainCapturer) Name() string { return "chain" }

func (c *ChainCapturer) Capture(ctx context.Context, job Job) error {
	var errs []error
	for _, cp := range c.capturers {
		err := cp.Capture(ctx, job)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", cp.Name(), err))
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("Capture failed, trying fallback", "capturer", cp.Name(), "error", err)
		_ = os.Remove(job.Output)
	}
	if len(errs) == 0 {
		return errors.New("no capturer configured")
	}
	return errors.Join(errs...)
}
