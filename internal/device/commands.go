package device

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/smazurov/gokucam/internal/ffmpeg"
	"github.com/smazurov/gokucam/internal/process"
	"github.com/smazurov/gokucam/internal/rpicam"
)

// Commands produces the argv for each encoder kind on one capture stack.
type Commands interface {
	Name() string
	// Stream returns a command writing an endless MJPEG stream to stdout.
	Stream(cfg Config, enc Encoder) []string
	// Still returns a command writing one JPEG to stdout.
	Still(cfg Config, enc Encoder) []string
	// Check reports why cfg cannot be captured on this host, e.g. a
	// missing executable or device node.
	Check(cfg Config) error
	// LogParser classifies stderr lines.
	LogParser() process.LogParser
}

// RpicamCommands drives a Raspberry Pi camera through rpicam-vid/rpicam-jpeg.
type RpicamCommands struct {
	Vid  string
	Jpeg string
}

func (c RpicamCommands) Name() string { return "rpicam" }

func (c RpicamCommands) Stream(cfg Config, enc Encoder) []string {
	return rpicam.MJPEGArgs(c.Vid, rpicam.Frame{Width: cfg.Width, Height: cfg.Height, FPS: cfg.FPS, Quality: enc.Quality})
}

func (c RpicamCommands) Still(cfg Config, enc Encoder) []string {
	return rpicam.JPEGArgs(c.Jpeg, rpicam.Frame{Width: cfg.Width, Height: cfg.Height, Quality: enc.Quality})
}

func (c RpicamCommands) Check(Config) error {
	return lookPath(or(c.Vid, rpicam.Vid), or(c.Jpeg, rpicam.Jpeg))
}

func (c RpicamCommands) LogParser() process.LogParser { return rpicam.ParseLogLevel }

// FFmpegCommands captures from a V4L2 node, or from the lavfi test pattern
// when Pattern is set.
type FFmpegCommands struct {
	Bin     string
	Pattern bool
}

func (c FFmpegCommands) Name() string {
	if c.Pattern {
		return "pattern"
	}
	return "v4l2"
}

func (c FFmpegCommands) source(cfg Config) ffmpeg.Source {
	return ffmpeg.Source{Device: cfg.Device, Pattern: c.Pattern, Width: cfg.Width, Height: cfg.Height, FPS: cfg.FPS}
}

func (c FFmpegCommands) Stream(cfg Config, enc Encoder) []string {
	return ffmpeg.MJPEGStreamArgs(c.Bin, c.source(cfg), enc.Quality)
}

func (c FFmpegCommands) Still(cfg Config, enc Encoder) []string {
	return ffmpeg.SingleFrameArgs(c.Bin, c.source(cfg), enc.Quality)
}

func (c FFmpegCommands) Check(cfg Config) error {
	if err := lookPath(or(c.Bin, ffmpeg.Binary)); err != nil {
		return err
	}
	if c.Pattern {
		return nil
	}
	if _, err := os.Stat(cfg.Device); err != nil {
		return fmt.Errorf("device node: %w", err)
	}
	return nil
}

func (c FFmpegCommands) LogParser() process.LogParser { return ffmpeg.ParseLogLevel }

func lookPath(bins ...string) error {
	for _, b := range bins {
		// Configured binaries may carry a wrapper, e.g. "nice -n 5 ffmpeg".
		if f := strings.Fields(b); len(f) > 0 {
			b = f[0]
		}
		if _, err := exec.LookPath(b); err != nil {
			return err
		}
	}
	return nil
}

func or(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
