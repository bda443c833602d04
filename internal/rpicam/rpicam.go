// Package rpicam builds command lines for the Raspberry Pi camera apps
// (rpicam-vid, rpicam-jpeg; libcamera-* on older releases).
package rpicam

import (
	"strconv"
	"strings"
	"time"
)

// Default executable names. Older OS images ship the libcamera-* names.
const (
	Vid        = "rpicam-vid"
	Jpeg       = "rpicam-jpeg"
	LegacyVid  = "libcamera-vid"
	LegacyJpeg = "libcamera-jpeg"
)

// Frame is the preview geometry.
type Frame struct {
	Width   int
	Height  int
	FPS     int
	Quality int
}

// Clip is an exclusive H.264 recording.
type Clip struct {
	Width    int
	Height   int
	FPS      int
	Bitrate  int
	Rotation int
	Duration time.Duration
	Output   string
}

// MJPEGArgs streams MJPEG to stdout until killed. A zero Quality leaves the
// encoder at its built-in default.
func MJPEGArgs(bin string, f Frame) []string {
	args := []string{or(bin, Vid), "--nopreview", "-t", "0", "--codec", "mjpeg"}
	if f.Quality > 0 {
		args = append(args, "--quality", strconv.Itoa(f.Quality))
	}
	return append(args,
		"--width", strconv.Itoa(f.Width),
		"--height", strconv.Itoa(f.Height),
		"--framerate", strconv.Itoa(f.FPS),
		"-o", "-",
	)
}

// JPEGArgs captures one still to stdout, without the EXIF thumbnail.
func JPEGArgs(bin string, f Frame) []string {
	args := []string{
		or(bin, Jpeg), "--nopreview",
		"-t", "1",
		"--thumb", "none",
		"--width", strconv.Itoa(f.Width),
		"--height", strconv.Itoa(f.Height),
	}
	if f.Quality > 0 {
		args = append(args, "--quality", strconv.Itoa(f.Quality))
	}
	return append(args, "-o", "-")
}

// RecordArgs records clip.Duration of H.264 to clip.Output. rpicam-vid only
// supports rotations of 0 and 180.
func RecordArgs(bin string, c Clip) []string {
	args := []string{or(bin, Vid), "--nopreview"}
	if c.Rotation != 0 {
		args = append(args, "--rotation", strconv.Itoa(c.Rotation))
	}
	return append(args,
		"--width", strconv.Itoa(c.Width),
		"--height", strconv.Itoa(c.Height),
		"--framerate", strconv.Itoa(c.FPS),
		"--bitrate", strconv.Itoa(c.Bitrate),
		"-t", strconv.FormatInt(c.Duration.Milliseconds(), 10),
		"-o", c.Output,
	)
}

// ParseLogLevel maps rpicam/libcamera stderr lines such as
// "[0:00:01.234] [1234]  WARN RPiSdn ..." or "ERROR: *** no cameras ***" to a level.
func ParseLogLevel(line string) (level, msg string) {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "ERROR"):
		return "error", trimmed
	case strings.Contains(trimmed, " ERROR "):
		return "error", trimmed
	case strings.Contains(trimmed, " WARN "):
		return "warning", trimmed
	case strings.Contains(trimmed, " DEBUG "):
		return "debug", trimmed
	case strings.HasPrefix(trimmed, "#"):
		// per-frame progress lines
		return "debug", trimmed
	}
	return "info", trimmed
}

func or(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
