// Package ffmpeg builds ffmpeg argument vectors for preview and recording and
// parses ffmpeg log output.
package ffmpeg

import (
	"fmt"
	"strconv"
)

// Binary is the default executable name.
const Binary = "ffmpeg"

// base returns the arguments shared by every invocation. level+ prefixes each
// log line with its level so ParseLogLevel can route it.
func base(bin string) []string {
	if bin == "" {
		bin = Binary
	}
	return []string{bin, "-hide_banner", "-nostdin", "-loglevel", "level+warning"}
}

func input(src Source) []string {
	size := fmt.Sprintf("%dx%d", src.Width, src.Height)
	rate := strconv.Itoa(src.FPS)
	if src.Pattern {
		return []string{"-re", "-f", "lavfi", "-i", "testsrc2=size=" + size + ":rate=" + rate}
	}
	return []string{"-f", "v4l2", "-video_size", size, "-framerate", rate, "-i", src.Device}
}

// MJPEGStreamArgs writes a continuous stream of JPEG images to stdout. A zero
// quality keeps the mjpeg encoder default.
func MJPEGStreamArgs(bin string, src Source, quality int) []string {
	args := base(bin)
	args = append(args, input(src)...)
	return append(args, jpegOutput(quality)...)
}

// SingleFrameArgs writes exactly one JPEG to stdout.
func SingleFrameArgs(bin string, src Source, quality int) []string {
	args := base(bin)
	args = append(args, input(src)...)
	args = append(args, "-frames:v", "1")
	return append(args, jpegOutput(quality)...)
}

func jpegOutput(quality int) []string {
	out := []string{"-f", "image2pipe", "-c:v", "mjpeg"}
	if quality > 0 {
		out = append(out, "-q:v", strconv.Itoa(QScale(quality)))
	}
	return append(out, "-")
}

// RecordArgs encodes clip.Duration of H.264 into clip.Output.
func RecordArgs(bin string, src Source, clip Clip) []string {
	src.Width, src.Height, src.FPS = clip.Width, clip.Height, clip.FPS
	args := base(bin)
	args = append(args, input(src)...)
	args = append(args, "-t", strconv.FormatFloat(clip.Duration.Seconds(), 'f', 3, 64))
	if vf := rotationFilter(clip.Rotation); vf != "" {
		args = append(args, "-vf", vf)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-b:v", strconv.Itoa(clip.Bitrate),
		"-movflags", "+faststart",
		"-y", clip.Output,
	)
	return args
}

// QScale maps a 1..100 JPEG quality to ffmpeg's 2..31 mjpeg scale (lower is better).
func QScale(quality int) int {
	quality = max(1, min(quality, 100))
	return 31 - (quality-1)*29/99
}

func rotationFilter(deg int) string {
	switch ((deg % 360) + 360) % 360 {
	case 90:
		return "transpose=1"
	case 180:
		return "hflip,vflip"
	case 270:
		return "transpose=2"
	default:
		return ""
	}
}
