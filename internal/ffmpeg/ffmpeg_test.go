package ffmpeg

import (
	"slices"
	"strings"
	"testing"
	"time"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		line      string
		wantLevel string
		wantMsg   string
	}{
		{"[error] Device busy", "error", "Device busy"},
		{"[warning] dropped frame", "warning", "dropped frame"},
		{"[video4linux2,v4l2 @ 0x55d] [error] ioctl(VIDIOC_STREAMON)", "error", "[video4linux2,v4l2 @ 0x55d] ioctl(VIDIOC_STREAMON)"},
		{"[mjpeg @ 0x1] something", "info", "[mjpeg @ 0x1] something"},
		{"frame=  100 fps= 25", "info", "frame=  100 fps= 25"},
		{"[]", "info", "[]"},
	}
	for _, tt := range tests {
		level, msg := ParseLogLevel(tt.line)
		if level != tt.wantLevel || msg != tt.wantMsg {
			t.Errorf("ParseLogLevel(%q) = (%q, %q), want (%q, %q)", tt.line, level, msg, tt.wantLevel, tt.wantMsg)
		}
	}
}

func TestMJPEGStreamArgsDevice(t *testing.T) {
	args := MJPEGStreamArgs("", Source{Device: "/dev/video0", Width: 1280, Height: 720, FPS: 25}, 85)
	got := strings.Join(args, " ")

	for _, want := range []string{
		"ffmpeg -hide_banner",
		"-f v4l2 -video_size 1280x720 -framerate 25 -i /dev/video0",
		"-f image2pipe -c:v mjpeg",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("args %q missing %q", got, want)
		}
	}
	if args[len(args)-1] != "-" {
		t.Errorf("last arg = %q, want stdout", args[len(args)-1])
	}
}

func TestSingleFrameArgsPattern(t *testing.T) {
	args := SingleFrameArgs("/usr/bin/ffmpeg", Source{Pattern: true, Width: 320, Height: 240, FPS: 5}, 50)
	if args[0] != "/usr/bin/ffmpeg" {
		t.Errorf("binary = %q", args[0])
	}
	if !slices.Contains(args, "testsrc2=size=320x240:rate=5") {
		t.Errorf("args %v missing lavfi source", args)
	}
	i := slices.Index(args, "-frames:v")
	if i < 0 || args[i+1] != "1" {
		t.Errorf("args %v missing -frames:v 1", args)
	}
}

func TestRecordArgs(t *testing.T) {
	clip := Clip{Width: 1920, Height: 1080, FPS: 30, Bitrate: 12000000, Rotation: 180, Duration: 1500 * time.Millisecond, Output: "/snaps/x.mp4"}
	args := RecordArgs("", Source{Device: "/dev/video0", Width: 640, Height: 480, FPS: 10}, clip)
	got := strings.Join(args, " ")

	for _, want := range []string{
		"-video_size 1920x1080 -framerate 30",
		"-t 1.500",
		"-vf hflip,vflip",
		"-b:v 12000000",
		"-y /snaps/x.mp4",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("args %q missing %q", got, want)
		}
	}
}

func TestQScale(t *testing.T) {
	tests := map[int]int{1: 31, 100: 2, 0: 31, 150: 2, 85: 7}
	for q, want := range tests {
		if got := QScale(q); got != want {
			t.Errorf("QScale(%d) = %d, want %d", q, got, want)
		}
	}
}

func TestRotationFilter(t *testing.T) {
	tests := map[int]string{0: "", 90: "transpose=1", 180: "hflip,vflip", 270: "transpose=2", -90: "transpose=2", 360: ""}
	for deg, want := range tests {
		if got := rotationFilter(deg); got != want {
			t.Errorf("rotationFilter(%d) = %q, want %q", deg, got, want)
		}
	}
}
