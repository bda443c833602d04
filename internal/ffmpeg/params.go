package ffmpeg

import "time"

// Source selects what ffmpeg reads from.
type Source struct {
	Device  string // V4L2 node, e.g. /dev/video0
	Pattern bool   // lavfi testsrc2 instead of a device
	Width   int
	Height  int
	FPS     int
}

// Clip describes an H.264 MP4 recording.
type Clip struct {
	Width    int
	Height   int
	FPS      int
	Bitrate  int
	Rotation int
	Duration time.Duration
	Output   string
}
