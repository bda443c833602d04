package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Capture drivers.
const (
	DriverRpicam  = "rpicam"
	DriverV4L2    = "v4l2"
	DriverPattern = "pattern"
)

// Recording modes shipped by default.
const (
	ModeSocial   = "social"
	ModeArchival = "archival"
)

// Preset describes the output of an exclusive recording.
type Preset struct {
	Width    int `toml:"width" json:"width"`
	Height   int `toml:"height" json:"height"`
	FPS      int `toml:"fps" json:"fps"`
	Bitrate  int `toml:"bitrate" json:"bitrate"`
	Rotation int `toml:"rotation" json:"rotation"`
}

// Health holds stall-detection thresholds. These are safe to change while
// the stream is running.
type Health struct {
	Interval     Duration `toml:"interval"`
	FrameTimeout Duration `toml:"frame_timeout"`
	StallAfter   int      `toml:"stall_after"`
	EmptyAfter   int      `toml:"empty_after"`
	StartupGrace Duration `toml:"startup_grace"`
}

// Recovery bounds the automatic restart sequence.
type Recovery struct {
	MaxAttempts    int      `toml:"max_attempts"`
	InitialBackoff Duration `toml:"initial_backoff"`
	MaxBackoff     Duration `toml:"max_backoff"`
}

// Binaries names the external capture tools.
type Binaries struct {
	RpicamVid  string `toml:"rpicam_vid"`
	RpicamJpeg string `toml:"rpicam_jpeg"`
	FFmpeg     string `toml:"ffmpeg"`
}

// Camera is the immutable device configuration handed to the engine.
type Camera struct {
	Driver  string `toml:"driver"`
	Device  string `toml:"device"`
	Width   int    `toml:"width"`
	Height  int    `toml:"height"`
	FPS     int    `toml:"fps"`
	Quality int    `toml:"quality"`

	SnapshotDir string            `toml:"snapshot_dir"`
	DefaultMode string            `toml:"default_mode"`
	Presets     map[string]Preset `toml:"presets"`

	SettleDelay   Duration `toml:"settle_delay"`
	ReleaseGrace  Duration `toml:"release_grace"`
	SnapshotWait  Duration `toml:"snapshot_wait"`
	ViewerTimeout Duration `toml:"viewer_timeout"`
	IdleLinger    Duration `toml:"idle_linger"`

	Health   Health   `toml:"health"`
	Recovery Recovery `toml:"recovery"`
	Binaries Binaries `toml:"binaries"`
}

// DefaultCamera returns a configuration suitable for a Raspberry Pi camera
// module streaming 1280x720 MJPEG at 25 fps.
func DefaultCamera() Camera {
	return Camera{
		Driver:      DriverRpicam,
		Device:      "/dev/video0",
		Width:       1280,
		Height:      720,
		FPS:         25,
		Quality:     85,
		SnapshotDir: "snaps",
		DefaultMode: ModeArchival,
		Presets: map[string]Preset{
			ModeSocial:   {Width: 1080, Height: 1920, FPS: 30, Bitrate: 8_000_000, Rotation: 0},
			ModeArchival: {Width: 1920, Height: 1080, FPS: 30, Bitrate: 12_000_000, Rotation: 0},
		},
		SettleDelay:   Duration(400 * time.Millisecond),
		ReleaseGrace:  Duration(600 * time.Millisecond),
		SnapshotWait:  Duration(time.Second),
		ViewerTimeout: Duration(time.Second),
		IdleLinger:    Duration(10 * time.Second),
		Health: Health{
			Interval:     Duration(time.Second),
			FrameTimeout: Duration(2 * time.Second),
			StallAfter:   3,
			EmptyAfter:   3,
			StartupGrace: Duration(time.Second),
		},
		Recovery: Recovery{
			MaxAttempts:    2,
			InitialBackoff: Duration(500 * time.Millisecond),
			MaxBackoff:     Duration(5 * time.Second),
		},
		Binaries: Binaries{
			RpicamVid:  "rpicam-vid",
			RpicamJpeg: "rpicam-jpeg",
			FFmpeg:     "ffmpeg",
		},
	}
}

type cameraFile struct {
	Camera Camera `toml:"camera"`
}

// LoadCamera reads the [camera] table of path over DefaultCamera. A missing
// file yields the defaults.
func LoadCamera(path string) (Camera, error) {
	cfg := DefaultCamera()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}

	file := cameraFile{Camera: cfg}
	if err := toml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	// Presets from the file replace individual defaults, not the whole map.
	merged := DefaultCamera().Presets
	for name, p := range file.Camera.Presets {
		merged[name] = p
	}
	file.Camera.Presets = merged
	return file.Camera, file.Camera.Validate()
}

// LoadHealth reads only the [camera.health] thresholds; used for hot reload.
func LoadHealth(path string) (Health, error) {
	cfg, err := LoadCamera(path)
	if err != nil {
		return Health{}, err
	}
	return cfg.Health, nil
}

// Validate reports the first invalid setting.
func (c Camera) Validate() error {
	var problems []string
	if !slices.Contains([]string{DriverRpicam, DriverV4L2, DriverPattern}, c.Driver) {
		problems = append(problems, fmt.Sprintf("unknown driver %q", c.Driver))
	}
	if c.Width <= 0 || c.Height <= 0 {
		problems = append(problems, "width and height must be positive")
	}
	if c.FPS <= 0 {
		problems = append(problems, "fps must be positive")
	}
	if c.Quality < 1 || c.Quality > 100 {
		problems = append(problems, "quality must be within 1..100")
	}
	if err := c.Health.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Recovery.MaxAttempts < 1 {
		problems = append(problems, "recovery.max_attempts must be at least 1")
	}
	if _, ok := c.Presets[c.DefaultMode]; !ok {
		problems = append(problems, fmt.Sprintf("default_mode %q has no preset", c.DefaultMode))
	}
	for name, p := range c.Presets {
		if p.Width <= 0 || p.Height <= 0 || p.FPS <= 0 || p.Bitrate <= 0 {
			problems = append(problems, fmt.Sprintf("preset %q: width, height, fps and bitrate must be positive", name))
		}
		if p.Rotation%90 != 0 {
			problems = append(problems, fmt.Sprintf("preset %q: rotation must be a multiple of 90", name))
		}
	}
	if len(problems) > 0 {
		slices.Sort(problems)
		return errors.New("invalid camera config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Validate checks the thresholds are usable.
func (h Health) Validate() error {
	switch {
	case h.Interval <= 0:
		return errors.New("health.interval must be positive")
	case h.FrameTimeout <= 0:
		return errors.New("health.frame_timeout must be positive")
	case h.StallAfter < 1 || h.EmptyAfter < 1:
		return errors.New("health.stall_after and health.empty_after must be at least 1")
	}
	return nil
}

// Preset returns the preset for mode, falling back to DefaultMode for an
// unknown or empty mode. The resolved mode name is returned with it.
func (c Camera) Preset(mode string) (string, Preset) {
	if p, ok := c.Presets[mode]; ok {
		return mode, p
	}
	return c.DefaultMode, c.Presets[c.DefaultMode]
}
