package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultCameraIsValid(t *testing.T) {
	if err := DefaultCamera().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadCameraMissingFile(t *testing.T) {
	cfg, err := LoadCamera(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("LoadCamera: %v", err)
	}
	if diff := cmp.Diff(DefaultCamera(), cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadCameraOverridesAndMergesPresets(t *testing.T) {
	path := writeFile(t, `
[camera]
driver = "pattern"
width = 640
height = 480
settle_delay = "150ms"

[camera.health]
interval = "200ms"
frame_timeout = "400ms"
stall_after = 5
empty_after = 2
startup_grace = "0s"

[camera.presets.square]
width = 1080
height = 1080
fps = 30
bitrate = 6000000
rotation = 180
`)

	cfg, err := LoadCamera(path)
	if err != nil {
		t.Fatalf("LoadCamera: %v", err)
	}
	if cfg.Driver != DriverPattern || cfg.Width != 640 || cfg.Height != 480 {
		t.Errorf("got driver=%s %dx%d, want pattern 640x480", cfg.Driver, cfg.Width, cfg.Height)
	}
	if cfg.FPS != 25 {
		t.Errorf("FPS = %d, want default 25", cfg.FPS)
	}
	if cfg.SettleDelay.D() != 150*time.Millisecond {
		t.Errorf("SettleDelay = %v, want 150ms", cfg.SettleDelay.D())
	}
	wantHealth := Health{
		Interval:     Duration(200 * time.Millisecond),
		FrameTimeout: Duration(400 * time.Millisecond),
		StallAfter:   5,
		EmptyAfter:   2,
	}
	if diff := cmp.Diff(wantHealth, cfg.Health); diff != "" {
		t.Errorf("health mismatch (-want +got):\n%s", diff)
	}
	for _, mode := range []string{ModeSocial, ModeArchival, "square"} {
		if _, ok := cfg.Presets[mode]; !ok {
			t.Errorf("preset %q missing", mode)
		}
	}
	if cfg.Presets["square"].Rotation != 180 {
		t.Errorf("square rotation = %d, want 180", cfg.Presets["square"].Rotation)
	}
}

func TestLoadCameraRejectsInvalid(t *testing.T) {
	path := writeFile(t, `
[camera]
driver = "gopro"
quality = 0

[camera.health]
stall_after = 0
`)
	_, err := LoadCamera(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown driver", "quality", "stall_after"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestPresetFallsBackToDefaultMode(t *testing.T) {
	cfg := DefaultCamera()

	mode, p := cfg.Preset(ModeSocial)
	if mode != ModeSocial || p != cfg.Presets[ModeSocial] {
		t.Errorf("Preset(social) = %s %+v", mode, p)
	}

	mode, p = cfg.Preset("cinematic")
	if mode != ModeArchival || p != cfg.Presets[ModeArchival] {
		t.Errorf("Preset(cinematic) = %s %+v, want archival fallback", mode, p)
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatal(err)
	}
	if d.D() != 90*time.Second {
		t.Errorf("D() = %v, want 1m30s", d.D())
	}
	b, _ := d.MarshalText()
	if string(b) != "1m30s" {
		t.Errorf("MarshalText = %q", b)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected error for invalid duration")
	}
}
