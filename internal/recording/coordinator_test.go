package recording

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/gokucam/internal/camerr"
	"github.com/smazurov/gokucam/internal/config"
	"github.com/smazurov/gokucam/internal/events"
	"github.com/smazurov/gokucam/internal/ffmpeg"
)

// fakeOwner records whether the capture ran inside Exclusive.
type fakeOwner struct {
	mu       sync.Mutex
	inside   bool
	calls    int
	restored int
}

func (o *fakeOwner) Exclusive(ctx context.Context, fn func(context.Context) error) error {
	o.mu.Lock()
	o.inside = true
	o.calls++
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.inside = false
		o.restored++
		o.mu.Unlock()
	}()
	return fn(ctx)
}

func (o *fakeOwner) holding() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inside
}

type fakeCapturer struct {
	name  string
	owner *fakeOwner
	err   error
	jobs  []Job
	write bool
}

func (f *fakeCapturer) Name() string { return f.name }

func (f *fakeCapturer) Capture(_ context.Context, job Job) error {
	f.jobs = append(f.jobs, job)
	if f.owner != nil && !f.owner.holding() {
		return errors.New("capture outside exclusive section")
	}
	if f.write {
		if err := os.WriteFile(job.Output, []byte("mp4"), 0o644); err != nil {
			return err
		}
	}
	return f.err
}

func testCamera(t *testing.T) config.Camera {
	t.Helper()
	cfg := config.DefaultCamera()
	cfg.SnapshotDir = filepath.Join(t.TempDir(), "snaps")
	cfg.SettleDelay = config.Duration(time.Millisecond)
	return cfg
}

func TestNewJob(t *testing.T) {
	cfg := testCamera(t)
	c := New(&fakeOwner{}, &fakeCapturer{}, cfg, nil, nil)
	c.now = func() time.Time { return time.Date(2026, 1, 27, 10, 30, 0, 0, time.UTC) }

	tests := []struct {
		mode     string
		wantMode string
		wantName string
	}{
		{"social", "social", "20260127_103000_social.mp4"},
		{"archival", "archival", "20260127_103000_archival.mp4"},
		{"bogus", "archival", "20260127_103000_archival.mp4"},
		{"", "archival", "20260127_103000_archival.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			job := c.NewJob(tt.mode, 5*time.Second)
			if job.Mode != tt.wantMode {
				t.Errorf("mode = %q, want %q", job.Mode, tt.wantMode)
			}
			if job.Preset != cfg.Presets[tt.wantMode] {
				t.Errorf("preset = %+v", job.Preset)
			}
			if filepath.Base(job.Output) != tt.wantName {
				t.Errorf("output = %q, want %q", job.Output, tt.wantName)
			}
			if job.ID == "" {
				t.Error("job has no ID")
			}
		})
	}
}

func TestRecordSuccess(t *testing.T) {
	cfg := testCamera(t)
	owner := &fakeOwner{}
	capt := &fakeCapturer{name: "fake", owner: owner, write: true}
	bus := events.New()
	got := make(chan events.RecordingEvent, 4)
	unsub := bus.Subscribe(func(e events.RecordingEvent) { got <- e })
	defer unsub()

	c := New(owner, capt, cfg, bus, nil)
	path, err := c.Record(context.Background(), Job{Mode: "social", Duration: time.Second})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !strings.HasSuffix(path, "_social.mp4") || filepath.Dir(path) != cfg.SnapshotDir {
		t.Errorf("path = %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("output missing: %v", err)
	}
	if capt.jobs[0].Preset != cfg.Presets["social"] {
		t.Errorf("capturer got preset %+v", capt.jobs[0].Preset)
	}
	if owner.restored != 1 {
		t.Errorf("preview restored %d times, want 1", owner.restored)
	}

	for _, want := range []string{"started", "completed"} {
		select {
		case e := <-got:
			if e.Status != want {
				t.Errorf("event status = %q, want %q", e.Status, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("no %s event", want)
		}
	}
}

func TestRecordFailure(t *testing.T) {
	cfg := testCamera(t)
	owner := &fakeOwner{}
	capt := &fakeCapturer{name: "fake", owner: owner, err: errors.New("exit status 255")}

	c := New(owner, capt, cfg, nil, nil)
	path, err := c.Record(context.Background(), Job{Mode: "archival", Duration: time.Second})
	if !errors.Is(err, camerr.ErrRecordingFailed) {
		t.Fatalf("err = %v, want recording failed", err)
	}
	if path != "" {
		t.Errorf("path = %q on failure", path)
	}
	if owner.restored != 1 {
		t.Errorf("preview restored %d times, want 1", owner.restored)
	}
}

func TestRecordInvalidDuration(t *testing.T) {
	owner := &fakeOwner{}
	c := New(owner, &fakeCapturer{}, testCamera(t), nil, nil)
	_, err := c.Record(context.Background(), Job{Mode: "social"})
	if camerr.CodeOf(err) != camerr.CodeInvalid {
		t.Fatalf("err = %v, want invalid", err)
	}
	if owner.calls != 0 {
		t.Error("invalid job acquired the device")
	}
}

func TestRecordCancelledDuringSettle(t *testing.T) {
	cfg := testCamera(t)
	cfg.SettleDelay = config.Duration(time.Hour)
	owner := &fakeOwner{}
	capt := &fakeCapturer{name: "fake"}
	c := New(owner, capt, cfg, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Record(ctx, Job{Duration: time.Second})
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, camerr.ErrRecordingFailed) {
		t.Fatalf("err = %v", err)
	}
	if len(capt.jobs) != 0 {
		t.Error("capture ran after cancellation")
	}
	if owner.restored != 1 {
		t.Error("preview not restored")
	}
}

func TestChainCapturer(t *testing.T) {
	dir := t.TempDir()
	job := Job{Duration: time.Second, Output: filepath.Join(dir, "out.mp4")}

	first := &fakeCapturer{name: "primary", err: errors.New("no encoder"), write: true}
	second := &fakeCapturer{name: "fallback", write: true}
	chain := NewChainCapturer(nil, first, second)
	if err := chain.Capture(context.Background(), job); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(second.jobs) != 1 {
		t.Error("fallback not tried")
	}

	failing := NewChainCapturer(nil,
		&fakeCapturer{name: "a", err: errors.New("a broke")},
		&fakeCapturer{name: "b", err: errors.New("b broke")},
	)
	err := failing.Capture(context.Background(), job)
	if err == nil || !strings.Contains(err.Error(), "a broke") || !strings.Contains(err.Error(), "b broke") {
		t.Errorf("err = %v, want both failures", err)
	}

	if err := NewChainCapturer(nil).Capture(context.Background(), job); err == nil {
		t.Error("empty chain succeeded")
	}
}

func TestCommandCapturer(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()

	tests := []struct {
		name    string
		script  string
		wantErr bool
	}{
		{"writes file", `printf data > "$0"`, false},
		{"non-zero exit", `exit 2`, true},
		{"empty output", `: > "$0"`, true},
		{"no output", `true`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := Job{Duration: time.Second, Output: filepath.Join(dir, tt.name+".mp4")}
			c := NewCommandCapturer("sh", func(j Job) []string {
				return []string{"sh", "-c", tt.script, j.Output}
			}, nil, nil)
			err := c.Capture(context.Background(), job)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecorderArgs(t *testing.T) {
	job := Job{
		Duration: 2500 * time.Millisecond,
		Preset:   config.Preset{Width: 1080, Height: 1920, FPS: 30, Bitrate: 8_000_000, Rotation: 180},
		Output:   "out.mp4",
	}
	rp := NewRpicamCapturer("rpicam-vid", nil).build(job)
	if rp[0] != "rpicam-vid" || !contains(rp, "--rotation") || !contains(rp, "2500") {
		t.Errorf("rpicam args = %v", rp)
	}
	ff := NewFFmpegCapturer("ffmpeg", ffmpegPattern, nil).build(job)
	if ff[0] != "ffmpeg" || ff[len(ff)-1] != "out.mp4" {
		t.Errorf("ffmpeg args = %v", ff)
	}
}

func contains(args []string, s string) bool {
	for _, a := range args {
		if a == s {
			return true
		}
	}
	return false
}

var ffmpegPattern = ffmpeg.Source{Pattern: true}
