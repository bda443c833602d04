package device

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/gokucam/internal/logging"
	"github.com/smazurov/gokucam/internal/process"
)

// shellCommands emits synthetic JPEGs from sh so the driver can be tested
// without a camera.
type shellCommands struct {
	stream string
	still  string
}

const oneJPEG = `printf '\377\330'; head -c 200 /dev/zero; printf '\377\331'`

func (c shellCommands) Name() string { return "shell" }
func (c shellCommands) Stream(Config, Encoder) []string {
	return []string{"sh", "-c", c.stream}
}
func (c shellCommands) Still(Config, Encoder) []string {
	return []string{"sh", "-c", c.still}
}
func (c shellCommands) Check(Config) error {
	_, err := exec.LookPath("sh")
	return err
}
func (c shellCommands) LogParser() process.LogParser { return nil }

func newShellDriver(t *testing.T, c shellCommands) *ProcessDriver {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	return NewProcessDriver(c, 2*time.Second, logging.GetLogger("test"))
}

type frameLog struct {
	mu     sync.Mutex
	frames [][]byte
}

func (l *frameLog) sink(f []byte) {
	l.mu.Lock()
	l.frames = append(l.frames, f)
	l.mu.Unlock()
}

func (l *frameLog) count() (total, empty int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range l.frames {
		if len(f) == 0 {
			empty++
		}
	}
	return len(l.frames), empty
}

func TestProcessDriverContinuous(t *testing.T) {
	d := newShellDriver(t, shellCommands{
		stream: `while true; do ` + oneJPEG + `; sleep 0.02; done`,
	})
	ctx := context.Background()
	h, err := d.Open(ctx, testCfg)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	var log frameLog
	if err := h.Start(ctx, Encoder{Name: "mjpeg"}, log.sink); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := h.Stop(); err != nil {
		t.Fatal(err)
	}
	total, empty := log.count()
	if total == 0 || empty != 0 {
		t.Errorf("got %d frames (%d empty), want some real frames", total, empty)
	}
}

func TestProcessDriverEncoderExitsEarly(t *testing.T) {
	d := newShellDriver(t, shellCommands{stream: `echo unsupported >&2; exit 3`})
	ctx := context.Background()
	h, err := d.Open(ctx, testCfg)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	var log frameLog
	if err := h.Start(ctx, Encoder{Name: "mjpeg"}, log.sink); err == nil {
		t.Fatal("Start succeeded for an encoder that exits immediately")
	}
	// The handle is reusable after a failed start.
	if err := h.Start(ctx, Encoder{Name: "mjpeg"}, log.sink); err == nil {
		t.Fatal("second Start unexpectedly succeeded")
	}
}

func TestProcessDriverSingleFrame(t *testing.T) {
	d := newShellDriver(t, shellCommands{still: oneJPEG})
	ctx := context.Background()
	h, err := d.Open(ctx, testCfg)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	var log frameLog
	if err := h.Start(ctx, Encoder{Name: "jpeg", Kind: SingleFrame}, log.sink); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(250 * time.Millisecond)
	_ = h.Stop()
	if total, _ := log.count(); total < 2 {
		t.Errorf("got %d stills, want repeated captures", total)
	}
}

func TestProcessDriverExclusive(t *testing.T) {
	d := newShellDriver(t, shellCommands{})
	ctx := context.Background()
	h, err := d.Open(ctx, testCfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Open(ctx, testCfg); !errors.Is(err, ErrHandleHeld) {
		t.Fatalf("second Open err = %v, want ErrHandleHeld", err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	h2, err := d.Open(ctx, testCfg)
	if err != nil {
		t.Fatalf("Open after Close: %v", err)
	}
	_ = h2.Close()
}
