package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/smazurov/gokucam/internal/logging"
	"github.com/smazurov/gokucam/internal/process"
)

// ErrHandleHeld is returned by Open while a previous handle is not closed.
var ErrHandleHeld = errors.New("camera handle still held")

// ProcessDriver realises the camera handle as a capture subprocess. Only one
// handle may be open at a time, mirroring the exclusive camera node.
type ProcessDriver struct {
	commands     Commands
	probeTimeout time.Duration
	logger       logging.Logger

	mu   sync.Mutex
	held bool
}

// NewProcessDriver creates a driver using cmds. probeTimeout bounds how long
// Start waits for the first frame before accepting a silent encoder.
func NewProcessDriver(cmds Commands, probeTimeout time.Duration, logger logging.Logger) *ProcessDriver {
	if probeTimeout <= 0 {
		probeTimeout = 3 * time.Second
	}
	return &ProcessDriver{commands: cmds, probeTimeout: probeTimeout, logger: logger}
}

func (d *ProcessDriver) Name() string { return d.commands.Name() }

// Open verifies the capture stack is present and reserves the handle.
func (d *ProcessDriver) Open(_ context.Context, cfg Config) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.held {
		return nil, ErrHandleHeld
	}
	if err := d.commands.Check(cfg); err != nil {
		return nil, err
	}
	d.held = true
	return &processHandle{driver: d, cfg: cfg}, nil
}

func (d *ProcessDriver) release() {
	d.mu.Lock()
	d.held = false
	d.mu.Unlock()
}

type processHandle struct {
	driver *ProcessDriver
	cfg    Config

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func (h *processHandle) Start(ctx context.Context, enc Encoder, sink Sink) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("handle closed")
	}
	if h.cancel != nil {
		return errors.New("encoder already running")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	first := make(chan struct{})
	var once sync.Once
	notify := func(f []byte) {
		if len(f) > 0 {
			once.Do(func() { close(first) })
		}
		sink(f)
	}

	exited := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if enc.Kind == SingleFrame {
			exited <- h.runStills(runCtx, enc, notify)
		} else {
			exited <- h.runStream(runCtx, enc, notify)
		}
	}()

	probe := time.NewTimer(h.driver.probeTimeout)
	defer probe.Stop()
	select {
	case <-first:
	case err := <-exited:
		cancel()
		<-done
		if err == nil {
			err = errors.New("exited without output")
		}
		return fmt.Errorf("%s: %w", enc.Name, err)
	case <-probe.C:
		h.driver.logger.Warn("Encoder started but no frame yet", "encoder", enc.Name, "waited", h.driver.probeTimeout)
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}

	h.cancel, h.done = cancel, done
	return nil
}

func (h *processHandle) newProcess(name string, args []string) (*process.Process, error) {
	p, err := process.Command(name, args, h.driver.logger)
	if err != nil {
		return nil, err
	}
	p.SetLogParser(logging.GetLogger("capture"), h.driver.commands.LogParser())
	p.SetGracefulTimeout(time.Second)
	return p, nil
}

func (h *processHandle) runStream(ctx context.Context, enc Encoder, sink Sink) error {
	p, err := h.newProcess("preview-"+enc.Name, h.driver.commands.Stream(h.cfg, enc))
	if err != nil {
		return err
	}
	p.SetStdoutReader(func(r io.Reader) {
		_, _ = io.Copy(NewSplitter(sink), r)
	})
	code, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("capture exited with status %d", code)
}

// runStills invokes the single-frame command at the configured rate. A
// failure before any frame aborts; later failures publish empty frames so
// the health monitor sees them.
func (h *processHandle) runStills(ctx context.Context, enc Encoder, sink Sink) error {
	fps := max(h.cfg.FPS, 1)
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	produced := false
	for {
		var buf bytes.Buffer
		p, err := h.newProcess("still-"+enc.Name, h.driver.commands.Still(h.cfg, enc))
		if err != nil {
			return err
		}
		p.SetStdoutReader(func(r io.Reader) { _, _ = io.Copy(&buf, r) })

		code, err := p.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		frame := lastFrame(buf.Bytes())
		switch {
		case err != nil && !produced:
			return err
		case code != 0 && !produced:
			return fmt.Errorf("still capture exited with status %d", code)
		case err != nil || code != 0:
			sink(nil)
		default:
			sink(frame)
			produced = produced || frame != nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (h *processHandle) Stop() error {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (h *processHandle) Close() error {
	err := h.Stop()
	h.mu.Lock()
	already := h.closed
	h.closed = true
	h.mu.Unlock()
	if !already {
		h.driver.release()
	}
	return err
}
