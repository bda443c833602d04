package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/gokucam/internal/logging"
)

// ExitKilled is reported when the process had to be force-killed.
const ExitKilled = 137

// LogParser extracts a level from one line of process output.
type LogParser func(line string) (level, msg string)

// StdoutReader consumes the process stdout. It runs in its own goroutine and
// should return when r reports EOF.
type StdoutReader func(r io.Reader)

// Process runs one subprocess in its own process group. Cancelling the
// context passed to Run sends SIGINT to the group, then SIGKILL once the
// graceful timeout elapses.
type Process struct {
	name   string
	args   []string
	logger logging.Logger

	outputLogger logging.Logger
	parser       LogParser
	stdout       StdoutReader

	gracefulTimeout time.Duration
	killTimeout     time.Duration

	mu  sync.Mutex
	pid int
}

// New creates a process for argv. args[0] is the executable.
func New(name string, args []string, logger logging.Logger) *Process {
	return &Process{
		name:            name,
		args:            args,
		logger:          logger,
		gracefulTimeout: 2 * time.Second,
		killTimeout:     2 * time.Second,
	}
}

// Command creates a process for argv whose first element may itself be a
// quoted command line, so a configured binary such as "nice -n 5 ffmpeg"
// expands into its own arguments.
func Command(name string, args []string, logger logging.Logger) (*Process, error) {
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	head, err := parseCommand(args[0])
	if err != nil {
		return nil, err
	}
	if len(head) == 0 {
		return nil, errors.New("empty command")
	}
	return New(name, append(head, args[1:]...), logger), nil
}

// Args returns the argv the process runs with.
func (p *Process) Args() []string {
	return p.args
}

// SetLogParser routes stderr (and stdout, if no StdoutReader is set) to
// logger, using parser to pick a level per line.
func (p *Process) SetLogParser(logger logging.Logger, parser LogParser) {
	p.outputLogger = logger
	p.parser = parser
}

// SetStdoutReader hands stdout to fn instead of logging it line by line.
func (p *Process) SetStdoutReader(fn StdoutReader) {
	p.stdout = fn
}

// SetGracefulTimeout sets how long to wait after SIGINT before SIGKILL.
func (p *Process) SetGracefulTimeout(d time.Duration) {
	p.gracefulTimeout = d
}

// PID returns the pid of the running process, or 0.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// Run starts the process and blocks until it exits or ctx is done. The error
// is non-nil only when the process could not be started.
func (p *Process) Run(ctx context.Context) (int, error) {
	if len(p.args) == 0 {
		return 1, errors.New("empty command")
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 1, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 1, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("start %s: %w", p.args[0], err)
	}

	pid := cmd.Process.Pid
	p.mu.Lock()
	p.pid = pid
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.pid = 0
		p.mu.Unlock()
	}()

	p.logger.Debug("Process started", "name", p.name, "pid", pid, "command", strings.Join(p.args, " "))

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		if p.stdout != nil {
			p.stdout(stdout)
			// Keep draining so an early-returning reader cannot block the child.
			_, _ = io.Copy(io.Discard, stdout)
			return
		}
		p.logOutput(stdout, "stdout")
	}()
	go func() {
		defer readers.Done()
		p.logOutput(stderr, "stderr")
	}()

	// Pipes must be fully read before Wait closes them.
	exited := make(chan error, 1)
	go func() {
		readers.Wait()
		exited <- cmd.Wait()
	}()

	select {
	case err := <-exited:
		code := exitCode(err)
		p.logger.Debug("Process exited", "name", p.name, "exit_code", code)
		return code, nil
	case <-ctx.Done():
		return p.stop(pid, exited), nil
	}
}

func (p *Process) stop(pid int, exited <-chan error) int {
	p.logger.Debug("Stopping process", "name", p.name, "pid", pid)
	if err := syscall.Kill(-pid, syscall.SIGINT); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Warn("Failed to send SIGINT", "name", p.name, "error", err)
	}

	select {
	case err := <-exited:
		return exitCode(err)
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful stop timed out, killing process group", "name", p.name, "timeout", p.gracefulTimeout)
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Error("Failed to kill process group", "name", p.name, "error", err)
	}
	select {
	case <-exited:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after SIGKILL", "name", p.name, "pid", pid)
	}
	return ExitKilled
}

func (p *Process) logOutput(r io.Reader, source string) {
	logger := p.outputLogger
	if logger == nil {
		logger = p.logger
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		level, msg := "info", scanner.Text()
		if p.parser != nil {
			level, msg = p.parser(msg)
		}
		switch level {
		case "fatal", "panic", "error":
			logger.Error(msg, "source", source)
		case "warning", "warn":
			logger.Warn(msg, "source", source)
		case "info":
			logger.Info(msg, "source", source)
		default:
			logger.Debug(msg, "source", source)
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Debug("Output read ended", "name", p.name, "source", source, "error", err)
	}
}

// exitCode maps a Wait error to an exit status; non-exit errors count as 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
	}
	return 1
}

// parseCommand splits a command line, honouring single/double quotes and
// backslash escapes.
func parseCommand(command string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		quote   rune
		started bool
	)
	runes := []rune(strings.TrimSpace(command))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0 && r == quote:
			quote = 0
		case quote == 0 && (r == '"' || r == '\''):
			quote = r
			started = true
		case quote == 0 && (r == ' ' || r == '\t'):
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		case r == '\\' && i+1 < len(runes) && quote != '\'':
			i++
			cur.WriteRune(runes[i])
			started = true
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if quote != 0 {
		return nil, errors.New("unclosed quote in command")
	}
	if started {
		args = append(args, cur.String())
	}
	return args, nil
}
