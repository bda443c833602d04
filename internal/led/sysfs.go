package led

import (
	"fmt"
	"os"
	"path/filepath"
)

const sysfsLEDPath = "/sys/class/leds"

// sysfs drives an LED through the kernel's trigger and brightness files.
type sysfs struct {
	dir string
}

func newSysfs(root, name string) *sysfs {
	return &sysfs{dir: filepath.Join(root, name)}
}

func (s *sysfs) Name() string { return filepath.Base(s.dir) }

func (s *sysfs) Set(p Pattern) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("LED %s: %w", s.Name(), err)
	}

	trigger, brightness := "none", "0"
	switch p {
	case Solid:
		brightness = "1"
	case Blink:
		trigger, brightness = "heartbeat", "1"
	case Off:
	default:
		return fmt.Errorf("unknown LED pattern %q", p)
	}

	if err := os.WriteFile(filepath.Join(s.dir, "trigger"), []byte(trigger), 0o644); err != nil {
		return fmt.Errorf("set LED trigger: %w", err)
	}
	// The heartbeat trigger owns brightness while active.
	if p == Blink {
		return nil
	}
	if err := os.WriteFile(filepath.Join(s.dir, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("set LED brightness: %w", err)
	}
	return nil
}

// noop is used on boards without a known status LED.
type noop struct{}

func (noop) Name() string      { return "none" }
func (noop) Set(Pattern) error { return nil }
