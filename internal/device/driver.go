// Package device owns the exclusive camera handle and turns it into a stream
// of JPEG frames on a framebus.
package device

import (
	"context"
	"fmt"
)

// State of a Session.
type State int

const (
	StateClosed State = iota
	StateConfigured
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConfigured:
		return "configured"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config is the preview configuration. Two configs are the same device setup
// exactly when they compare equal.
type Config struct {
	Device  string
	Width   int
	Height  int
	FPS     int
	Quality int
}

// EncoderKind distinguishes a long-running encoder from one that produces a
// single image per invocation.
type EncoderKind int

const (
	Continuous EncoderKind = iota
	SingleFrame
)

func (k EncoderKind) String() string {
	if k == SingleFrame {
		return "single-frame"
	}
	return "continuous"
}

// Encoder is one parameterisation tried when streaming starts.
type Encoder struct {
	Name    string
	Kind    EncoderKind
	Quality int // 0 leaves the encoder default
}

// DefaultEncoders is the fallback order: continuous MJPEG at the configured
// quality, continuous MJPEG at the encoder default, then repeated stills.
func DefaultEncoders(quality int) []Encoder {
	return []Encoder{
		{Name: "mjpeg", Kind: Continuous, Quality: quality},
		{Name: "mjpeg-default", Kind: Continuous},
		{Name: "jpeg", Kind: SingleFrame, Quality: quality},
	}
}

// Sink receives each encoded frame. A nil or empty slice reports that the
// encoder ran but produced nothing usable.
type Sink func(frame []byte)

// Driver opens the camera hardware.
type Driver interface {
	Name() string
	// Open acquires the hardware. It must fail if another handle is still
	// held or being released.
	Open(ctx context.Context, cfg Config) (Handle, error)
}

// Handle is an acquired camera.
type Handle interface {
	// Start begins producing frames with enc. It returns an error when enc
	// cannot be constructed on this hardware; the handle is then left
	// stopped and may be started again with another encoder.
	Start(ctx context.Context, enc Encoder, sink Sink) error
	// Stop halts frame production.
	Stop() error
	// Close releases the hardware. The handle is unusable afterwards.
	Close() error
}
