// Package camerr defines the error taxonomy shared by the capture engine.
package camerr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match with errors.Is.
var (
	// ErrDeviceUnavailable means the hardware handle could not be acquired,
	// typically because a previous holder has not finished releasing it.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrEncoderUnsupported means every encoder variant failed to start.
	ErrEncoderUnsupported = errors.New("no usable encoder")
	// ErrNoFrameAvailable means no frame arrived within the wait window.
	ErrNoFrameAvailable = errors.New("no frame available")
	// ErrRecordingFailed means the exclusive capture step failed.
	ErrRecordingFailed = errors.New("recording failed")
	// ErrStallDetected is raised by the health monitor and consumed by the
	// supervisor; it never reaches API callers.
	ErrStallDetected = errors.New("stream stalled")
)

// Code classifies an Error for API mapping and metrics labels.
type Code string

const (
	CodeDeviceUnavailable  Code = "DEVICE_UNAVAILABLE"
	CodeEncoderUnsupported Code = "ENCODER_UNSUPPORTED"
	CodeNoFrame            Code = "NO_FRAME"
	CodeRecordingFailed    Code = "RECORDING_FAILED"
	CodeStall              Code = "STALL"
	CodeInvalid            Code = "INVALID"
)

var sentinels = map[Code]error{
	CodeDeviceUnavailable:  ErrDeviceUnavailable,
	CodeEncoderUnsupported: ErrEncoderUnsupported,
	CodeNoFrame:            ErrNoFrameAvailable,
	CodeRecordingFailed:    ErrRecordingFailed,
	CodeStall:              ErrStallDetected,
}

// Error carries an operation name and the underlying cause alongside a Code.
type Error struct {
	Code  Code
	Op    string
	Cause error
}

// New wraps cause as an *Error.
func New(code Code, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Cause: cause}
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if s, ok := sentinels[e.Code]; ok {
		msg = s.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for e.Code, so errors.Is(err, ErrRecordingFailed)
// holds for any *Error with CodeRecordingFailed.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

// CodeOf returns the Code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	for code, s := range sentinels {
		if errors.Is(err, s) {
			return code
		}
	}
	return ""
}
