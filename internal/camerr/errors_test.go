package camerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("exit status 1")
	err := New(CodeRecordingFailed, "record", cause)

	if !errors.Is(err, ErrRecordingFailed) {
		t.Error("expected errors.Is(err, ErrRecordingFailed)")
	}
	if errors.Is(err, ErrDeviceUnavailable) {
		t.Error("unexpected match with ErrDeviceUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through Unwrap")
	}

	wrapped := fmt.Errorf("api: %w", err)
	if CodeOf(wrapped) != CodeRecordingFailed {
		t.Errorf("CodeOf = %q, want %q", CodeOf(wrapped), CodeRecordingFailed)
	}
}

func TestErrorMessage(t *testing.T) {
	err := New(CodeDeviceUnavailable, "open", errors.New("busy"))
	want := "open: device unavailable: busy"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	bare := New(CodeInvalid, "", nil)
	if !strings.Contains(bare.Error(), "INVALID") {
		t.Errorf("Error() = %q, want code in message", bare.Error())
	}
}

func TestCodeOfPlainSentinel(t *testing.T) {
	err := fmt.Errorf("snapshot: %w", ErrNoFrameAvailable)
	if got := CodeOf(err); got != CodeNoFrame {
		t.Errorf("CodeOf = %q, want %q", got, CodeNoFrame)
	}
	if got := CodeOf(errors.New("other")); got != "" {
		t.Errorf("CodeOf = %q, want empty", got)
	}
}
