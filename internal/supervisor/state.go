package supervisor

import (
	"fmt"
	"time"
)

// State of the supervisor.
type State int

const (
	// StateIdle means the device is closed.
	StateIdle State = iota
	// StateStreaming means the device is open and frames are flowing.
	StateStreaming
	// StateRecovering means a stall was detected and the device is being
	// cycled.
	StateRecovering
	// StateSuspended means the device is released for an exclusive job.
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateRecovering:
		return "recovering"
	case StateSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a point-in-time view for the API.
type Status struct {
	State      string    `json:"state" example:"streaming" doc:"Supervisor state"`
	Degraded   bool      `json:"degraded" doc:"Automatic recovery gave up; next viewer retries"`
	Viewers    int       `json:"viewers" doc:"Connected viewers"`
	Encoder    string    `json:"encoder,omitempty" example:"mjpeg" doc:"Active preview encoder"`
	Recoveries int       `json:"recoveries" doc:"Recovery sequences run since start"`
	LastError  string    `json:"last_error,omitempty" doc:"Most recent device error"`
	Since      time.Time `json:"since" doc:"When the current state was entered"`
}
