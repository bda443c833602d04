package events

// Event type constants for kelindar/event.
const (
	TypeStateChanged uint32 = iota + 1
	TypeStall
	TypeRecovery
	TypeRecording
	TypeSnapshot
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StateChangedEvent is published on every supervisor transition.
type StateChangedEvent struct {
	From      string `json:"from" example:"streaming" doc:"Previous supervisor state"`
	To        string `json:"to" example:"recovering" doc:"New supervisor state"`
	Degraded  bool   `json:"degraded" doc:"Whether automatic recovery has given up"`
	Reason    string `json:"reason,omitempty" example:"stalled" doc:"What caused the transition"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// StallEvent reports an actionable health condition.
type StallEvent struct {
	Condition   string `json:"condition" example:"stalled" doc:"stalled or empty_frames"`
	IdleMs      int64  `json:"idle_ms" doc:"Milliseconds since the last published frame"`
	EmptyFrames uint64 `json:"empty_frames" doc:"Consecutive empty frames"`
	Timestamp   string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StallEvent.
func (e StallEvent) Type() uint32 { return TypeStall }

// RecoveryEvent reports one recovery attempt.
type RecoveryEvent struct {
	Attempt   int    `json:"attempt" example:"1" doc:"Attempt number, starting at 1"`
	Result    string `json:"result" example:"success" doc:"success, failure or exhausted"`
	Error     string `json:"error,omitempty" doc:"Failure detail"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecoveryEvent.
func (e RecoveryEvent) Type() uint32 { return TypeRecovery }

// RecordingEvent tracks an exclusive recording job.
type RecordingEvent struct {
	JobID     string `json:"job_id" doc:"Recording job identifier"`
	Mode      string `json:"mode" example:"archival" doc:"Recording preset"`
	Status    string `json:"status" example:"completed" doc:"started, completed or failed"`
	Path      string `json:"path,omitempty" example:"snaps/20260127_103000_archival.mp4" doc:"Output file"`
	Error     string `json:"error,omitempty" doc:"Failure detail"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingEvent.
func (e RecordingEvent) Type() uint32 { return TypeRecording }

// SnapshotEvent is published when a still is written to disk.
type SnapshotEvent struct {
	Path      string `json:"path,omitempty" example:"snaps/20260127_103000.jpg" doc:"Saved still"`
	Size      int    `json:"size" doc:"JPEG size in bytes"`
	Error     string `json:"error,omitempty" doc:"Failure detail"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SnapshotEvent.
func (e SnapshotEvent) Type() uint32 { return TypeSnapshot }
