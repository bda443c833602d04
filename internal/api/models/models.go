// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"time"

	"github.com/smazurov/gokucam/internal/logging"
	"github.com/smazurov/gokucam/internal/supervisor"
)

type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status: ok or degraded"`
	Message string `json:"message" example:"Camera streaming" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2026-01-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

type StatusResponse struct {
	Body supervisor.Status
}

// SavedData is returned by endpoints that write a file.
type SavedData struct {
	Saved string `json:"saved" example:"snaps/20260127_103000.jpg" doc:"Path of the written file"`
}

type SavedResponse struct {
	Body SavedData
}

type SnapshotImageResponse struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

type RecordRequest struct {
	Mode string `query:"mode" example:"social" doc:"Recording preset; unknown modes use the default preset"`
	Secs int    `query:"secs" default:"10" minimum:"1" maximum:"600" doc:"Clip length in seconds"`
}

type RecordData struct {
	Saved    string        `json:"saved" example:"snaps/20260127_103000_social.mp4" doc:"Path of the recording"`
	Mode     string        `json:"mode" example:"social" doc:"Preset used; unknown modes fall back to the default"`
	Duration time.Duration `json:"duration_ns" doc:"Requested clip length in nanoseconds"`
}

type RecordResponse struct {
	Body RecordData
}

type RestartData struct {
	Status string `json:"status" example:"restarted" doc:"Result of the restart"`
}

type RestartResponse struct {
	Body RestartData
}

type LogsRequest struct {
	Limit  int    `query:"limit" default:"200" minimum:"1" maximum:"500" doc:"Maximum number of entries, newest last"`
	Module string `query:"module" example:"supervisor" doc:"Only entries from this module"`
}

type LogsData struct {
	Entries []logging.Entry `json:"entries" doc:"Recent log entries, oldest first"`
	Count   int             `json:"count" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}
