package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/gokucam/internal/api/models"
	"github.com/smazurov/gokucam/internal/version"
)

func (s *Server) registerSystemRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Report whether the camera stream is healthy",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		st := s.camera.Status()
		data := models.HealthData{Status: "ok", Message: "Camera " + st.State}
		if st.Degraded {
			data.Status = "degraded"
			data.Message = "Automatic recovery gave up: " + st.LastError
		}
		return &models.HealthResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		v := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   v.Version,
				GitCommit: v.GitCommit,
				BuildDate: v.BuildDate,
				BuildID:   v.BuildID,
				GoVersion: v.GoVersion,
				Compiler:  v.Compiler,
				Platform:  v.Platform,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Stream Status",
		Description: "Supervisor state, connected viewers and recovery history",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*models.StatusResponse, error) {
		return &models.StatusResponse{Body: s.camera.Status()}, nil
	})
}

func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "save-snapshot",
		Method:      http.MethodPost,
		Path:        "/api/snapshot",
		Summary:     "Save Snapshot",
		Description: "Write the latest frame to the snapshot directory",
		Tags:        []string{"camera"},
		Errors:      []int{500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.SavedResponse, error) {
		path, err := s.camera.SaveSnapshot(ctx)
		if err != nil {
			return nil, s.mapError(err)
		}
		return &models.SavedResponse{Body: models.SavedData{Saved: path}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-snapshot",
		Method:      http.MethodGet,
		Path:        "/api/snapshot.jpg",
		Summary:     "Snapshot Image",
		Description: "Return the latest frame as a JPEG",
		Tags:        []string{"camera"},
		Errors:      []int{503},
	}, func(ctx context.Context, _ *struct{}) (*models.SnapshotImageResponse, error) {
		f, err := s.camera.Snapshot(ctx)
		if err != nil {
			return nil, s.mapError(err)
		}
		return &models.SnapshotImageResponse{
			ContentType:  "image/jpeg",
			CacheControl: "no-store",
			Body:         f.Data,
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "record",
		Method:      http.MethodPost,
		Path:        "/api/record",
		Summary:     "Record Clip",
		Description: "Pause the preview, record an H.264 clip with exclusive camera access, then resume. Blocks for the clip length.",
		Tags:        []string{"camera"},
		Errors:      []int{400, 500, 503},
	}, func(ctx context.Context, input *models.RecordRequest) (*models.RecordResponse, error) {
		d := time.Duration(input.Secs) * time.Second
		job, err := s.camera.Record(ctx, input.Mode, d)
		if err != nil {
			return nil, s.mapError(err)
		}
		return &models.RecordResponse{
			Body: models.RecordData{Saved: job.Output, Mode: job.Mode, Duration: d},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-stream",
		Method:      http.MethodPost,
		Path:        "/api/restart_stream",
		Summary:     "Restart Stream",
		Description: "Close and reopen the camera",
		Tags:        []string{"camera"},
		Errors:      []int{503},
	}, func(ctx context.Context, _ *struct{}) (*models.RestartResponse, error) {
		if err := s.camera.Restart(ctx); err != nil {
			return nil, s.mapError(err)
		}
		return &models.RestartResponse{Body: models.RestartData{Status: "restarted"}}, nil
	})
}
