package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/gokucam/internal/api/models"
	"github.com/smazurov/gokucam/internal/logging"
)

// registerLogRoutes exposes the in-memory log history.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Most recent log entries kept in memory, optionally filtered by module",
		Tags:        []string{"logs"},
	}, func(_ context.Context, input *models.LogsRequest) (*models.LogsResponse, error) {
		var entries []logging.Entry
		if h := logging.GetHistory(); h != nil {
			entries = h.Entries()
		}
		if input.Module != "" {
			filtered := entries[:0]
			for _, e := range entries {
				if e.Module == input.Module {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}
		if input.Limit > 0 && len(entries) > input.Limit {
			entries = entries[len(entries)-input.Limit:]
		}
		if entries == nil {
			entries = []logging.Entry{}
		}
		return &models.LogsResponse{
			Body: models.LogsData{Entries: entries, Count: len(entries)},
		}, nil
	})
}
