package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/gokucam/internal/events"
	"github.com/smazurov/gokucam/internal/supervisor"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "State changes, stalls, recoveries, recordings and snapshots as they happen",
		Tags:        []string{"events"},
	}, map[string]any{
		"status":        supervisor.Status{},
		"state-changed": events.StateChangedEvent{},
		"stall":         events.StallEvent{},
		"recovery":      events.RecoveryEvent{},
		"recording":     events.RecordingEvent{},
		"snapshot":      events.SnapshotEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 16)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.StateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StallEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RecoveryEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RecordingEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SnapshotEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Current status first so clients need not poll /api/status.
		if err := send.Data(s.camera.Status()); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
