package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/gokucam/internal/camerr"
	"github.com/smazurov/gokucam/internal/engine"
	"github.com/smazurov/gokucam/internal/events"
	"github.com/smazurov/gokucam/internal/framebus"
	"github.com/smazurov/gokucam/internal/logging"
	"github.com/smazurov/gokucam/internal/recording"
	"github.com/smazurov/gokucam/internal/supervisor"
	"github.com/smazurov/gokucam/internal/version"
	"github.com/smazurov/gokucam/ui"
)

// Camera is the engine surface the API needs. *engine.Engine satisfies it.
type Camera interface {
	Watch(ctx context.Context) (engine.Viewer, error)
	Snapshot(ctx context.Context) (framebus.Frame, error)
	SaveSnapshot(ctx context.Context) (string, error)
	Record(ctx context.Context, mode string, d time.Duration) (recording.Job, error)
	Restart(ctx context.Context) error
	Status() supervisor.Status
}

// Options configures the server.
type Options struct {
	Camera            Camera
	Events            *events.Bus
	PrometheusHandler http.Handler // optional; served at /metrics
}

// Server is the HTTP front of the camera.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	camera     Camera
	eventBus   *events.Bus
	logger     *slog.Logger
}

// NewServer creates the API server with Huma v2 on Go's native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("gokucam API", version.Version)
	config.Info.Description = "Live MJPEG preview, snapshots and exclusive recordings from a single camera"
	// Empty servers list will make OpenAPI use relative paths, working with any host
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)

	server := &Server{
		api:      api,
		mux:      mux,
		camera:   opts.Camera,
		eventBus: opts.Events,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}
	mux.HandleFunc("GET /stream.mjpg", server.handleMJPEG)
	if page, err := ui.Handler(); err == nil {
		mux.Handle("GET /{$}", page)
	} else {
		server.logger.Warn("Preview page unavailable", "error", err)
	}

	server.registerRoutes()
	return server
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on addr until Stop.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting gokucam API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes the listener and every open connection. MJPEG viewers never
// finish on their own, so a graceful drain would not terminate.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.registerSystemRoutes()
	s.registerCameraRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
}

// mapError turns engine errors into HTTP problems.
func (s *Server) mapError(err error) error {
	switch camerr.CodeOf(err) {
	case camerr.CodeNoFrame:
		return huma.Error503ServiceUnavailable("no frame available", err)
	case camerr.CodeDeviceUnavailable, camerr.CodeEncoderUnsupported:
		return huma.Error503ServiceUnavailable("camera unavailable", err)
	case camerr.CodeRecordingFailed:
		return huma.Error500InternalServerError("recording failed", err)
	case camerr.CodeInvalid:
		return huma.Error400BadRequest("invalid request", err)
	}
	switch {
	case errors.Is(err, supervisor.ErrClosed):
		return huma.Error503ServiceUnavailable("camera shutting down", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error503ServiceUnavailable("request cancelled", err)
	}
	return huma.Error500InternalServerError("internal server error", err)
}
