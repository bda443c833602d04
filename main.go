package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/gokucam/cmd"
	"github.com/smazurov/gokucam/internal/api"
	"github.com/smazurov/gokucam/internal/config"
	"github.com/smazurov/gokucam/internal/engine"
	"github.com/smazurov/gokucam/internal/events"
	"github.com/smazurov/gokucam/internal/led"
	"github.com/smazurov/gokucam/internal/logging"
	"github.com/smazurov/gokucam/internal/metrics/exporters"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Address to listen on" short:"p" default:":8000" toml:"server.port" env:"SERVER_PORT"`

	// Camera settings
	Driver      string `help:"Capture driver (rpicam, v4l2, pattern)" default:"rpicam" toml:"camera.driver" env:"CAMERA_DRIVER"`
	Device      string `help:"V4L2 device node" default:"/dev/video0" toml:"camera.device" env:"CAMERA_DEVICE"`
	Width       int    `help:"Preview width" default:"1280" toml:"camera.width" env:"CAMERA_WIDTH"`
	Height      int    `help:"Preview height" default:"720" toml:"camera.height" env:"CAMERA_HEIGHT"`
	FPS         int    `help:"Preview frame rate" default:"25" toml:"camera.fps" env:"CAMERA_FPS"`
	Quality     int    `help:"Preview JPEG quality (1-100)" default:"85" toml:"camera.quality" env:"CAMERA_QUALITY"`
	SnapshotDir string `help:"Directory for snapshots and recordings" default:"snaps" toml:"camera.snapshot_dir" env:"CAMERA_SNAPSHOT_DIR"`
	DefaultMode string `help:"Recording preset used for unknown modes" default:"archival" toml:"camera.default_mode" env:"CAMERA_DEFAULT_MODE"`
	IdleLinger  string `help:"Keep streaming this long after the last viewer leaves (0 stops at once, negative never)" default:"10s" toml:"camera.idle_linger" env:"CAMERA_IDLE_LINGER"`

	// Recovery settings
	RecoveryMaxAttempts int `help:"Restart attempts per stall before giving up" default:"2" toml:"camera.recovery.max_attempts" env:"RECOVERY_MAX_ATTEMPTS"`

	// Features settings
	FeaturesStatusLED bool   `help:"Mirror the stream state on the board status LED" default:"false" toml:"features.status_led" env:"FEATURES_STATUS_LED"`
	FeaturesLEDName   string `help:"sysfs LED name; empty detects it from the board model" toml:"features.led_name" env:"FEATURES_LED_NAME"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingDevice     string `help:"Device logging level" default:"info" toml:"logging.device" env:"LOGGING_DEVICE"`
	LoggingCapture    string `help:"Capture process output logging level" default:"warn" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingHealth     string `help:"Health monitor logging level" default:"info" toml:"logging.health" env:"LOGGING_HEALTH"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingRecording  string `help:"Recording logging level" default:"info" toml:"logging.recording" env:"LOGGING_RECORDING"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// cameraConfig overlays the flat options onto the [camera] table, which
// also carries presets, thresholds and binaries that have no flags.
func cameraConfig(opts *Options) (config.Camera, error) {
	cfg, err := config.LoadCamera(opts.Config)
	if err != nil {
		return cfg, err
	}
	linger, err := time.ParseDuration(opts.IdleLinger)
	if err != nil {
		return cfg, err
	}
	cfg.Driver = opts.Driver
	cfg.Device = opts.Device
	cfg.Width = opts.Width
	cfg.Height = opts.Height
	cfg.FPS = opts.FPS
	cfg.Quality = opts.Quality
	cfg.SnapshotDir = opts.SnapshotDir
	cfg.DefaultMode = opts.DefaultMode
	cfg.IdleLinger = config.Duration(linger)
	cfg.Recovery.MaxAttempts = opts.RecoveryMaxAttempts
	return cfg, cfg.Validate()
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadOptions(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"device":     opts.LoggingDevice,
				"capture":    opts.LoggingCapture,
				"health":     opts.LoggingHealth,
				"supervisor": opts.LoggingSupervisor,
				"recording":  opts.LoggingRecording,
				"api":        opts.LoggingAPI,
				"http":       opts.LoggingAPI,
			},
		})
		logger := logging.GetLogger("main")

		cfg, err := cameraConfig(opts)
		if err != nil {
			logger.Error("Invalid camera configuration", "error", err)
			os.Exit(1)
		}

		eventBus := events.New()
		eng, err := engine.New(cfg, engine.WithEvents(eventBus))
		if err != nil {
			logger.Error("Failed to build camera engine", "error", err)
			os.Exit(1)
		}

		var indicator *led.Indicator
		if opts.FeaturesStatusLED {
			ledLogger := logging.GetLogger("led")
			indicator = led.NewIndicator(led.New(opts.FeaturesLEDName, ledLogger), eventBus, ledLogger)
		}

		server := api.NewServer(&api.Options{
			Camera:            eng,
			Events:            eventBus,
			PrometheusHandler: exporters.HTTPHandler(),
		})

		// Health thresholds can be tuned without restarting the stream.
		watcher := config.NewWatcher(opts.Config, config.LoadHealth, logging.GetLogger("config"),
			config.WithDebounce[config.Health](1500*time.Millisecond))
		watcher.OnReload(func(th config.Health) {
			logger.Info("Health thresholds reloaded", "frame_timeout", th.FrameTimeout.D(), "stall_after", th.StallAfter)
			eng.SetHealth(th)
		})

		hooks.OnStart(func() {
			ctx := context.Background()
			if indicator != nil {
				indicator.Start()
			}
			startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			startErr := eng.Start(startCtx)
			cancel()
			if startErr != nil {
				logger.Error("Camera unavailable", "error", startErr)
				os.Exit(1)
			}

			if watchErr := watcher.Start(ctx); watchErr != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", watchErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			_ = watcher.Stop()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if stopErr := eng.Stop(ctx); stopErr != nil {
				logger.Error("Error releasing camera", "error", stopErr)
			}
			if indicator != nil {
				indicator.Stop()
			}
		})
	})

	cli.Root().AddCommand(cmd.CreateRecordCmd())
	cli.Root().AddCommand(cmd.CreateProbeEncodersCmd())

	cli.Run()
}
