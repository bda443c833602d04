package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/smazurov/gokucam/internal/config"
	"github.com/smazurov/gokucam/internal/device"
	"github.com/smazurov/gokucam/internal/engine"
	"github.com/smazurov/gokucam/internal/logging"
)

// ProbeResult is the outcome of starting one preview encoder.
type ProbeResult struct {
	Encoder string `toml:"encoder"`
	Kind    string `toml:"kind"`
	Quality int    `toml:"quality"`
	Working bool   `toml:"working"`
	Frames  int    `toml:"frames"`
	Error   string `toml:"error,omitempty"`
}

// ProbeReport is written to --output.
type ProbeReport struct {
	Driver   string        `toml:"driver"`
	Device   string        `toml:"device"`
	ProbedAt time.Time     `toml:"probed_at"`
	Results  []ProbeResult `toml:"results"`
}

// CreateProbeEncodersCmd creates the probe-encoders command.
func CreateProbeEncodersCmd() *cobra.Command {
	var (
		configFile string
		driver     string
		output     string
		window     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe-encoders",
		Short: "Report which preview encoders work on this camera",
		Long: `Opens the camera and starts each preview encoder in fallback order, ` +
			`counting the frames it produces. The server must not be running.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})

			cfg, err := loadCamera(configFile, driver)
			if err != nil {
				return err
			}
			report := ProbeReport{Driver: cfg.Driver, Device: cfg.Device, ProbedAt: time.Now().UTC()}
			drv := engine.NewDriver(cfg)
			for _, enc := range device.DefaultEncoders(cfg.Quality) {
				res := probeEncoder(cmd.Context(), drv, engine.DeviceConfig(cfg), enc, window)
				report.Results = append(report.Results, res)
				status := "ok"
				if !res.Working {
					status = "FAILED: " + res.Error
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-12s frames=%-4d %s\n", res.Encoder, res.Kind, res.Frames, status)
			}

			if output == "" {
				return nil
			}
			data, err := toml.Marshal(report)
			if err != nil {
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "config.toml", "Path to configuration file")
	cmd.Flags().StringVar(&driver, "driver", "", "Override the capture driver (rpicam, v4l2, pattern)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the results as TOML to this file")
	cmd.Flags().DurationVar(&window, "window", 2*time.Second, "How long to count frames per encoder")
	return cmd
}

func probeEncoder(ctx context.Context, drv device.Driver, cfg device.Config, enc device.Encoder, window time.Duration) ProbeResult {
	res := ProbeResult{Encoder: enc.Name, Kind: enc.Kind.String(), Quality: enc.Quality}

	h, err := drv.Open(ctx, cfg)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer h.Close()

	frames := make(chan struct{}, 64)
	sink := func(b []byte) {
		if len(b) == 0 {
			return
		}
		select {
		case frames <- struct{}{}:
		default:
		}
	}
	if err := h.Start(ctx, enc, sink); err != nil {
		res.Error = err.Error()
		return res
	}
	defer h.Stop()

	deadline := time.NewTimer(window)
	defer deadline.Stop()
	for {
		select {
		case <-frames:
			res.Frames++
		case <-deadline.C:
			res.Working = res.Frames > 0
			if !res.Working {
				res.Error = "no frames"
			}
			return res
		case <-ctx.Done():
			res.Error = ctx.Err().Error()
			return res
		}
	}
}

// loadCamera reads the [camera] table and applies a driver override.
func loadCamera(path, driver string) (config.Camera, error) {
	cfg, err := config.LoadCamera(path)
	if err != nil {
		return cfg, err
	}
	if driver != "" {
		cfg.Driver = driver
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}
