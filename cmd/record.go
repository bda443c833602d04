package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/gokucam/internal/engine"
	"github.com/smazurov/gokucam/internal/logging"
)

// CreateRecordCmd creates the record command.
func CreateRecordCmd() *cobra.Command {
	var (
		configFile string
		driver     string
		mode       string
		secs       int
		logJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one clip with exclusive camera access",
		Long: `Records a single H.264 clip using the named preset and prints the output path. ` +
			`The camera must not be held by a running server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loggingConfig := logging.Config{Level: "info", Format: "text"}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("recording")

			if secs < 1 {
				return fmt.Errorf("--secs must be at least 1, got %d", secs)
			}
			cfg, err := loadCamera(configFile, driver)
			if err != nil {
				return err
			}
			eng, err := engine.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("Recording clip", "mode", mode, "secs", secs, "driver", cfg.Driver)
			job, err := eng.Record(ctx, mode, time.Duration(secs)*time.Second)
			if stopErr := eng.Stop(context.WithoutCancel(ctx)); stopErr != nil {
				logger.Warn("Release camera", "error", stopErr)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), job.Output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "config.toml", "Path to configuration file")
	cmd.Flags().StringVar(&driver, "driver", "", "Override the capture driver (rpicam, v4l2, pattern)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Recording preset (social, archival); empty uses the default mode")
	cmd.Flags().IntVarP(&secs, "secs", "s", 10, "Clip length in seconds")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Log as JSON")
	return cmd
}
