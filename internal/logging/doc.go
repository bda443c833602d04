// Package logging provides slog loggers with per-module levels.
//
// Initialize once at startup, then obtain a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"supervisor": "debug",
//			"api":        "warn",
//		},
//	})
//
//	logger := logging.GetLogger("supervisor")
//	logger.Info("Recovery succeeded", "attempt", 1)
//
// Records go to stdout (text or json), to the systemd journal when journald
// is reachable, and to an in-memory History served by the API. Journal
// fields are upper-cased attribute keys:
//
//	journalctl -t gokucam MODULE=health -f
package logging
