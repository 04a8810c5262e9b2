// Package logger builds the process-wide slog logger from config.
package logger

import (
	"log/slog"
	"os"

	"github.com/talecraft/turnengine/internal/config"
)

// Setup builds a logger at the configured level and installs it as the
// slog default. Production emits JSON lines; everything else gets the
// human-readable text handler.
func Setup(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Environment == "production" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(h)
	slog.SetDefault(log)
	return log
}
