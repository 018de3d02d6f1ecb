// Package exporter drives the source-platform half of a pipeline run:
// authenticate, request report generation, wait for the archive, download,
// extract, and record the staged files in the manifest.
package exporter

import (
	"context"
	"log/slog"

	"reportbridge/internal/config"
	"reportbridge/internal/logging"
	"reportbridge/internal/runs"
	"reportbridge/internal/services/movingpay"
)

// Exporter runs export flows against the source platform.
type Exporter struct {
	cfg    *config.Config
	client *movingpay.Client
	logger *slog.Logger
}

// New constructs an exporter.
func New(cfg *config.Config, client *movingpay.Client, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Exporter{
		cfg:    cfg,
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, "exporter")),
	}
}

func advance(ctx context.Context, tracker *runs.Tracker, status runs.Status) error {
	return tracker.Advance(ctx, status)
}
