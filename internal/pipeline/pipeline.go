// Package pipeline orchestrates full runs: lock acquisition, credential and
// environment preflight, run bookkeeping, and the export and import halves.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"reportbridge/internal/config"
	"reportbridge/internal/exporter"
	"reportbridge/internal/importer"
	"reportbridge/internal/logging"
	"reportbridge/internal/manifest"
	"reportbridge/internal/preflight"
	"reportbridge/internal/runs"
	"reportbridge/internal/services"
	"reportbridge/internal/window"
)

// Pipeline wires the exporter and importer to the run store.
type Pipeline struct {
	cfg      *config.Config
	store    *runs.Store
	exporter *exporter.Exporter
	importer *importer.Importer
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes the pipeline.
type Option func(*Pipeline)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New constructs a pipeline.
func New(cfg *config.Config, store *runs.Store, exp *exporter.Exporter, imp *importer.Importer, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	pipeline := &Pipeline{
		cfg:      cfg,
		store:    store,
		exporter: exp,
		importer: imp,
		logger:   logger.With(logging.String(logging.FieldComponent, "pipeline")),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(pipeline)
	}
	return pipeline
}

// Run executes the export and import halves for a flow.
func (p *Pipeline) Run(ctx context.Context, flow runs.Flow) (*runs.Run, error) {
	return p.execute(ctx, flow, true, true)
}

// Export executes only the export half, leaving the staged files and
// manifest for a later import.
func (p *Pipeline) Export(ctx context.Context, flow runs.Flow) (*runs.Run, error) {
	return p.execute(ctx, flow, true, false)
}

// Import executes only the import half against the manifest a previous
// export wrote.
func (p *Pipeline) Import(ctx context.Context, flow runs.Flow) (*runs.Run, error) {
	return p.execute(ctx, flow, false, true)
}

func (p *Pipeline) execute(ctx context.Context, flow runs.Flow, doExport, doImport bool) (*runs.Run, error) {
	// Everything local is checked before the first network call: credentials,
	// directories, and disk space.
	if doExport {
		if err := p.cfg.ValidateMovingPayCredentials(); err != nil {
			return nil, err
		}
	}
	if doImport {
		if err := p.cfg.ValidateGuenoCredentials(); err != nil {
			return nil, err
		}
	}
	if err := p.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	if results := preflight.RunAll(p.cfg); !preflight.Passed(results) {
		return nil, services.Wrap(services.ErrConfiguration, "", "preflight",
			describeFailures(results), nil)
	}

	lock := flock.New(p.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another run holds the lock at %s", p.cfg.LockPath())
	}
	defer func() { _ = lock.Unlock() }()

	win := window.Reference(p.now())
	runID := uuid.NewString()
	if _, err := p.store.Create(ctx, runID, flow, win.StartDate(), win.EndDate()); err != nil {
		return nil, err
	}
	tracker := runs.NewTracker(p.store, runID)

	ctx = services.WithRunID(ctx, runID)
	ctx = services.WithFlow(ctx, string(flow))
	log := logging.WithContext(ctx, p.logger)
	log.Info("run started",
		logging.String(logging.FieldEventType, "run_started"),
		logging.String("window", win.String()),
		logging.Bool("export", doExport),
		logging.Bool("import", doImport),
	)

	if err := p.executeStages(ctx, tracker, flow, win, doExport, doImport); err != nil {
		if failErr := tracker.Fail(ctx, err.Error()); failErr != nil {
			log.Error("record run failure", logging.Error(failErr))
		}
		log.Error("run failed", logging.String(logging.FieldEventType, "run_failed"), logging.Error(err))
		failed, getErr := p.store.GetByID(ctx, runID)
		if getErr != nil {
			return nil, err
		}
		return failed, err
	}

	if err := tracker.Advance(ctx, runs.StatusDone); err != nil {
		return nil, err
	}
	log.Info("run completed", logging.String(logging.FieldEventType, "run_completed"))
	return p.store.GetByID(ctx, runID)
}

func (p *Pipeline) executeStages(ctx context.Context, tracker *runs.Tracker, flow runs.Flow, win window.Window, doExport, doImport bool) error {
	var (
		m   *manifest.Manifest
		err error
	)

	if doExport {
		stageCtx := services.WithStage(ctx, "export")
		logging.WithContext(stageCtx, p.logger).Info("stage started",
			logging.String(logging.FieldEventType, "stage_started"))
		switch flow {
		case runs.FlowTransactions:
			m, err = p.exporter.RunTransactions(stageCtx, tracker, win)
		case runs.FlowFiles:
			m, err = p.exporter.RunFiles(stageCtx, tracker, win)
		default:
			return fmt.Errorf("unknown flow %q", flow)
		}
		if err != nil {
			return err
		}
	}

	if !doImport {
		return nil
	}
	if m == nil {
		m, err = manifest.Load(p.cfg.ManifestPath())
		if err != nil {
			return err
		}
	}

	stageCtx := services.WithStage(ctx, "import")
	logging.WithContext(stageCtx, p.logger).Info("stage started",
		logging.String(logging.FieldEventType, "stage_started"))
	switch flow {
	case runs.FlowTransactions:
		return p.importer.RunTransactions(stageCtx, tracker, m)
	case runs.FlowFiles:
		return p.importer.RunFiles(stageCtx, tracker, m)
	default:
		return fmt.Errorf("unknown flow %q", flow)
	}
}

func describeFailures(results []preflight.Result) string {
	var parts []string
	for _, result := range results {
		if result.Passed {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", result.Name, result.Detail))
	}
	return strings.Join(parts, "; ")
}
