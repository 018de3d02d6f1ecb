package exporter

import (
	"context"

	"reportbridge/internal/archive"
	"reportbridge/internal/logging"
	"reportbridge/internal/manifest"
	"reportbridge/internal/runs"
	"reportbridge/internal/services/movingpay"
	"reportbridge/internal/window"
)

// accountingNestedDir is the subdirectory inside accounting archives that
// holds the generated CSV.
const accountingNestedDir = "capturas"

// RunTransactions exports the accounting report for the window and stages
// its CSV. A generated archive with no CSV payload is logged and leaves the
// manifest without an accounting entry; the import step surfaces that as a
// configuration failure.
func (e *Exporter) RunTransactions(ctx context.Context, tracker *runs.Tracker, win window.Window) (*manifest.Manifest, error) {
	log := e.logger.With(logging.String(logging.FieldFlow, string(runs.FlowTransactions)))
	log.Info("starting accounting export", logging.String("window", win.String()))

	session, err := e.client.Login(ctx)
	if err != nil {
		return nil, err
	}
	if err := advance(ctx, tracker, runs.StatusAuthenticated); err != nil {
		return nil, err
	}

	if err := e.client.RequestAccountingReport(ctx, session, win); err != nil {
		return nil, err
	}
	if err := advance(ctx, tracker, runs.StatusRequested); err != nil {
		return nil, err
	}

	if err := advance(ctx, tracker, runs.StatusAwaitingArtifact); err != nil {
		return nil, err
	}
	artifact, err := e.awaitArtifact(ctx, session, movingpay.PrefixAccounting, win.RangeToken())
	if err != nil {
		return nil, err
	}

	if err := advance(ctx, tracker, runs.StatusFetching); err != nil {
		return nil, err
	}
	archivePath, err := e.client.DownloadArchive(ctx, session, artifact, e.cfg.AccountingDir())
	if err != nil {
		return nil, err
	}

	if err := advance(ctx, tracker, runs.StatusExtracting); err != nil {
		return nil, err
	}
	promoted, err := archive.ExtractPromote(archivePath, e.cfg.AccountingDir(), accountingNestedDir, ".csv")
	if err != nil {
		return nil, err
	}

	m := manifest.New(tracker.RunID(), string(runs.FlowTransactions), win.StartDate(), win.EndDate())
	if promoted == "" {
		log.Warn("accounting archive contained no csv payload", logging.String("artifact", artifact.Name))
	} else {
		m.Set(manifest.KindAccounting, promoted, artifact.Name)
		log.Info("accounting csv staged", logging.String("path", promoted))
	}
	if err := manifest.Write(e.cfg.ManifestPath(), m); err != nil {
		return nil, err
	}
	return m, nil
}
