// Package importer drives the destination-platform half of a pipeline run:
// read the export manifest, upload the staged CSVs, and trigger transaction
// verification.
package importer

import (
	"context"
	"log/slog"
	"path/filepath"

	"reportbridge/internal/config"
	"reportbridge/internal/logging"
	"reportbridge/internal/manifest"
	"reportbridge/internal/runs"
	"reportbridge/internal/services/gueno"
)

// Importer runs import flows against the compliance platform.
type Importer struct {
	cfg    *config.Config
	client *gueno.Client
	logger *slog.Logger
}

// New constructs an importer.
func New(cfg *config.Config, client *gueno.Client, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Importer{
		cfg:    cfg,
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, "importer")),
	}
}

// RunTransactions uploads the staged accounting CSV as a transaction batch.
// The batch is processed by the platform's own scheduler; no explicit
// verification call is needed for this flow.
func (i *Importer) RunTransactions(ctx context.Context, tracker *runs.Tracker, m *manifest.Manifest) error {
	log := i.logger.With(logging.String(logging.FieldFlow, string(runs.FlowTransactions)))

	entry, err := m.Require(manifest.KindAccounting)
	if err != nil {
		return err
	}

	session, err := i.client.Login(ctx)
	if err != nil {
		return err
	}
	if err := tracker.Advance(ctx, runs.StatusImporting); err != nil {
		return err
	}
	if err := i.client.UploadFile(ctx, session, gueno.ImportTransactions, entry.Path); err != nil {
		return err
	}
	log.Info("accounting batch uploaded", logging.String("file", filepath.Base(entry.Path)))
	return nil
}

// RunFiles uploads the staged registration CSV (when the export produced
// one) and then the captures CSV, and triggers verification of the captures
// batch. The registration upload gates the captures upload: stale merchant
// data must never be paired with fresh transactions.
func (i *Importer) RunFiles(ctx context.Context, tracker *runs.Tracker, m *manifest.Manifest) error {
	log := i.logger.With(logging.String(logging.FieldFlow, string(runs.FlowFiles)))

	transactions, err := m.Require(manifest.KindTransactions)
	if err != nil {
		return err
	}

	session, err := i.client.Login(ctx)
	if err != nil {
		return err
	}
	if err := tracker.Advance(ctx, runs.StatusImporting); err != nil {
		return err
	}

	if users, ok := m.Lookup(manifest.KindUsers); ok {
		if err := i.client.UploadFile(ctx, session, gueno.ImportUsers, users.Path); err != nil {
			return err
		}
		log.Info("registration batch uploaded", logging.String("file", filepath.Base(users.Path)))
	} else {
		log.Warn("no registration export staged, uploading captures only")
	}

	if err := i.client.UploadFile(ctx, session, gueno.ImportTransactions, transactions.Path); err != nil {
		return err
	}
	log.Info("captures batch uploaded", logging.String("file", filepath.Base(transactions.Path)))

	// Large uploads can outlive the token; refresh before the verify calls.
	session, err = i.client.Refresh(ctx, session)
	if err != nil {
		return err
	}

	item, err := i.client.FindImportItem(ctx, session, filepath.Base(transactions.Path))
	if err != nil {
		return err
	}
	if err := i.client.VerifyImport(ctx, session, item.ID); err != nil {
		return err
	}
	log.Info("captures batch verification triggered", logging.String("item_id", item.ID))
	return nil
}
