package exporter

import (
	"context"
	"errors"

	"reportbridge/internal/archive"
	"reportbridge/internal/logging"
	"reportbridge/internal/manifest"
	"reportbridge/internal/runs"
	"reportbridge/internal/services"
	"reportbridge/internal/services/movingpay"
	"reportbridge/internal/window"
)

// RunFiles exports the merchant registration and capture reports for the
// window. The registration archive is optional: when it never materializes
// the run continues with captures only. A missing captures archive fails the
// run, since the import side has nothing to process without it.
func (e *Exporter) RunFiles(ctx context.Context, tracker *runs.Tracker, win window.Window) (*manifest.Manifest, error) {
	log := e.logger.With(logging.String(logging.FieldFlow, string(runs.FlowFiles)))
	log.Info("starting file exports", logging.String("window", win.String()))

	session, err := e.client.Login(ctx)
	if err != nil {
		return nil, err
	}
	if err := advance(ctx, tracker, runs.StatusAuthenticated); err != nil {
		return nil, err
	}

	// Registration is requested first so both reports generate in parallel
	// while we wait.
	if err := e.client.RequestRegistrationReport(ctx, session, win); err != nil {
		return nil, err
	}
	if err := e.client.RequestCapturesReport(ctx, session, win); err != nil {
		return nil, err
	}
	if err := advance(ctx, tracker, runs.StatusRequested); err != nil {
		return nil, err
	}

	if err := advance(ctx, tracker, runs.StatusAwaitingArtifact); err != nil {
		return nil, err
	}
	m := manifest.New(tracker.RunID(), string(runs.FlowFiles), win.StartDate(), win.EndDate())

	registration, regErr := e.awaitArtifact(ctx, session, movingpay.PrefixRegistration, "")
	if regErr != nil {
		if !errors.Is(regErr, services.ErrArtifactNotReady) {
			return nil, regErr
		}
		log.Warn("registration archive not available, continuing with captures only",
			logging.Error(regErr))
	}
	captures, err := e.awaitArtifact(ctx, session, movingpay.PrefixCaptures, "")
	if err != nil {
		return nil, err
	}

	if err := advance(ctx, tracker, runs.StatusFetching); err != nil {
		return nil, err
	}
	if err := advance(ctx, tracker, runs.StatusExtracting); err != nil {
		return nil, err
	}

	if regErr == nil {
		usersPath, err := e.fetchAndExtract(ctx, session, registration, e.cfg.RegistrationDir())
		if err != nil {
			return nil, err
		}
		m.Set(manifest.KindUsers, usersPath, registration.Name)
		log.Info("registration csv staged", logging.String("path", usersPath))
	}

	transactionsPath, err := e.fetchAndExtract(ctx, session, captures, e.cfg.CapturesDir())
	if err != nil {
		return nil, err
	}
	m.Set(manifest.KindTransactions, transactionsPath, captures.Name)
	log.Info("captures csv staged", logging.String("path", transactionsPath))

	if err := manifest.Write(e.cfg.ManifestPath(), m); err != nil {
		return nil, err
	}
	return m, nil
}

// fetchAndExtract downloads one archive and extracts its single CSV into
// destDir.
func (e *Exporter) fetchAndExtract(ctx context.Context, session *movingpay.Session, artifact movingpay.Artifact, destDir string) (string, error) {
	archivePath, err := e.client.DownloadArchive(ctx, session, artifact, destDir)
	if err != nil {
		return "", err
	}
	return archive.ExtractSingle(archivePath, destDir, ".csv")
}
