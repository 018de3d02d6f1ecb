package exporter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"reportbridge/internal/logging"
	"reportbridge/internal/services"
	"reportbridge/internal/services/movingpay"
)

// awaitArtifact polls the file listing until an archive matching the prefix
// (and optional name token) appears. Report generation takes on the order of
// a minute, so an initial grace delay precedes the first probe; after that
// the poll interval backs off exponentially until the deadline.
func (e *Exporter) awaitArtifact(ctx context.Context, session *movingpay.Session, prefix, contains string) (movingpay.Artifact, error) {
	if grace := time.Duration(e.cfg.Workflow.ArtifactGraceSeconds) * time.Second; grace > 0 {
		e.logger.Info("waiting for report generation",
			logging.String("prefix", prefix),
			logging.Duration("grace", grace),
		)
		select {
		case <-ctx.Done():
			return movingpay.Artifact{}, ctx.Err()
		case <-time.After(grace):
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(e.cfg.Workflow.ArtifactPollInitialSeconds) * time.Second
	policy.MaxElapsedTime = time.Duration(e.cfg.Workflow.ArtifactPollMaxElapsedSeconds) * time.Second

	operation := func() (movingpay.Artifact, error) {
		artifacts, err := e.client.ListArtifacts(ctx, session)
		if err != nil {
			return movingpay.Artifact{}, backoff.Permanent(err)
		}
		artifact, err := movingpay.FindArtifact(artifacts, prefix, contains)
		if err != nil {
			e.logger.Debug("artifact not in listing yet", logging.String("prefix", prefix))
			return movingpay.Artifact{}, err
		}
		return artifact, nil
	}

	artifact, err := backoff.RetryWithData(operation, backoff.WithContext(policy, ctx))
	if err != nil {
		if errors.Is(err, services.ErrArtifactNotFound) {
			return movingpay.Artifact{}, services.Wrap(services.ErrArtifactNotReady, "export", "await artifact",
				fmt.Sprintf("%s archive never appeared before the polling deadline", prefix), err)
		}
		return movingpay.Artifact{}, err
	}
	e.logger.Info("artifact ready",
		logging.String("artifact", artifact.Name),
		logging.String("id", artifact.ID.String()),
	)
	return artifact, nil
}
