package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks connection and timeout failures that the HTTP layer
	// retries before surfacing.
	ErrTransient = errors.New("transient network failure")
	// ErrHTTPStatus marks a non-2xx platform response. Never retried.
	ErrHTTPStatus = errors.New("http status error")
	// ErrAuthentication marks a rejected login or a login response missing
	// the expected token and identifier fields.
	ErrAuthentication = errors.New("authentication error")
	// ErrArtifactNotFound marks a listing that contained no artifact matching
	// the requested report. Severity depends on the report kind.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrArtifactNotReady marks an artifact that never appeared before the
	// polling deadline elapsed; the platform may still be generating it.
	ErrArtifactNotReady = errors.New("artifact not ready")
	// ErrDownload marks a download-URL resolution that produced no usable URL.
	ErrDownload = errors.New("download error")
	// ErrNoPayload marks an archive containing no safe member of the expected kind.
	ErrNoPayload = errors.New("no valid payload in archive")
	// ErrMissingImport marks an acknowledged upload that the destination's
	// import listing does not know about.
	ErrMissingImport = errors.New("uploaded file missing from import listing")
	// ErrConfiguration marks missing or unusable configuration, detected
	// before any network activity.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
