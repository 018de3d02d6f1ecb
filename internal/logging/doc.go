// Package logging assembles the structured slog loggers used across the
// pipeline.
//
// It owns the text/JSON handler plumbing, level parsing, and file routing,
// and exposes context-aware helpers so stage code automatically tags log
// lines with run IDs, flows, and stages. A no-op logger is provided for
// tests and wiring code that cannot fail.
package logging
