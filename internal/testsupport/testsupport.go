// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"reportbridge/internal/config"
	"reportbridge/internal/runs"
)

// NewConfig returns a validated configuration rooted in temp directories
// with fake credentials and timings tightened for tests.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()

	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.MovingPay.Email = "ops@example.com"
	cfg.MovingPay.Password = "secret"
	cfg.Gueno.Email = "compliance@example.com"
	cfg.Gueno.Password = "secret"
	cfg.Gueno.ClientKey = "key-abc"
	cfg.HTTP.ConnectTimeoutSeconds = 1
	cfg.HTTP.RequestTimeoutSeconds = 5
	cfg.HTTP.RetryAttempts = 1
	cfg.HTTP.RetryWaitSeconds = 0
	cfg.Workflow.ArtifactGraceSeconds = 0
	cfg.Workflow.ArtifactPollInitialSeconds = 0
	cfg.Workflow.ArtifactPollMaxElapsedSeconds = 1
	cfg.Workflow.MinFreeMB = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	return &cfg
}

// MustOpenStore opens a run store against the test config and closes it when
// the test ends.
func MustOpenStore(t *testing.T, cfg *config.Config) *runs.Store {
	t.Helper()
	store, err := runs.Open(cfg)
	if err != nil {
		t.Fatalf("open run store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// ArchiveEntry is one member of a fixture archive.
type ArchiveEntry struct {
	Name string
	Body string
	Dir  bool
}

// WriteArchive writes a tar.gz fixture and returns its contents as bytes.
func WriteArchive(t *testing.T, entries []ArchiveEntry) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.tar.gz")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture archive: %v", err)
	}
	gz := gzip.NewWriter(file)
	tw := tar.NewWriter(gz)
	for _, entry := range entries {
		header := &tar.Header{Name: entry.Name, Mode: 0o644}
		if entry.Dir {
			header.Typeflag = tar.TypeDir
			header.Mode = 0o755
		} else {
			header.Typeflag = tar.TypeReg
			header.Size = int64(len(entry.Body))
		}
		if err := tw.WriteHeader(header); err != nil {
			t.Fatalf("write fixture header %s: %v", entry.Name, err)
		}
		if !entry.Dir {
			if _, err := tw.Write([]byte(entry.Body)); err != nil {
				t.Fatalf("write fixture body %s: %v", entry.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close fixture tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close fixture gzip writer: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close fixture file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture archive: %v", err)
	}
	return data
}
