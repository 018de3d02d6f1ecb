package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"reportbridge/internal/services"
)

type tarEntry struct {
	name string
	body string
	dir  bool
}

func writeArchive(t *testing.T, path string, entries []tarEntry) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer file.Close()
	gz := gzip.NewWriter(file)
	tw := tar.NewWriter(gz)
	for _, entry := range entries {
		header := &tar.Header{Name: entry.name, Mode: 0o644}
		if entry.dir {
			header.Typeflag = tar.TypeDir
			header.Mode = 0o755
		} else {
			header.Typeflag = tar.TypeReg
			header.Size = int64(len(entry.body))
		}
		if err := tw.WriteHeader(header); err != nil {
			t.Fatalf("write header %s: %v", entry.name, err)
		}
		if !entry.dir {
			if _, err := tw.Write([]byte(entry.body)); err != nil {
				t.Fatalf("write body %s: %v", entry.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
}

func TestExtractSinglePurgesStaleFilesAndRemovesArchive(t *testing.T) {
	dest := t.TempDir()
	stale := filepath.Join(dest, "old-report.csv")
	if err := os.WriteFile(stale, []byte("stale"), 0o644); err != nil {
		t.Fatalf("write stale file: %v", err)
	}

	archivePath := filepath.Join(t.TempDir(), "report.tar.gz")
	writeArchive(t, archivePath, []tarEntry{
		{name: "nested/report.csv", body: "fresh"},
	})

	extracted, err := ExtractSingle(archivePath, dest, ".csv")
	if err != nil {
		t.Fatalf("ExtractSingle: %v", err)
	}
	if filepath.Base(extracted) != "report.csv" {
		t.Fatalf("extracted to %s, want base name report.csv", extracted)
	}
	data, err := os.ReadFile(extracted)
	if err != nil {
		t.Fatalf("read extracted: %v", err)
	}
	if string(data) != "fresh" {
		t.Fatalf("extracted content %q, want fresh", data)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale file still present: %v", err)
	}
	if _, err := os.Stat(archivePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("archive still present: %v", err)
	}
}

func TestExtractSingleSkipsUnsafeMembers(t *testing.T) {
	dest := t.TempDir()
	archivePath := filepath.Join(t.TempDir(), "report.tar.gz")
	writeArchive(t, archivePath, []tarEntry{
		{name: "/etc/evil.csv", body: "evil"},
		{name: "../escape.csv", body: "evil"},
		{name: "sub/../../escape.csv", body: "evil"},
		{name: "good/report.csv", body: "ok"},
	})

	extracted, err := ExtractSingle(archivePath, dest, ".csv")
	if err != nil {
		t.Fatalf("ExtractSingle: %v", err)
	}
	if filepath.Base(extracted) != "report.csv" {
		t.Fatalf("extracted %s, want report.csv", extracted)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dest), "escape.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("unsafe member escaped the destination directory")
	}
}

func TestExtractSingleNoPayload(t *testing.T) {
	dest := t.TempDir()
	archivePath := filepath.Join(t.TempDir(), "report.tar.gz")
	writeArchive(t, archivePath, []tarEntry{
		{name: "readme.txt", body: "nothing here"},
	})

	_, err := ExtractSingle(archivePath, dest, ".csv")
	if !errors.Is(err, services.ErrNoPayload) {
		t.Fatalf("error = %v, want ErrNoPayload", err)
	}
	if _, statErr := os.Stat(archivePath); statErr != nil {
		t.Fatalf("archive should remain when no payload extracted: %v", statErr)
	}
}

func TestExtractPromoteMovesNestedFileAndCleansUp(t *testing.T) {
	dest := t.TempDir()
	archivePath := filepath.Join(t.TempDir(), "captures.tar.gz")
	writeArchive(t, archivePath, []tarEntry{
		{name: "capturas", dir: true},
		{name: "capturas/transactions.csv", body: "rows"},
		{name: "capturas/notes.txt", body: "ignore"},
	})

	promoted, err := ExtractPromote(archivePath, dest, "capturas", ".csv")
	if err != nil {
		t.Fatalf("ExtractPromote: %v", err)
	}
	if promoted != filepath.Join(dest, "transactions.csv") {
		t.Fatalf("promoted to %s", promoted)
	}
	data, err := os.ReadFile(promoted)
	if err != nil {
		t.Fatalf("read promoted: %v", err)
	}
	if string(data) != "rows" {
		t.Fatalf("promoted content %q", data)
	}
	if _, err := os.Stat(filepath.Join(dest, "capturas")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("nested directory should be removed")
	}
	if _, err := os.Stat(archivePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("archive should be removed")
	}
}

func TestExtractPromoteMissingNestedDirIsNotFatal(t *testing.T) {
	dest := t.TempDir()
	archivePath := filepath.Join(t.TempDir(), "captures.tar.gz")
	writeArchive(t, archivePath, []tarEntry{
		{name: "readme.txt", body: "no captures this window"},
	})

	promoted, err := ExtractPromote(archivePath, dest, "capturas", ".csv")
	if err != nil {
		t.Fatalf("ExtractPromote: %v", err)
	}
	if promoted != "" {
		t.Fatalf("promoted = %q, want empty", promoted)
	}
}
