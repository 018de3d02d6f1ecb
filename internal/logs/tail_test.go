package logs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeLog(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reportbridge.log")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestLastReturnsTrailingLines(t *testing.T) {
	path := writeLog(t, "one\ntwo\nthree\nfour\n")

	lines, offset, err := Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[0] != "three" || lines[1] != "four" {
		t.Fatalf("unexpected lines: %v", lines)
	}
	if offset == 0 {
		t.Fatal("expected non-zero offset after reading")
	}
}

func TestLastFewerLinesThanLimit(t *testing.T) {
	path := writeLog(t, "only\n")

	lines, _, err := Last(path, 10)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 1 || lines[0] != "only" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := Last(filepath.Join(t.TempDir(), "missing.log"), 5)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 0 || offset != 0 {
		t.Fatalf("expected empty result, got %v offset %d", lines, offset)
	}
}

func TestLastZeroLimitSeeksToEnd(t *testing.T) {
	path := writeLog(t, "a\nb\n")

	lines, offset, err := Last(path, 0)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected no lines, got %v", lines)
	}
	if offset != 4 {
		t.Fatalf("expected offset 4, got %d", offset)
	}
}

func TestFollowStreamsAppendedLines(t *testing.T) {
	path := writeLog(t, "old\n")

	_, offset, err := Last(path, 0)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	got := make(chan string, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, path, offset, func(line string) { got <- line })
	}()

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := file.WriteString("fresh\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	file.Close()

	select {
	case line := <-got:
		if line != "fresh" {
			t.Fatalf("unexpected line %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for appended line")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFollowHandlesTruncation(t *testing.T) {
	path := writeLog(t, "line one\nline two\n")

	_, offset, err := Last(path, 0)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	// Simulate rotation: the new file is shorter than the old offset.
	if err := os.WriteFile(path, []byte("rotated\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	lines, _, err := readFrom(path, offset)
	if err != nil {
		t.Fatalf("readFrom: %v", err)
	}
	if len(lines) != 1 || lines[0] != "rotated" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}
