package runs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"reportbridge/internal/config"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	store, err := Open(&cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndAdvance(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	run, err := store.Create(ctx, "run-1", FlowFiles, "2024-01-05", "2024-01-07")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if run.Status != StatusInit {
		t.Fatalf("new run status = %s", run.Status)
	}
	if run.Flow != FlowFiles {
		t.Fatalf("new run flow = %s", run.Flow)
	}

	if err := store.SetStatus(ctx, "run-1", StatusAuthenticated); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	updated, err := store.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != StatusAuthenticated {
		t.Fatalf("status = %s, want authenticated", updated.Status)
	}
	if updated.UpdatedAt.Before(run.UpdatedAt) {
		t.Fatal("updated_at did not advance")
	}
}

func TestFailRecordsMessage(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "run-2", FlowTransactions, "2024-01-09", "2024-01-09"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Fail(ctx, "run-2", "captures artifact never became ready"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	run, err := store.GetByID(ctx, "run-2")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if run.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", run.Status)
	}
	if run.ErrorMessage == "" {
		t.Fatal("error message not recorded")
	}
	if !run.Status.Terminal() {
		t.Fatal("failed status should be terminal")
	}
}

func TestListNewestFirst(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Create(ctx, id, FlowFiles, "2024-01-05", "2024-01-07"); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	listed, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("listed %d runs, want 2", len(listed))
	}
}

func TestUnknownRun(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("GetByID error = %v, want ErrRunNotFound", err)
	}
	if err := store.SetStatus(ctx, "missing", StatusDone); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("SetStatus error = %v, want ErrRunNotFound", err)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := ParseStatus(" Awaiting_Artifact "); !ok || status != StatusAwaitingArtifact {
		t.Fatalf("ParseStatus = %s/%v", status, ok)
	}
	if _, ok := ParseStatus("bogus"); ok {
		t.Fatal("bogus status accepted")
	}
}
