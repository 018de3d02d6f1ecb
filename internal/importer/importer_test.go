package importer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"reportbridge/internal/config"
	"reportbridge/internal/httpx"
	"reportbridge/internal/logging"
	"reportbridge/internal/manifest"
	"reportbridge/internal/services"
	"reportbridge/internal/services/gueno"
	"reportbridge/internal/testsupport"
)

// fakeCompliance simulates the destination platform's KYT endpoints.
type fakeCompliance struct {
	server *httptest.Server

	usersUploads        atomic.Int64
	transactionsUploads atomic.Int64
	verifyCalls         atomic.Int64
	// failUsersUpload rejects registration uploads.
	failUsersUpload bool
	// knownImports is what the import listing reports after an upload.
	knownImports []gueno.ImportItem
}

func newFakeCompliance(t *testing.T) *fakeCompliance {
	t.Helper()
	fake := &fakeCompliance{}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	})
	mux.HandleFunc("/api/kyt-import/users", func(w http.ResponseWriter, r *http.Request) {
		if fake.failUsersUpload {
			http.Error(w, "schema mismatch", http.StatusUnprocessableEntity)
			return
		}
		fake.usersUploads.Add(1)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/api/kyt-import/transactions", func(w http.ResponseWriter, r *http.Request) {
		fake.transactionsUploads.Add(1)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/api/kyt-import", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"items": fake.knownImports},
		})
	})
	mux.HandleFunc("/api/kyt/transactions/all/verify", func(w http.ResponseWriter, r *http.Request) {
		fake.verifyCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	fake.server = httptest.NewServer(mux)
	t.Cleanup(fake.server.Close)
	return fake
}

func newImporter(t *testing.T, fake *fakeCompliance) (*Importer, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Gueno.BaseURL = fake.server.URL

	httpClient := httpx.New(cfg.HTTP, logging.NewNop())
	client := gueno.New(cfg.Gueno, httpClient, logging.NewNop())
	return New(cfg, client, logging.NewNop()), cfg
}

func stageCSV(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("col\nval\n"), 0o644); err != nil {
		t.Fatalf("stage csv: %v", err)
	}
	return path
}

func TestRunFilesUploadsUsersBeforeTransactionsAndVerifies(t *testing.T) {
	fake := newFakeCompliance(t)
	imp, cfg := newImporter(t, fake)

	usersPath := stageCSV(t, cfg.RegistrationDir(), "ficha.csv")
	transactionsPath := stageCSV(t, cfg.CapturesDir(), "capturas.csv")
	fake.knownImports = []gueno.ImportItem{{ID: "item-9", OriginalName: "capturas.csv"}}

	m := manifest.New("run-1", "files", "2024-01-05", "2024-01-07")
	m.Set(manifest.KindUsers, usersPath, "GUENO.FICHACADASTRAL.tar.gz")
	m.Set(manifest.KindTransactions, transactionsPath, "GUENO.CAPTURAS.tar.gz")

	if err := imp.RunFiles(context.Background(), nil, m); err != nil {
		t.Fatalf("RunFiles: %v", err)
	}
	if fake.usersUploads.Load() != 1 || fake.transactionsUploads.Load() != 1 {
		t.Fatalf("uploads = %d users / %d transactions",
			fake.usersUploads.Load(), fake.transactionsUploads.Load())
	}
	if fake.verifyCalls.Load() != 1 {
		t.Fatalf("verify calls = %d, want 1", fake.verifyCalls.Load())
	}
}

func TestRunFilesRejectedUsersUploadBlocksTransactions(t *testing.T) {
	fake := newFakeCompliance(t)
	fake.failUsersUpload = true
	imp, cfg := newImporter(t, fake)

	usersPath := stageCSV(t, cfg.RegistrationDir(), "ficha.csv")
	transactionsPath := stageCSV(t, cfg.CapturesDir(), "capturas.csv")

	m := manifest.New("run-1", "files", "2024-01-05", "2024-01-07")
	m.Set(manifest.KindUsers, usersPath, "GUENO.FICHACADASTRAL.tar.gz")
	m.Set(manifest.KindTransactions, transactionsPath, "GUENO.CAPTURAS.tar.gz")

	err := imp.RunFiles(context.Background(), nil, m)
	if !errors.Is(err, services.ErrHTTPStatus) {
		t.Fatalf("error = %v, want ErrHTTPStatus", err)
	}
	if fake.transactionsUploads.Load() != 0 {
		t.Fatal("transactions uploaded despite rejected registration upload")
	}
	if fake.verifyCalls.Load() != 0 {
		t.Fatal("verification triggered despite rejected registration upload")
	}
}

func TestRunFilesWithoutUsersEntryUploadsCapturesOnly(t *testing.T) {
	fake := newFakeCompliance(t)
	imp, cfg := newImporter(t, fake)

	transactionsPath := stageCSV(t, cfg.CapturesDir(), "capturas.csv")
	fake.knownImports = []gueno.ImportItem{{ID: "item-3", OriginalName: "capturas.csv"}}

	m := manifest.New("run-1", "files", "2024-01-05", "2024-01-07")
	m.Set(manifest.KindTransactions, transactionsPath, "GUENO.CAPTURAS.tar.gz")

	if err := imp.RunFiles(context.Background(), nil, m); err != nil {
		t.Fatalf("RunFiles: %v", err)
	}
	if fake.usersUploads.Load() != 0 {
		t.Fatal("users upload attempted without a staged registration csv")
	}
	if fake.transactionsUploads.Load() != 1 || fake.verifyCalls.Load() != 1 {
		t.Fatalf("uploads = %d, verify = %d",
			fake.transactionsUploads.Load(), fake.verifyCalls.Load())
	}
}

func TestRunFilesUploadMissingFromListing(t *testing.T) {
	fake := newFakeCompliance(t)
	imp, cfg := newImporter(t, fake)

	transactionsPath := stageCSV(t, cfg.CapturesDir(), "capturas.csv")

	m := manifest.New("run-1", "files", "2024-01-05", "2024-01-07")
	m.Set(manifest.KindTransactions, transactionsPath, "GUENO.CAPTURAS.tar.gz")

	err := imp.RunFiles(context.Background(), nil, m)
	if !errors.Is(err, services.ErrMissingImport) {
		t.Fatalf("error = %v, want ErrMissingImport", err)
	}
	if fake.verifyCalls.Load() != 0 {
		t.Fatal("verification triggered for a file the listing does not know")
	}
}

func TestRunFilesRequiresTransactionsEntry(t *testing.T) {
	fake := newFakeCompliance(t)
	imp, cfg := newImporter(t, fake)

	usersPath := stageCSV(t, cfg.RegistrationDir(), "ficha.csv")
	m := manifest.New("run-1", "files", "2024-01-05", "2024-01-07")
	m.Set(manifest.KindUsers, usersPath, "GUENO.FICHACADASTRAL.tar.gz")

	err := imp.RunFiles(context.Background(), nil, m)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
}

func TestRunTransactionsUploadsBatch(t *testing.T) {
	fake := newFakeCompliance(t)
	imp, cfg := newImporter(t, fake)

	accountingPath := stageCSV(t, cfg.AccountingDir(), "contabil.csv")
	m := manifest.New("run-1", "transactions", "2024-01-08", "2024-01-08")
	m.Set(manifest.KindAccounting, accountingPath, "CONTABIL.tar.gz")

	if err := imp.RunTransactions(context.Background(), nil, m); err != nil {
		t.Fatalf("RunTransactions: %v", err)
	}
	if fake.transactionsUploads.Load() != 1 {
		t.Fatalf("transaction uploads = %d", fake.transactionsUploads.Load())
	}
	if fake.verifyCalls.Load() != 0 {
		t.Fatal("accounting flow must not trigger verification")
	}
}

func TestRunTransactionsMissingAccountingEntry(t *testing.T) {
	fake := newFakeCompliance(t)
	imp, _ := newImporter(t, fake)

	m := manifest.New("run-1", "transactions", "2024-01-08", "2024-01-08")
	err := imp.RunTransactions(context.Background(), nil, m)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
	if fake.transactionsUploads.Load() != 0 {
		t.Fatal("upload attempted without a staged accounting csv")
	}
}
