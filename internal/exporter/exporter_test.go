package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"reportbridge/internal/config"
	"reportbridge/internal/httpx"
	"reportbridge/internal/logging"
	"reportbridge/internal/manifest"
	"reportbridge/internal/services"
	"reportbridge/internal/services/movingpay"
	"reportbridge/internal/testsupport"
	"reportbridge/internal/window"
)

// fakePlatform simulates the source platform: login, report generation
// requests, the artifact listing, and archive downloads.
type fakePlatform struct {
	t         *testing.T
	server    *httptest.Server
	artifacts []movingpay.Artifact
	archives  map[string][]byte

	listingCalls   atomic.Int64
	reportRequests atomic.Int64
	// listingDelay hides artifacts from this many initial listing calls.
	listingDelay int64
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	fake := &fakePlatform{t: t, archives: make(map[string][]byte)}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v3/acessar", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok", "customer_id": 42, "user_id": 7,
		})
	})
	reportHandler := func(w http.ResponseWriter, r *http.Request) {
		fake.reportRequests.Add(1)
		w.WriteHeader(http.StatusOK)
	}
	mux.HandleFunc("/excel/contabil", reportHandler)
	mux.HandleFunc("/csv/customized/gueno/capturas", reportHandler)
	mux.HandleFunc("/csv/customized/gueno/estabelecimentos/ficha-cadastral", reportHandler)

	mux.HandleFunc("/api/v3/arquivos", func(w http.ResponseWriter, r *http.Request) {
		calls := fake.listingCalls.Add(1)
		listed := fake.artifacts
		if calls <= fake.listingDelay {
			listed = nil
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": listed})
	})
	mux.HandleFunc("/api/v3/arquivos/download", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("nome")
		if _, ok := fake.archives[name]; !ok {
			http.Error(w, "unknown archive", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"url": fake.server.URL + "/storage/" + name})
	})
	mux.HandleFunc("/storage/", func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(r.URL.Path)
		data, ok := fake.archives[name]
		if !ok {
			http.Error(w, "blob missing", http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	})

	fake.server = httptest.NewServer(mux)
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakePlatform) addArtifact(name string, id int, data []byte) {
	f.artifacts = append(f.artifacts, movingpay.Artifact{
		Name:      name,
		Directory: "reports/x",
		ID:        json.Number(strconv.Itoa(id)),
	})
	f.archives[name] = data
}

func newExporter(t *testing.T, fake *fakePlatform) (*Exporter, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.MovingPay.BaseURL = fake.server.URL
	cfg.MovingPay.ReportsURL = fake.server.URL

	httpClient := httpx.New(cfg.HTTP, logging.NewNop())
	client := movingpay.New(cfg.MovingPay, httpClient, logging.NewNop())
	return New(cfg, client, logging.NewNop()), cfg
}

func referenceWindow() window.Window {
	return window.Reference(time.Date(2024, time.January, 9, 8, 0, 0, 0, time.UTC))
}

func TestRunTransactionsStagesAccountingCSV(t *testing.T) {
	fake := newFakePlatform(t)
	win := referenceWindow()
	data := testsupport.WriteArchive(t, []testsupport.ArchiveEntry{
		{Name: "capturas", Dir: true},
		{Name: "capturas/contabil.csv", Body: "header\nrow\n"},
	})
	fake.addArtifact("CONTABIL."+win.RangeToken()+".tar.gz", 3, data)
	fake.listingDelay = 2

	exp, cfg := newExporter(t, fake)
	m, err := exp.RunTransactions(context.Background(), nil, win)
	if err != nil {
		t.Fatalf("RunTransactions: %v", err)
	}

	entry, ok := m.Lookup(manifest.KindAccounting)
	if !ok {
		t.Fatal("manifest has no accounting entry")
	}
	content, err := os.ReadFile(entry.Path)
	if err != nil {
		t.Fatalf("read staged csv: %v", err)
	}
	if string(content) != "header\nrow\n" {
		t.Fatalf("staged csv = %q", content)
	}
	if fake.listingCalls.Load() < 3 {
		t.Fatalf("listing polled %d times, want at least 3", fake.listingCalls.Load())
	}
	if fake.reportRequests.Load() != 1 {
		t.Fatalf("report requested %d times", fake.reportRequests.Load())
	}

	loaded, err := manifest.Load(cfg.ManifestPath())
	if err != nil {
		t.Fatalf("reload manifest: %v", err)
	}
	if _, ok := loaded.Lookup(manifest.KindAccounting); !ok {
		t.Fatal("persisted manifest has no accounting entry")
	}
	// The downloaded archive must not linger after extraction.
	entries, err := os.ReadDir(cfg.AccountingDir())
	if err != nil {
		t.Fatalf("read accounting dir: %v", err)
	}
	for _, dirEntry := range entries {
		if filepath.Ext(dirEntry.Name()) == ".gz" {
			t.Fatalf("archive left behind: %s", dirEntry.Name())
		}
	}
}

func TestRunTransactionsEmptyArchiveOmitsManifestEntry(t *testing.T) {
	fake := newFakePlatform(t)
	win := referenceWindow()
	data := testsupport.WriteArchive(t, []testsupport.ArchiveEntry{
		{Name: "readme.txt", Body: "no rows today"},
	})
	fake.addArtifact("CONTABIL."+win.RangeToken()+".tar.gz", 1, data)

	exp, _ := newExporter(t, fake)
	m, err := exp.RunTransactions(context.Background(), nil, win)
	if err != nil {
		t.Fatalf("RunTransactions: %v", err)
	}
	if _, ok := m.Lookup(manifest.KindAccounting); ok {
		t.Fatal("empty archive should leave no accounting entry")
	}
}

func TestRunTransactionsArtifactNeverReady(t *testing.T) {
	fake := newFakePlatform(t)
	win := referenceWindow()
	// An artifact for a different window never satisfies the range token.
	data := testsupport.WriteArchive(t, []testsupport.ArchiveEntry{
		{Name: "capturas/old.csv", Body: "stale"},
	})
	fake.addArtifact("CONTABIL.01.01.2024A02.01.2024.tar.gz", 5, data)

	exp, _ := newExporter(t, fake)
	_, err := exp.RunTransactions(context.Background(), nil, win)
	if !errors.Is(err, services.ErrArtifactNotReady) {
		t.Fatalf("error = %v, want ErrArtifactNotReady", err)
	}
}

func TestRunFilesStagesBothCSVs(t *testing.T) {
	fake := newFakePlatform(t)
	win := referenceWindow()
	fake.addArtifact("GUENO.FICHACADASTRAL.tar.gz", 1, testsupport.WriteArchive(t, []testsupport.ArchiveEntry{
		{Name: "ficha.csv", Body: "merchants\n"},
	}))
	fake.addArtifact("GUENO.CAPTURAS.tar.gz", 2, testsupport.WriteArchive(t, []testsupport.ArchiveEntry{
		{Name: "capturas.csv", Body: "transactions\n"},
	}))

	exp, cfg := newExporter(t, fake)
	m, err := exp.RunFiles(context.Background(), nil, win)
	if err != nil {
		t.Fatalf("RunFiles: %v", err)
	}
	users, ok := m.Lookup(manifest.KindUsers)
	if !ok {
		t.Fatal("manifest has no users entry")
	}
	if filepath.Dir(users.Path) != cfg.RegistrationDir() {
		t.Fatalf("users staged in %s", users.Path)
	}
	transactions, ok := m.Lookup(manifest.KindTransactions)
	if !ok {
		t.Fatal("manifest has no transactions entry")
	}
	if filepath.Dir(transactions.Path) != cfg.CapturesDir() {
		t.Fatalf("transactions staged in %s", transactions.Path)
	}
	if fake.reportRequests.Load() != 2 {
		t.Fatalf("report requests = %d, want 2", fake.reportRequests.Load())
	}
}

func TestRunFilesMissingRegistrationIsTolerated(t *testing.T) {
	fake := newFakePlatform(t)
	win := referenceWindow()
	fake.addArtifact("GUENO.CAPTURAS.tar.gz", 2, testsupport.WriteArchive(t, []testsupport.ArchiveEntry{
		{Name: "capturas.csv", Body: "transactions\n"},
	}))

	exp, _ := newExporter(t, fake)
	m, err := exp.RunFiles(context.Background(), nil, win)
	if err != nil {
		t.Fatalf("RunFiles: %v", err)
	}
	if _, ok := m.Lookup(manifest.KindUsers); ok {
		t.Fatal("users entry present despite missing registration archive")
	}
	if _, ok := m.Lookup(manifest.KindTransactions); !ok {
		t.Fatal("transactions entry missing")
	}
}

func TestRunFilesMissingCapturesFails(t *testing.T) {
	fake := newFakePlatform(t)
	win := referenceWindow()
	fake.addArtifact("GUENO.FICHACADASTRAL.tar.gz", 1, testsupport.WriteArchive(t, []testsupport.ArchiveEntry{
		{Name: "ficha.csv", Body: "merchants\n"},
	}))

	exp, _ := newExporter(t, fake)
	_, err := exp.RunFiles(context.Background(), nil, win)
	if !errors.Is(err, services.ErrArtifactNotReady) {
		t.Fatalf("error = %v, want ErrArtifactNotReady", err)
	}
}
