// Package manifest records which staged data files an export run produced
// so the import side reads explicit state instead of guessing from
// directory listings.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"reportbridge/internal/services"
)

// Kind names a staged payload category.
type Kind string

const (
	KindAccounting   Kind = "accounting"
	KindTransactions Kind = "transactions"
	KindUsers        Kind = "users"
)

// Entry describes one staged data file.
type Entry struct {
	Path       string    `toml:"path"`
	SourceName string    `toml:"source_name"`
	ExportedAt time.Time `toml:"exported_at"`
}

// Manifest maps payload kinds to the files the last export produced. Kinds
// absent from the map were not exported in that run.
type Manifest struct {
	RunID     string         `toml:"run_id"`
	Flow      string         `toml:"flow"`
	StartDate string         `toml:"start_date"`
	EndDate   string         `toml:"end_date"`
	WrittenAt time.Time      `toml:"written_at"`
	Entries   map[Kind]Entry `toml:"entries"`
}

// New returns an empty manifest for the given run.
func New(runID, flow, startDate, endDate string) *Manifest {
	return &Manifest{
		RunID:     runID,
		Flow:      flow,
		StartDate: startDate,
		EndDate:   endDate,
		Entries:   make(map[Kind]Entry),
	}
}

// Set records a staged file for a payload kind.
func (m *Manifest) Set(kind Kind, path, sourceName string) {
	if m.Entries == nil {
		m.Entries = make(map[Kind]Entry)
	}
	m.Entries[kind] = Entry{
		Path:       path,
		SourceName: sourceName,
		ExportedAt: time.Now().UTC(),
	}
}

// Lookup returns the entry for a kind if the export produced one.
func (m *Manifest) Lookup(kind Kind) (Entry, bool) {
	entry, ok := m.Entries[kind]
	return entry, ok
}

// Require returns the entry for a kind or a configuration error naming the
// missing payload.
func (m *Manifest) Require(kind Kind) (Entry, error) {
	entry, ok := m.Entries[kind]
	if !ok {
		return Entry{}, services.Wrap(services.ErrConfiguration, "", "read manifest",
			fmt.Sprintf("manifest has no %s entry; run the export first", kind), nil)
	}
	return entry, nil
}

// Write persists the manifest atomically via a temp file rename.
func Write(path string, m *Manifest) error {
	m.WrittenAt = time.Now().UTC()
	data, err := toml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

// Load reads a manifest written by a previous export run.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrConfiguration, "", "read manifest",
				"no manifest found; run the export first", err)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Entries == nil {
		m.Entries = make(map[Kind]Entry)
	}
	return &m, nil
}
