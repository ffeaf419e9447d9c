// Package jsonfile keeps the usage ledger in a single JSON document
// (usage_log.json), the on-disk format used by earlier deployments:
//
//	{"<userId>": {"totalCalls": 3, "totalCost": 0.12, "lastActive": "2024-03-01T10:00:00Z", "id": "<uuid>"}}
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/ashita-ai/bunrui/internal/model"
)

// DefaultPath is the ledger file name used when none is configured.
const DefaultPath = "usage_log.json"

// LedgerStore implements usage.Store on one JSON file. It does no locking of
// its own: callers (usage.Ledger) serialize load-modify-save.
type LedgerStore struct {
	fs   afero.Fs
	path string
}

// Open returns a store for path on fsys, creating the file as "{}" if it
// does not exist.
func Open(fsys afero.Fs, path string) (*LedgerStore, error) {
	if path == "" {
		path = DefaultPath
	}
	s := &LedgerStore{fs: fsys, path: path}

	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("jsonfile: stat %s: %w", path, err)
	}
	if !exists {
		if dir := filepath.Dir(path); dir != "." {
			if err := fsys.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("jsonfile: create dir: %w", err)
			}
		}
		if err := afero.WriteFile(fsys, path, []byte("{}"), 0o644); err != nil {
			return nil, fmt.Errorf("jsonfile: create %s: %w", path, err)
		}
	}
	return s, nil
}

// OpenOS opens path on the local filesystem.
func OpenOS(path string) (*LedgerStore, error) {
	return Open(afero.NewOsFs(), path)
}

// Path returns the ledger file path.
func (s *LedgerStore) Path() string { return s.path }

// LoadLedger reads and decodes the whole file. An empty file is an empty
// ledger; invalid JSON is a persistence failure.
func (s *LedgerStore) LoadLedger(context.Context) (model.UsageLedger, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, fmt.Errorf("jsonfile: read %s: %w: %w", s.path, model.ErrPersistence, err)
	}
	ledger := make(model.UsageLedger)
	if len(bytes.TrimSpace(data)) == 0 {
		return ledger, nil
	}
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("jsonfile: decode %s: %w: %w", s.path, model.ErrPersistence, err)
	}
	return ledger, nil
}

// SaveLedger rewrites the file. The new content is written to a sibling
// temp file and renamed over the original, so readers never see a torn file.
func (s *LedgerStore) SaveLedger(_ context.Context, ledger model.UsageLedger) error {
	if ledger == nil {
		ledger = model.UsageLedger{}
	}
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile: encode: %w", err)
	}

	tmp := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("jsonfile: write %s: %w: %w", tmp, model.ErrPersistence, err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("jsonfile: replace %s: %w: %w", s.path, model.ErrPersistence, err)
	}
	return nil
}
