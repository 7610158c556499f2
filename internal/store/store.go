// Package store persists plan state as JSON documents on the local
// filesystem. Each plan serializes to one document (plan-<id>.json) and
// a separate lightweight index (plans-index.json) allows listing without
// parsing every plan file.
//
// The store is deliberately forgiving on the read path: a missing or
// corrupt document loads as absent (logged, never an error escape), and
// LoadAll skips individually corrupt files rather than aborting the
// whole load. On the write path the storage directory is re-ensured
// before every write, tolerating external deletion between calls, and
// documents are written atomically via temp file and rename.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/plandeck/plandeck/internal/errors"
	"github.com/plandeck/plandeck/internal/logging"
	"github.com/plandeck/plandeck/internal/model"
)

const (
	planFilePrefix = "plan-"
	planFileSuffix = ".json"
	indexFileName  = "plans-index.json"
)

// Store is a durable JSON-document store for plan state.
// All methods are safe for concurrent use.
type Store struct {
	dir string
	log *logging.Logger
	mu  sync.Mutex
}

// New creates a Store rooted at dir. The directory is created if needed.
func New(dir string, log *logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.NopLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewStoreError("failed to create storage directory", err).WithPath(dir)
	}
	return &Store{dir: dir, log: log}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// planPath returns the document path for a plan id.
func (s *Store) planPath(id string) string {
	return filepath.Join(s.dir, planFilePrefix+id+planFileSuffix)
}

// Save persists a plan document and updates the index. The storage
// directory is re-created if something deleted it since the last call.
func (s *Store) Save(plan *model.PlanInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.NewStoreError("failed to ensure storage directory", err).WithPath(s.dir)
	}

	doc := toDocument(plan)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.NewStoreError("failed to encode plan document", err).WithPath(s.planPath(plan.ID))
	}
	if err := atomicWrite(s.planPath(plan.ID), data); err != nil {
		return errors.NewStoreError("failed to write plan document", err).WithPath(s.planPath(plan.ID))
	}

	return s.updateIndexLocked(func(entries []IndexEntry) []IndexEntry {
		for i := range entries {
			if entries[i].ID == plan.ID {
				entries[i].Name = plan.Spec.Name
				entries[i].CreatedAt = plan.CreatedAt
				return entries
			}
		}
		return append(entries, IndexEntry{ID: plan.ID, Name: plan.Spec.Name, CreatedAt: plan.CreatedAt})
	})
}

// Load retrieves a plan by id. A missing or corrupt document returns
// (nil, nil): the failure is logged and the plan is treated as absent.
func (s *Store) Load(id string) (*model.PlanInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(id), nil
}

// loadLocked reads one plan document, returning nil on any failure.
func (s *Store) loadLocked(id string) *model.PlanInstance {
	path := s.planPath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("failed to read plan document", "path", path, "error", err)
		}
		return nil
	}
	var doc planDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Warn("skipping corrupt plan document", "path", path, "error", err)
		return nil
	}
	if doc.ID == "" {
		s.log.Warn("skipping plan document without id", "path", path)
		return nil
	}
	return fromDocument(&doc)
}

// LoadAll retrieves every stored plan. Individually corrupt files are
// logged and skipped; they never abort the whole load.
func (s *Store) LoadAll() ([]*model.PlanInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStoreError("failed to read storage directory", err).WithPath(s.dir)
	}

	var plans []*model.PlanInstance
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, planFilePrefix) || !strings.HasSuffix(name, planFileSuffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, planFilePrefix), planFileSuffix)
		if plan := s.loadLocked(id); plan != nil {
			plans = append(plans, plan)
		}
	}
	return plans, nil
}

// Delete removes a plan document and its index entry. Deleting a plan
// that does not exist is a no-op.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.planPath(id)); err != nil && !os.IsNotExist(err) {
		return errors.NewStoreError("failed to delete plan document", err).WithPath(s.planPath(id))
	}
	return s.updateIndexLocked(func(entries []IndexEntry) []IndexEntry {
		out := entries[:0]
		for _, e := range entries {
			if e.ID != id {
				out = append(out, e)
			}
		}
		return out
	})
}

// List returns the index entries, newest first, without parsing any plan
// document. A missing or corrupt index is rebuilt from the documents on
// disk.
func (s *Store) List() ([]IndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.readIndexLocked()
	if !ok {
		rebuilt, err := s.rebuildIndexLocked()
		if err != nil {
			return nil, err
		}
		entries = rebuilt
	}
	sortEntries(entries)
	return entries, nil
}

// readIndexLocked reads the index document. ok is false when the index
// is missing or corrupt.
func (s *Store) readIndexLocked() ([]IndexEntry, bool) {
	path := filepath.Join(s.dir, indexFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var idx planIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		s.log.Warn("rebuilding corrupt plan index", "path", path, "error", err)
		return nil, false
	}
	return idx.Plans, true
}

// rebuildIndexLocked reconstructs the index from plan documents on disk.
func (s *Store) rebuildIndexLocked() ([]IndexEntry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStoreError("failed to read storage directory", err).WithPath(s.dir)
	}

	var entries []IndexEntry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, planFilePrefix) || !strings.HasSuffix(name, planFileSuffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, planFilePrefix), planFileSuffix)
		if plan := s.loadLocked(id); plan != nil {
			entries = append(entries, IndexEntry{ID: plan.ID, Name: plan.Spec.Name, CreatedAt: plan.CreatedAt})
		}
	}
	if err := s.writeIndexLocked(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// updateIndexLocked applies a mutation to the index entries and writes
// the result. A missing or corrupt index is rebuilt from disk first.
func (s *Store) updateIndexLocked(mutate func([]IndexEntry) []IndexEntry) error {
	entries, ok := s.readIndexLocked()
	if !ok {
		entries = nil
		dirEntries, err := os.ReadDir(s.dir)
		if err == nil {
			for _, de := range dirEntries {
				name := de.Name()
				if de.IsDir() || !strings.HasPrefix(name, planFilePrefix) || !strings.HasSuffix(name, planFileSuffix) {
					continue
				}
				id := strings.TrimSuffix(strings.TrimPrefix(name, planFilePrefix), planFileSuffix)
				if plan := s.loadLocked(id); plan != nil {
					entries = append(entries, IndexEntry{ID: plan.ID, Name: plan.Spec.Name, CreatedAt: plan.CreatedAt})
				}
			}
		}
	}
	return s.writeIndexLocked(mutate(entries))
}

// writeIndexLocked writes the index document atomically.
func (s *Store) writeIndexLocked(entries []IndexEntry) error {
	sortEntries(entries)
	idx := planIndex{Format: documentFormat, Plans: entries}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return errors.NewStoreError("failed to encode plan index", err)
	}
	path := filepath.Join(s.dir, indexFileName)
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.NewStoreError("failed to ensure storage directory", err).WithPath(s.dir)
	}
	if err := atomicWrite(path, data); err != nil {
		return errors.NewStoreError("failed to write plan index", err).WithPath(path)
	}
	return nil
}

// atomicWrite writes data to path via a temp file and rename, so a crash
// mid-write never leaves a truncated document behind.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".plandeck-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
