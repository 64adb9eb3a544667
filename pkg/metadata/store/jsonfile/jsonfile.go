// Package jsonfile implements the metadata store as a single JSON
// document on disk. Every committed update rewrites the whole file
// through a temp-file-and-rename, so a crash leaves either the old or
// the new document, never a torn one.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dropgate/dropgate/pkg/metadata"
)

// Store keeps the live document in memory and mirrors committed
// updates to disk. One mutex serializes readers with writers; lock
// acquisition order is arrival order, which gives the single-writer
// queue its fairness.
type Store struct {
	path string

	mu  sync.Mutex
	doc *metadata.Document
}

// Open loads the document at path, starting empty when no file exists
// yet. The parent directory is created if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	doc := metadata.NewDocument()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First boot. The file appears on the first update.
	case err != nil:
		return nil, fmt.Errorf("read state file: %w", err)
	default:
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("parse state file %s: %w", path, err)
		}
		doc.Normalize()
	}

	return &Store{path: path, doc: doc}, nil
}

// View runs fn against the committed document under the store lock.
func (s *Store) View(ctx context.Context, fn func(doc *metadata.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.doc)
}

// Update runs fn against a deep copy of the document and commits it to
// disk on success. A failing mutator leaves both the file and the
// in-memory document untouched.
func (s *Store) Update(ctx context.Context, fn func(doc *metadata.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.doc = next
	return nil
}

// Close is a no-op: every update is already durable.
func (s *Store) Close() error {
	return nil
}

// persist writes doc to a temp sibling, fsyncs it, and renames it over
// the state file.
func (s *Store) persist(doc *metadata.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	committed = true

	// Make the rename itself durable.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
