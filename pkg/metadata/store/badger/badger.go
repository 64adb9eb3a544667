// Package badger stores the state document in a BadgerDB database,
// one key per user record. It trades the JSON file's whole-document
// rewrite for per-user writes while keeping the same Store contract.
package badger

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/dropgate/dropgate/pkg/metadata"
)

// Store implements store.Store on BadgerDB.
//
// Badger transactions alone are not enough for the Update contract:
// two read-modify-write cycles could interleave between materializing
// the document and committing it. The store mutex serializes them, so
// updates run in arrival order exactly as with the JSON file backend.
type Store struct {
	db *badgerdb.DB
	mu sync.Mutex
}

// Open opens (or creates) the database in dir.
func Open(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// View materializes the document and runs fn against it.
func (s *Store) View(ctx context.Context, fn func(doc *metadata.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, _, err := s.load()
	if err != nil {
		return err
	}
	return fn(doc)
}

// Update materializes the document, applies fn, and writes back only
// the user records whose encoding changed. A failing mutator writes
// nothing.
func (s *Store) Update(ctx context.Context, fn func(doc *metadata.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, before, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		for key, rec := range doc.Users {
			data, err := encodeUser(rec)
			if err != nil {
				return err
			}
			if prev, ok := before[key]; ok && bytes.Equal(prev, data) {
				continue
			}
			if err := txn.Set(keyUser(key), data); err != nil {
				return fmt.Errorf("store user %s: %w", key, err)
			}
		}
		for key := range before {
			if _, ok := doc.Users[key]; !ok {
				if err := txn.Delete(keyUser(key)); err != nil {
					return fmt.Errorf("delete user %s: %w", key, err)
				}
			}
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// load scans the user namespace into a fresh document. It also returns
// the raw encodings so Update can skip unchanged records.
func (s *Store) load() (*metadata.Document, map[string][]byte, error) {
	doc := metadata.NewDocument()
	raw := make(map[string][]byte)

	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixUser)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())[len(prefixUser):]

			err := item.Value(func(val []byte) error {
				rec, err := decodeUser(val)
				if err != nil {
					return err
				}
				doc.Users[key] = rec
				raw[key] = append([]byte(nil), val...)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	doc.Normalize()
	return doc, raw, nil
}
