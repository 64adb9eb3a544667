// Package upload implements the upload lifecycle: identity, chunk
// receipt, pause and cancel transitions, assembly, and history. All
// metadata mutations go through either the durable state store
// (persistent uploads) or the in-memory registry (ephemeral uploads),
// never both for the same upload.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dropgate/dropgate/internal/logger"
	"github.com/dropgate/dropgate/internal/telemetry"
	"github.com/dropgate/dropgate/pkg/chunk"
	"github.com/dropgate/dropgate/pkg/id"
	"github.com/dropgate/dropgate/pkg/metadata"
	"github.com/dropgate/dropgate/pkg/metadata/store"
	"github.com/dropgate/dropgate/pkg/metrics"
)

// Location names where an upload's metadata lives.
type Location string

const (
	// LocationMemory marks an ephemeral upload held by the registry.
	LocationMemory Location = "memory"

	// LocationPersistent marks an upload stored in durable state.
	LocationPersistent Location = "persistent"
)

// CreateRequest carries the client-chosen parameters of a new upload.
type CreateRequest struct {
	FileName  string
	FileSize  int64
	ChunkSize int64
	Persist   bool

	// Checksum is an optional hex SHA-256 of the final file, verified
	// after assembly when present.
	Checksum string
}

// Config wires a Manager. Store, Registry and Chunks are required;
// the rest default sensibly.
type Config struct {
	Store    store.Store
	Registry *Registry
	Chunks   *chunk.Store

	// Metrics may be nil; recording is skipped entirely then.
	Metrics *metrics.UploadMetrics

	// Now supplies state timestamps. Defaults to time.Now in UTC.
	Now func() time.Time

	// NewUserID and NewUploadID supply identifiers. Default to the id
	// package generators.
	NewUserID   func() string
	NewUploadID func() string
}

// Manager mediates every mutation of upload state.
type Manager struct {
	store    store.Store
	registry *Registry
	chunks   *chunk.Store
	metrics  *metrics.UploadMetrics

	now         func() time.Time
	newUserID   func() string
	newUploadID func() string
}

// NewManager validates cfg and builds a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("upload manager requires a state store")
	}
	if cfg.Registry == nil {
		return nil, errors.New("upload manager requires a registry")
	}
	if cfg.Chunks == nil {
		return nil, errors.New("upload manager requires a chunk store")
	}

	m := &Manager{
		store:       cfg.Store,
		registry:    cfg.Registry,
		chunks:      cfg.Chunks,
		metrics:     cfg.Metrics,
		now:         cfg.Now,
		newUserID:   cfg.NewUserID,
		newUploadID: cfg.NewUploadID,
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	if m.newUserID == nil {
		m.newUserID = id.NewUserID
	}
	if m.newUploadID == nil {
		m.newUploadID = id.NewUploadID
	}
	return m, nil
}

// IdentifyUser resolves a user key. A known requested key is simply
// acknowledged; anything else (including an unknown requested key)
// allocates a fresh key and record. The ephemeral bucket is
// initialized either way.
func (m *Manager) IdentifyUser(ctx context.Context, requestedKey string) (userKey string, created bool, err error) {
	err = m.store.Update(ctx, func(doc *metadata.Document) error {
		if requestedKey != "" {
			if _, ok := doc.User(requestedKey); ok {
				userKey = requestedKey
				created = false
				return nil
			}
		}

		key := m.newUserID()
		for {
			if _, exists := doc.Users[key]; !exists {
				break
			}
			key = m.newUserID()
		}
		doc.Users[key] = metadata.NewUserRecord(key, m.now())
		userKey = key
		created = true
		return nil
	})
	if err != nil {
		return "", false, err
	}

	m.registry.EnsureUser(userKey)
	logger.Debug("user identified", logger.KeyUserKey, userKey, "created", created)
	return userKey, created, nil
}

// Snapshot returns the user's uploads partitioned by status, together
// with the history. Both persistent and ephemeral uploads appear. A
// user known only through ephemeral uploads still gets a snapshot,
// with the history empty.
func (m *Manager) Snapshot(ctx context.Context, userKey string) (metadata.Snapshot, error) {
	var (
		uploads []*metadata.Upload
		history []metadata.HistoryEntry
		found   bool
	)

	err := m.store.View(ctx, func(doc *metadata.Document) error {
		rec, ok := doc.User(userKey)
		if !ok {
			return nil
		}
		found = true
		for _, u := range rec.Uploads {
			uploads = append(uploads, u.Clone())
		}
		history = append([]metadata.HistoryEntry{}, rec.History...)
		return nil
	})
	if err != nil {
		return metadata.Snapshot{}, err
	}

	if m.registry.HasUser(userKey) {
		found = true
		uploads = append(uploads, m.registry.UserUploads(userKey)...)
	}
	if !found {
		return metadata.Snapshot{}, metadata.ErrUserNotFound
	}
	return metadata.BuildSnapshot(uploads, history), nil
}

// CreateUpload allocates an id and registers new upload metadata in
// the home matching the persist flag.
func (m *Manager) CreateUpload(ctx context.Context, userKey string, req CreateRequest) (*metadata.UploadView, error) {
	if req.FileSize <= 0 || req.ChunkSize <= 0 {
		return nil, metadata.ErrInvalidSizes
	}

	now := m.now()
	u := metadata.NewUpload(m.newUploadID(), userKey, req.FileName, req.FileSize, req.ChunkSize, req.Persist, now)
	u.Checksum = strings.ToLower(req.Checksum)

	if req.Persist {
		err := m.store.Update(ctx, func(doc *metadata.Document) error {
			rec, _ := doc.EnsureUser(userKey, now)
			for {
				if _, exists := rec.Uploads[u.ID]; !exists {
					break
				}
				u.ID = m.newUploadID()
			}
			rec.Uploads[u.ID] = u.Clone()
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		m.registry.EnsureUser(userKey)
		for m.registry.Has(userKey, u.ID) {
			u.ID = m.newUploadID()
		}
		m.registry.Put(u)
	}

	// Scratch space is allocated at create time so the upload is
	// visible on disk before its first chunk arrives. The record is
	// kept on failure; forget removes it.
	if err := m.chunks.EnsureScratch(u.ID); err != nil {
		return nil, err
	}

	m.metrics.UploadCreated(req.Persist)
	logger.Info("upload created",
		logger.KeyUserKey, userKey,
		logger.KeyUploadID, u.ID,
		logger.KeyFileName, u.FileName,
		logger.KeySize, u.FileSize,
		"chunk_size", u.ChunkSize,
		"total_chunks", u.TotalChunks,
		"persist", u.Persist,
	)
	return metadata.Decorate(u), nil
}

// GetUpload finds an upload by id, checking the ephemeral registry
// before durable state.
func (m *Manager) GetUpload(ctx context.Context, userKey, uploadID string) (*metadata.UploadView, Location, error) {
	u, loc, err := m.lookup(ctx, userKey, uploadID)
	if err != nil {
		return nil, "", err
	}
	return metadata.Decorate(u), loc, nil
}

// RecordChunk stores the chunk bytes, marks the index received, and,
// when that mark completes the set, assembles and finalizes the
// upload. Exactly one call per upload reports completed=true: the one
// whose mark filled the set inside the serialized state mutation.
//
// Duplicate submissions are idempotent: the part file is kept as first
// written and the mark does not double-count.
func (m *Manager) RecordChunk(ctx context.Context, userKey, uploadID string, index int, r io.Reader) (*metadata.UploadView, bool, error) {
	current, loc, err := m.lookup(ctx, userKey, uploadID)
	if err != nil {
		return nil, false, err
	}
	if index < 0 || index >= current.TotalChunks {
		return nil, false, metadata.ErrChunkOutOfRange
	}

	// Bytes land on disk before the index is marked, so a marked chunk
	// always has its part file (barring crashes, which repair through
	// re-sends or the startup scan).
	written, existed, err := m.chunks.WriteChunk(ctx, uploadID, index, r)
	if err != nil {
		return nil, false, fmt.Errorf("store chunk %d: %w", index, err)
	}

	var (
		updated   *metadata.Upload
		completed bool
	)
	mark := func(u *metadata.Upload) error {
		added := u.ReceivedChunks.Add(index)
		u.Status = metadata.StatusActive
		u.UpdatedAt = m.now()
		completed = added && u.Complete()
		return nil
	}

	switch loc {
	case LocationMemory:
		updated, err = m.registry.Update(userKey, uploadID, mark)
	default:
		err = m.store.Update(ctx, func(doc *metadata.Document) error {
			rec, ok := doc.User(userKey)
			if !ok {
				return metadata.ErrUploadNotFound
			}
			u, ok := rec.Uploads[uploadID]
			if !ok {
				return metadata.ErrUploadNotFound
			}
			if err := mark(u); err != nil {
				return err
			}
			updated = u.Clone()
			return nil
		})
	}
	if err != nil {
		return nil, false, err
	}

	if existed {
		m.metrics.DuplicateChunk()
	} else {
		m.metrics.ChunkReceived(written)
	}
	logger.Debug("chunk stored",
		logger.KeyUserKey, userKey,
		logger.KeyUploadID, uploadID,
		logger.KeyChunk, index,
		logger.KeySize, written,
		"duplicate", existed,
	)

	if !completed {
		return metadata.Decorate(updated), false, nil
	}

	final, err := m.completeUpload(ctx, updated)
	if err != nil {
		return nil, false, err
	}
	return metadata.Decorate(final), true, nil
}

// UpdateStatus applies a status unconditionally and bumps updatedAt.
// The client's state machine owns transition ordering; the server only
// classifies.
func (m *Manager) UpdateStatus(ctx context.Context, userKey, uploadID string, status metadata.Status) (*metadata.UploadView, error) {
	set := func(u *metadata.Upload) error {
		u.Status = status
		u.UpdatedAt = m.now()
		return nil
	}

	var (
		updated *metadata.Upload
		err     error
	)
	if m.registry.Has(userKey, uploadID) {
		updated, err = m.registry.Update(userKey, uploadID, set)
	} else {
		err = m.store.Update(ctx, func(doc *metadata.Document) error {
			rec, ok := doc.User(userKey)
			if !ok {
				return metadata.ErrUploadNotFound
			}
			u, ok := rec.Uploads[uploadID]
			if !ok {
				return metadata.ErrUploadNotFound
			}
			if err := set(u); err != nil {
				return err
			}
			updated = u.Clone()
			return nil
		})
	}
	if err != nil {
		return nil, err
	}

	logger.Info("upload status changed",
		logger.KeyUserKey, userKey,
		logger.KeyUploadID, uploadID,
		"status", string(status),
	)
	return metadata.Decorate(updated), nil
}

// RemoveUpload deletes live metadata and purges the scratch directory.
// Unless forget is set, a history entry records the upload with its
// status as it was. The entry's completion time is the removal time.
func (m *Manager) RemoveUpload(ctx context.Context, userKey, uploadID string, forget bool) (*metadata.UploadView, error) {
	at := m.now()
	var removed *metadata.Upload

	if u, ok := m.registry.Delete(userKey, uploadID); ok {
		if !forget {
			err := m.store.Update(ctx, func(doc *metadata.Document) error {
				rec, _ := doc.EnsureUser(userKey, at)
				rec.AddHistory(u.HistoryEntry(at))
				return nil
			})
			if err != nil {
				// Keep the upload alive so the client can retry the
				// cancel instead of losing its history entry.
				m.registry.Put(u)
				return nil, err
			}
		}
		removed = u
	} else {
		err := m.store.Update(ctx, func(doc *metadata.Document) error {
			rec, ok := doc.User(userKey)
			if !ok {
				return metadata.ErrUploadNotFound
			}
			u, ok := rec.Uploads[uploadID]
			if !ok {
				return metadata.ErrUploadNotFound
			}
			removed = u.Clone()
			delete(rec.Uploads, uploadID)
			if !forget {
				rec.AddHistory(u.HistoryEntry(at))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if err := m.chunks.PurgeScratch(uploadID); err != nil {
		// Metadata is already gone; an orphaned scratch directory is a
		// disk leak, not a correctness problem.
		logger.Warn("scratch purge failed",
			logger.KeyUploadID, uploadID,
			logger.KeyError, err.Error(),
		)
	}

	m.metrics.UploadRemoved(removed.Persist)
	logger.Info("upload removed",
		logger.KeyUserKey, userKey,
		logger.KeyUploadID, uploadID,
		"forget", forget,
	)
	return metadata.Decorate(removed), nil
}

// ClearHistory empties the user's history list. The user record must
// already exist in durable state.
func (m *Manager) ClearHistory(ctx context.Context, userKey string) error {
	err := m.store.Update(ctx, func(doc *metadata.Document) error {
		rec, ok := doc.User(userKey)
		if !ok {
			return metadata.ErrUserNotFound
		}
		rec.History = []metadata.HistoryEntry{}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("history cleared", logger.KeyUserKey, userKey)
	return nil
}

// Ping verifies the durable store is reachable. The readiness probe
// calls this.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.View(ctx, func(doc *metadata.Document) error { return nil })
}

// lookup finds an upload's current metadata, ephemeral first.
func (m *Manager) lookup(ctx context.Context, userKey, uploadID string) (*metadata.Upload, Location, error) {
	if u, ok := m.registry.Get(userKey, uploadID); ok {
		return u, LocationMemory, nil
	}

	var u *metadata.Upload
	err := m.store.View(ctx, func(doc *metadata.Document) error {
		rec, ok := doc.User(userKey)
		if !ok {
			return nil
		}
		if live, ok := rec.Uploads[uploadID]; ok {
			u = live.Clone()
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if u == nil {
		return nil, "", metadata.ErrUploadNotFound
	}
	return u, LocationPersistent, nil
}

// completeUpload assembles the artifact and finalizes the metadata.
// Assembly runs outside any state lock; the caller must be the single
// completion winner for this upload.
func (m *Manager) completeUpload(ctx context.Context, u *metadata.Upload) (*metadata.Upload, error) {
	ctx, span := telemetry.StartUploadSpan(ctx, "assemble", u.ID,
		telemetry.TotalChunks(u.TotalChunks),
		telemetry.FileSize(u.FileSize),
		telemetry.Persist(u.Persist),
	)
	defer span.End()

	start := time.Now()
	path, err := m.assembleArtifact(ctx, u)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	m.metrics.ObserveAssembly(time.Since(start))

	final, err := m.finalize(ctx, u)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	logger.Info("upload completed",
		logger.KeyUserKey, u.UserKey,
		logger.KeyUploadID, u.ID,
		logger.KeyFileName, u.FileName,
		logger.KeyPath, path,
		logger.KeyDuration, time.Since(start).Milliseconds(),
	)
	m.metrics.UploadCompleted(u.Persist)
	return final, nil
}

// assembleArtifact runs assembly, adopting an artifact left by a run
// that crashed between assembly and finalize: when parts are gone but
// the artifact exists, the bytes are already final.
func (m *Manager) assembleArtifact(ctx context.Context, u *metadata.Upload) (string, error) {
	path, err := m.chunks.Assemble(ctx, u)
	if err == nil {
		return path, nil
	}

	var missing *chunk.MissingChunkError
	if errors.As(err, &missing) {
		if existing, ok := m.chunks.FindArtifact(u.ID); ok {
			logger.Info("adopting previously assembled artifact",
				logger.KeyUploadID, u.ID,
				logger.KeyPath, existing,
			)
			return existing, nil
		}
	}
	return "", err
}

// finalize moves the upload out of its live home and into history.
// The history always lands in durable state, ephemeral uploads
// included.
func (m *Manager) finalize(ctx context.Context, u *metadata.Upload) (*metadata.Upload, error) {
	at := m.now()

	if u.Persist {
		err := m.store.Update(ctx, func(doc *metadata.Document) error {
			rec, _ := doc.EnsureUser(u.UserKey, at)
			entry := u.HistoryEntry(at)
			if live, ok := rec.Uploads[u.ID]; ok {
				entry = live.HistoryEntry(at)
			}
			rec.AddHistory(entry)
			delete(rec.Uploads, u.ID)
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		// Delete before writing history so the id never appears in two
		// places at once.
		m.registry.Delete(u.UserKey, u.ID)
		err := m.store.Update(ctx, func(doc *metadata.Document) error {
			rec, _ := doc.EnsureUser(u.UserKey, at)
			rec.AddHistory(u.HistoryEntry(at))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	done := u.Clone()
	done.Status = metadata.StatusCompleted
	done.UpdatedAt = at
	done.CompletedAt = &at
	return done, nil
}
