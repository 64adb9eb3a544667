// Package metadata defines the state document tracked for every user
// and upload: who owns what, which chunks have arrived, and the
// terminal history of finished transfers. The document round-trips
// through JSON unchanged, so field names here are the wire and on-disk
// contract.
package metadata

import (
	"time"
)

// HistoryLimit caps the number of history entries retained per user.
// Older entries fall off the tail; the list is newest first.
const HistoryLimit = 200

// Status is the lifecycle state of an upload.
type Status string

const (
	// StatusActive marks an upload that is accepting chunks.
	StatusActive Status = "active"

	// StatusPaused marks an upload the client has paused. Pausing is
	// advisory: a chunk arriving for a paused upload is still accepted.
	StatusPaused Status = "paused"

	// StatusCompleted marks an upload whose artifact has been assembled.
	// Removal before completion leaves the status as it was; there is no
	// cancelled state.
	StatusCompleted Status = "completed"
)

// Upload is the live record of a single chunked transfer.
type Upload struct {
	// ID is the 20-character upload identifier.
	ID string `json:"id"`

	// UserKey is the key of the owning user.
	UserKey string `json:"userKey"`

	// FileName is the client-supplied name. It is sanitized only at
	// assembly time; the raw value is kept here.
	FileName string `json:"fileName"`

	// FileSize is the total size in bytes. Always positive.
	FileSize int64 `json:"fileSize"`

	// ChunkSize is the size of each chunk in bytes. The last chunk may
	// be shorter. Always positive.
	ChunkSize int64 `json:"chunkSize"`

	// TotalChunks is ceil(FileSize / ChunkSize).
	TotalChunks int `json:"totalChunks"`

	// Persist selects durable metadata. Chosen at creation, immutable.
	Persist bool `json:"persist"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// ReceivedChunks is the set of chunk indices stored so far.
	ReceivedChunks ChunkSet `json:"receivedChunks"`

	// Checksum is an optional hex SHA-256 of the whole file, supplied
	// at creation and verified after assembly.
	Checksum string `json:"checksum,omitempty"`

	// CreatedAt is the creation time in UTC.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt moves on every chunk receipt and status change.
	UpdatedAt time.Time `json:"updatedAt"`

	// CompletedAt is set once, when the upload completes.
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewUpload builds an active upload record with no received chunks.
func NewUpload(id, userKey, fileName string, fileSize, chunkSize int64, persist bool, now time.Time) *Upload {
	return &Upload{
		ID:             id,
		UserKey:        userKey,
		FileName:       fileName,
		FileSize:       fileSize,
		ChunkSize:      chunkSize,
		TotalChunks:    TotalChunks(fileSize, chunkSize),
		Persist:        persist,
		Status:         StatusActive,
		ReceivedChunks: NewChunkSet(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TotalChunks returns ceil(fileSize / chunkSize). Both arguments must
// be positive.
func TotalChunks(fileSize, chunkSize int64) int {
	return int((fileSize + chunkSize - 1) / chunkSize)
}

// Complete returns whether every chunk index has been received.
func (u *Upload) Complete() bool {
	return u.ReceivedChunks.Len() == u.TotalChunks
}

// HistoryEntry summarizes u as a terminal record completed (or
// cancelled) at the given time.
func (u *Upload) HistoryEntry(at time.Time) HistoryEntry {
	return HistoryEntry{
		ID:          u.ID,
		FileName:    u.FileName,
		FileSize:    u.FileSize,
		ChunkSize:   u.ChunkSize,
		TotalChunks: u.TotalChunks,
		Persist:     u.Persist,
		CompletedAt: at,
	}
}

// Clone returns a deep copy of u.
func (u *Upload) Clone() *Upload {
	if u == nil {
		return nil
	}
	out := *u
	out.ReceivedChunks = u.ReceivedChunks.Clone()
	if u.CompletedAt != nil {
		at := *u.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}

// HistoryEntry is the immutable summary of a finished upload.
type HistoryEntry struct {
	ID          string    `json:"id"`
	FileName    string    `json:"fileName"`
	FileSize    int64     `json:"fileSize"`
	ChunkSize   int64     `json:"chunkSize"`
	TotalChunks int       `json:"totalChunks"`
	Persist     bool      `json:"persist"`
	CompletedAt time.Time `json:"completedAt"`
}

// UserRecord holds everything tracked for one user key.
type UserRecord struct {
	// Key repeats the user key the record is filed under.
	Key string `json:"key"`

	// CreatedAt is the first-identify time in UTC.
	CreatedAt time.Time `json:"createdAt"`

	// Uploads maps upload id to in-flight persistent uploads only.
	// Ephemeral uploads never appear here.
	Uploads map[string]*Upload `json:"uploads"`

	// History lists finished uploads newest first, capped at
	// HistoryLimit entries.
	History []HistoryEntry `json:"history"`
}

// NewUserRecord builds an empty record for key.
func NewUserRecord(key string, now time.Time) *UserRecord {
	return &UserRecord{
		Key:       key,
		CreatedAt: now,
		Uploads:   make(map[string]*Upload),
		History:   []HistoryEntry{},
	}
}

// AddHistory prepends e and truncates the list to HistoryLimit.
func (r *UserRecord) AddHistory(e HistoryEntry) {
	r.History = append([]HistoryEntry{e}, r.History...)
	if len(r.History) > HistoryLimit {
		r.History = r.History[:HistoryLimit]
	}
}

// Clone returns a deep copy of r.
func (r *UserRecord) Clone() *UserRecord {
	if r == nil {
		return nil
	}
	out := &UserRecord{
		Key:       r.Key,
		CreatedAt: r.CreatedAt,
		Uploads:   make(map[string]*Upload, len(r.Uploads)),
		History:   make([]HistoryEntry, len(r.History)),
	}
	for id, u := range r.Uploads {
		out.Uploads[id] = u.Clone()
	}
	copy(out.History, r.History)
	return out
}

// Document is the root of the state file: every known user keyed by
// user key.
type Document struct {
	Users map[string]*UserRecord `json:"users"`
}

// NewDocument returns an empty state document.
func NewDocument() *Document {
	return &Document{Users: make(map[string]*UserRecord)}
}

// Normalize repairs nil maps and slices after decoding from disk, so
// mutators never have to nil-check containers.
func (d *Document) Normalize() {
	if d.Users == nil {
		d.Users = make(map[string]*UserRecord)
	}
	for _, r := range d.Users {
		if r.Uploads == nil {
			r.Uploads = make(map[string]*Upload)
		}
		if r.History == nil {
			r.History = []HistoryEntry{}
		}
		for _, u := range r.Uploads {
			if u.ReceivedChunks == nil {
				u.ReceivedChunks = NewChunkSet()
			}
		}
	}
}

// User returns the record for key, if present.
func (d *Document) User(key string) (*UserRecord, bool) {
	r, ok := d.Users[key]
	return r, ok
}

// EnsureUser returns the record for key, creating it when absent. The
// second result reports whether a new record was created.
func (d *Document) EnsureUser(key string, now time.Time) (*UserRecord, bool) {
	if r, ok := d.Users[key]; ok {
		return r, false
	}
	r := NewUserRecord(key, now)
	d.Users[key] = r
	return r, true
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	out := &Document{Users: make(map[string]*UserRecord, len(d.Users))}
	for key, r := range d.Users {
		out.Users[key] = r.Clone()
	}
	return out
}
