package upload

import (
	"sync"

	"github.com/dropgate/dropgate/pkg/metadata"
)

// Registry indexes ephemeral uploads in memory, keyed by user and
// upload id. Nothing here survives a restart; clients choosing
// persist=false accept that.
//
// All methods clone on the way in and out, so no caller ever holds a
// reference into the registry's own records. Mutations run under one
// mutex, which is the serialization the record-chunk path relies on
// for ephemeral uploads.
type Registry struct {
	mu    sync.Mutex
	users map[string]map[string]*metadata.Upload
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]map[string]*metadata.Upload)}
}

// EnsureUser creates the user's bucket if absent. Identify calls this
// so a user can exist with only ephemeral uploads.
func (r *Registry) EnsureUser(userKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userKey]; !ok {
		r.users[userKey] = make(map[string]*metadata.Upload)
	}
}

// HasUser reports whether the user's bucket exists (even if empty).
func (r *Registry) HasUser(userKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.users[userKey]
	return ok
}

// Put stores a copy of u in its owner's bucket, creating the bucket
// if needed.
func (r *Registry) Put(u *metadata.Upload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.users[u.UserKey]
	if !ok {
		bucket = make(map[string]*metadata.Upload)
		r.users[u.UserKey] = bucket
	}
	bucket[u.ID] = u.Clone()
}

// Get returns a copy of the upload, if present.
func (r *Registry) Get(userKey, uploadID string) (*metadata.Upload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userKey][uploadID]
	if !ok {
		return nil, false
	}
	return u.Clone(), true
}

// Has reports whether the upload exists without copying it.
func (r *Registry) Has(userKey, uploadID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.users[userKey][uploadID]
	return ok
}

// Delete removes the upload and returns its final value.
func (r *Registry) Delete(userKey, uploadID string) (*metadata.Upload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userKey][uploadID]
	if !ok {
		return nil, false
	}
	delete(r.users[userKey], uploadID)
	return u, true
}

// IDs returns the id of every upload across all users.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, bucket := range r.users {
		for id := range bucket {
			out = append(out, id)
		}
	}
	return out
}

// UserUploads returns copies of every upload in the user's bucket.
func (r *Registry) UserUploads(userKey string) []*metadata.Upload {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.users[userKey]
	out := make([]*metadata.Upload, 0, len(bucket))
	for _, u := range bucket {
		out = append(out, u.Clone())
	}
	return out
}

// Update applies fn to a working copy of the record under the
// registry lock and commits it when fn returns nil, mirroring the
// durable store's contract: a failed mutator leaves no trace. fn
// observes the union of every prior mutation, which makes concurrent
// chunk marks linearizable. Returns metadata.ErrUploadNotFound when
// the upload is absent.
func (r *Registry) Update(userKey, uploadID string, fn func(u *metadata.Upload) error) (*metadata.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userKey][uploadID]
	if !ok {
		return nil, metadata.ErrUploadNotFound
	}

	next := u.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	r.users[userKey][uploadID] = next
	return next.Clone(), nil
}
