package upload

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropgate/dropgate/pkg/metadata"
)

func newTestUpload(id string) *metadata.Upload {
	return metadata.NewUpload(id, "user1", "a.bin", 6, 3, false, time.Now().UTC())
}

func TestRegistryEnsureUser(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.HasUser("user1"))
	r.EnsureUser("user1")
	assert.True(t, r.HasUser("user1"))
	assert.Empty(t, r.UserUploads("user1"))
}

func TestRegistryPutGetClones(t *testing.T) {
	r := NewRegistry()
	u := newTestUpload("up1")
	r.Put(u)

	// Mutating the original must not affect the stored record.
	u.ReceivedChunks.Add(0)

	got, ok := r.Get("user1", "up1")
	require.True(t, ok)
	assert.Equal(t, 0, got.ReceivedChunks.Len())

	// Mutating the returned copy must not affect the stored record.
	got.ReceivedChunks.Add(1)
	again, _ := r.Get("user1", "up1")
	assert.Equal(t, 0, again.ReceivedChunks.Len())
}

func TestRegistryDelete(t *testing.T) {
	r := NewRegistry()
	r.Put(newTestUpload("up1"))

	removed, ok := r.Delete("user1", "up1")
	require.True(t, ok)
	assert.Equal(t, "up1", removed.ID)
	assert.False(t, r.Has("user1", "up1"))
	assert.True(t, r.HasUser("user1"), "bucket survives the last upload")

	_, ok = r.Delete("user1", "up1")
	assert.False(t, ok)
}

func TestRegistryUpdate(t *testing.T) {
	r := NewRegistry()
	r.Put(newTestUpload("up1"))

	updated, err := r.Update("user1", "up1", func(u *metadata.Upload) error {
		u.ReceivedChunks.Add(0)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ReceivedChunks.Len())

	stored, _ := r.Get("user1", "up1")
	assert.True(t, stored.ReceivedChunks.Has(0))
}

func TestRegistryUpdateNotFound(t *testing.T) {
	r := NewRegistry()

	_, err := r.Update("user1", "nope", func(*metadata.Upload) error { return nil })
	assert.ErrorIs(t, err, metadata.ErrUploadNotFound)
}

func TestRegistryUpdateFailureDiscards(t *testing.T) {
	r := NewRegistry()
	r.Put(newTestUpload("up1"))

	boom := errors.New("boom")
	_, err := r.Update("user1", "up1", func(u *metadata.Upload) error {
		u.ReceivedChunks.Add(0)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, _ := r.Get("user1", "up1")
	assert.Equal(t, 0, stored.ReceivedChunks.Len(), "failed mutator leaked a mark")
}

func TestRegistryUserUploadsIsolated(t *testing.T) {
	r := NewRegistry()
	r.Put(newTestUpload("up1"))

	other := newTestUpload("up2")
	other.UserKey = "user2"
	r.Put(other)

	uploads := r.UserUploads("user1")
	require.Len(t, uploads, 1)
	assert.Equal(t, "up1", uploads[0].ID)
}
