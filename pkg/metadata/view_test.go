package metadata

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecorate(t *testing.T) {
	now := time.Now().UTC()
	u := NewUpload("up1", "user1", "a.bin", 10, 3, true, now)
	u.ReceivedChunks.Add(0)
	u.ReceivedChunks.Add(3)

	view := Decorate(u)

	assert.Equal(t, 2, view.ReceivedCount)
	assert.Equal(t, []int{1, 2}, view.MissingChunks)
	assert.Equal(t, view.TotalChunks, view.ReceivedCount+len(view.MissingChunks))
}

func TestBuildSnapshotPartition(t *testing.T) {
	now := time.Now().UTC()

	active := NewUpload("upA", "u1", "a.bin", 6, 3, true, now)
	paused := NewUpload("upB", "u1", "b.bin", 6, 3, true, now.Add(time.Second))
	paused.Status = StatusPaused

	snap := BuildSnapshot([]*Upload{paused, active}, nil)

	require.Len(t, snap.Active, 1)
	require.Len(t, snap.Paused, 1)
	assert.Equal(t, "upA", snap.Active[0].ID)
	assert.Equal(t, "upB", snap.Paused[0].ID)
	assert.NotNil(t, snap.History)
}

func TestBuildSnapshotOrdering(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	early := NewUpload("zzz", "u1", "a.bin", 3, 3, true, base)
	late := NewUpload("aaa", "u1", "b.bin", 3, 3, true, base.Add(time.Minute))
	tieA := NewUpload("tieA", "u1", "c.bin", 3, 3, true, base.Add(time.Hour))
	tieB := NewUpload("tieB", "u1", "d.bin", 3, 3, true, base.Add(time.Hour))

	snap := BuildSnapshot([]*Upload{tieB, late, tieA, early}, nil)

	require.Len(t, snap.Active, 4)
	assert.Equal(t, "zzz", snap.Active[0].ID, "creation time orders before id")
	assert.Equal(t, "aaa", snap.Active[1].ID)
	assert.Equal(t, "tieA", snap.Active[2].ID, "equal timestamps fall back to id order")
	assert.Equal(t, "tieB", snap.Active[3].ID)
}

func TestSnapshotMarshalEmpty(t *testing.T) {
	snap := BuildSnapshot(nil, nil)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.JSONEq(t, `{"active":[],"paused":[],"history":[]}`, string(data))
}

func TestSnapshotMarshalDecoratedUpload(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	u := NewUpload("up1", "u1", "a.bin", 10, 6, false, now)
	u.ReceivedChunks.Add(0)

	snap := BuildSnapshot([]*Upload{u}, []HistoryEntry{})
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded struct {
		Active []map[string]any `json:"active"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Active, 1)

	entry := decoded.Active[0]
	assert.Equal(t, "up1", entry["id"])
	assert.Equal(t, float64(1), entry["receivedCount"])
	assert.Equal(t, []any{float64(1)}, entry["missingChunks"])
	assert.Equal(t, "active", entry["status"])
	_, hasChecksum := entry["checksum"]
	assert.False(t, hasChecksum, "empty checksum stays off the wire")
}
