package metadata

import (
	"slices"
	"strings"
)

// UploadView is an Upload decorated with the derived fields clients
// consume. The derived fields are computed on read and never stored.
type UploadView struct {
	*Upload

	// MissingChunks lists the not-yet-received indices, sorted
	// strictly ascending.
	MissingChunks []int `json:"missingChunks"`

	// ReceivedCount is the number of received indices.
	ReceivedCount int `json:"receivedCount"`
}

// Decorate builds the wire view of u. The view aliases u, so decorate
// clones, not live store records.
func Decorate(u *Upload) *UploadView {
	return &UploadView{
		Upload:        u,
		MissingChunks: u.ReceivedChunks.Missing(u.TotalChunks),
		ReceivedCount: u.ReceivedChunks.Len(),
	}
}

// Snapshot is the per-user overview returned to clients: in-flight
// uploads partitioned by status plus the finished-upload history.
type Snapshot struct {
	Active  []*UploadView  `json:"active"`
	Paused  []*UploadView  `json:"paused"`
	History []HistoryEntry `json:"history"`
}

// BuildSnapshot partitions uploads into active and paused lists,
// each ordered by creation time (upload id breaking ties), and
// attaches the history unchanged. Every list is non-nil so the JSON
// encoding is always an array.
func BuildSnapshot(uploads []*Upload, history []HistoryEntry) Snapshot {
	slices.SortFunc(uploads, func(a, b *Upload) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	snap := Snapshot{
		Active:  make([]*UploadView, 0, len(uploads)),
		Paused:  make([]*UploadView, 0),
		History: history,
	}
	for _, u := range uploads {
		if u.Status == StatusPaused {
			snap.Paused = append(snap.Paused, Decorate(u))
		} else {
			snap.Active = append(snap.Active, Decorate(u))
		}
	}
	if snap.History == nil {
		snap.History = []HistoryEntry{}
	}
	return snap
}
