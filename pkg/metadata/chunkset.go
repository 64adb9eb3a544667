package metadata

import (
	"encoding/json"
	"slices"
)

// ChunkSet tracks which chunk indices have been received. It is a set
// in memory and a sorted array of integers on the wire, so state files
// stay diffable and order-independent.
type ChunkSet map[int]struct{}

// NewChunkSet returns an empty set.
func NewChunkSet() ChunkSet {
	return make(ChunkSet)
}

// Add inserts index i and reports whether it was newly added. Marking
// an already-present index is a no-op, which keeps duplicate chunk
// submissions from double-counting.
func (s ChunkSet) Add(i int) bool {
	if _, ok := s[i]; ok {
		return false
	}
	s[i] = struct{}{}
	return true
}

// Has reports whether index i is present.
func (s ChunkSet) Has(i int) bool {
	_, ok := s[i]
	return ok
}

// Len returns the number of received indices.
func (s ChunkSet) Len() int {
	return len(s)
}

// Indices returns the received indices sorted ascending. Never nil.
func (s ChunkSet) Indices() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// Missing returns the indices in [0, total) not yet received, sorted
// ascending. Never nil.
func (s ChunkSet) Missing(total int) []int {
	out := make([]int, 0, total-len(s))
	for i := 0; i < total; i++ {
		if _, ok := s[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

// Clone returns an independent copy of s.
func (s ChunkSet) Clone() ChunkSet {
	out := make(ChunkSet, len(s))
	for i := range s {
		out[i] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted integer array.
func (s ChunkSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Indices())
}

// UnmarshalJSON decodes an integer array into the set. A JSON null
// yields an empty set.
func (s *ChunkSet) UnmarshalJSON(data []byte) error {
	var indices []int
	if err := json.Unmarshal(data, &indices); err != nil {
		return err
	}
	set := make(ChunkSet, len(indices))
	for _, i := range indices {
		set[i] = struct{}{}
	}
	*s = set
	return nil
}
