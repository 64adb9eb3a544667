// Package storetest provides a conformance suite every Store backend
// must pass. Backends run it from their own test packages so the
// serialization and durability contract stays identical across the
// JSON-file and BadgerDB implementations.
package storetest

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dropgate/dropgate/pkg/metadata"
	"github.com/dropgate/dropgate/pkg/metadata/store"
)

// StoreFactory creates a fresh Store for each test. The factory
// receives *testing.T so it can use t.TempDir() for backing paths and
// t.Cleanup() for teardown.
type StoreFactory func(t *testing.T) store.Store

// RunConformanceSuite runs the contract tests against the provided
// factory. Each test gets a fresh store to ensure isolation.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("EmptyOnFirstOpen", func(t *testing.T) {
		testEmptyOnFirstOpen(t, factory)
	})
	t.Run("UpdateVisibleInView", func(t *testing.T) {
		testUpdateVisibleInView(t, factory)
	})
	t.Run("FailedMutatorDiscarded", func(t *testing.T) {
		testFailedMutatorDiscarded(t, factory)
	})
	t.Run("SerializedUpdates", func(t *testing.T) {
		testSerializedUpdates(t, factory)
	})
	t.Run("RoundTripFidelity", func(t *testing.T) {
		testRoundTripFidelity(t, factory)
	})
	t.Run("HistoryOrderPreserved", func(t *testing.T) {
		testHistoryOrderPreserved(t, factory)
	})
}

func testEmptyOnFirstOpen(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := t.Context()

	err := s.View(ctx, func(doc *metadata.Document) error {
		if len(doc.Users) != 0 {
			t.Errorf("fresh store has %d users, want 0", len(doc.Users))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View() failed: %v", err)
	}
}

func testUpdateVisibleInView(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := t.Context()
	now := time.Now().UTC().Truncate(time.Second)

	err := s.Update(ctx, func(doc *metadata.Document) error {
		doc.EnsureUser("userA", now)
		return nil
	})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	err = s.View(ctx, func(doc *metadata.Document) error {
		rec, ok := doc.User("userA")
		if !ok {
			t.Fatal("userA not visible after Update")
		}
		if !rec.CreatedAt.Equal(now) {
			t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, now)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View() failed: %v", err)
	}
}

func testFailedMutatorDiscarded(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := t.Context()
	now := time.Now().UTC()

	errBoom := errors.New("boom")
	err := s.Update(ctx, func(doc *metadata.Document) error {
		doc.EnsureUser("ghost", now)
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("Update() error = %v, want %v", err, errBoom)
	}

	err = s.View(ctx, func(doc *metadata.Document) error {
		if _, ok := doc.User("ghost"); ok {
			t.Error("failed mutator leaked a user into state")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View() failed: %v", err)
	}
}

// testSerializedUpdates hammers the store from several goroutines and
// checks that no update is lost. Every goroutine inserts uploads with
// distinct ids under a shared user.
func testSerializedUpdates(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := t.Context()
	now := time.Now().UTC()

	const workers = 8
	const perWorker = 10

	err := s.Update(ctx, func(doc *metadata.Document) error {
		doc.EnsureUser("userA", now)
		return nil
	})
	if err != nil {
		t.Fatalf("seed Update() failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := fmt.Sprintf("up-%d-%d", w, i)
				err := s.Update(ctx, func(doc *metadata.Document) error {
					rec, ok := doc.User("userA")
					if !ok {
						return errors.New("userA vanished")
					}
					rec.Uploads[id] = metadata.NewUpload(id, "userA", "f.bin", 4, 4, true, now)
					return nil
				})
				if err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Update() failed: %v", err)
	}

	err = s.View(ctx, func(doc *metadata.Document) error {
		rec, _ := doc.User("userA")
		if rec == nil {
			t.Fatal("userA missing")
		}
		if got := len(rec.Uploads); got != workers*perWorker {
			t.Errorf("uploads = %d, want %d (lost updates)", got, workers*perWorker)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View() failed: %v", err)
	}
}

func testRoundTripFidelity(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := t.Context()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	done := created.Add(90 * time.Second)

	err := s.Update(ctx, func(doc *metadata.Document) error {
		rec, _ := doc.EnsureUser("userA", created)
		u := metadata.NewUpload("up1", "userA", "weird nämé.txt", 10, 3, true, created)
		u.ReceivedChunks.Add(3)
		u.ReceivedChunks.Add(0)
		u.Checksum = "deadbeef"
		rec.Uploads[u.ID] = u
		rec.AddHistory(metadata.HistoryEntry{
			ID: "old1", FileName: "old.bin", FileSize: 7, ChunkSize: 7,
			TotalChunks: 1, Persist: true, CompletedAt: done,
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	err = s.View(ctx, func(doc *metadata.Document) error {
		rec, ok := doc.User("userA")
		if !ok {
			t.Fatal("userA missing")
		}
		u, ok := rec.Uploads["up1"]
		if !ok {
			t.Fatal("up1 missing")
		}
		if u.FileName != "weird nämé.txt" {
			t.Errorf("FileName = %q", u.FileName)
		}
		if u.TotalChunks != 4 {
			t.Errorf("TotalChunks = %d, want 4", u.TotalChunks)
		}
		if !u.ReceivedChunks.Has(0) || !u.ReceivedChunks.Has(3) || u.ReceivedChunks.Len() != 2 {
			t.Errorf("ReceivedChunks = %v, want {0, 3}", u.ReceivedChunks.Indices())
		}
		if u.Checksum != "deadbeef" {
			t.Errorf("Checksum = %q", u.Checksum)
		}
		if !u.CreatedAt.Equal(created) {
			t.Errorf("CreatedAt = %v, want %v", u.CreatedAt, created)
		}
		if len(rec.History) != 1 || !rec.History[0].CompletedAt.Equal(done) {
			t.Errorf("History = %+v", rec.History)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View() failed: %v", err)
	}
}

func testHistoryOrderPreserved(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := t.Context()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		i := i
		err := s.Update(ctx, func(doc *metadata.Document) error {
			rec, _ := doc.EnsureUser("userA", now)
			rec.AddHistory(metadata.HistoryEntry{
				ID:          fmt.Sprintf("up%d", i),
				CompletedAt: now.Add(time.Duration(i) * time.Second),
			})
			return nil
		})
		if err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
	}

	err := s.View(ctx, func(doc *metadata.Document) error {
		rec, _ := doc.User("userA")
		if rec == nil {
			t.Fatal("userA missing")
		}
		if len(rec.History) != 5 {
			t.Fatalf("history length = %d, want 5", len(rec.History))
		}
		for i, e := range rec.History {
			want := fmt.Sprintf("up%d", 4-i)
			if e.ID != want {
				t.Errorf("history[%d] = %q, want %q (newest first)", i, e.ID, want)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View() failed: %v", err)
	}
}
