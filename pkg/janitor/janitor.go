// Package janitor removes discarded scratch directories in the
// background.
//
// A scratch directory can hold thousands of part files, and removing
// them inline would stall the response that completed or cancelled the
// upload. The chunk store instead renames the directory into a trash
// root, a single atomic operation, and hands the trashed path to the
// janitor. Workers remove the trees off the request path, and a
// startup sweep reclaims whatever a previous run left behind: every
// entry under the trash root is garbage by definition.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dropgate/dropgate/internal/logger"
)

// Config holds the janitor's queue and worker settings.
type Config struct {
	// QueueSize is the maximum number of pending removals.
	// Default: 256
	QueueSize int

	// Workers is the number of concurrent removal workers.
	// Default: 2
	Workers int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize: 256,
		Workers:   2,
	}
}

// Janitor removes trashed directories asynchronously. A directory
// that never reaches the queue, because it was full or the process
// died first, stays under the trash root until the next Sweep.
type Janitor struct {
	trashRoot string
	queue     chan string
	workers   int

	wg        sync.WaitGroup
	stopCh    chan struct{}
	stoppedCh chan struct{}

	mu      sync.Mutex
	started bool
	pending int
	removed int
	failed  int
}

// New creates a janitor for the given trash root. The root itself is
// created lazily by whoever renames into it.
func New(trashRoot string, cfg Config) *Janitor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	return &Janitor{
		trashRoot: trashRoot,
		queue:     make(chan string, cfg.QueueSize),
		workers:   cfg.Workers,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// TrashRoot returns the directory the janitor drains.
func (j *Janitor) TrashRoot() string {
	return j.trashRoot
}

// Start launches the removal workers. Calling Start twice is a no-op.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	if j.started {
		j.mu.Unlock()
		return
	}
	j.started = true
	j.mu.Unlock()

	logger.Debug("scratch janitor started", "workers", j.workers)

	for i := 0; i < j.workers; i++ {
		j.wg.Add(1)
		go j.worker(ctx)
	}

	go func() {
		j.wg.Wait()
		close(j.stoppedCh)
	}()
}

// Stop shuts the janitor down, waiting up to timeout for workers to
// drain the queue. Entries still pending after the timeout stay on
// disk for the next run's Sweep.
func (j *Janitor) Stop(timeout time.Duration) {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return
	}
	j.mu.Unlock()

	close(j.stopCh)

	select {
	case <-j.stoppedCh:
		logger.Debug("scratch janitor stopped")
	case <-time.After(timeout):
		logger.Warn("scratch janitor stop timed out", "pending", j.Pending())
	}
}

// Discard queues a trashed directory for removal. Returns false when
// the queue is full; the entry then waits under the trash root for
// the next Sweep.
func (j *Janitor) Discard(path string) bool {
	select {
	case j.queue <- path:
		j.mu.Lock()
		j.pending++
		j.mu.Unlock()
		return true
	default:
		logger.Warn("trash queue full, leaving directory for next sweep",
			logger.KeyPath, path,
		)
		return false
	}
}

// Sweep queues every entry already under the trash root and returns
// how many were queued. Entries that do not fit in the queue are
// picked up by a later Sweep.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.trashRoot)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list trash root: %w", err)
	}

	queued := 0
	for _, e := range entries {
		if !j.Discard(filepath.Join(j.trashRoot, e.Name())) {
			break
		}
		queued++
	}
	return queued, nil
}

// Pending returns the number of queued removals.
func (j *Janitor) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.pending
}

// Stats returns removal counters since start.
func (j *Janitor) Stats() (pending, removed, failed int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.pending, j.removed, j.failed
}

// worker drains the queue until stopped. On stop it removes whatever
// is already queued before exiting.
func (j *Janitor) worker(ctx context.Context) {
	defer j.wg.Done()

	for {
		select {
		case <-j.stopCh:
			j.drain()
			return

		case <-ctx.Done():
			return

		case path, ok := <-j.queue:
			if !ok {
				return
			}
			j.remove(path)
		}
	}
}

// drain removes queued entries without blocking for new ones.
func (j *Janitor) drain() {
	for {
		select {
		case path, ok := <-j.queue:
			if !ok {
				return
			}
			j.remove(path)
		default:
			return
		}
	}
}

func (j *Janitor) remove(path string) {
	err := os.RemoveAll(path)

	j.mu.Lock()
	j.pending--
	if err != nil {
		j.failed++
	} else {
		j.removed++
	}
	j.mu.Unlock()

	if err != nil {
		logger.Error("trash removal failed",
			logger.KeyPath, path,
			logger.KeyError, err.Error(),
		)
	} else {
		logger.Debug("trashed scratch removed", logger.KeyPath, path)
	}
}
