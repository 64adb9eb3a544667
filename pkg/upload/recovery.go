package upload

import (
	"context"

	"github.com/dropgate/dropgate/internal/logger"
	"github.com/dropgate/dropgate/pkg/metadata"
)

// RecoverPending scans durable state at startup and re-drives any
// persistent upload whose chunk set is already complete. Such records
// exist when a previous run crashed between the final chunk mark and
// finalize: every part is on disk (or the artifact already is), only
// the move to history is missing.
//
// Incomplete uploads are left alone; their clients resume by
// re-sending the chunks a snapshot reports missing. Recovery failures
// are logged and skipped so one damaged upload cannot block startup.
//
// Scratch directories without a matching upload record are discarded
// afterwards. Ephemeral uploads leave these behind whenever the
// process dies, because their metadata lives only in memory.
func (m *Manager) RecoverPending(ctx context.Context) error {
	var (
		finished []*metadata.Upload
		inflight int
		known    = make(map[string]struct{})
	)

	err := m.store.View(ctx, func(doc *metadata.Document) error {
		for _, rec := range doc.Users {
			for _, u := range rec.Uploads {
				known[u.ID] = struct{}{}
				if u.Complete() {
					finished = append(finished, u.Clone())
				} else {
					inflight++
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.metrics.UploadsRecovered(inflight + len(finished))
	if inflight > 0 {
		logger.Info("resumable uploads found in state", "count", inflight)
	}

	for _, u := range finished {
		logger.Info("re-driving assembly after restart",
			logger.KeyUserKey, u.UserKey,
			logger.KeyUploadID, u.ID,
			logger.KeyFileName, u.FileName,
		)
		if _, err := m.completeUpload(ctx, u); err != nil {
			logger.Error("startup assembly failed",
				logger.KeyUploadID, u.ID,
				logger.KeyError, err.Error(),
			)
		}
	}

	m.sweepOrphanScratch(known)
	return nil
}

// sweepOrphanScratch discards scratch directories owned by no live
// upload. known must hold every upload id present in durable state;
// the registry supplies the ephemeral ids.
func (m *Manager) sweepOrphanScratch(known map[string]struct{}) {
	for _, id := range m.registry.IDs() {
		known[id] = struct{}{}
	}

	ids, err := m.chunks.ListScratch()
	if err != nil {
		logger.Warn("scratch scan failed", logger.KeyError, err.Error())
		return
	}

	orphans := 0
	for _, id := range ids {
		if _, ok := known[id]; ok {
			continue
		}
		if err := m.chunks.PurgeScratch(id); err != nil {
			logger.Warn("orphan scratch purge failed",
				logger.KeyUploadID, id,
				logger.KeyError, err.Error(),
			)
			continue
		}
		orphans++
	}
	if orphans > 0 {
		logger.Info("discarded scratch directories with no upload record", "count", orphans)
	}
}
