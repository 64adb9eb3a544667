package config

import (
	"fmt"
	"path/filepath"

	"github.com/dropgate/dropgate/pkg/chunk"
	"github.com/dropgate/dropgate/pkg/metadata/store"
	badgerstore "github.com/dropgate/dropgate/pkg/metadata/store/badger"
	"github.com/dropgate/dropgate/pkg/metadata/store/jsonfile"
)

// CreateStateStore opens the durable state backend named by the
// configuration. The caller owns the returned store and must Close it.
func CreateStateStore(cfg StorageConfig) (store.Store, error) {
	switch cfg.StateBackend {
	case StateBackendJSON, "":
		return jsonfile.Open(filepath.Join(cfg.DataDir, "state.json"))
	case StateBackendBadger:
		return badgerstore.Open(filepath.Join(cfg.DataDir, "badger"))
	default:
		return nil, fmt.Errorf("unknown state backend: %q", cfg.StateBackend)
	}
}

// CreateChunkStore creates the on-disk chunk store rooted at the data
// directory: scratch chunks under uploads/, assembled artifacts under
// files/. Both directories are created if missing.
func CreateChunkStore(cfg StorageConfig) (*chunk.Store, error) {
	return chunk.New(chunk.DefaultConfig(cfg.DataDir))
}
