// Package chunk owns the upload bytes on disk: per-upload scratch
// directories of numbered part files, and the assembled artifacts.
package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dropgate/dropgate/pkg/bufpool"
	"github.com/dropgate/dropgate/pkg/janitor"
	"github.com/dropgate/dropgate/pkg/metadata"
)

// copyBufferSize is the pooled buffer size used when streaming chunk
// bytes to and from scratch files.
const copyBufferSize = 1 << 20

// assemblingSuffix marks an artifact still being written. Listings
// skip it and a crash leaves it behind harmlessly; the next assembly
// truncates it.
const assemblingSuffix = ".assembling"

// trashDirName sits inside the scratch root and collects discarded
// scratch directories until the janitor removes them. Upload ids are
// alphanumeric, so the name cannot collide with one.
const trashDirName = "_trash"

// Config holds the chunk store layout.
type Config struct {
	// UploadDir is the scratch root. Each upload gets
	// <UploadDir>/<uploadID>/<i>.part.
	UploadDir string

	// FinalDir receives assembled artifacts named
	// <uploadID>-<safeFileName>.
	FinalDir string

	// DirMode is the permission mode for created directories.
	// Default: 0755
	DirMode os.FileMode

	// FileMode is the permission mode for created files.
	// Default: 0644
	FileMode os.FileMode
}

// DefaultConfig returns the standard layout under dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		UploadDir: filepath.Join(dataDir, "uploads"),
		FinalDir:  filepath.Join(dataDir, "files"),
		DirMode:   0o755,
		FileMode:  0o644,
	}
}

// Store reads and writes chunk bytes. Concurrent WriteChunk calls for
// distinct indices are safe because every index owns its own file;
// callers must never share one call across goroutines.
type Store struct {
	cfg     Config
	janitor *janitor.Janitor
}

// New creates the store and both root directories.
func New(cfg Config) (*Store, error) {
	if cfg.UploadDir == "" || cfg.FinalDir == "" {
		return nil, errors.New("chunk store requires upload and final directories")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0o755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0o644
	}

	for _, dir := range []string{cfg.UploadDir, cfg.FinalDir} {
		if err := os.MkdirAll(dir, cfg.DirMode); err != nil {
			return nil, fmt.Errorf("create chunk directory %s: %w", dir, err)
		}
	}

	return &Store{cfg: cfg}, nil
}

// SetJanitor attaches a janitor so discarded scratch directories are
// renamed aside and removed in the background instead of removed in
// place. Must be called before the store serves requests.
func (s *Store) SetJanitor(j *janitor.Janitor) {
	s.janitor = j
}

// TrashDir returns the trash root inside the scratch root.
func (s *Store) TrashDir() string {
	return filepath.Join(s.cfg.UploadDir, trashDirName)
}

// scratchDir returns the per-upload scratch directory.
func (s *Store) scratchDir(uploadID string) string {
	return filepath.Join(s.cfg.UploadDir, uploadID)
}

// partPath returns the path of chunk i inside the scratch directory.
func (s *Store) partPath(uploadID string, i int) string {
	return filepath.Join(s.scratchDir(uploadID), fmt.Sprintf("%d.part", i))
}

// EnsureScratch creates the scratch directory for an upload.
// Idempotent; WriteChunk also creates it on demand.
func (s *Store) EnsureScratch(uploadID string) error {
	if err := os.MkdirAll(s.scratchDir(uploadID), s.cfg.DirMode); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	return nil
}

// WriteChunk streams r into <uploadID>/<index>.part. The bytes land in
// a unique temp file first and are renamed into place, so a part file
// is either absent or complete. An already-present part is left
// untouched and reported via existed.
func (s *Store) WriteChunk(ctx context.Context, uploadID string, index int, r io.Reader) (written int64, existed bool, err error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	dir := s.scratchDir(uploadID)
	if err := os.MkdirAll(dir, s.cfg.DirMode); err != nil {
		return 0, false, fmt.Errorf("create scratch directory: %w", err)
	}

	path := s.partPath(uploadID, index)
	if _, err := os.Stat(path); err == nil {
		return 0, true, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return 0, false, fmt.Errorf("stat part file: %w", err)
	}

	tmp, err := os.CreateTemp(dir, fmt.Sprintf("%d-*.tmp", index))
	if err != nil {
		return 0, false, fmt.Errorf("create part temp file: %w", err)
	}
	tmpName := tmp.Name()

	buf := bufpool.Get(copyBufferSize)
	defer bufpool.Put(buf)

	// The wrapper hides the file's ReadFrom so the copy runs through buf.
	n, err := io.CopyBuffer(struct{ io.Writer }{tmp}, r, buf)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, false, fmt.Errorf("write part file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, false, fmt.Errorf("close part temp file: %w", err)
	}
	if err := os.Chmod(tmpName, s.cfg.FileMode); err != nil {
		os.Remove(tmpName)
		return 0, false, fmt.Errorf("chmod part file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, false, fmt.Errorf("publish part file: %w", err)
	}

	return n, false, nil
}

// HasChunk reports whether the part file for index exists.
func (s *Store) HasChunk(uploadID string, index int) bool {
	_, err := os.Stat(s.partPath(uploadID, index))
	return err == nil
}

// Assemble concatenates every part of u in ascending index order into
// <FinalDir>/<id>-<safeFileName>, verifies the byte count and the
// optional checksum, removes the scratch directory, and returns the
// artifact path.
//
// The output streams through a temp sibling carrying the assembling
// suffix and is renamed only after verification, so no partial
// artifact ever sits at the final path. A missing part aborts with
// MissingChunkError and leaves the scratch directory intact for the
// client to repair.
func (s *Store) Assemble(ctx context.Context, u *metadata.Upload) (string, error) {
	if err := os.MkdirAll(s.cfg.FinalDir, s.cfg.DirMode); err != nil {
		return "", fmt.Errorf("create final directory: %w", err)
	}

	finalPath := filepath.Join(s.cfg.FinalDir, u.ID+"-"+SafeFileName(u.FileName))
	tmpPath := finalPath + assemblingSuffix

	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, s.cfg.FileMode)
	if err != nil {
		return "", fmt.Errorf("create assembly file: %w", err)
	}

	abort := func() {
		out.Close()
		os.Remove(tmpPath)
	}

	hash := sha256.New()
	dst := io.MultiWriter(out, hash)
	buf := bufpool.Get(copyBufferSize)
	defer bufpool.Put(buf)

	var written int64
	for i := 0; i < u.TotalChunks; i++ {
		if err := ctx.Err(); err != nil {
			abort()
			return "", err
		}

		part, err := os.Open(s.partPath(u.ID, i))
		if errors.Is(err, fs.ErrNotExist) {
			abort()
			return "", &MissingChunkError{Index: i}
		}
		if err != nil {
			abort()
			return "", fmt.Errorf("open part %d: %w", i, err)
		}

		// The wrapper hides the file's WriteTo so the copy runs through buf.
		n, err := io.CopyBuffer(dst, struct{ io.Reader }{part}, buf)
		part.Close()
		if err != nil {
			abort()
			return "", fmt.Errorf("append part %d: %w", i, err)
		}
		written += n
	}

	if err := out.Sync(); err != nil {
		abort()
		return "", fmt.Errorf("sync assembly file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close assembly file: %w", err)
	}

	if written != u.FileSize {
		os.Remove(tmpPath)
		return "", &SizeMismatchError{Want: u.FileSize, Got: written}
	}
	if u.Checksum != "" {
		calc := hex.EncodeToString(hash.Sum(nil))
		if !strings.EqualFold(calc, u.Checksum) {
			os.Remove(tmpPath)
			return "", &ChecksumMismatchError{Want: strings.ToLower(u.Checksum), Got: calc}
		}
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("publish artifact: %w", err)
	}

	if err := s.PurgeScratch(u.ID); err != nil {
		// The artifact is in place; a re-driven assembly can retry the
		// cleanup with the parts still present.
		return "", err
	}
	return finalPath, nil
}

// PurgeScratch discards the upload's scratch directory and every part
// in it. With a janitor attached the directory is renamed into the
// trash root and removed in the background; otherwise it is removed
// in place. Purging an absent directory is not an error.
func (s *Store) PurgeScratch(uploadID string) error {
	if s.janitor != nil {
		if trashed, ok, err := s.TrashScratch(uploadID); err == nil {
			if ok {
				s.janitor.Discard(trashed)
			}
			return nil
		}
		// The rename failed; remove in place instead.
	}
	if err := os.RemoveAll(s.scratchDir(uploadID)); err != nil {
		return fmt.Errorf("purge scratch for %s: %w", uploadID, err)
	}
	return nil
}

// TrashScratch renames the upload's scratch directory into the trash
// root and returns the trashed path. The rename is atomic, so the
// scratch directory is never observable half-removed. ok is false
// when there was no scratch directory to move.
func (s *Store) TrashScratch(uploadID string) (trashed string, ok bool, err error) {
	src := s.scratchDir(uploadID)
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("stat scratch for %s: %w", uploadID, err)
	}

	if err := os.MkdirAll(s.TrashDir(), s.cfg.DirMode); err != nil {
		return "", false, fmt.Errorf("create trash root: %w", err)
	}

	// The timestamp keeps repeated discards of a reused id distinct.
	dst := filepath.Join(s.TrashDir(), fmt.Sprintf("%s-%d", uploadID, time.Now().UnixNano()))
	if err := os.Rename(src, dst); err != nil {
		return "", false, fmt.Errorf("trash scratch for %s: %w", uploadID, err)
	}
	return dst, true, nil
}

// ListScratch returns the upload ids that currently own a scratch
// directory. The trash root is not an upload and is skipped.
func (s *Store) ListScratch() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.UploadDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list scratch root: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || e.Name() == trashDirName {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}

// Artifact describes one assembled file.
type Artifact struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// ListArtifacts returns the assembled files sorted by name. Artifacts
// still being assembled are excluded.
func (s *Store) ListArtifacts() ([]Artifact, error) {
	entries, err := os.ReadDir(s.cfg.FinalDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Artifact{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	out := make([]Artifact, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), assemblingSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Artifact{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ArtifactPath returns the path of a named artifact. The caller must
// have validated name with ValidArtifactName.
func (s *Store) ArtifactPath(name string) string {
	return filepath.Join(s.cfg.FinalDir, name)
}

// FindArtifact returns the path of the artifact assembled for
// uploadID, if any. Matching is by id prefix because generated
// fallback names are not reproducible from metadata.
func (s *Store) FindArtifact(uploadID string) (string, bool) {
	entries, err := os.ReadDir(s.cfg.FinalDir)
	if err != nil {
		return "", false
	}

	prefix := uploadID + "-"
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), assemblingSuffix) {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			return filepath.Join(s.cfg.FinalDir, e.Name()), true
		}
	}
	return "", false
}
