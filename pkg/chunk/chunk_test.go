package chunk

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dropgate/dropgate/pkg/janitor"
	"github.com/dropgate/dropgate/pkg/metadata"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func testUpload(id string, fileSize, chunkSize int64) *metadata.Upload {
	return metadata.NewUpload(id, "user1", "data.bin", fileSize, chunkSize, true, time.Now().UTC())
}

func writeParts(t *testing.T, s *Store, uploadID string, parts ...[]byte) {
	t.Helper()

	ctx := t.Context()
	for i, p := range parts {
		if _, _, err := s.WriteChunk(ctx, uploadID, i, bytes.NewReader(p)); err != nil {
			t.Fatalf("WriteChunk(%d) failed: %v", i, err)
		}
	}
}

func TestWriteChunk(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	written, existed, err := s.WriteChunk(ctx, "up1", 0, strings.NewReader("AAAAAA"))
	if err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}
	if written != 6 || existed {
		t.Errorf("written=%d existed=%v, want 6 false", written, existed)
	}
	if !s.HasChunk("up1", 0) {
		t.Error("HasChunk reports part missing after write")
	}
	if s.HasChunk("up1", 1) {
		t.Error("HasChunk reports an unwritten part")
	}

	data, err := os.ReadFile(s.partPath("up1", 0))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "AAAAAA" {
		t.Errorf("part content = %q", data)
	}
}

func TestWriteChunkIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	if _, _, err := s.WriteChunk(ctx, "up1", 0, strings.NewReader("FIRST")); err != nil {
		t.Fatalf("WriteChunk failed: %v", err)
	}

	written, existed, err := s.WriteChunk(ctx, "up1", 0, strings.NewReader("SECOND"))
	if err != nil {
		t.Fatalf("duplicate WriteChunk failed: %v", err)
	}
	if !existed || written != 0 {
		t.Errorf("written=%d existed=%v, want 0 true", written, existed)
	}

	data, _ := os.ReadFile(s.partPath("up1", 0))
	if string(data) != "FIRST" {
		t.Errorf("duplicate write replaced part content: %q", data)
	}
}

func TestWriteChunkLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)
	writeParts(t, s, "up1", []byte("AA"), []byte("BB"))

	entries, err := os.ReadDir(s.scratchDir("up1"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 2 {
		t.Errorf("scratch has %d entries, want 2", len(entries))
	}
}

func TestEnsureScratch(t *testing.T) {
	s := newTestStore(t)

	if err := s.EnsureScratch("up1"); err != nil {
		t.Fatalf("EnsureScratch failed: %v", err)
	}
	info, err := os.Stat(s.scratchDir("up1"))
	if err != nil {
		t.Fatalf("scratch dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("scratch path is not a directory")
	}
	if err := s.EnsureScratch("up1"); err != nil {
		t.Fatalf("EnsureScratch not idempotent: %v", err)
	}
}

func TestAssembleFidelity(t *testing.T) {
	s := newTestStore(t)
	content := []byte("0123456789")
	u := testUpload("up1", 10, 3)

	writeParts(t, s, u.ID, content[0:3], content[3:6], content[6:9], content[9:10])

	path, err := s.Assemble(t.Context(), u)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("assembled content = %q, want %q", got, content)
	}
	if base := filepath.Base(path); base != "up1-data.bin" {
		t.Errorf("artifact name = %q, want up1-data.bin", base)
	}
	if _, err := os.Stat(s.scratchDir(u.ID)); !errors.Is(err, os.ErrNotExist) {
		t.Error("scratch directory survived assembly")
	}
}

func TestAssembleMissingPart(t *testing.T) {
	s := newTestStore(t)
	u := testUpload("up1", 9, 3)
	ctx := t.Context()

	// Parts 0 and 2 present, 1 missing.
	if _, _, err := s.WriteChunk(ctx, u.ID, 0, strings.NewReader("AAA")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.WriteChunk(ctx, u.ID, 2, strings.NewReader("CCC")); err != nil {
		t.Fatal(err)
	}

	_, err := s.Assemble(ctx, u)
	var missing *MissingChunkError
	if !errors.As(err, &missing) {
		t.Fatalf("Assemble error = %v, want MissingChunkError", err)
	}
	if missing.Index != 1 {
		t.Errorf("missing index = %d, want 1", missing.Index)
	}
	if got := missing.Code(); got != "missing_chunk_1" {
		t.Errorf("Code() = %q, want missing_chunk_1", got)
	}

	// No artifact and no leftover assembling file.
	entries, err := os.ReadDir(s.cfg.FinalDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("final dir has %d entries after failed assembly", len(entries))
	}

	// Scratch stays so the client can repair.
	if !s.HasChunk(u.ID, 0) || !s.HasChunk(u.ID, 2) {
		t.Error("failed assembly purged the scratch parts")
	}
}

func TestAssembleSizeMismatch(t *testing.T) {
	s := newTestStore(t)
	u := testUpload("up1", 10, 5)

	// Declared 10 bytes, actual 8.
	writeParts(t, s, u.ID, []byte("AAAA"), []byte("BBBB"))

	_, err := s.Assemble(t.Context(), u)
	var mismatch *SizeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Assemble error = %v, want SizeMismatchError", err)
	}
	if mismatch.Want != 10 || mismatch.Got != 8 {
		t.Errorf("mismatch = %+v", mismatch)
	}

	entries, _ := os.ReadDir(s.cfg.FinalDir)
	if len(entries) != 0 {
		t.Error("size mismatch left a file in the final dir")
	}
}

func TestAssembleChecksum(t *testing.T) {
	content := []byte("checksummed content")
	sum := sha256.Sum256(content)

	t.Run("match", func(t *testing.T) {
		s := newTestStore(t)
		u := testUpload("up1", int64(len(content)), 8)
		// Uppercase declared checksum must still match.
		u.Checksum = strings.ToUpper(hex.EncodeToString(sum[:]))

		writeParts(t, s, u.ID, content[0:8], content[8:16], content[16:])

		if _, err := s.Assemble(t.Context(), u); err != nil {
			t.Fatalf("Assemble failed: %v", err)
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		s := newTestStore(t)
		u := testUpload("up1", int64(len(content)), 8)
		u.Checksum = strings.Repeat("ab", 32)

		writeParts(t, s, u.ID, content[0:8], content[8:16], content[16:])

		_, err := s.Assemble(t.Context(), u)
		var mismatch *ChecksumMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("Assemble error = %v, want ChecksumMismatchError", err)
		}
		if mismatch.Got != hex.EncodeToString(sum[:]) {
			t.Errorf("Got = %s", mismatch.Got)
		}

		entries, _ := os.ReadDir(s.cfg.FinalDir)
		if len(entries) != 0 {
			t.Error("checksum mismatch left a file in the final dir")
		}
	})
}

func TestPurgeScratch(t *testing.T) {
	s := newTestStore(t)
	writeParts(t, s, "up1", []byte("AA"))

	if err := s.PurgeScratch("up1"); err != nil {
		t.Fatalf("PurgeScratch failed: %v", err)
	}
	if _, err := os.Stat(s.scratchDir("up1")); !errors.Is(err, os.ErrNotExist) {
		t.Error("scratch directory still present")
	}

	// Purging an absent upload is fine.
	if err := s.PurgeScratch("up1"); err != nil {
		t.Errorf("repeated PurgeScratch failed: %v", err)
	}
}

func TestTrashScratch(t *testing.T) {
	s := newTestStore(t)
	writeParts(t, s, "up1", []byte("AA"), []byte("BB"))

	trashed, ok, err := s.TrashScratch("up1")
	if err != nil {
		t.Fatalf("TrashScratch failed: %v", err)
	}
	if !ok {
		t.Fatal("TrashScratch reported nothing to move")
	}
	if _, err := os.Stat(s.scratchDir("up1")); !errors.Is(err, os.ErrNotExist) {
		t.Error("scratch directory still present after trash")
	}
	if filepath.Dir(trashed) != s.TrashDir() {
		t.Errorf("trashed path %s not under trash root %s", trashed, s.TrashDir())
	}

	// The parts moved with the directory.
	data, err := os.ReadFile(filepath.Join(trashed, "1.part"))
	if err != nil {
		t.Fatalf("reading trashed part: %v", err)
	}
	if string(data) != "BB" {
		t.Errorf("trashed part content = %q, want BB", data)
	}

	// Trashing an absent upload reports ok=false.
	if _, ok, err := s.TrashScratch("up1"); err != nil || ok {
		t.Errorf("repeated TrashScratch = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestPurgeScratchWithJanitor(t *testing.T) {
	s := newTestStore(t)
	writeParts(t, s, "up1", []byte("AA"))

	j := janitor.New(s.TrashDir(), janitor.DefaultConfig())
	j.Start(t.Context())
	defer j.Stop(time.Second)
	s.SetJanitor(j)

	if err := s.PurgeScratch("up1"); err != nil {
		t.Fatalf("PurgeScratch failed: %v", err)
	}

	// The rename happens before PurgeScratch returns.
	if _, err := os.Stat(s.scratchDir("up1")); !errors.Is(err, os.ErrNotExist) {
		t.Error("scratch directory still present after purge")
	}

	// The janitor removes the trashed copy shortly after.
	deadline := time.Now().Add(time.Second)
	for {
		entries, err := os.ReadDir(s.TrashDir())
		if err != nil {
			t.Fatalf("reading trash root: %v", err)
		}
		if len(entries) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("trash root still holds %d entries", len(entries))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestListScratch(t *testing.T) {
	s := newTestStore(t)
	writeParts(t, s, "up1", []byte("AA"))
	writeParts(t, s, "up2", []byte("BB"))

	// The trash root must not be listed as an upload.
	if _, _, err := s.TrashScratch("up2"); err != nil {
		t.Fatalf("TrashScratch failed: %v", err)
	}

	ids, err := s.ListScratch()
	if err != nil {
		t.Fatalf("ListScratch failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "up1" {
		t.Errorf("ListScratch = %v, want [up1]", ids)
	}
}

func TestListArtifacts(t *testing.T) {
	s := newTestStore(t)

	for name, content := range map[string]string{
		"up2-b.bin":            "BB",
		"up1-a.bin":            "A",
		"up3-c.bin.assembling": "partial",
	} {
		if err := os.WriteFile(filepath.Join(s.cfg.FinalDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(s.cfg.FinalDir, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	artifacts, err := s.ListArtifacts()
	if err != nil {
		t.Fatalf("ListArtifacts failed: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("got %d artifacts, want 2: %+v", len(artifacts), artifacts)
	}
	if artifacts[0].Name != "up1-a.bin" || artifacts[1].Name != "up2-b.bin" {
		t.Errorf("artifacts not sorted by name: %+v", artifacts)
	}
	if artifacts[0].Size != 1 {
		t.Errorf("artifact size = %d, want 1", artifacts[0].Size)
	}
}

func TestSafeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"my report (final).pdf", "my_report__final_.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\bob\notes.txt`, "notes.txt"},
		{"résumé.pdf", "r_sum_.pdf"},
		{"UPPER_lower-1.2.tar.gz", "UPPER_lower-1.2.tar.gz"},
	}

	for _, tt := range tests {
		if got := SafeFileName(tt.in); got != tt.want {
			t.Errorf("SafeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSafeFileNameFallback(t *testing.T) {
	for _, in := range []string{"", ".", "..", "///", "é é", "___"} {
		got := SafeFileName(in)
		if !strings.HasPrefix(got, "upload-") || len(got) <= len("upload-") {
			t.Errorf("SafeFileName(%q) = %q, want generated upload-<uuid> name", in, got)
		}
	}
}

func TestValidArtifactName(t *testing.T) {
	valid := []string{"up1-a.bin", "UPPER-1.2_x.tar.gz", "..hidden"}
	for _, name := range valid {
		if !ValidArtifactName(name) {
			t.Errorf("ValidArtifactName(%q) = false, want true", name)
		}
	}

	invalid := []string{"", ".", "..", "a/b", `a\b`, "naïve.txt", "with space"}
	for _, name := range invalid {
		if ValidArtifactName(name) {
			t.Errorf("ValidArtifactName(%q) = true, want false", name)
		}
	}
}
