package chunk

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// SafeFileName reduces a client-supplied file name to its base name
// with every character outside [A-Za-z0-9._-] replaced by an
// underscore. Names that sanitize down to nothing usable (no letters
// or digits left) fall back to a generated "upload-<uuid>" name so an
// artifact always has a distinct, portable file name. The raw name is
// only ever used here; metadata keeps the original.
func SafeFileName(name string) string {
	base := filepath.Base(name)
	// Clients on Windows may send backslash paths.
	if i := strings.LastIndexByte(base, '\\'); i >= 0 {
		base = base[i+1:]
	}

	var b strings.Builder
	b.Grow(len(base))
	hasWord := false
	for _, r := range base {
		if isSafeRune(r) {
			b.WriteRune(r)
			if isWordRune(r) {
				hasWord = true
			}
		} else {
			b.WriteByte('_')
		}
	}

	if !hasWord {
		return "upload-" + uuid.NewString()
	}
	return b.String()
}

// ValidArtifactName reports whether name is a plain file name made of
// the safe character set. Path separators and dot-only names never
// pass, so a validated name cannot escape the artifacts directory.
func ValidArtifactName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	for _, r := range name {
		if !isSafeRune(r) {
			return false
		}
	}
	return true
}

func isSafeRune(r rune) bool {
	return isWordRune(r) || r == '.' || r == '_' || r == '-'
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	}
	return false
}
