// Package id generates the short identifiers used for user keys and
// uploads.
package id

import (
	"crypto/rand"
	"fmt"
)

const (
	// UserAlphabet is the base58 character set: alphanumerics without
	// the visually ambiguous 0, O, I and l.
	UserAlphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

	// UploadAlphabet is the full alphanumeric character set.
	UploadAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// UserIDLength is the length of generated user keys.
	UserIDLength = 16

	// UploadIDLength is the length of generated upload ids.
	UploadIDLength = 20
)

// NewUserID returns a fresh user key. Uniqueness against existing keys
// is the caller's concern; the upload manager retries inside its state
// transaction on the (vanishingly unlikely) collision.
func NewUserID() string {
	return randomString(UserAlphabet, UserIDLength)
}

// NewUploadID returns a fresh upload id. The 62^20 space makes
// collisions implausible without consulting state.
func NewUploadID() string {
	return randomString(UploadAlphabet, UploadIDLength)
}

// randomString draws n characters uniformly from alphabet using
// crypto/rand. Bytes that would bias the modulo are rejected.
func randomString(alphabet string, n int) string {
	max := byte(256 - (256 % len(alphabet)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand failure means the platform is broken.
			panic(fmt.Sprintf("id: crypto/rand failed: %v", err))
		}
		for _, b := range buf {
			if max != 0 && b >= max {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
