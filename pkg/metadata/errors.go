package metadata

import "errors"

// Domain errors surfaced to the HTTP layer, which maps them onto wire
// error codes.
var (
	// ErrUserNotFound means no record exists for the given user key.
	ErrUserNotFound = errors.New("user not found")

	// ErrUploadNotFound means the upload id is unknown for the user,
	// in memory and in durable state alike. Uploads whose metadata has
	// moved to history also report this.
	ErrUploadNotFound = errors.New("upload not found")

	// ErrChunkOutOfRange means the chunk index falls outside
	// [0, totalChunks).
	ErrChunkOutOfRange = errors.New("chunk index out of range")

	// ErrInvalidSizes means fileSize or chunkSize is not positive.
	ErrInvalidSizes = errors.New("file size and chunk size must be positive")
)
