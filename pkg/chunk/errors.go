package chunk

import "fmt"

// MissingChunkError reports a part file that metadata claimed present
// but assembly could not find. The index identifies which chunk the
// client must re-send.
type MissingChunkError struct {
	Index int
}

func (e *MissingChunkError) Error() string {
	return fmt.Sprintf("missing chunk %d", e.Index)
}

// Code returns the wire error code for this missing part.
func (e *MissingChunkError) Code() string {
	return fmt.Sprintf("missing_chunk_%d", e.Index)
}

// SizeMismatchError reports an assembled artifact whose byte count
// differs from the declared file size.
type SizeMismatchError struct {
	Want int64
	Got  int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("assembled size %d does not match declared size %d", e.Got, e.Want)
}

// ChecksumMismatchError reports an assembled artifact whose SHA-256
// differs from the checksum declared at creation. Values are lowercase
// hex.
type ChecksumMismatchError struct {
	Want string
	Got  string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("assembled checksum %s does not match declared checksum %s", e.Got, e.Want)
}
