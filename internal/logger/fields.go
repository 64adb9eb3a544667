package logger

// Standard field keys. Using the same keys across the codebase keeps
// log aggregation queries stable.
const (
	KeyRequestID = "request_id" // HTTP request correlation id
	KeyUserKey   = "user_key"   // owner of an upload
	KeyUploadID  = "upload_id"  // upload identifier
	KeyChunk     = "chunk"      // chunk index
	KeyFileName  = "file_name"  // client-supplied file name
	KeySize      = "size"       // byte count
	KeyPath      = "path"       // filesystem or URL path
	KeyDuration  = "duration_ms"
	KeyError     = "error"
)
