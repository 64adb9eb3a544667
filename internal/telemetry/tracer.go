package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for upload operations.
// HTTP keys follow OpenTelemetry semantic conventions; domain-specific
// keys use the "upload.", "chunk." and "artifact." prefixes.
const (
	// ========================================================================
	// HTTP attributes
	// ========================================================================
	AttrHTTPMethod = "http.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.status_code"
	AttrClientAddr = "client.address"

	// ========================================================================
	// Upload attributes
	// ========================================================================
	AttrUploadID    = "upload.id"
	AttrUserKey     = "upload.user_key"
	AttrFileName    = "upload.file_name"
	AttrFileSize    = "upload.file_size"
	AttrChunkSize   = "upload.chunk_size"
	AttrTotalChunks = "upload.total_chunks"
	AttrPersist     = "upload.persist"
	AttrStatus      = "upload.status"

	// ========================================================================
	// Chunk attributes
	// ========================================================================
	AttrChunkIndex = "chunk.index"
	AttrChunkBytes = "chunk.bytes"
	AttrDuplicate  = "chunk.duplicate"

	// ========================================================================
	// Artifact attributes
	// ========================================================================
	AttrArtifactName = "artifact.name"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// Root span for HTTP request processing
	SpanHTTPRequest = "http.request"

	// Upload lifecycle spans
	SpanUploadCreate   = "upload.create"
	SpanUploadChunk    = "upload.chunk"
	SpanUploadAssemble = "upload.assemble"
	SpanUploadRemove   = "upload.remove"

	// State store spans
	SpanStateLoad    = "state.load"
	SpanStatePersist = "state.persist"
)

// HTTPMethod returns an attribute for the HTTP request method
func HTTPMethod(method string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, method)
}

// HTTPRoute returns an attribute for the matched route pattern
func HTTPRoute(route string) attribute.KeyValue {
	return attribute.String(AttrHTTPRoute, route)
}

// HTTPStatus returns an attribute for the HTTP response status code
func HTTPStatus(code int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, code)
}

// ClientAddress returns an attribute for the remote client address
func ClientAddress(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// UploadID returns an attribute for the upload identifier
func UploadID(id string) attribute.KeyValue {
	return attribute.String(AttrUploadID, id)
}

// UserKey returns an attribute for the owning user key
func UserKey(key string) attribute.KeyValue {
	return attribute.String(AttrUserKey, key)
}

// FileName returns an attribute for the upload's file name
func FileName(name string) attribute.KeyValue {
	return attribute.String(AttrFileName, name)
}

// FileSize returns an attribute for the declared file size in bytes
func FileSize(size int64) attribute.KeyValue {
	return attribute.Int64(AttrFileSize, size)
}

// ChunkSize returns an attribute for the declared chunk size in bytes
func ChunkSize(size int64) attribute.KeyValue {
	return attribute.Int64(AttrChunkSize, size)
}

// TotalChunks returns an attribute for the expected chunk count
func TotalChunks(n int) attribute.KeyValue {
	return attribute.Int(AttrTotalChunks, n)
}

// Persist returns an attribute for the upload's durability mode
func Persist(persist bool) attribute.KeyValue {
	return attribute.Bool(AttrPersist, persist)
}

// UploadStatus returns an attribute for the upload status
func UploadStatus(status string) attribute.KeyValue {
	return attribute.String(AttrStatus, status)
}

// ChunkIndex returns an attribute for a chunk's zero-based index
func ChunkIndex(index int) attribute.KeyValue {
	return attribute.Int(AttrChunkIndex, index)
}

// ChunkBytes returns an attribute for a chunk's byte count
func ChunkBytes(n int64) attribute.KeyValue {
	return attribute.Int64(AttrChunkBytes, n)
}

// Duplicate returns an attribute marking a chunk re-submission
func Duplicate(dup bool) attribute.KeyValue {
	return attribute.Bool(AttrDuplicate, dup)
}

// ArtifactName returns an attribute for an assembled artifact's name
func ArtifactName(name string) attribute.KeyValue {
	return attribute.String(AttrArtifactName, name)
}

// StartUploadSpan starts a span for an upload lifecycle operation.
// This is a convenience function that sets the upload id attribute.
func StartUploadSpan(ctx context.Context, operation, uploadID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		UploadID(uploadID),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "upload."+operation, trace.WithAttributes(allAttrs...))
}

// StartChunkSpan starts a span for a single chunk receipt.
func StartChunkSpan(ctx context.Context, uploadID string, index int, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		UploadID(uploadID),
		ChunkIndex(index),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanUploadChunk, trace.WithAttributes(allAttrs...))
}

// StartStateSpan starts a span for a state store operation.
func StartStateSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "state."+operation, trace.WithAttributes(attrs...))
}
