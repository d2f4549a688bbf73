// Package sink writes extracted stream records to their destinations.
//
//	jsonl.go     - JSON Lines to any io.Writer
//	postgres.go  - JSONB rows in a Postgres table (lib/pq)
//	object.go    - Parquet or gzip JSON Lines objects in a bucket
//	s3_client.go - MinIO/S3 ObjectStore implementation
package sink

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/nucleus/ucl-kintone/internal/endpoint"
)

// Stream identifies one stream load within a run.
type Stream struct {
	Name     string
	RunID    string
	LoadDate string // YYYY-MM-DD
}

// Sink receives the records of each stream of a run. For every stream the
// runner calls Prepare once, Write for each batch, then Commit. The schema
// given to Prepare is the field-list view of the stream's JSON schema:
// one field per property, in property order.
type Sink interface {
	Name() string
	Prepare(ctx context.Context, stream Stream, schema *endpoint.Schema) error
	Write(ctx context.Context, stream Stream, records []endpoint.Record) error
	Commit(ctx context.Context, stream Stream) error
	Close() error
}

// Error wraps a sink failure with a code and retryability hint.
type Error struct {
	Code      string
	Retryable bool
	Err       error
}

// Sink error codes.
const (
	CodeBucketNotFound   = "E_BUCKET_NOT_FOUND"
	CodePermissionDenied = "E_PERMISSION_DENIED"
	CodeAuthInvalid      = "E_AUTH_INVALID"
	CodeUnreachable      = "E_ENDPOINT_UNREACHABLE"
	CodeTimeout          = "E_TIMEOUT"
	CodeWriteFailed      = "E_SINK_WRITE_FAILED"
	CodeInvalidConfig    = "E_INVALID_CONFIG"
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func wrapError(code string, retryable bool, err error) *Error {
	return &Error{Code: code, Retryable: retryable, Err: err}
}

// joinKey joins object key parts, dropping empty ones.
func joinKey(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			kept = append(kept, p)
		}
	}
	return path.Join(kept...)
}
