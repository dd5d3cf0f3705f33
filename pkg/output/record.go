// Package output renders listing and transfer results.
//
// The JSONL form wraps each result in a typed envelope so a stream can be
// parsed line by line; the text form prints one bare value per line for
// shell pipelines.
package output

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/s3handler/pkg/provider"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: s3handler.<type>.v<version>
const (
	TypeObject   = "s3handler.object.v1"
	TypePrefix   = "s3handler.prefix.v1"
	TypeBucket   = "s3handler.bucket.v1"
	TypeError    = "s3handler.error.v1"
	TypeSummary  = "s3handler.summary.v1"
	TypeTransfer = "s3handler.transfer.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "s3handler.object.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID correlates every record of one command or request.
	JobID string `json:"job_id"`

	// Provider identifies the storage provider (e.g., "s3", "file").
	Provider string `json:"provider"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// ObjectRecord describes one listed or inspected object.
type ObjectRecord struct {
	Bucket       string            `json:"bucket"`
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ETag         string            `json:"etag,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	ContentType  string            `json:"content_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewObjectRecord builds an ObjectRecord from a listing summary.
func NewObjectRecord(bucket string, obj provider.ObjectSummary) *ObjectRecord {
	return &ObjectRecord{
		Bucket:       bucket,
		Key:          obj.Key,
		Size:         obj.Size,
		ETag:         obj.ETag,
		LastModified: obj.LastModified,
	}
}

// NewObjectRecordFromMeta builds an ObjectRecord from Head metadata.
func NewObjectRecordFromMeta(bucket string, meta *provider.ObjectMeta) *ObjectRecord {
	rec := NewObjectRecord(bucket, meta.ObjectSummary)
	rec.ContentType = meta.ContentType
	rec.Metadata = meta.Metadata
	return rec
}

// PrefixRecord describes one common prefix (directory).
type PrefixRecord struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
}

// BucketRecord describes one bucket.
type BucketRecord struct {
	Name string `json:"name"`
}

// ErrorRecord is the data payload for errors.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	Bucket string `json:"bucket,omitempty"`
	Key    string `json:"key,omitempty"`
	Prefix string `json:"prefix,omitempty"`
}

// Error codes for ErrorRecord and HTTP error bodies.
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeAccessDenied       = "ACCESS_DENIED"
	ErrCodeInvalidArgument    = "INVALID_ARGUMENT"
	ErrCodeThrottled          = "THROTTLED"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeInternal           = "INTERNAL"
)

// ErrorCode maps an error onto an ErrorRecord code.
func ErrorCode(err error) string {
	switch {
	case provider.IsNotFound(err):
		return ErrCodeNotFound
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err):
		return ErrCodeAccessDenied
	case provider.IsInvalidArgument(err):
		return ErrCodeInvalidArgument
	case provider.IsThrottled(err):
		return ErrCodeThrottled
	case provider.IsProviderUnavailable(err):
		return ErrCodeServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	default:
		return ErrCodeInternal
	}
}

// NewErrorRecord builds an ErrorRecord for err.
func NewErrorRecord(err error) *ErrorRecord {
	rec := &ErrorRecord{Code: ErrorCode(err), Message: err.Error()}
	var provErr *provider.ProviderError
	if errors.As(err, &provErr) {
		rec.Bucket = provErr.Bucket
		rec.Key = provErr.Key
	}
	return rec
}

// SummaryRecord closes a listing with aggregate counts.
type SummaryRecord struct {
	Entries int64 `json:"entries"`
	Bytes   int64 `json:"bytes"`
	Errors  int64 `json:"errors"`

	// Duration is the total run time.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// TransferRecord reports a completed single-object operation.
type TransferRecord struct {
	Op          string `json:"op"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	Bytes       int64  `json:"bytes"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
