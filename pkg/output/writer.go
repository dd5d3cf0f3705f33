package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer emits results.
//
// Implementations must be safe for concurrent use from multiple
// goroutines. Each Write* method emits one complete line.
type Writer interface {
	WriteObject(ctx context.Context, obj *ObjectRecord) error
	WritePrefix(ctx context.Context, prefix *PrefixRecord) error
	WriteBucket(ctx context.Context, bucket *BucketRecord) error
	WriteError(ctx context.Context, err *ErrorRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error
	WriteTransfer(ctx context.Context, transfer *TransferRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// JSONLWriter is safe for concurrent use. Writes are serialized using
// a mutex to ensure atomic line writes (no interleaved output).
type JSONLWriter struct {
	w        io.Writer
	jobID    string
	provider string
	mu       sync.Mutex
	flusher  func()

	closed bool
}

// NewJSONLWriter creates a new JSONL writer.
//
// Parameters:
//   - w: The underlying writer (stdout, HTTP response, etc.)
//   - jobID: Correlation ID stamped on every record
//   - provider: Storage provider identifier (e.g., "s3")
//
// If w has a Flush() method (as http.ResponseWriter does through
// http.Flusher) it is called after every record.
func NewJSONLWriter(w io.Writer, jobID, provider string) *JSONLWriter {
	jw := &JSONLWriter{
		w:        w,
		jobID:    jobID,
		provider: provider,
	}
	if f, ok := w.(interface{ Flush() }); ok {
		jw.flusher = f.Flush
	}
	return jw
}

// WriteObject emits an object record.
func (jw *JSONLWriter) WriteObject(ctx context.Context, obj *ObjectRecord) error {
	return jw.writeRecord(ctx, TypeObject, obj)
}

// WritePrefix emits a prefix record.
func (jw *JSONLWriter) WritePrefix(ctx context.Context, prefix *PrefixRecord) error {
	return jw.writeRecord(ctx, TypePrefix, prefix)
}

// WriteBucket emits a bucket record.
func (jw *JSONLWriter) WriteBucket(ctx context.Context, bucket *BucketRecord) error {
	return jw.writeRecord(ctx, TypeBucket, bucket)
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, err)
}

// WriteSummary emits a summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// WriteTransfer emits a transfer record.
func (jw *JSONLWriter) WriteTransfer(ctx context.Context, transfer *TransferRecord) error {
	return jw.writeRecord(ctx, TypeTransfer, transfer)
}

// Close marks the writer as closed.
//
// The underlying writer is NOT closed; that is the caller's job.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals data and writes a complete record line under the
// mutex.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Marshal the payload outside the lock.
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}

	record := Record{
		Type:     recordType,
		TS:       time.Now().UTC(),
		JobID:    jw.jobID,
		Provider: jw.provider,
		Data:     dataBytes,
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	if jw.flusher != nil {
		jw.flusher()
	}
	return nil
}

// writeAll writes all bytes to w, looping over short writes so a JSONL line
// is never truncated.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			// No progress made - avoid infinite loop
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Compile-time check that JSONLWriter implements Writer.
var _ Writer = (*JSONLWriter)(nil)
