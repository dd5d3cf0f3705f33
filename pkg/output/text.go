package output

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// TextWriter prints one value per line: keys, prefixes, bucket names.
// Errors go to a separate stream so stdout stays pipeable.
type TextWriter struct {
	out  io.Writer
	errW io.Writer
	long bool
	mu   sync.Mutex

	closed bool
}

// NewTextWriter creates a text writer. With long set, object lines carry
// size and modification time before the key.
func NewTextWriter(out, errW io.Writer, long bool) *TextWriter {
	return &TextWriter{out: out, errW: errW, long: long}
}

// WriteObject prints the key, or "size  mtime  key" in long form.
func (tw *TextWriter) WriteObject(ctx context.Context, obj *ObjectRecord) error {
	if !tw.long {
		return tw.line(ctx, tw.out, obj.Key)
	}
	return tw.line(ctx, tw.out, fmt.Sprintf("%12d  %s  %s",
		obj.Size, obj.LastModified.UTC().Format(time.RFC3339), obj.Key))
}

// WritePrefix prints the prefix.
func (tw *TextWriter) WritePrefix(ctx context.Context, prefix *PrefixRecord) error {
	return tw.line(ctx, tw.out, prefix.Prefix)
}

// WriteBucket prints the bucket name.
func (tw *TextWriter) WriteBucket(ctx context.Context, bucket *BucketRecord) error {
	return tw.line(ctx, tw.out, bucket.Name)
}

// WriteError prints "error: CODE: message" to the error stream.
func (tw *TextWriter) WriteError(ctx context.Context, rec *ErrorRecord) error {
	return tw.line(ctx, tw.errW, "error: "+rec.Code+": "+rec.Message)
}

// WriteSummary prints nothing in short form; long form adds a total line.
func (tw *TextWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	if !tw.long {
		return nil
	}
	return tw.line(ctx, tw.out, fmt.Sprintf("total %d entries, %d bytes", sum.Entries, sum.Bytes))
}

// WriteTransfer prints "op source -> destination (N bytes)".
func (tw *TextWriter) WriteTransfer(ctx context.Context, tr *TransferRecord) error {
	var msg string
	switch {
	case tr.Source != "" && tr.Destination != "":
		msg = fmt.Sprintf("%s %s -> %s (%d bytes)", tr.Op, tr.Source, tr.Destination, tr.Bytes)
	case tr.Destination != "":
		msg = fmt.Sprintf("%s %s (%d bytes)", tr.Op, tr.Destination, tr.Bytes)
	default:
		msg = fmt.Sprintf("%s %s", tr.Op, tr.Source)
	}
	return tw.line(ctx, tw.out, msg)
}

// Close marks the writer as closed.
func (tw *TextWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.closed = true
	return nil
}

func (tw *TextWriter) line(ctx context.Context, w io.Writer, s string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.closed {
		return ErrWriterClosed
	}
	if err := writeAll(w, []byte(s+"\n")); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

var _ Writer = (*TextWriter)(nil)
