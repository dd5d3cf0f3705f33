// Package fileops implements single-object operations on top of a provider:
// whole-object reads and writes, deletes, copies, and transfers to and from
// local files.
package fileops

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/3leaps/s3handler/pkg/provider"
)

// SizeMismatchError reports a download whose byte count differs from the
// size the gateway announced.
type SizeMismatchError struct {
	Bucket   string
	Key      string
	Expected int64
	Got      int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch for %s/%s: expected %d bytes, got %d", e.Bucket, e.Key, e.Expected, e.Got)
}

// Ops performs object operations through a provider.
type Ops struct {
	p      provider.Provider
	logger *zap.Logger
}

// Option configures Ops.
type Option func(*Ops)

// WithLogger sets the logger for operation-level debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Ops) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New returns Ops over p.
func New(p provider.Provider, opts ...Option) *Ops {
	o := &Ops{p: p, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Read returns the full contents of an object.
func (o *Ops) Read(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := provider.ValidateObject(bucket, key); err != nil {
		return nil, err
	}
	body, size, err := o.p.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := buf.ReadFrom(body); err != nil {
		return nil, &provider.ProviderError{Op: "Read", Provider: "fileops", Bucket: bucket, Key: key, Err: err}
	}
	o.logger.Debug("Read object", zap.String("bucket", bucket), zap.String("key", key), zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

// Write replaces an object with data. The content type is sniffed from data.
func (o *Ops) Write(ctx context.Context, bucket, key string, data []byte) error {
	if err := provider.ValidateObject(bucket, key); err != nil {
		return err
	}
	contentType := mimetype.Detect(data).String()
	if err := o.p.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), provider.PutOptions{ContentType: contentType}); err != nil {
		return err
	}
	o.logger.Debug("Wrote object",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("bytes", len(data)),
		zap.String("content_type", contentType))
	return nil
}

// Delete removes an object. Deleting a missing object succeeds.
func (o *Ops) Delete(ctx context.Context, bucket, key string) error {
	if err := provider.ValidateObject(bucket, key); err != nil {
		return err
	}
	if err := o.p.DeleteObject(ctx, bucket, key); err != nil {
		return err
	}
	o.logger.Debug("Deleted object", zap.String("bucket", bucket), zap.String("key", key))
	return nil
}

// Stat returns object metadata.
func (o *Ops) Stat(ctx context.Context, bucket, key string) (*provider.ObjectMeta, error) {
	if err := provider.ValidateObject(bucket, key); err != nil {
		return nil, err
	}
	return o.p.Head(ctx, bucket, key)
}

// Size returns the object size in bytes.
func (o *Ops) Size(ctx context.Context, bucket, key string) (int64, error) {
	meta, err := o.Stat(ctx, bucket, key)
	if err != nil {
		return 0, err
	}
	return meta.Size, nil
}

// Copy copies src to dst, server side when the provider supports it and by
// streaming through this process otherwise.
func (o *Ops) Copy(ctx context.Context, src, dst provider.ObjectRef) error {
	if err := provider.ValidateObject(src.Bucket, src.Key); err != nil {
		return err
	}
	if err := provider.ValidateObject(dst.Bucket, dst.Key); err != nil {
		return err
	}

	if copier, ok := o.p.(provider.ObjectCopier); ok {
		err := copier.CopyObject(ctx, src, dst)
		if err == nil || !provider.IsNotSupported(err) {
			if err == nil {
				o.logger.Debug("Copied object server side", zap.Stringer("src", src), zap.Stringer("dst", dst))
			}
			return err
		}
	}

	body, size, err := o.p.GetObject(ctx, src.Bucket, src.Key)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	if err := o.p.PutObject(ctx, dst.Bucket, dst.Key, body, size, provider.PutOptions{}); err != nil {
		return err
	}
	o.logger.Debug("Copied object by streaming", zap.Stringer("src", src), zap.Stringer("dst", dst), zap.Int64("bytes", size))
	return nil
}

// Download writes an object to localPath, creating parent directories. The
// file is written to a temp name and renamed into place, so a failed
// download never leaves a partial file at localPath.
func (o *Ops) Download(ctx context.Context, bucket, key, localPath string) (int64, error) {
	if err := provider.ValidateObject(bucket, key); err != nil {
		return 0, err
	}
	body, size, err := o.p.GetObject(ctx, bucket, key)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(localPath)+".part-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, body)
	if err != nil {
		return n, &provider.ProviderError{Op: "Download", Provider: "fileops", Bucket: bucket, Key: key, Err: err}
	}
	if size >= 0 && n != size {
		return n, &SizeMismatchError{Bucket: bucket, Key: key, Expected: size, Got: n}
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, localPath); err != nil {
		return n, fmt.Errorf("rename into place: %w", err)
	}
	committed = true

	o.logger.Debug("Downloaded object",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.String("path", localPath),
		zap.Int64("bytes", n))
	return n, nil
}

// Upload writes the local file at localPath to an object.
func (o *Ops) Upload(ctx context.Context, bucket, key, localPath string) (int64, error) {
	if err := provider.ValidateObject(bucket, key); err != nil {
		return 0, err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if st.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", provider.ErrInvalidArgument, localPath)
	}

	contentType := ""
	if mt, err := mimetype.DetectReader(f); err == nil {
		contentType = mt.String()
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	if err := o.p.PutObject(ctx, bucket, key, f, st.Size(), provider.PutOptions{ContentType: contentType}); err != nil {
		return 0, err
	}
	o.logger.Debug("Uploaded file",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.String("path", localPath),
		zap.Int64("bytes", st.Size()))
	return st.Size(), nil
}
