// Package client is the entry point for browsing and moving objects in an
// S3-compatible store.
//
// A Client owns one provider (S3 or a local directory tree) decorated with
// retries, a listing engine over it, and single-object file operations.
// There is no process-wide session; create one Client per configuration and
// Close it when done.
package client

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/s3handler/pkg/fileops"
	"github.com/3leaps/s3handler/pkg/listing"
	"github.com/3leaps/s3handler/pkg/match"
	"github.com/3leaps/s3handler/pkg/provider"
	"github.com/3leaps/s3handler/pkg/provider/file"
	"github.com/3leaps/s3handler/pkg/provider/retry"
	"github.com/3leaps/s3handler/pkg/provider/s3"
)

// Config selects and configures the storage backend.
type Config struct {
	// Provider is "s3" (default) or "file".
	Provider provider.ProviderType

	S3   s3.Config
	File file.Config

	// PageSize is MaxKeys for every listing page. Zero uses the backend default.
	PageSize int

	// Delimiter separates simulated directories. Empty means "/".
	Delimiter string

	// Retry bounds retries of transient failures. Zero fields take defaults.
	Retry retry.Policy

	// RateLimit caps requests per second. Zero disables the limit.
	RateLimit float64

	Logger *zap.Logger
}

// Client is the public facade over one storage backend.
type Client struct {
	p      provider.Provider
	kind   provider.ProviderType
	lister *listing.Lister
	ops    *fileops.Ops
}

// New builds the configured backend and wraps it with retries.
func New(ctx context.Context, cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	kind := cfg.Provider
	if kind == "" {
		kind = provider.ProviderS3
	}

	var (
		inner provider.Provider
		err   error
	)
	switch kind {
	case provider.ProviderS3:
		s3cfg := cfg.S3
		// Retries happen once, in the retry decorator.
		s3cfg.MaxAttempts = 1
		if s3cfg.MaxKeys == 0 {
			s3cfg.MaxKeys = cfg.PageSize
		}
		inner, err = s3.New(ctx, s3cfg)
	case provider.ProviderFile:
		fcfg := cfg.File
		if fcfg.MaxKeys == 0 {
			fcfg.MaxKeys = cfg.PageSize
		}
		inner, err = file.New(fcfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", provider.ErrInvalidArgument, kind)
	}
	if err != nil {
		return nil, err
	}

	wrapped := retry.New(inner, cfg.Retry,
		retry.WithRateLimit(cfg.RateLimit),
		retry.WithLogger(logger.Named("retry")))

	return newClient(wrapped, kind, cfg, logger), nil
}

// NewWithProvider builds a Client over an existing provider. No retry
// decorator is added; wrap p with retry.New first if it needs one.
func NewWithProvider(p provider.Provider, kind provider.ProviderType, cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return newClient(p, kind, cfg, logger)
}

func newClient(p provider.Provider, kind provider.ProviderType, cfg Config, logger *zap.Logger) *Client {
	return &Client{
		p:    p,
		kind: kind,
		lister: listing.New(p,
			listing.WithPageSize(cfg.PageSize),
			listing.WithDelimiter(cfg.Delimiter),
			listing.WithLogger(logger.Named("listing"))),
		ops: fileops.New(p, fileops.WithLogger(logger.Named("fileops"))),
	}
}

// Provider returns the backend kind.
func (c *Client) Provider() provider.ProviderType { return c.kind }

// Delimiter returns the directory delimiter.
func (c *Client) Delimiter() string { return c.lister.Delimiter() }

// ListBuckets returns every bucket visible to the credentials.
func (c *Client) ListBuckets(ctx context.Context) ([]string, error) {
	return c.p.ListBuckets(ctx)
}

// IterateKeys lazily yields every key under prefix, recursively, in
// lexicographic order.
func (c *Client) IterateKeys(ctx context.Context, bucket, prefix string) iter.Seq2[string, error] {
	return c.lister.Keys(ctx, bucket, prefix)
}

// IterateDirs lazily yields the common prefixes one level below prefix.
func (c *Client) IterateDirs(ctx context.Context, bucket, prefix string) iter.Seq2[string, error] {
	return c.lister.Dirs(ctx, bucket, prefix)
}

// IterateObjects is IterateKeys with size, etag and modification time.
func (c *Client) IterateObjects(ctx context.Context, bucket, prefix string) iter.Seq2[provider.ObjectSummary, error] {
	return c.lister.Objects(ctx, bucket, prefix)
}

// KeysAfter is IterateKeys resuming strictly after startAfter.
func (c *Client) KeysAfter(ctx context.Context, bucket, prefix, startAfter string) iter.Seq2[string, error] {
	return c.lister.KeysAfter(ctx, bucket, prefix, startAfter)
}

// WalkDirs yields every directory below prefix depth first. maxDepth <= 0
// walks the whole tree.
func (c *Client) WalkDirs(ctx context.Context, bucket, prefix string, maxDepth int) iter.Seq2[string, error] {
	return c.lister.Walk(ctx, bucket, prefix, maxDepth)
}

// IterateMatching yields the summaries of keys under prefix accepted by m.
// Listing starts at the narrowest prefix the include patterns allow.
func (c *Client) IterateMatching(ctx context.Context, bucket, prefix string, m *match.Matcher) iter.Seq2[provider.ObjectSummary, error] {
	listPrefix := m.ListPrefix(prefix)
	return func(yield func(provider.ObjectSummary, error) bool) {
		for obj, err := range c.lister.Objects(ctx, bucket, listPrefix) {
			if err != nil {
				yield(provider.ObjectSummary{}, err)
				return
			}
			if !strings.HasPrefix(obj.Key, prefix) || !m.Match(obj.Key) {
				continue
			}
			if !yield(obj, nil) {
				return
			}
		}
	}
}

// ReadFile returns the full content of an object.
func (c *Client) ReadFile(ctx context.Context, bucket, key string) ([]byte, error) {
	return c.ops.Read(ctx, bucket, key)
}

// OpenFile streams an object. The caller closes the reader. The returned
// size is -1 when unknown.
func (c *Client) OpenFile(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	if err := provider.ValidateObject(bucket, key); err != nil {
		return nil, 0, err
	}
	return c.p.GetObject(ctx, bucket, key)
}

// WriteFile stores data at key, replacing any existing object.
func (c *Client) WriteFile(ctx context.Context, bucket, key string, data []byte) error {
	return c.ops.Write(ctx, bucket, key, data)
}

// DeleteFile removes an object. Deleting a missing key succeeds.
func (c *Client) DeleteFile(ctx context.Context, bucket, key string) error {
	return c.ops.Delete(ctx, bucket, key)
}

// StatFile returns an object's metadata.
func (c *Client) StatFile(ctx context.Context, bucket, key string) (*provider.ObjectMeta, error) {
	return c.ops.Stat(ctx, bucket, key)
}

// FileSize returns an object's size in bytes.
func (c *Client) FileSize(ctx context.Context, bucket, key string) (int64, error) {
	return c.ops.Size(ctx, bucket, key)
}

// CopyFile copies one object to another location.
func (c *Client) CopyFile(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	return c.ops.Copy(ctx,
		provider.ObjectRef{Bucket: srcBucket, Key: srcKey},
		provider.ObjectRef{Bucket: dstBucket, Key: dstKey})
}

// DownloadFile saves an object to localPath and returns the bytes written.
func (c *Client) DownloadFile(ctx context.Context, bucket, key, localPath string) (int64, error) {
	return c.ops.Download(ctx, bucket, key, localPath)
}

// UploadFile stores the file at localPath as an object and returns its size.
func (c *Client) UploadFile(ctx context.Context, bucket, key, localPath string) (int64, error) {
	return c.ops.Upload(ctx, bucket, key, localPath)
}

// Close releases the backend.
func (c *Client) Close() error {
	return c.p.Close()
}
