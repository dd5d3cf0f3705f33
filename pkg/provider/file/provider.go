// Package file implements the provider interface over a local directory tree.
//
// Each immediate subdirectory of the root is a bucket and keys are
// slash-separated paths below it. Listing follows ListObjectsV2 semantics,
// including delimiter grouping, so the rest of the stack can be exercised
// without a network.
package file

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/3leaps/s3handler/pkg/provider"
)

// DefaultMaxKeys mirrors the S3 page size.
const DefaultMaxKeys = 1000

// tempPattern names in-flight writes; listings skip them.
const tempPattern = ".s3handler-put-*"

// Continuation tokens carry the last entry of a page behind a tag saying
// whether it was a key or a common prefix.
const (
	tokenKey    = "k:"
	tokenPrefix = "p:"
)

// Provider implements provider.Provider for local filesystem paths.
type Provider struct {
	baseDir string
	maxKeys int
}

// Ensure Provider implements provider capability interfaces.
var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.ObjectCopier = (*Provider)(nil)
)

// Config configures a file provider.
type Config struct {
	// BaseDir holds one subdirectory per bucket.
	BaseDir string

	// MaxKeys is the default page size. Zero uses DefaultMaxKeys.
	MaxKeys int
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("%w: base dir is required", provider.ErrInvalidArgument)
	}
	if c.MaxKeys < 0 {
		return fmt.Errorf("%w: max keys must be >= 0", provider.ErrInvalidArgument)
	}
	return nil
}

// New creates a file provider rooted at cfg.BaseDir. The directory must exist.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Clean(cfg.BaseDir)
	st, err := os.Stat(base)
	if err != nil {
		return nil, &provider.ProviderError{Op: "New", Provider: provider.ProviderFile, Err: err}
	}
	if !st.IsDir() {
		return nil, &provider.ProviderError{
			Op:       "New",
			Provider: provider.ProviderFile,
			Err:      fmt.Errorf("%w: %s is not a directory", provider.ErrInvalidArgument, base),
		}
	}
	maxKeys := cfg.MaxKeys
	if maxKeys == 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Provider{baseDir: base, maxKeys: maxKeys}, nil
}

// Close is a no-op.
func (p *Provider) Close() error { return nil }

// ListBuckets returns the names of subdirectories that are valid bucket names.
func (p *Provider) ListBuckets(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p.baseDir)
	if err != nil {
		return nil, p.wrapError("ListBuckets", "", "", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || provider.ValidateBucketName(e.Name()) != nil {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// List returns one page of keys and, when a delimiter is set, common prefixes.
//
// The continuation token names the last entry of the previous page. When
// that entry was a common prefix the next page resumes past every key it
// covers; a key that merely ends in the delimiter skips nothing.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if opts.Bucket == "" {
		return nil, p.wrapError("List", "", "", provider.ErrInvalidArgument)
	}
	bucketDir, err := p.bucketPath(opts.Bucket)
	if err != nil {
		return nil, p.wrapError("List", opts.Bucket, "", err)
	}
	if st, err := os.Stat(bucketDir); err != nil || !st.IsDir() {
		return nil, p.wrapError("List", opts.Bucket, "", provider.ErrBucketNotFound)
	}

	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = p.maxKeys
	}
	if maxKeys > DefaultMaxKeys {
		maxKeys = DefaultMaxKeys
	}

	files, err := p.collect(ctx, bucketDir, opts.Prefix)
	if err != nil {
		return nil, p.wrapError("List", opts.Bucket, "", err)
	}

	after, skipUnder := opts.StartAfter, ""
	if opts.ContinuationToken != "" {
		if after, skipUnder, err = decodeToken(opts.ContinuationToken); err != nil {
			return nil, p.wrapError("List", opts.Bucket, "", err)
		}
	}

	res := &provider.ListResult{}
	count := 0
	lastPrefix := ""
	for _, f := range files {
		if after != "" && f.key <= after {
			continue
		}
		if skipUnder != "" && strings.HasPrefix(f.key, skipUnder) {
			continue
		}

		common := ""
		if opts.Delimiter != "" {
			rest := f.key[len(opts.Prefix):]
			if idx := strings.Index(rest, opts.Delimiter); idx >= 0 {
				common = opts.Prefix + rest[:idx+len(opts.Delimiter)]
			}
		}
		if common != "" && common == lastPrefix {
			continue
		}

		if count == maxKeys {
			res.IsTruncated = true
			break
		}
		count++

		if common != "" {
			lastPrefix = common
			res.CommonPrefixes = append(res.CommonPrefixes, common)
			res.ContinuationToken = tokenPrefix + common
			continue
		}
		res.Objects = append(res.Objects, provider.ObjectSummary{
			Key:          f.key,
			Size:         f.size,
			LastModified: f.info.ModTime(),
		})
		res.ContinuationToken = tokenKey + f.key
	}

	if !res.IsTruncated {
		res.ContinuationToken = ""
	}
	if res.Objects == nil {
		res.Objects = []provider.ObjectSummary{}
	}
	return res, nil
}

// decodeToken returns the entry to resume after and, for a prefix token,
// the prefix whose keys were already reported.
func decodeToken(token string) (after, skipUnder string, err error) {
	if k, ok := strings.CutPrefix(token, tokenKey); ok {
		return k, "", nil
	}
	if p, ok := strings.CutPrefix(token, tokenPrefix); ok {
		return p, p, nil
	}
	return "", "", fmt.Errorf("%w: malformed continuation token %q", provider.ErrInvalidArgument, token)
}

// Head returns metadata for a single object. The content type is sniffed
// from the file's leading bytes.
func (p *Provider) Head(ctx context.Context, bucket, key string) (*provider.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := p.objectPath(bucket, key)
	if err != nil {
		return nil, p.wrapError("Head", bucket, key, err)
	}
	st, err := os.Stat(full)
	if err != nil {
		return nil, p.wrapError("Head", bucket, key, err)
	}
	if st.IsDir() {
		return nil, p.wrapError("Head", bucket, key, provider.ErrNotFound)
	}

	meta := &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{Key: key, Size: st.Size(), LastModified: st.ModTime()},
	}
	if mt, err := mimetype.DetectFile(full); err == nil {
		meta.ContentType = mt.String()
	}
	return meta, nil
}

// GetObject opens an object for reading.
func (p *Provider) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	full, err := p.objectPath(bucket, key)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", bucket, key, err)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, 0, p.wrapError("GetObject", bucket, key, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, p.wrapError("GetObject", bucket, key, err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, 0, p.wrapError("GetObject", bucket, key, provider.ErrNotFound)
	}
	return f, st.Size(), nil
}

// PutObject writes an object atomically through a temp file and rename.
// The bucket directory must already exist.
func (p *Provider) PutObject(ctx context.Context, bucket, key string, body io.Reader, contentLength int64, _ provider.PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := p.objectPath(bucket, key)
	if err != nil {
		return p.wrapError("PutObject", bucket, key, err)
	}
	if err := p.requireBucket(bucket); err != nil {
		return p.wrapError("PutObject", bucket, key, err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return p.wrapError("PutObject", bucket, key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), tempPattern)
	if err != nil {
		return p.wrapError("PutObject", bucket, key, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	n, err := io.Copy(tmp, body)
	if err != nil {
		return p.wrapError("PutObject", bucket, key, err)
	}
	if contentLength >= 0 && n != contentLength {
		return p.wrapError("PutObject", bucket, key,
			fmt.Errorf("%w: wrote %d bytes, expected %d", provider.ErrInvalidArgument, n, contentLength))
	}
	if err := tmp.Close(); err != nil {
		return p.wrapError("PutObject", bucket, key, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return p.wrapError("PutObject", bucket, key, err)
	}
	return nil
}

// DeleteObject removes an object. Missing objects are not an error.
// Directories left empty by the removal are pruned up to the bucket root.
func (p *Provider) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := p.objectPath(bucket, key)
	if err != nil {
		return p.wrapError("DeleteObject", bucket, key, err)
	}
	if err := p.requireBucket(bucket); err != nil {
		return p.wrapError("DeleteObject", bucket, key, err)
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return p.wrapError("DeleteObject", bucket, key, err)
	}

	bucketDir, _ := p.bucketPath(bucket)
	for dir := filepath.Dir(full); dir != bucketDir && strings.HasPrefix(dir, bucketDir); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// CopyObject copies an object between (or within) buckets.
func (p *Provider) CopyObject(ctx context.Context, src, dst provider.ObjectRef) error {
	rc, size, err := p.GetObject(ctx, src.Bucket, src.Key)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	return p.PutObject(ctx, dst.Bucket, dst.Key, rc, size, provider.PutOptions{})
}

type fileEntry struct {
	key  string
	size int64
	info fs.FileInfo
}

// collect returns every file under bucketDir whose key starts with prefix,
// in byte order of the key.
func (p *Provider) collect(ctx context.Context, bucketDir, prefix string) ([]fileEntry, error) {
	root := bucketDir
	if i := strings.LastIndex(prefix, "/"); i > 0 {
		dir, err := cleanKey(prefix[:i])
		if err != nil {
			// A prefix that cannot name a path cannot match any key.
			return nil, nil
		}
		root = filepath.Join(bucketDir, filepath.FromSlash(dir))
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var files []fileEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if matched, _ := filepath.Match(tempPattern, d.Name()); matched {
			return nil
		}
		rel, err := filepath.Rel(bucketDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, fileEntry{key: key, size: info.Size(), info: info})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].key < files[j].key })
	return files, nil
}

func (p *Provider) requireBucket(bucket string) error {
	dir, err := p.bucketPath(bucket)
	if err != nil {
		return err
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return provider.ErrBucketNotFound
	}
	return nil
}

func (p *Provider) bucketPath(bucket string) (string, error) {
	if err := provider.ValidateBucketName(bucket); err != nil {
		return "", err
	}
	return filepath.Join(p.baseDir, bucket), nil
}

func (p *Provider) objectPath(bucket, key string) (string, error) {
	dir, err := p.bucketPath(bucket)
	if err != nil {
		return "", err
	}
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}

// cleanKey rejects keys that do not map one-to-one onto a relative path:
// empty segments, "." and "..", and a trailing slash.
func cleanKey(key string) (string, error) {
	if err := provider.ValidateKey(key); err != nil {
		return "", err
	}
	for _, seg := range strings.Split(key, "/") {
		switch seg {
		case "", ".", "..":
			return "", fmt.Errorf("%w: key %q is not representable as a file path", provider.ErrInvalidArgument, key)
		}
	}
	return key, nil
}

func (p *Provider) wrapError(op, bucket, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Bucket: bucket, Key: key, Err: err}
	// Normalize common filesystem errors to provider sentinels.
	switch {
	case os.IsNotExist(err):
		wrapped.Err = provider.ErrNotFound
	case os.IsPermission(err):
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}
