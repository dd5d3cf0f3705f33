// Package provider defines the storage gateway abstraction for object stores.
//
// A provider is account scoped: every call names its bucket. Providers
// expose one pagination primitive (List) that serves both recursive key
// listings (no delimiter) and one-level directory listings (delimiter set),
// plus single-object operations. Authentication uses SDK default credential
// chains; providers should not implement custom auth logic.
package provider

import (
	"context"
	"io"
	"time"
)

// Lister is the pagination primitive consumed by the listing engine.
type Lister interface {
	// List returns one page of results for the given options.
	// Use ContinuationToken from ListResult for subsequent pages.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)
}

// Provider abstracts an object store account.
//
// Implementations should:
//   - Use SDK default credential chains (AWS default config)
//   - Support pagination via continuation tokens
//   - Return errors that wrap the sentinels in errors.go
//   - Be safe for concurrent use
type Provider interface {
	Lister

	// ListBuckets returns the names of all buckets visible to the caller.
	ListBuckets(ctx context.Context) ([]string, error)

	// Head returns metadata for a single object.
	// Returns ErrNotFound if the object does not exist.
	Head(ctx context.Context, bucket, key string) (*ObjectMeta, error)

	// GetObject opens an object for reading. The caller must close body.
	GetObject(ctx context.Context, bucket, key string) (body io.ReadCloser, contentLength int64, err error)

	// PutObject creates or overwrites an object.
	// contentLength may be -1 when unknown.
	PutObject(ctx context.Context, bucket, key string, body io.Reader, contentLength int64, opts PutOptions) error

	// DeleteObject deletes an object. Deleting a missing key succeeds.
	DeleteObject(ctx context.Context, bucket, key string) error

	// Close releases any resources held by the provider.
	Close() error
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Bucket is the bucket to list (required).
	Bucket string

	// Prefix filters results to keys starting with this value.
	// Empty string lists the whole bucket.
	Prefix string

	// Delimiter groups keys sharing a prefix up to the next delimiter
	// into CommonPrefixes. Empty string disables grouping.
	Delimiter string

	// ContinuationToken resumes listing from a previous ListResult.
	// Empty string starts from the beginning.
	ContinuationToken string

	// StartAfter starts the listing strictly after this key.
	// Ignored by the service once ContinuationToken is set.
	StartAfter string

	// MaxKeys limits the number of entries (objects plus common prefixes)
	// returned per page. Zero uses provider default (typically 1000).
	MaxKeys int
}

// ListResult contains one page of a List operation.
type ListResult struct {
	// Objects contains the object summaries for this page, in key order.
	Objects []ObjectSummary

	// CommonPrefixes contains the grouped child prefixes for this page.
	// Only populated when ListOptions.Delimiter is set.
	CommonPrefixes []string

	// ContinuationToken is used to retrieve the next page.
	// Empty string indicates no more pages.
	ContinuationToken string

	// IsTruncated indicates whether more results are available.
	IsTruncated bool
}

// ObjectSummary contains basic metadata returned from List operations.
type ObjectSummary struct {
	// Key is the full object key (path) in the bucket.
	Key string

	// Size is the object size in bytes.
	Size int64

	// ETag is the entity tag, typically an MD5 hash of the object.
	ETag string

	// LastModified is when the object was last modified.
	LastModified time.Time
}

// ObjectMeta contains full metadata for a single object.
// Returned by Head operations.
type ObjectMeta struct {
	ObjectSummary

	// ContentType is the MIME type of the object.
	ContentType string

	// Metadata contains user-defined metadata key-value pairs.
	Metadata map[string]string
}

// PutOptions carries optional attributes for PutObject.
type PutOptions struct {
	// ContentType is the MIME type stored with the object.
	// Empty leaves the provider default.
	ContentType string
}

// ObjectRef addresses a single object.
type ObjectRef struct {
	Bucket string
	Key    string
}

// String returns the ref as bucket/key.
func (r ObjectRef) String() string {
	return r.Bucket + "/" + r.Key
}

// ProviderType identifies a storage provider.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"

	// ProviderFile represents a local directory tree served as buckets.
	ProviderFile ProviderType = "file"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}
