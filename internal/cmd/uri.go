package cmd

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/3leaps/s3handler/pkg/match"
	"github.com/3leaps/s3handler/pkg/provider"
)

// URI parsing errors
var (
	// ErrInvalidURI indicates the URI could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedScheme indicates the URI scheme is not s3.
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrMissingBucket indicates the URI is missing a bucket name.
	ErrMissingBucket = errors.New("missing bucket name")

	// ErrNotAnObject indicates a prefix or pattern where one object was required.
	ErrNotAnObject = errors.New("URI does not name a single object")
)

// ObjectURI is a parsed s3://bucket/key reference.
//
// The same form addresses every backend; with the file backend the bucket is
// a subdirectory of the configured root.
//
// Example URIs:
//   - s3://bucket/key/path.txt
//   - s3://bucket/prefix/
//   - s3://bucket/prefix/**/*.parquet
type ObjectURI struct {
	Bucket string

	// Key is the object key or prefix. May be empty for the bucket root.
	// For a pattern it is the static prefix before the first glob character.
	Key string

	// Pattern is the full glob when the key contains glob characters.
	Pattern string
}

// String returns the URI in canonical form.
func (u *ObjectURI) String() string {
	switch {
	case u.Pattern != "":
		return "s3://" + u.Bucket + "/" + u.Pattern
	case u.Key != "":
		return "s3://" + u.Bucket + "/" + u.Key
	default:
		return "s3://" + u.Bucket + "/"
	}
}

// IsPattern returns true if the URI contains glob pattern characters.
func (u *ObjectURI) IsPattern() bool {
	return u.Pattern != ""
}

// IsPrefix returns true if the URI is a bucket root or ends with "/".
func (u *ObjectURI) IsPrefix() bool {
	return u.Key == "" || strings.HasSuffix(u.Key, "/")
}

// Ref returns the bucket/key pair.
func (u *ObjectURI) Ref() provider.ObjectRef {
	return provider.ObjectRef{Bucket: u.Bucket, Key: u.Key}
}

// BaseName returns the last segment of the key.
func (u *ObjectURI) BaseName() string {
	return path.Base(strings.TrimSuffix(u.Key, "/"))
}

// ParseURI parses an s3:// URI into its components.
//
// Supported formats:
//   - s3://bucket
//   - s3://bucket/
//   - s3://bucket/key
//   - s3://bucket/prefix/
//   - s3://bucket/prefix/**/*.parquet
func ParseURI(uri string) (*ObjectURI, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	// Split by hand: url.Parse would treat a glob '?' as a query delimiter.
	schemeEnd := strings.Index(uri, "://")
	if schemeEnd == -1 {
		return nil, fmt.Errorf("%w: missing scheme (expected s3://...)", ErrInvalidURI)
	}
	if scheme := strings.ToLower(uri[:schemeEnd]); scheme != "s3" {
		return nil, fmt.Errorf("%w: %s (supported: s3)", ErrUnsupportedScheme, scheme)
	}

	remainder := uri[schemeEnd+3:]
	bucket, key, _ := strings.Cut(remainder, "/")
	if bucket == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, uri)
	}
	if err := provider.CheckBucketName(bucket); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}

	result := &ObjectURI{Bucket: bucket}
	if match.IsGlobPattern(key) {
		result.Pattern = key
	}
	// DerivePrefix also unescapes literal metacharacters ("file\*.txt" -> "file*.txt").
	result.Key = match.DerivePrefix(key)
	return result, nil
}

// ParseObjectURI parses a URI that must name exactly one object.
func ParseObjectURI(uri string) (*ObjectURI, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if u.IsPattern() || u.IsPrefix() {
		return nil, fmt.Errorf("%w: %s (no glob, no trailing '/')", ErrNotAnObject, uri)
	}
	return u, nil
}
