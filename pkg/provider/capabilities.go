package provider

import "context"

// Optional provider capability interfaces.
//
// These interfaces are used for feature detection (type assertions). The core
// Provider interface remains intentionally small.

// ObjectCopier can copy objects server-side, possibly across buckets.
//
// Wrapping providers may implement this unconditionally and return
// ErrNotSupported when the wrapped provider cannot copy.
type ObjectCopier interface {
	CopyObject(ctx context.Context, src, dst ObjectRef) error
}
