// Package listing turns paginated ListObjectsV2-style calls into lazy
// sequences of keys and directories.
//
// Every traversal is driven by a Cursor that fetches one page at a time, only
// when the consumer asks for an element beyond the current page. Breaking out
// of a range loop stops all further fetches. Each call to a sequence starts a
// fresh cursor, so sequences can be ranged over more than once.
//
// Errors from the gateway are yielded as ("", err) in the position where the
// failing page would have started, after every entry already fetched; the
// sequence then ends.
package listing

import (
	"context"
	"iter"

	"go.uber.org/zap"

	"github.com/3leaps/s3handler/pkg/provider"
)

// DefaultDelimiter separates simulated directories in keys.
const DefaultDelimiter = "/"

// Lister builds traversals over a provider. It is immutable after New and
// safe for concurrent use; each traversal owns its cursor.
type Lister struct {
	p         provider.Lister
	pageSize  int
	delimiter string
	logger    *zap.Logger
}

// Option configures a Lister.
type Option func(*Lister)

// WithPageSize sets MaxKeys for every page. Zero leaves the gateway default.
func WithPageSize(n int) Option {
	return func(l *Lister) {
		if n >= 0 {
			l.pageSize = n
		}
	}
}

// WithDelimiter sets the directory delimiter used by Dirs and Walk.
func WithDelimiter(d string) Option {
	return func(l *Lister) {
		if d != "" {
			l.delimiter = d
		}
	}
}

// WithLogger sets a logger for page-level debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Lister) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New returns a Lister over p.
func New(p provider.Lister, opts ...Option) *Lister {
	l := &Lister{
		p:         p,
		delimiter: DefaultDelimiter,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Delimiter returns the configured delimiter.
func (l *Lister) Delimiter() string { return l.delimiter }

// Cursor returns an explicit cursor for one traversal.
func (l *Lister) Cursor(bucket, prefix string, mode Mode, opts ...CursorOption) *Cursor {
	return newCursor(l, bucket, prefix, mode, opts...)
}

// Keys yields every key under prefix, recursively, in service order.
func (l *Lister) Keys(ctx context.Context, bucket, prefix string) iter.Seq2[string, error] {
	return l.keys(ctx, bucket, prefix)
}

// KeysAfter is Keys starting strictly after startAfter.
func (l *Lister) KeysAfter(ctx context.Context, bucket, prefix, startAfter string) iter.Seq2[string, error] {
	return l.keys(ctx, bucket, prefix, WithStartAfter(startAfter))
}

func (l *Lister) keys(ctx context.Context, bucket, prefix string, opts ...CursorOption) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		c := l.Cursor(bucket, prefix, ModeKeys, opts...)
		for c.Next(ctx) {
			if !yield(c.Entry().Key, nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield("", err)
		}
	}
}

// Objects yields the summary of every object under prefix, recursively.
func (l *Lister) Objects(ctx context.Context, bucket, prefix string) iter.Seq2[provider.ObjectSummary, error] {
	return func(yield func(provider.ObjectSummary, error) bool) {
		c := l.Cursor(bucket, prefix, ModeKeys)
		for c.Next(ctx) {
			if !yield(c.Entry().Object, nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(provider.ObjectSummary{}, err)
		}
	}
}

// Dirs yields the common prefixes one level below prefix. Plain keys at
// that level are skipped.
func (l *Lister) Dirs(ctx context.Context, bucket, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		l.dirs(ctx, bucket, prefix, yield)
	}
}

// dirs reports whether the consumer wants more.
func (l *Lister) dirs(ctx context.Context, bucket, prefix string, yield func(string, error) bool) bool {
	c := l.Cursor(bucket, prefix, ModeDirs)
	for c.Next(ctx) {
		if !yield(c.Entry().Key, nil) {
			return false
		}
	}
	if err := c.Err(); err != nil {
		yield("", err)
		return false
	}
	return true
}

// Walk yields every directory below prefix depth first: each directory is
// followed by its own subdirectories before its next sibling. A maxDepth of
// zero or less is unbounded; 1 is equivalent to Dirs.
func (l *Lister) Walk(ctx context.Context, bucket, prefix string, maxDepth int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		l.walk(ctx, bucket, prefix, 1, maxDepth, yield)
	}
}

func (l *Lister) walk(ctx context.Context, bucket, prefix string, depth, maxDepth int, yield func(string, error) bool) bool {
	return l.dirs(ctx, bucket, prefix, func(dir string, err error) bool {
		if err != nil {
			return yield("", err)
		}
		if !yield(dir, nil) {
			return false
		}
		if maxDepth > 0 && depth >= maxDepth {
			return true
		}
		return l.walk(ctx, bucket, dir, depth+1, maxDepth, yield)
	})
}
