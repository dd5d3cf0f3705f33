package listing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/3leaps/s3handler/pkg/provider"
)

// ErrBrokenPagination indicates the service signaled more results without
// a usable continuation token.
var ErrBrokenPagination = errors.New("broken pagination")

// Mode selects what a cursor yields.
type Mode int

const (
	// ModeKeys lists recursively without a delimiter and yields objects.
	ModeKeys Mode = iota
	// ModeDirs lists with the delimiter and yields common prefixes only.
	ModeDirs
)

func (m Mode) String() string {
	switch m {
	case ModeKeys:
		return "keys"
	case ModeDirs:
		return "dirs"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// State is the position of a cursor in its lifecycle.
type State int

const (
	StateFetching State = iota
	StateYielding
	StateExhausted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateYielding:
		return "yielding"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Entry is one element produced by a cursor.
type Entry struct {
	// Key is the object key, or the common prefix in ModeDirs.
	Key string

	// IsPrefix reports whether Key is a common prefix.
	IsPrefix bool

	// Object carries the summary for object entries.
	Object provider.ObjectSummary
}

// CursorOption configures a single traversal.
type CursorOption func(*Cursor)

// WithStartAfter begins the traversal strictly after key.
func WithStartAfter(key string) CursorOption {
	return func(c *Cursor) { c.startAfter = key }
}

// Cursor walks the pages of one listing. It holds at most one page and
// fetches the next only when the current one is drained and Next is called
// again. A Cursor is not safe for concurrent use.
type Cursor struct {
	lister     *Lister
	bucket     string
	prefix     string
	mode       Mode
	startAfter string

	state     State
	page      []Entry
	idx       int
	token     string
	truncated bool
	pages     int
	entry     Entry
	err       error
}

func newCursor(l *Lister, bucket, prefix string, mode Mode, opts ...CursorOption) *Cursor {
	c := &Cursor{
		lister: l,
		bucket: bucket,
		prefix: prefix,
		mode:   mode,
		state:  StateFetching,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Next advances to the next entry, fetching a page if needed. It returns
// false when the listing is exhausted or failed; check Err to tell them apart.
func (c *Cursor) Next(ctx context.Context) bool {
	for {
		switch c.state {
		case StateYielding:
			if c.idx < len(c.page) {
				c.entry = c.page[c.idx]
				c.idx++
				return true
			}
			c.page, c.idx = nil, 0
			if c.truncated {
				c.state = StateFetching
			} else {
				c.state = StateExhausted
			}
		case StateFetching:
			if err := c.fetch(ctx); err != nil {
				c.err = err
				c.page = nil
				c.state = StateFailed
				return false
			}
			c.state = StateYielding
		default:
			return false
		}
	}
}

// Entry returns the entry produced by the last successful Next.
func (c *Cursor) Entry() Entry { return c.entry }

// Err returns the failure that stopped the cursor, if any.
func (c *Cursor) Err() error { return c.err }

// Pages returns how many pages have been fetched.
func (c *Cursor) Pages() int { return c.pages }

// State returns the current lifecycle state.
func (c *Cursor) State() State { return c.state }

func (c *Cursor) fetch(ctx context.Context) error {
	if c.pages == 0 {
		if err := provider.CheckBucketName(c.bucket); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := provider.ListOptions{
		Bucket:            c.bucket,
		Prefix:            c.prefix,
		ContinuationToken: c.token,
		MaxKeys:           c.lister.pageSize,
	}
	if c.pages == 0 {
		opts.StartAfter = c.startAfter
	}
	if c.mode == ModeDirs {
		opts.Delimiter = c.lister.delimiter
	}

	res, err := c.lister.p.List(ctx, opts)
	if err != nil {
		return err
	}
	c.pages++
	if res == nil {
		res = &provider.ListResult{}
	}

	c.lister.logger.Debug("Fetched listing page",
		zap.String("bucket", c.bucket),
		zap.String("prefix", c.prefix),
		zap.Stringer("mode", c.mode),
		zap.Int("page", c.pages),
		zap.Int("objects", len(res.Objects)),
		zap.Int("prefixes", len(res.CommonPrefixes)),
		zap.Bool("truncated", res.IsTruncated))

	if res.IsTruncated {
		switch res.ContinuationToken {
		case "":
			return fmt.Errorf("%w: page %d truncated without continuation token", ErrBrokenPagination, c.pages)
		case c.token:
			return fmt.Errorf("%w: page %d repeated continuation token", ErrBrokenPagination, c.pages)
		}
	}
	c.truncated = res.IsTruncated
	c.token = res.ContinuationToken

	switch c.mode {
	case ModeDirs:
		c.page = make([]Entry, 0, len(res.CommonPrefixes))
		for _, p := range res.CommonPrefixes {
			c.page = append(c.page, Entry{Key: p, IsPrefix: true})
		}
	default:
		c.page = make([]Entry, 0, len(res.Objects))
		for _, o := range res.Objects {
			c.page = append(c.page, Entry{Key: o.Key, Object: o})
		}
	}
	c.idx = 0
	return nil
}
