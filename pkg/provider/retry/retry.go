// Package retry decorates a provider with bounded retries for transient
// failures.
//
// Only errors classified by provider.IsTransient (throttling and service
// unavailability) are retried. Everything else, including caller
// cancellation, is returned on the first occurrence. When the attempt budget
// runs out the last error is returned unchanged.
package retry

import (
	"context"
	"io"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/s3handler/pkg/provider"
)

// Defaults for Policy.
const (
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = 100 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
)

// Policy bounds the retry loop.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the first retry; it doubles per retry.
	BaseDelay time.Duration

	// MaxDelay caps a single wait.
	MaxDelay time.Duration

	// Jitter randomizes each wait into [d/2, d).
	Jitter bool
}

// DefaultPolicy returns the standard policy: 4 attempts, 100ms doubling to a
// 5s cap, with jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Jitter:      true,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Backoff returns the wait before retry number n (1-based), before jitter.
func (p Policy) Backoff(n int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Provider wraps another provider with retries.
type Provider struct {
	inner   provider.Provider
	policy  Policy
	limiter *rate.Limiter
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	// maxMemoryBytes bounds in-memory buffering of non-seekable put bodies.
	maxMemoryBytes int64
}

var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.ObjectCopier = (*Provider)(nil)
)

// Option configures a Provider.
type Option func(*Provider)

// WithRateLimit caps outgoing requests per second. Zero or negative disables it.
func WithRateLimit(perSecond float64) Option {
	return func(p *Provider) {
		if perSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogger sets the logger used to report retries.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithBufferLimit sets how many bytes of a non-seekable put body are held in
// memory before spooling to a temp file.
func WithBufferLimit(n int64) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxMemoryBytes = n
		}
	}
}

// New wraps inner with the given policy. Zero fields in policy take defaults.
func New(inner provider.Provider, policy Policy, opts ...Option) *Provider {
	p := &Provider{
		inner:          inner,
		policy:         policy.normalized(),
		logger:         zap.NewNop(),
		sleep:          sleepContext,
		maxMemoryBytes: DefaultBufferMaxMemoryBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Unwrap returns the wrapped provider.
func (p *Provider) Unwrap() provider.Provider { return p.inner }

// Policy returns the effective policy.
func (p *Provider) Policy() Policy { return p.policy }

func (p *Provider) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if p.limiter != nil {
			if werr := p.limiter.Wait(ctx); werr != nil {
				if err != nil {
					return err
				}
				return werr
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !provider.IsTransient(err) || ctx.Err() != nil {
			return err
		}
		if attempt >= p.policy.MaxAttempts {
			p.logger.Warn("Retries exhausted",
				zap.String("op", op),
				zap.Int("attempts", attempt),
				zap.Error(err))
			return err
		}

		delay := p.delay(attempt)
		p.logger.Debug("Retrying after transient error",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if serr := p.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

func (p *Provider) delay(attempt int) time.Duration {
	d := p.policy.Backoff(attempt)
	if p.policy.Jitter && d > 1 {
		half := d / 2
		d = half + time.Duration(rand.Int64N(int64(d-half)))
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ListBuckets retries the inner ListBuckets.
func (p *Provider) ListBuckets(ctx context.Context) ([]string, error) {
	var out []string
	err := p.do(ctx, "ListBuckets", func() error {
		var err error
		out, err = p.inner.ListBuckets(ctx)
		return err
	})
	return out, err
}

// List retries a single page fetch.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	var out *provider.ListResult
	err := p.do(ctx, "List", func() error {
		var err error
		out, err = p.inner.List(ctx, opts)
		return err
	})
	return out, err
}

// Head retries the inner Head.
func (p *Provider) Head(ctx context.Context, bucket, key string) (*provider.ObjectMeta, error) {
	var out *provider.ObjectMeta
	err := p.do(ctx, "Head", func() error {
		var err error
		out, err = p.inner.Head(ctx, bucket, key)
		return err
	})
	return out, err
}

// GetObject retries opening the object. Failures while the caller reads the
// body are not retried.
func (p *Provider) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	var (
		body io.ReadCloser
		size int64
	)
	err := p.do(ctx, "GetObject", func() error {
		var err error
		body, size, err = p.inner.GetObject(ctx, bucket, key)
		return err
	})
	return body, size, err
}

// PutObject retries an upload, rewinding the body between attempts.
// Non-seekable bodies are buffered first when retries are possible.
func (p *Provider) PutObject(ctx context.Context, bucket, key string, body io.Reader, contentLength int64, opts provider.PutOptions) error {
	if p.policy.MaxAttempts == 1 {
		return p.do(ctx, "PutObject", func() error {
			return p.inner.PutObject(ctx, bucket, key, body, contentLength, opts)
		})
	}

	rs, ok := body.(io.ReadSeeker)
	if !ok {
		rb, err := newReplayableBody(body, contentLength, p.maxMemoryBytes)
		if err != nil {
			return &provider.ProviderError{Op: "PutObject", Provider: "retry", Bucket: bucket, Key: key, Err: err}
		}
		defer func() { _ = rb.Close() }()
		rs = rb.Reader()
	}

	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return &provider.ProviderError{Op: "PutObject", Provider: "retry", Bucket: bucket, Key: key, Err: err}
	}

	first := true
	return p.do(ctx, "PutObject", func() error {
		if !first {
			if _, err := rs.Seek(start, io.SeekStart); err != nil {
				return err
			}
		}
		first = false
		return p.inner.PutObject(ctx, bucket, key, rs, contentLength, opts)
	})
}

// DeleteObject retries the inner DeleteObject.
func (p *Provider) DeleteObject(ctx context.Context, bucket, key string) error {
	return p.do(ctx, "DeleteObject", func() error {
		return p.inner.DeleteObject(ctx, bucket, key)
	})
}

// CopyObject retries a server-side copy. It fails with ErrNotSupported when
// the inner provider cannot copy.
func (p *Provider) CopyObject(ctx context.Context, src, dst provider.ObjectRef) error {
	copier, ok := p.inner.(provider.ObjectCopier)
	if !ok {
		return &provider.ProviderError{Op: "CopyObject", Provider: "retry", Bucket: src.Bucket, Key: src.Key, Err: provider.ErrNotSupported}
	}
	return p.do(ctx, "CopyObject", func() error {
		return copier.CopyObject(ctx, src, dst)
	})
}

// Close closes the inner provider.
func (p *Provider) Close() error {
	return p.inner.Close()
}
