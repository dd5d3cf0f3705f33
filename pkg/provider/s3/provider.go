package s3

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/s3handler/pkg/provider"
)

// Provider implements provider.Provider for AWS S3 and S3-compatible storage.
type Provider struct {
	client  API
	maxKeys int
}

// Ensure Provider implements the interfaces.
var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.ObjectCopier = (*Provider)(nil)
)

// New creates a new S3 provider with the given configuration.
//
// The provider uses AWS SDK v2's default credential chain unless explicit
// credentials are provided in the config.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &provider.ProviderError{
			Op:       "New",
			Provider: provider.ProviderS3,
			Err:      err,
		}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}

	// Custom endpoint for S3-compatible stores
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return NewWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg.MaxKeys), nil
}

// NewWithClient creates a provider around an existing API implementation.
// A maxKeys of zero uses DefaultMaxKeys.
func NewWithClient(client API, maxKeys int) *Provider {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Provider{client: client, maxKeys: maxKeys}
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Only apply explicit region if user set one in config.
	// Let SDK resolve from env/profile first.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	if cfg.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	sdkRegion := awsCfg.Region
	if sdkRegion == "" && cfg.IMDSRegion && cfg.Endpoint == "" {
		sdkRegion = imdsRegion(ctx, imds.NewFromConfig(awsCfg))
	}

	awsCfg.Region = resolveRegion(cfg.Region, cfg.Endpoint, sdkRegion)

	return awsCfg, nil
}

type regionGetter interface {
	GetRegion(ctx context.Context, params *imds.GetRegionInput, optFns ...func(*imds.Options)) (*imds.GetRegionOutput, error)
}

// imdsRegion asks the instance metadata service for the current region.
// Any failure yields "" so the caller falls back to the default.
func imdsRegion(ctx context.Context, client regionGetter) string {
	out, err := client.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil || out == nil {
		return ""
	}
	return out.Region
}

// ListBuckets returns every bucket name visible to the credentials.
func (p *Provider) ListBuckets(ctx context.Context) ([]string, error) {
	var (
		names []string
		token *string
	)
	for {
		out, err := p.client.ListBuckets(ctx, &s3.ListBucketsInput{ContinuationToken: token})
		if err != nil {
			return nil, p.wrapError("ListBuckets", "", "", err)
		}
		for _, b := range out.Buckets {
			names = append(names, aws.ToString(b.Name))
		}
		if aws.ToString(out.ContinuationToken) == "" {
			break
		}
		token = out.ContinuationToken
	}
	return names, nil
}

// List returns one page of ListObjectsV2 results.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if opts.Bucket == "" {
		return nil, p.wrapError("List", "", "", provider.ErrInvalidArgument)
	}

	maxKeys := clampMaxKeys(opts.MaxKeys, p.maxKeys)

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(opts.Bucket),
		MaxKeys: aws.Int32(int32(maxKeys)),
	}

	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.Delimiter != "" {
		input.Delimiter = aws.String(opts.Delimiter)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	} else if opts.StartAfter != "" {
		input.StartAfter = aws.String(opts.StartAfter)
	}

	output, err := p.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, p.wrapError("List", opts.Bucket, "", err)
	}

	objects := make([]provider.ObjectSummary, 0, len(output.Contents))
	for _, obj := range output.Contents {
		objects = append(objects, provider.ObjectSummary{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         cleanETag(aws.ToString(obj.ETag)),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}

	var prefixes []string
	if len(output.CommonPrefixes) > 0 {
		prefixes = make([]string, 0, len(output.CommonPrefixes))
		for _, cp := range output.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(cp.Prefix))
		}
	}

	return &provider.ListResult{
		Objects:           objects,
		CommonPrefixes:    prefixes,
		IsTruncated:       aws.ToBool(output.IsTruncated),
		ContinuationToken: aws.ToString(output.NextContinuationToken),
	}, nil
}

// Head returns metadata for a single object.
func (p *Provider) Head(ctx context.Context, bucket, key string) (*provider.ObjectMeta, error) {
	output, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, p.wrapError("Head", bucket, key, err)
	}

	return &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{
			Key:          key,
			Size:         aws.ToInt64(output.ContentLength),
			ETag:         cleanETag(aws.ToString(output.ETag)),
			LastModified: aws.ToTime(output.LastModified),
		},
		ContentType: aws.ToString(output.ContentType),
		Metadata:    output.Metadata,
	}, nil
}

// GetObject opens an object for streaming reads.
func (p *Provider) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	output, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, p.wrapError("GetObject", bucket, key, err)
	}
	size := int64(-1)
	if output.ContentLength != nil {
		size = *output.ContentLength
	}
	return output.Body, size, nil
}

// PutObject uploads an object in a single request.
func (p *Provider) PutObject(ctx context.Context, bucket, key string, body io.Reader, contentLength int64, opts provider.PutOptions) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentLength >= 0 {
		input.ContentLength = aws.Int64(contentLength)
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	if _, err := p.client.PutObject(ctx, input); err != nil {
		return p.wrapError("PutObject", bucket, key, err)
	}
	return nil
}

// DeleteObject deletes an object.
//
// S3 already answers 204 for missing keys; some compatible stores answer
// NoSuchKey instead, which is treated as success.
func (p *Provider) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		wrapped := p.wrapError("DeleteObject", bucket, key, err)
		if errors.Is(wrapped, provider.ErrNotFound) {
			return nil
		}
		return wrapped
	}
	return nil
}

// CopyObject performs a server-side copy.
func (p *Provider) CopyObject(ctx context.Context, src, dst provider.ObjectRef) error {
	_, err := p.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dst.Bucket),
		Key:        aws.String(dst.Key),
		CopySource: aws.String(copySource(src)),
	})
	if err != nil {
		return p.wrapError("CopyObject", src.Bucket, src.Key, err)
	}
	return nil
}

// Close releases any resources held by the provider.
// The S3 client doesn't require explicit cleanup, but this satisfies the interface.
func (p *Provider) Close() error {
	return nil
}

// copySource renders the URL-encoded bucket/key form CopyObject expects.
func copySource(ref provider.ObjectRef) string {
	segments := strings.Split(ref.Key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return ref.Bucket + "/" + strings.Join(segments, "/")
}

// wrapError converts S3 errors to provider errors with appropriate sentinel errors.
func (p *Provider) wrapError(op, bucket, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderS3,
		Bucket:   bucket,
		Key:      key,
		Err:      err,
	}
	if sentinel := classify(err); sentinel != nil {
		wrapped.Err = sentinel
	}
	return wrapped
}

// classify maps an SDK error onto a provider sentinel, or nil when the
// error has no better classification than itself.
func classify(err error) error {
	if errors.Is(err, provider.ErrInvalidArgument) {
		return provider.ErrInvalidArgument
	}
	// Caller cancellation is never a provider failure.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	// Check for specific S3 error types first
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket

	switch {
	case errors.As(err, &noSuchBucket):
		return provider.ErrBucketNotFound
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		return provider.ErrNotFound
	}

	// Check smithy API errors for error codes
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return provider.ErrNotFound
		case "NoSuchBucket":
			return provider.ErrBucketNotFound
		case "AccessDenied", "Forbidden", "AllAccessDisabled":
			return provider.ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return provider.ErrInvalidCredentials
		case "SlowDown", "Throttling", "RequestLimitExceeded", "TooManyRequests":
			return provider.ErrThrottled
		case "ServiceUnavailable", "InternalError", "RequestTimeout":
			return provider.ErrProviderUnavailable
		case "InvalidBucketName", "KeyTooLongError", "InvalidArgument":
			return provider.ErrInvalidArgument
		}
	}

	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		switch code := statusErr.HTTPStatusCode(); {
		case code == 404:
			return provider.ErrNotFound
		case code == 403:
			return provider.ErrAccessDenied
		case code == 429:
			return provider.ErrThrottled
		case code >= 500:
			return provider.ErrProviderUnavailable
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return provider.ErrProviderUnavailable
	}

	// Fallback: check error message for common cases
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "NoSuchBucket"):
		return provider.ErrBucketNotFound
	case strings.Contains(errMsg, "NoSuchKey") || strings.Contains(errMsg, "NotFound") || hasStatus(errMsg, 404):
		return provider.ErrNotFound
	case strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Forbidden") || hasStatus(errMsg, 403):
		return provider.ErrAccessDenied
	case strings.Contains(errMsg, "InvalidAccessKeyId") || strings.Contains(errMsg, "SignatureDoesNotMatch"):
		return provider.ErrInvalidCredentials
	case strings.Contains(errMsg, "SlowDown") || strings.Contains(errMsg, "Throttling") || hasStatus(errMsg, 429):
		return provider.ErrThrottled
	case strings.Contains(errMsg, "ServiceUnavailable") || hasStatus(errMsg, 503):
		return provider.ErrProviderUnavailable
	}

	return nil
}

// hasStatus reports whether msg carries the SDK's "StatusCode: NNN" text.
// Bare digits are ignored; they also appear in keys, hosts and ports.
func hasStatus(msg string, code int) bool {
	return strings.Contains(msg, "StatusCode: "+strconv.Itoa(code))
}

// cleanETag removes surrounding quotes from an ETag value.
// S3 returns ETags with quotes, e.g., "d41d8cd98f00b204e9800998ecf8427e".
func cleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}

// clampMaxKeys applies defaults and limits to maxKeys values.
// If requested is <= 0, uses providerDefault. Result is clamped to MaxAllowedKeys.
func clampMaxKeys(requested, providerDefault int) int {
	if requested <= 0 {
		requested = providerDefault
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}

// resolveRegion determines the final region to use after SDK config loading.
//
// The sdkRegion parameter is the region after SDK loading (and the optional
// IMDS lookup), which already incorporates explicit cfgRegion if set.
//
// This function only applies the fallback default:
//   - If sdkRegion is still empty AND no custom endpoint, default to us-east-1
//   - For S3-compatible stores (endpoint set), no defaulting occurs
func resolveRegion(cfgRegion, endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if cfgRegion != "" {
		return cfgRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}
