// Package s3 implements the provider interface for AWS S3 and S3-compatible storage.
package s3

// Config configures an S3 provider.
//
// A provider is account scoped; buckets are named per call.
//
// Authentication priority (AWS SDK v2 default chain):
//  1. Explicit AccessKeyID/SecretAccessKey (if provided)
//  2. Environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
//  3. Shared credentials file (~/.aws/credentials)
//  4. Shared config file (~/.aws/config) with profile
//  5. EC2 instance metadata / ECS task role / EKS IRSA
//
// Region handling:
//   - For AWS S3: If Region is empty and not set via environment/profile,
//     the EC2 instance metadata service is consulted when IMDSRegion is set,
//     then the region defaults to us-east-1 (standard AWS convention).
//   - For S3-compatible stores (Endpoint set): no default region is applied.
type Config struct {
	// Region is the AWS region.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	// Leave empty for AWS S3.
	// Examples:
	//   - MinIO: http://localhost:9000
	//   - Wasabi: https://s3.wasabisys.com
	Endpoint string

	// Profile is the AWS profile name to use from shared config.
	Profile string

	// AccessKeyID is an explicit access key. If set, SecretAccessKey must also be set.
	AccessKeyID string

	// SecretAccessKey is an explicit secret key. Required if AccessKeyID is set.
	SecretAccessKey string

	// SessionToken is an optional session token for temporary explicit credentials.
	SessionToken string

	// ForcePathStyle forces path-style URLs (bucket in path, not subdomain).
	// Required for most S3-compatible stores.
	ForcePathStyle bool

	// IMDSRegion enables region discovery through EC2 instance metadata
	// when no region is configured.
	IMDSRegion bool

	// MaxKeys is the default page size for List operations.
	// Zero uses the provider default (1000). Values over 1000 are clamped.
	MaxKeys int

	// MaxAttempts sets the SDK retryer attempt budget.
	// Zero keeps the SDK default; 1 disables SDK-level retries so that an
	// outer retry policy is the only one in effect.
	MaxAttempts int
}

// DefaultMaxKeys is the default page size for List operations.
const DefaultMaxKeys = 1000

// MaxAllowedKeys is the maximum page size allowed by S3.
const MaxAllowedKeys = 1000

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	// If one explicit credential is set, both must be set
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	if c.SessionToken != "" && c.AccessKeyID == "" {
		return &ConfigError{Field: "SessionToken", Message: "session token requires explicit access keys"}
	}
	if c.MaxKeys < 0 {
		return &ConfigError{Field: "MaxKeys", Message: "must be >= 0"}
	}
	if c.MaxAttempts < 0 {
		return &ConfigError{Field: "MaxAttempts", Message: "must be >= 0"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}
