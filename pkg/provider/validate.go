package provider

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxKeyLength is the longest object key S3 accepts, in bytes.
const MaxKeyLength = 1024

// MaxBucketNameLength bounds CheckBucketName. Legacy us-east-1 names may
// run to 255 bytes.
const MaxBucketNameLength = 255

var bucketNameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9.\-]{1,61}[a-z0-9]$`)

// CheckBucketName rejects only names no service could accept: empty,
// containing "/", or longer than MaxBucketNameLength. Everything else is
// left for the service to judge, since legacy and S3-compatible stores
// allow names the current rules forbid.
//
// Returned errors wrap ErrInvalidArgument.
func CheckBucketName(bucket string) error {
	switch {
	case bucket == "":
		return fmt.Errorf("%w: bucket name is required", ErrInvalidArgument)
	case strings.Contains(bucket, "/"):
		return fmt.Errorf("%w: bucket name %q contains \"/\"", ErrInvalidArgument, bucket)
	case len(bucket) > MaxBucketNameLength:
		return fmt.Errorf("%w: bucket name exceeds %d bytes", ErrInvalidArgument, MaxBucketNameLength)
	}
	return nil
}

// ValidateBucketName checks a bucket name against the current S3 naming
// rules. The file provider uses it for directory names.
//
// Returned errors wrap ErrInvalidArgument.
func ValidateBucketName(bucket string) error {
	if bucket == "" {
		return fmt.Errorf("%w: bucket name is required", ErrInvalidArgument)
	}
	if !bucketNameRE.MatchString(bucket) {
		return fmt.Errorf("%w: bucket name %q must be 3-63 lowercase letters, digits, dots or hyphens", ErrInvalidArgument, bucket)
	}
	if strings.Contains(bucket, "..") {
		return fmt.Errorf("%w: bucket name %q contains consecutive dots", ErrInvalidArgument, bucket)
	}
	return nil
}

// ValidateKey checks that an object key is usable for single-object operations.
//
// Returned errors wrap ErrInvalidArgument.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: object key is required", ErrInvalidArgument)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: object key exceeds %d bytes", ErrInvalidArgument, MaxKeyLength)
	}
	return nil
}

// ValidateObject validates a bucket and key pair, checking the bucket
// with CheckBucketName.
func ValidateObject(bucket, key string) error {
	if err := CheckBucketName(bucket); err != nil {
		return err
	}
	return ValidateKey(key)
}
