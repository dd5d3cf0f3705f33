package provider

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBucketName(t *testing.T) {
	tests := []struct {
		name    string
		bucket  string
		wantErr bool
	}{
		{"simple", "my-bucket", false},
		{"dots", "logs.example.com", false},
		{"digits", "123", false},
		{"empty", "", true},
		{"too short", "ab", true},
		{"too long", strings.Repeat("a", 64), true},
		{"uppercase", "MyBucket", true},
		{"underscore", "my_bucket", true},
		{"leading hyphen", "-bucket", true},
		{"trailing dot", "bucket.", true},
		{"consecutive dots", "my..bucket", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBucketName(tt.bucket)
			if tt.wantErr {
				assert.True(t, IsInvalidArgument(err), "expected invalid argument, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckBucketName(t *testing.T) {
	for _, bucket := range []string{"my-bucket", "MyBucket", "Legacy_Bucket", "ab", "bucket.", strings.Repeat("a", MaxBucketNameLength)} {
		assert.NoError(t, CheckBucketName(bucket), bucket)
	}
	for _, bucket := range []string{"", "bucket/key", strings.Repeat("a", MaxBucketNameLength+1)} {
		assert.True(t, IsInvalidArgument(CheckBucketName(bucket)), "expected invalid argument for %q", bucket)
	}
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("dir/file.txt"))
	assert.NoError(t, ValidateKey("dir/"))
	assert.NoError(t, ValidateKey(strings.Repeat("k", MaxKeyLength)))
	assert.True(t, IsInvalidArgument(ValidateKey("")))
	assert.True(t, IsInvalidArgument(ValidateKey(strings.Repeat("k", MaxKeyLength+1))))
}

func TestValidateObject(t *testing.T) {
	assert.NoError(t, ValidateObject("bucket", "key"))
	assert.NoError(t, ValidateObject("Legacy_Bucket", "key"))
	assert.True(t, IsInvalidArgument(ValidateObject("", "key")))
	assert.True(t, IsInvalidArgument(ValidateObject("bucket", "")))
}
