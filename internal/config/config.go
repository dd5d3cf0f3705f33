// Package config loads layered configuration for the CLI and server.
//
// Precedence, lowest first: built-in defaults, an optional YAML file,
// S3HANDLER_* environment variables, then runtime overrides (CLI flags).
package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/s3handler/pkg/client"
	"github.com/3leaps/s3handler/pkg/provider"
	"github.com/3leaps/s3handler/pkg/provider/file"
	"github.com/3leaps/s3handler/pkg/provider/retry"
	"github.com/3leaps/s3handler/pkg/provider/s3"
)

// Config is the effective configuration.
type Config struct {
	Provider string        `mapstructure:"provider" yaml:"provider"`
	S3       S3Config      `mapstructure:"s3" yaml:"s3"`
	File     FileConfig    `mapstructure:"file" yaml:"file"`
	Listing  ListingConfig `mapstructure:"listing" yaml:"listing"`
	Retry    RetryConfig   `mapstructure:"retry" yaml:"retry"`
	Logging  LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Server   ServerConfig  `mapstructure:"server" yaml:"server"`
}

// S3Config mirrors s3.Config.
type S3Config struct {
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	Profile         string `mapstructure:"profile" yaml:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token" yaml:"session_token"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
	IMDSRegion      bool   `mapstructure:"imds_region" yaml:"imds_region"`
}

// FileConfig configures the local directory backend.
type FileConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

// ListingConfig tunes pagination.
type ListingConfig struct {
	PageSize  int    `mapstructure:"page_size" yaml:"page_size"`
	Delimiter string `mapstructure:"delimiter" yaml:"delimiter"`
}

// RetryConfig bounds retries of transient failures.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	RateLimit   float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// ServerConfig configures the HTTP browsing API.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ValidationError reports an invalid setting.
type ValidationError struct {
	Key     string
	Message string
}

func (e *ValidationError) Error() string {
	return "config: " + e.Key + ": " + e.Message
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch provider.ProviderType(c.Provider) {
	case provider.ProviderS3:
	case provider.ProviderFile:
		if c.File.Root == "" {
			return &ValidationError{Key: "file.root", Message: "required when provider is file"}
		}
	default:
		return &ValidationError{Key: "provider", Message: fmt.Sprintf("unknown provider %q (expected s3 or file)", c.Provider)}
	}
	if c.Listing.PageSize < 0 || c.Listing.PageSize > s3.MaxAllowedKeys {
		return &ValidationError{Key: "listing.page_size", Message: fmt.Sprintf("must be between 0 and %d", s3.MaxAllowedKeys)}
	}
	if c.Retry.MaxAttempts < 0 {
		return &ValidationError{Key: "retry.max_attempts", Message: "must be >= 0"}
	}
	if c.Retry.RateLimit < 0 {
		return &ValidationError{Key: "retry.rate_limit", Message: "must be >= 0"}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "text", "json":
	default:
		return &ValidationError{Key: "logging.format", Message: "expected console or json"}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &ValidationError{Key: "server.port", Message: "must be between 0 and 65535"}
	}
	return nil
}

const redacted = "********"

// Redacted returns a copy with credentials masked, safe to print.
func (c Config) Redacted() Config {
	if c.S3.AccessKeyID != "" {
		c.S3.AccessKeyID = maskKey(c.S3.AccessKeyID)
	}
	if c.S3.SecretAccessKey != "" {
		c.S3.SecretAccessKey = redacted
	}
	if c.S3.SessionToken != "" {
		c.S3.SessionToken = redacted
	}
	return c
}

// maskKey keeps the last four characters of an access key ID.
func maskKey(id string) string {
	if len(id) <= 4 {
		return redacted
	}
	return redacted + id[len(id)-4:]
}

// ClientConfig translates the settings into a client.Config.
func (c *Config) ClientConfig(logger *zap.Logger) client.Config {
	return client.Config{
		Provider: provider.ProviderType(c.Provider),
		S3: s3.Config{
			Region:          c.S3.Region,
			Endpoint:        c.S3.Endpoint,
			Profile:         c.S3.Profile,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
			SessionToken:    c.S3.SessionToken,
			ForcePathStyle:  c.S3.ForcePathStyle,
			IMDSRegion:      c.S3.IMDSRegion,
		},
		File:      file.Config{BaseDir: c.File.Root},
		PageSize:  c.Listing.PageSize,
		Delimiter: c.Listing.Delimiter,
		Retry: retry.Policy{
			MaxAttempts: c.Retry.MaxAttempts,
			BaseDelay:   c.Retry.BaseDelay,
			MaxDelay:    c.Retry.MaxDelay,
			Jitter:      true,
		},
		RateLimit: c.Retry.RateLimit,
		Logger:    logger,
	}
}
