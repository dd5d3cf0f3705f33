// Package cmd implements the s3handler command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/s3handler/internal/config"
	"github.com/3leaps/s3handler/internal/observability"
	"github.com/3leaps/s3handler/pkg/client"
	"github.com/3leaps/s3handler/pkg/output"
	"github.com/3leaps/s3handler/pkg/provider"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata; main calls it before Execute.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "s3handler",
	Short: "Browse and move objects in S3-compatible storage",
	Long: `s3handler lists keys and directories in S3-compatible object stores
and reads, writes, copies and deletes single objects.

Listings are lazy: pages are fetched only as output is consumed, so piping
into head stops the listing early.

Examples:
  s3handler buckets
  s3handler keys s3://bucket/data/ --long
  s3handler keys 's3://bucket/data/**/*.csv'
  s3handler dirs s3://bucket/ --depth 2
  s3handler cat s3://bucket/notes.txt
  s3handler --provider file --file-root ./buckets keys s3://local/`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

var (
	cfgFile      string
	flagProvider string
	flagRegion   string
	flagProfile  string
	flagEndpoint string
	flagFileRoot string
	flagPageSize int
	flagLogLevel string
	flagOutput   string
	readOnly     bool

	appConfig *config.Config
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/s3handler/config.yaml)")
	pf.StringVar(&flagProvider, "provider", "", "storage backend: s3 or file")
	pf.StringVarP(&flagRegion, "region", "r", "", "AWS region")
	pf.StringVarP(&flagProfile, "profile", "p", "", "AWS profile")
	pf.StringVar(&flagEndpoint, "endpoint", "", "custom S3 endpoint (enables path-style addressing)")
	pf.StringVar(&flagFileRoot, "file-root", "", "directory whose subdirectories are buckets (file backend)")
	pf.IntVar(&flagPageSize, "page-size", 0, "keys per listing page (0 = backend default, max 1000)")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVarP(&flagOutput, "output", "o", "text", "output format: text or jsonl")
	pf.BoolVar(&readOnly, "readonly", false, "refuse commands that modify storage")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		return exitCode(err)
	}
	return 0
}

func initConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFile(cmd.Context(), cfgFile, flagOverrides(cmd))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if err := observability.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	appConfig = cfg
	return nil
}

// flagOverrides returns the explicitly set global flags as config keys.
func flagOverrides(cmd *cobra.Command) map[string]any {
	o := make(map[string]any)
	flags := cmd.Flags()
	if flags.Changed("provider") {
		o["provider"] = flagProvider
	}
	if flags.Changed("region") {
		o["s3.region"] = flagRegion
	}
	if flags.Changed("profile") {
		o["s3.profile"] = flagProfile
	}
	if flags.Changed("endpoint") {
		o["s3.endpoint"] = flagEndpoint
		// S3-compatible services (moto, MinIO) need path-style URLs.
		o["s3.force_path_style"] = flagEndpoint != ""
	}
	if flags.Changed("file-root") {
		o["file.root"] = flagFileRoot
		if !flags.Changed("provider") {
			o["provider"] = string(provider.ProviderFile)
		}
	}
	if flags.Changed("page-size") {
		o["listing.page_size"] = flagPageSize
	}
	if flags.Changed("log-level") {
		o["logging.level"] = flagLogLevel
	}
	return o
}

func currentConfig() *config.Config {
	if appConfig != nil {
		return appConfig
	}
	if cfg := config.GetConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{Provider: string(provider.ProviderS3)}
}

func newClient(ctx context.Context) (*client.Client, error) {
	c, err := client.New(ctx, currentConfig().ClientConfig(observability.CLILogger))
	if err != nil {
		observability.CLILogger.Error("Failed to create client", zap.Error(err))
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	return c, nil
}

// newWriter returns the writer selected by --output.
func newWriter(cmd *cobra.Command, long bool) (output.Writer, error) {
	return writerFor(flagOutput, cmd.OutOrStdout(), cmd.ErrOrStderr(), currentConfig().Provider, long)
}

func writerFor(format string, out, errOut io.Writer, providerName string, long bool) (output.Writer, error) {
	switch format {
	case "", "text":
		return output.NewTextWriter(out, errOut, long), nil
	case "jsonl", "json":
		return output.NewJSONLWriter(out, uuid.NewString(), providerName), nil
	default:
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid --output value", fmt.Errorf("expected text or jsonl, got %q", format))
	}
}

var errReadOnly = errors.New("readonly mode: storage modifications are disabled")

func requireWritable() error {
	if readOnly {
		return exitError(foundry.ExitInvalidArgument, "Command blocked", errReadOnly)
	}
	return nil
}

// cliError carries the process exit code for a failed command.
type cliError struct {
	code    int
	message string
	err     error
}

func (e *cliError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.message, e.err, e.code)
}

func (e *cliError) Unwrap() error { return e.err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &cliError{code: code, message: message, err: err}
}

// storageError maps a storage failure onto an exit code.
func storageError(message string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return exitError(foundry.ExitSignalInt, message, err)
	case provider.IsNotFound(err), errors.Is(err, os.ErrNotExist):
		return exitError(foundry.ExitFileNotFound, message, err)
	case provider.IsInvalidArgument(err):
		return exitError(foundry.ExitInvalidArgument, message, err)
	default:
		return exitError(foundry.ExitExternalServiceUnavailable, message, err)
	}
}

func exitCode(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}
