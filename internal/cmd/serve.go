package cmd

import (
	"context"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/s3handler/internal/observability"
	"github.com/3leaps/s3handler/internal/server"
	"github.com/3leaps/s3handler/internal/server/handlers"
	"github.com/3leaps/s3handler/pkg/client"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only browsing API over HTTP",
	Long: `Start an HTTP server exposing bucket listings and object content.

Endpoints:
  GET /health, /health/live, /health/ready, /health/startup
  GET /version
  GET /buckets
  GET /buckets/{bucket}/keys?prefix=&start_after=&long=true
  GET /buckets/{bucket}/dirs?prefix=&depth=
  GET /buckets/{bucket}/stat/{key}
  GET /buckets/{bucket}/objects/{key}

Listings stream JSON Lines as pages arrive.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveHost        string
	servePort        int
	serveCheckBucket string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides server.port)")
	serveCmd.Flags().StringVar(&serveCheckBucket, "check-bucket", "", "bucket the readiness probe lists instead of listing all buckets")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := currentConfig()

	host, port := cfg.Server.Host, cfg.Server.Port
	if cmd.Flags().Changed("host") {
		host = serveHost
	}
	if cmd.Flags().Changed("port") {
		port = servePort
	}

	c, err := client.New(ctx, cfg.ClientConfig(observability.ServerLogger))
	if err != nil {
		observability.ServerLogger.Error("Failed to create client", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	defer func() { _ = c.Close() }()

	health := handlers.InitHealthManager(versionInfo.Version)
	health.RegisterChecker("storage", storageHealthChecker{c: c, bucket: serveCheckBucket})

	srv := server.New(host, port,
		server.WithBrowser(c),
		server.WithLogger(observability.ServerLogger),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
		server.WithVersion(handlers.VersionInfo{
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
			Provider:  string(c.Provider()),
		}),
	)

	observability.ServerLogger.Info("Starting server",
		zap.String("addr", srv.Addr()),
		zap.String("provider", string(c.Provider())))
	if err := srv.ListenAndServe(ctx, cfg.Server.ShutdownTimeout); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	return nil
}

// storageHealthChecker proves the backend answers: it pulls the first key of
// bucket, or lists buckets when none is set.
type storageHealthChecker struct {
	c      *client.Client
	bucket string
}

func (s storageHealthChecker) CheckHealth(ctx context.Context) error {
	if s.bucket == "" {
		_, err := s.c.ListBuckets(ctx)
		return err
	}
	for _, err := range s.c.IterateKeys(ctx, s.bucket, "") {
		return err
	}
	return nil
}
