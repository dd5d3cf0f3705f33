// Package server hosts the read-only HTTP browsing API.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/3leaps/s3handler/internal/observability"
	"github.com/3leaps/s3handler/internal/server/handlers"
	"github.com/3leaps/s3handler/internal/server/middleware"
)

// Server wraps a chi router and its http.Server.
type Server struct {
	host string
	port int

	router     chi.Router
	httpServer *http.Server
	logger     *zap.Logger

	browser handlers.Browser
	version handlers.VersionInfo

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithBrowser enables the /buckets endpoints backed by b.
func WithBrowser(b handlers.Browser) Option {
	return func(s *Server) { s.browser = b }
}

// WithVersion sets the body of GET /version.
func WithVersion(v handlers.VersionInfo) Option {
	return func(s *Server) { s.version = v }
}

// WithTimeouts sets the http.Server timeouts. Zero disables a timeout;
// long listings need a zero write timeout.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
		s.idleTimeout = idle
	}
}

// WithLogger sets the access and handler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a server listening on host:port once started.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:        host,
		port:        port,
		logger:      observability.ServerLogger,
		version:     handlers.VersionInfo{Version: "dev"},
		readTimeout: 30 * time.Second,
		idleTimeout: 120 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(s.logger))
	r.Use(middleware.Recovery)

	r.NotFound(middleware.NotFound)
	r.MethodNotAllowed(middleware.MethodNotAllowed)

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler(s.version))

	if s.browser != nil {
		handlers.NewBrowseHandler(s.browser, s.logger).Routes(r)
	}
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Port returns the configured port.
func (s *Server) Port() int { return s.port }

// Addr returns host:port.
func (s *Server) Addr() string { return net.JoinHostPort(s.host, strconv.Itoa(s.port)) }

// Serve accepts connections on ln until ctx is cancelled, then shuts down,
// waiting up to shutdownTimeout for in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", zap.String("addr", ln.Addr().String()))
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down", zap.Duration("timeout", shutdownTimeout))
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on Addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}
