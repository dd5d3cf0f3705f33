// Package observability holds the process-wide loggers.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// CLILogger is used by CLI commands. It writes to stderr so that stdout
	// carries only command output.
	CLILogger = zap.NewNop()

	// ServerLogger is used by the HTTP server.
	ServerLogger = zap.NewNop()
)

// Init rebuilds CLILogger and ServerLogger. format is "console" (default)
// or "json".
func Init(level, format string) error {
	cli, err := NewLogger(zapcore.Lock(os.Stderr), level, format)
	if err != nil {
		return err
	}
	server, err := NewLogger(zapcore.Lock(os.Stderr), level, "json")
	if err != nil {
		return err
	}

	CLILogger = cli.Named("cli")
	ServerLogger = server.Named("server")
	return nil
}

// NewLogger builds a logger writing to w at the given level.
func NewLogger(w zapcore.WriteSyncer, level, format string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(format) {
	case "", "console", "text":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected console or json)", format)
	}

	return zap.New(zapcore.NewCore(enc, w, lvl)), nil
}

// ParseLevel maps a level name onto a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return lvl, fmt.Errorf("unknown log level %q", level)
	}
	return lvl, nil
}
