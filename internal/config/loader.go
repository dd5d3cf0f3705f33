package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "S3HANDLER"

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// EnvSpec maps one environment variable onto a config key.
type EnvSpec struct {
	Name string
	Path string
}

// shortEnv lists the convenience aliases accepted alongside the full
// S3HANDLER_<SECTION>_<KEY> names.
var shortEnv = map[string]string{
	"provider":                "PROVIDER",
	"s3.region":               "REGION",
	"s3.endpoint":             "ENDPOINT",
	"s3.profile":              "PROFILE",
	"file.root":               "FILE_ROOT",
	"listing.page_size":       "PAGE_SIZE",
	"listing.delimiter":       "DELIMITER",
	"retry.max_attempts":      "MAX_ATTEMPTS",
	"retry.rate_limit":        "RATE_LIMIT",
	"logging.level":           "LOG_LEVEL",
	"logging.format":          "LOG_FORMAT",
	"server.host":             "HOST",
	"server.port":             "PORT",
	"server.read_timeout":     "READ_TIMEOUT",
	"server.write_timeout":    "WRITE_TIMEOUT",
	"server.shutdown_timeout": "SHUTDOWN_TIMEOUT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "s3")

	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.session_token", "")
	v.SetDefault("s3.force_path_style", false)
	v.SetDefault("s3.imds_region", false)

	v.SetDefault("file.root", "")

	v.SetDefault("listing.page_size", 0)
	v.SetDefault("listing.delimiter", "/")

	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.base_delay", "100ms")
	v.SetDefault("retry.max_delay", "5s")
	v.SetDefault("retry.rate_limit", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
}

// getEnvSpecs returns every environment variable the loader binds. The
// full name of a key precedes its short alias, so it wins when both are set.
func getEnvSpecs(keys []string) []EnvSpec {
	var specs []EnvSpec
	for _, key := range keys {
		specs = append(specs, EnvSpec{
			Name: EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_")),
			Path: key,
		})
		if short, ok := shortEnv[key]; ok {
			specs = append(specs, EnvSpec{Name: EnvPrefix + "_" + short, Path: key})
		}
	}
	return specs
}

// getUserConfigPaths returns candidate config files, most specific first.
func getUserConfigPaths() []string {
	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "s3handler", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "s3handler", "config.yaml"))
	}
	return paths
}

// Load builds the configuration from defaults, the first user config file
// found, environment variables and overrides.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", overrides...)
}

// LoadFile is Load with an explicit config file. An empty path searches the
// user config locations; a missing file there is not an error.
func LoadFile(ctx context.Context, path string, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	for _, spec := range getEnvSpecs(v.AllKeys()) {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}
	for _, candidate := range getUserConfigPaths() {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		v.SetConfigFile(candidate)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", candidate, err)
		}
		return nil
	}
	return nil
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// ErrNoConfig is returned by Dump before any Load.
var ErrNoConfig = errors.New("config not loaded")

// Dump writes cfg as YAML with credentials redacted.
func Dump(w io.Writer, cfg *Config) error {
	if cfg == nil {
		return ErrNoConfig
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return err
	}
	return enc.Close()
}
