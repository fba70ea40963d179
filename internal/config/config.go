// Package config provides configuration loading for the PDF flattener.
// Supports YAML files, .env files, environment variables and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spherical/pdf-flattener/internal/domain"
)

const (
	BackendPoppler = "poppler"
	BackendMuPDF   = "mupdf"

	BufferMemory = "memory"
	BufferSpool  = "spool"
)

// Config holds all configuration for the flattener.
type Config struct {
	Flatten       FlattenConfig       `yaml:"flatten"`
	Toolchain     ToolchainConfig     `yaml:"toolchain"`
	Buffer        BufferConfig        `yaml:"buffer"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// FlattenConfig holds the caller-facing knobs of a run.
type FlattenConfig struct {
	DPI           int                 `yaml:"dpi"`
	Quality       int                 `yaml:"quality"`
	MaxInputBytes int64               `yaml:"max_input_bytes"`
	Bounds        domain.RasterBounds `yaml:"bounds"`
}

// ToolchainConfig selects and locates the rendering backend.
type ToolchainConfig struct {
	Backend       string        `yaml:"backend"` // poppler or mupdf
	SearchPath    []string      `yaml:"search_path"`
	RenderRetries int           `yaml:"render_retries"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
}

// BufferConfig selects the page buffer strategy.
type BufferConfig struct {
	Strategy string `yaml:"strategy"` // memory or spool
	SpoolDir string `yaml:"spool_dir"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	GracefulShutdown  time.Duration `yaml:"graceful_shutdown"`
	MaxConcurrentRuns int           `yaml:"max_concurrent_runs"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads .env files, the YAML file at path (optional) and environment overrides.
func Load(path string) (*Config, error) {
	// Ignore error if .env doesn't exist
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		if cfg.Buffer.SpoolDir != "" {
			cfg.Buffer.SpoolDir = ResolveRelativePath(path, cfg.Buffer.SpoolDir)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Flatten: FlattenConfig{
			DPI:           200,
			Quality:       90,
			MaxInputBytes: 25_000_000,
			Bounds: domain.RasterBounds{
				MinDPI: 72,
				MaxDPI: 600,
			},
		},
		Toolchain: ToolchainConfig{
			Backend:       BackendPoppler,
			RenderRetries: 0,
			RetryBackoff:  500 * time.Millisecond,
		},
		Buffer: BufferConfig{
			Strategy: BufferMemory,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8090,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      10 * time.Minute,
			IdleTimeout:       120 * time.Second,
			RequestTimeout:    10 * time.Minute,
			GracefulShutdown:  30 * time.Second,
			MaxConcurrentRuns: 2,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "console",
			ServiceName: "pdf-flattener",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	b := c.Flatten.Bounds
	if b.MinDPI < 1 || b.MaxDPI < b.MinDPI {
		return domain.ConfigError(fmt.Sprintf("invalid dpi bounds: %d-%d", b.MinDPI, b.MaxDPI), nil)
	}

	opts := domain.RasterOptions{DPI: c.Flatten.DPI, Quality: c.Flatten.Quality}
	if err := opts.Validate(b); err != nil {
		return domain.ConfigError("default raster options out of range", err)
	}

	if c.Flatten.MaxInputBytes < 1 {
		return domain.ConfigError(fmt.Sprintf("max_input_bytes must be positive, got %d", c.Flatten.MaxInputBytes), nil)
	}

	if c.Toolchain.Backend != BackendPoppler && c.Toolchain.Backend != BackendMuPDF {
		return domain.ConfigError(fmt.Sprintf("invalid toolchain backend: %s", c.Toolchain.Backend), nil)
	}

	if c.Toolchain.RenderRetries < 0 || c.Toolchain.RenderRetries > 5 {
		return domain.ConfigError("render_retries must be between 0 and 5", nil)
	}

	if c.Buffer.Strategy != BufferMemory && c.Buffer.Strategy != BufferSpool {
		return domain.ConfigError(fmt.Sprintf("invalid buffer strategy: %s", c.Buffer.Strategy), nil)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return domain.ConfigError(fmt.Sprintf("invalid server port: %d", c.Server.Port), nil)
	}

	if c.Server.MaxConcurrentRuns < 1 {
		return domain.ConfigError("max_concurrent_runs must be at least 1", nil)
	}

	return nil
}

// RasterOptions returns the configured default options.
func (c *Config) RasterOptions() domain.RasterOptions {
	return domain.RasterOptions{DPI: c.Flatten.DPI, Quality: c.Flatten.Quality}
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) error {
	intVars := map[string]*int{
		"FLATTEN_DPI":         &cfg.Flatten.DPI,
		"FLATTEN_QUALITY":     &cfg.Flatten.Quality,
		"SERVER_PORT":         &cfg.Server.Port,
		"MAX_CONCURRENT_RUNS": &cfg.Server.MaxConcurrentRuns,
		"RENDER_RETRIES":      &cfg.Toolchain.RenderRetries,
	}
	for key, dst := range intVars {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return domain.ConfigError(fmt.Sprintf("%s must be an integer", key), err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("FLATTEN_MAX_INPUT_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.ConfigError("FLATTEN_MAX_INPUT_BYTES must be an integer", err)
		}
		cfg.Flatten.MaxInputBytes = n
	}

	if v := os.Getenv("TOOLCHAIN_BACKEND"); v != "" {
		cfg.Toolchain.Backend = strings.ToLower(v)
	}

	if v := os.Getenv("TOOLCHAIN_PATH"); v != "" {
		cfg.Toolchain.SearchPath = filepath.SplitList(v)
	}

	if v := os.Getenv("BUFFER_STRATEGY"); v != "" {
		cfg.Buffer.Strategy = strings.ToLower(v)
	}

	if v := os.Getenv("SPOOL_DIR"); v != "" {
		cfg.Buffer.SpoolDir = v
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	return nil
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
