// Package flattener is the public entry point for converting PDFs into image-only PDFs.
package flattener

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spherical/pdf-flattener/internal/assemble"
	"github.com/spherical/pdf-flattener/internal/config"
	"github.com/spherical/pdf-flattener/internal/domain"
	"github.com/spherical/pdf-flattener/internal/encode"
	"github.com/spherical/pdf-flattener/internal/flatten"
	"github.com/spherical/pdf-flattener/internal/observability"
	"github.com/spherical/pdf-flattener/internal/render"
)

// Re-export types for public API
type (
	Config        = config.Config
	Options       = flatten.Options
	Transition    = flatten.Transition
	State         = flatten.State
	StateObserver = flatten.StateObserver
	RasterOptions = domain.RasterOptions
	Document      = domain.OutputDocument
	Error         = domain.Error
	ErrorType     = domain.ErrorType
	Logger        = observability.Logger
)

// State constants
const (
	StateIdle               = flatten.StateIdle
	StateValidating         = flatten.StateValidating
	StateResolvingPageCount = flatten.StateResolvingPageCount
	StateRasterizingPage    = flatten.StateRasterizingPage
	StateReassembling       = flatten.StateReassembling
	StateComplete           = flatten.StateComplete
	StateFailed             = flatten.StateFailed
)

// Client is the main entry point for the flattener library
type Client struct {
	cfg       *config.Config
	toolchain domain.Toolchain
	service   *flatten.Service
	logger    *observability.Logger
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// NewClient creates a client from .env, environment variables and an optional YAML file
func NewClient(configPath string) (*Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	return NewClientWithConfig(cfg, logger)
}

// NewClientWithConfig creates a client with an explicit configuration
func NewClientWithConfig(cfg *Config, logger *Logger) (*Client, error) {
	if cfg == nil {
		return nil, domain.ConfigError("configuration is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.Nop()
	}

	toolchain, err := render.New(cfg.Toolchain)
	if err != nil {
		return nil, err
	}

	service := flatten.NewService(cfg, toolchain, encode.NewJPEG(), assemble.NewPDF(), logger)

	return &Client{
		cfg:       cfg,
		toolchain: toolchain,
		service:   service,
		logger:    logger,
	}, nil
}

// Config returns the client's configuration
func (c *Client) Config() *Config {
	return c.cfg
}

// Toolchain names the rendering backend in use
func (c *Client) Toolchain() string {
	return c.toolchain.Name()
}

// DefaultOptions returns the configured dpi and quality
func (c *Client) DefaultOptions() RasterOptions {
	return c.cfg.RasterOptions()
}

// Check reports whether the rendering backend is usable. Backends without an
// external dependency are always ready.
func (c *Client) Check() error {
	if checker, ok := c.toolchain.(interface{ Check() error }); ok {
		return checker.Check()
	}
	return nil
}

// Flatten converts an in-memory PDF
func (c *Client) Flatten(ctx context.Context, name string, data []byte, opts Options) (*Document, error) {
	if opts.Raster == (RasterOptions{}) {
		opts.Raster = c.DefaultOptions()
	}
	return c.service.Flatten(ctx, name, data, opts)
}

// FlattenFile reads path and flattens it. Files over the input limit are rejected
// without being read.
func (c *Client) FlattenFile(ctx context.Context, path string, opts Options) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, domain.InputRejected(fmt.Sprintf("cannot access file: %s", path), err)
	}
	if info.IsDir() {
		return nil, domain.InputRejected(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}
	if info.Size() > c.cfg.Flatten.MaxInputBytes {
		return nil, domain.InputRejected(
			fmt.Sprintf("input is %d bytes, limit is %d", info.Size(), c.cfg.Flatten.MaxInputBytes), nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.InputRejected(fmt.Sprintf("cannot read file: %s", path), err)
	}
	return c.Flatten(ctx, filepath.Base(path), data, opts)
}

// Hint returns the user-facing remediation for err
func Hint(err error) string {
	return domain.Hint(domain.TypeOf(err))
}

// Category returns the failure category of err, or "" for foreign errors
func Category(err error) ErrorType {
	return domain.TypeOf(err)
}
