// Package flatten runs the page-by-page flattening pipeline.
//
// A run moves through Validating, ResolvingPageCount, RasterizingPage (once per
// page), Reassembling and ends in Complete or Failed. Pages are processed one at a
// time so at most one decoded bitmap is alive. Both terminal states release the
// page buffer and remove the run workspace before Flatten returns.
package flatten

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/pdf-flattener/internal/buffer"
	"github.com/spherical/pdf-flattener/internal/config"
	"github.com/spherical/pdf-flattener/internal/domain"
	"github.com/spherical/pdf-flattener/internal/observability"
)

// State is a pipeline state
type State string

const (
	StateIdle               State = "idle"
	StateValidating         State = "validating"
	StateResolvingPageCount State = "resolving_page_count"
	StateRasterizingPage    State = "rasterizing_page"
	StateReassembling       State = "reassembling"
	StateComplete           State = "complete"
	StateFailed             State = "failed"
)

// Transition describes a state change. Page is set while rasterizing; Pages once
// the page count is known.
type Transition struct {
	RunID string
	State State
	Page  int
	Pages int
	Err   error
}

// StateObserver receives every transition of a run, synchronously.
type StateObserver func(Transition)

// Options configures a single run
type Options struct {
	Raster   domain.RasterOptions
	Progress domain.ProgressFunc
	Observer StateObserver

	// RunID is generated when empty
	RunID string
}

// Service orchestrates flattening runs. It holds no per-run state and is safe for
// concurrent use.
type Service struct {
	toolchain   domain.Toolchain
	encoder     domain.Encoder
	reassembler domain.Reassembler
	validator   *Validator
	buffer      config.BufferConfig
	retry       RetryConfig
	logger      *observability.Logger
}

// NewService creates a flattening service
func NewService(cfg *config.Config, toolchain domain.Toolchain, encoder domain.Encoder,
	reassembler domain.Reassembler, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{
		toolchain:   toolchain,
		encoder:     encoder,
		reassembler: reassembler,
		validator:   NewValidator(cfg.Flatten.MaxInputBytes, cfg.Flatten.Bounds),
		buffer:      cfg.Buffer,
		retry: RetryConfig{
			MaxRetries:     cfg.Toolchain.RenderRetries,
			InitialBackoff: cfg.Toolchain.RetryBackoff,
			MaxBackoff:     maxBackoff,
		},
		logger: logger.WithOperation("flatten"),
	}
}

// run carries the state of one invocation of Flatten
type run struct {
	id        string
	logger    *observability.Logger
	observer  StateObserver
	progress  *progress
	workspace string
	store     domain.PageStore
	pages     int
}

func (r *run) transition(state State, page int, err error) {
	if r.observer == nil {
		return
	}
	r.observer(Transition{RunID: r.id, State: state, Page: page, Pages: r.pages, Err: err})
}

// Flatten converts data into an image-only PDF. Nothing is returned unless every
// page was rendered and the document reassembled.
func (s *Service) Flatten(ctx context.Context, name string, data []byte, opts Options) (*domain.OutputDocument, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	r := &run{
		id: runID,
		logger: s.logger.WithRun(runID).With().
			Str("document", name).
			Int("dpi", opts.Raster.DPI).
			Int("quality", opts.Raster.Quality).
			Logger(),
		observer: opts.Observer,
		progress: newProgress(opts.Progress),
	}

	start := time.Now()
	r.transition(StateIdle, 0, nil)
	r.logger.Info().Int("bytes", len(data)).Str("toolchain", s.toolchain.Name()).Msg("Flatten run started")

	out, err := s.execute(ctx, r, name, data, opts.Raster)
	cleanupErr := s.cleanup(r)

	if err != nil {
		r.logger.Error().
			Str("category", string(domain.TypeOf(err))).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("Flatten run failed")
		r.transition(StateFailed, 0, err)
		return nil, err
	}

	if cleanupErr != nil {
		// The output is complete; leftover scratch files do not fail the run.
		r.logger.Warn().Err(cleanupErr).Msg("Run workspace cleanup failed")
	}

	r.logger.Info().
		Int("pages", out.PageCount).
		Int("output_bytes", len(out.Data)).
		Dur("elapsed", time.Since(start)).
		Msg("Flatten run complete")
	r.transition(StateComplete, 0, nil)
	return out, nil
}

func (s *Service) execute(ctx context.Context, r *run, name string, data []byte, opts domain.RasterOptions) (*domain.OutputDocument, error) {
	r.transition(StateValidating, 0, nil)
	if err := s.validator.Validate(name, data, opts); err != nil {
		return nil, err
	}

	if err := s.prepare(r); err != nil {
		return nil, err
	}

	src := &domain.SourceDocument{Name: name, Data: data}
	if s.toolchain.NeedsSourceFile() {
		src.Path = filepath.Join(r.workspace, "source.pdf")
		if err := os.WriteFile(src.Path, data, 0o600); err != nil {
			return nil, domain.MetadataUnavailable("stage source document", err)
		}
	}

	r.transition(StateResolvingPageCount, 0, nil)
	pages, err := s.toolchain.PageCount(ctx, src)
	if err != nil {
		return nil, classify(ctx, err, func(err error) error {
			return domain.MetadataUnavailable("resolve page count", err)
		})
	}
	if pages < 1 {
		return nil, domain.MetadataUnavailable(fmt.Sprintf("document reports %d pages", pages), nil)
	}
	src.PageCount = pages
	r.pages = pages
	r.logger.Info().Int("pages", pages).Msg("Page count resolved")

	for ordinal := 1; ordinal <= pages; ordinal++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.Canceled(err)
		}

		r.transition(StateRasterizingPage, ordinal, nil)
		if err := s.processPage(ctx, r, src, ordinal, opts); err != nil {
			return nil, err
		}
		r.progress.report(float64(ordinal) / float64(pages))
	}

	r.transition(StateReassembling, 0, nil)
	pdf, err := s.reassembler.Assemble(ctx, r.store, pages)
	if err != nil {
		return nil, classify(ctx, err, func(err error) error {
			return domain.ReassemblyFailure("assemble output document", err)
		})
	}

	out := &domain.OutputDocument{
		Name:      domain.OutputName(name),
		MIMEType:  domain.OutputMIMEType,
		Data:      pdf,
		PageCount: pages,
	}
	r.progress.report(1.0)
	return out, nil
}

// processPage renders, encodes and buffers one page. The bitmap goes out of scope
// before the next page is rendered.
func (s *Service) processPage(ctx context.Context, r *run, src *domain.SourceDocument, ordinal int, opts domain.RasterOptions) error {
	pageStart := time.Now()

	img, err := rasterizeWithRetry(ctx, s.toolchain, src, ordinal, opts.DPI, s.retry, r.logger)
	if err != nil {
		return classify(ctx, err, func(err error) error {
			return domain.PageRenderFailure(ordinal, err)
		})
	}

	artifact, err := s.encoder.Encode(img, opts.Quality)
	if err != nil {
		return domain.PageRenderFailure(ordinal, fmt.Errorf("encode page: %w", err))
	}
	artifact.Ordinal = ordinal

	if err := r.store.Append(artifact); err != nil {
		return domain.PageRenderFailure(ordinal, fmt.Errorf("buffer page: %w", err))
	}

	r.logger.Debug().
		Int("page", ordinal).
		Int("width", artifact.Width).
		Int("height", artifact.Height).
		Int("jpeg_bytes", len(artifact.Data)).
		Dur("elapsed", time.Since(pageStart)).
		Msg("Page flattened")
	return nil
}

// prepare creates the run workspace and page store
func (s *Service) prepare(r *run) error {
	if s.buffer.SpoolDir != "" {
		if err := os.MkdirAll(s.buffer.SpoolDir, 0o700); err != nil {
			return domain.ConfigError("create spool directory", err)
		}
	}

	workspace, err := os.MkdirTemp(s.buffer.SpoolDir, "flatten-"+r.id+"-")
	if err != nil {
		return domain.ConfigError("create run workspace", err)
	}
	r.workspace = workspace

	store, err := buffer.New(s.buffer.Strategy, filepath.Join(workspace, "pages"))
	if err != nil {
		return domain.ConfigError("create page buffer", err)
	}
	r.store = store
	return nil
}

// cleanup releases the page store and removes the workspace
func (s *Service) cleanup(r *run) error {
	var first error
	if r.store != nil {
		if err := r.store.Release(); err != nil {
			first = domain.CleanupFailure("release page buffer", err)
		}
	}
	if r.workspace != "" {
		if err := os.RemoveAll(r.workspace); err != nil && first == nil {
			first = domain.CleanupFailure("remove run workspace", err)
		}
	}
	return first
}

// classify keeps typed errors, maps context errors to Canceled and wraps anything
// else with fallback.
func classify(ctx context.Context, err error, fallback func(error) error) error {
	if ctx.Err() != nil {
		return domain.Canceled(ctx.Err())
	}
	if _, ok := domain.AsError(err); ok {
		return err
	}
	return fallback(err)
}
