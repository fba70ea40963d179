package flatten

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pdf-flattener/internal/assemble"
	"github.com/spherical/pdf-flattener/internal/config"
	"github.com/spherical/pdf-flattener/internal/domain"
	"github.com/spherical/pdf-flattener/internal/encode"
	"github.com/spherical/pdf-flattener/internal/observability"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")

// fakeToolchain renders solid pages whose pixel size scales with dpi.
type fakeToolchain struct {
	pages     int
	countErr  error
	failPage  int
	failTimes int // failures of failPage before it succeeds; <0 means always
	needsFile bool

	calls     []int
	sawSource bool
}

func (f *fakeToolchain) Name() string          { return "fake" }
func (f *fakeToolchain) NeedsSourceFile() bool { return f.needsFile }

func (f *fakeToolchain) PageCount(ctx context.Context, src *domain.SourceDocument) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	if f.needsFile {
		data, err := os.ReadFile(src.Path)
		f.sawSource = err == nil && bytes.Equal(data, src.Data)
	}
	return f.pages, nil
}

func (f *fakeToolchain) Rasterize(ctx context.Context, src *domain.SourceDocument, ordinal, dpi int) (image.Image, error) {
	f.calls = append(f.calls, ordinal)
	if ordinal == f.failPage && f.failTimes != 0 {
		f.failTimes--
		return nil, errors.New("renderer crashed")
	}
	img := image.NewRGBA(image.Rect(0, 0, dpi/6, dpi/4))
	for i := range img.Pix {
		img.Pix[i] = uint8(i*7 + ordinal*40)
	}
	return img, nil
}

type failingReassembler struct{}

func (failingReassembler) Assemble(ctx context.Context, store domain.PageStore, expected int) ([]byte, error) {
	return nil, errors.New("disk full")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Buffer.SpoolDir = t.TempDir()
	cfg.Toolchain.RetryBackoff = time.Millisecond
	return cfg
}

func newTestService(cfg *config.Config, tc domain.Toolchain) *Service {
	return NewService(cfg, tc, encode.NewJPEG(), assemble.NewPDF(), observability.Nop())
}

func assertWorkspaceClean(t *testing.T, cfg *config.Config) {
	t.Helper()
	entries, err := os.ReadDir(cfg.Buffer.SpoolDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "run workspace must be removed")
}

func raster() domain.RasterOptions {
	return domain.RasterOptions{DPI: 72, Quality: 80}
}

func TestFlatten_ThreePages(t *testing.T) {
	cfg := testConfig(t)
	tc := &fakeToolchain{pages: 3}

	var fractions []float64
	out, err := newTestService(cfg, tc).Flatten(context.Background(), "report.pdf", samplePDF, Options{
		Raster:   raster(),
		Progress: func(f float64) { fractions = append(fractions, f) },
	})
	require.NoError(t, err)

	assert.Equal(t, "report_flattened.pdf", out.Name)
	assert.Equal(t, "application/pdf", out.MIMEType)
	assert.Equal(t, 3, out.PageCount)

	n, err := api.PageCount(bytes.NewReader(out.Data), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, []int{1, 2, 3}, tc.calls, "one render call per page, in order")
	require.Len(t, fractions, 4)
	assert.InDelta(t, 1.0/3, fractions[0], 1e-9)
	assert.InDelta(t, 2.0/3, fractions[1], 1e-9)
	assert.Equal(t, 1.0, fractions[2])
	assert.Equal(t, 1.0, fractions[3])

	assertWorkspaceClean(t, cfg)
}

func TestFlatten_PageFailureAborts(t *testing.T) {
	for _, strategy := range []string{config.BufferMemory, config.BufferSpool} {
		t.Run(strategy, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Buffer.Strategy = strategy
			tc := &fakeToolchain{pages: 3, failPage: 2, failTimes: -1}

			var fractions []float64
			out, err := newTestService(cfg, tc).Flatten(context.Background(), "report.pdf", samplePDF, Options{
				Raster:   raster(),
				Progress: func(f float64) { fractions = append(fractions, f) },
			})
			require.Error(t, err)
			assert.Nil(t, out)

			de, ok := domain.AsError(err)
			require.True(t, ok)
			assert.Equal(t, domain.ErrorTypePageRender, de.Type)
			assert.Equal(t, 2, de.Page)

			assert.Equal(t, []int{1, 2}, tc.calls, "page 3 is never rendered")
			require.Len(t, fractions, 1)
			assert.InDelta(t, 1.0/3, fractions[0], 1e-9)

			assertWorkspaceClean(t, cfg)
		})
	}
}

func TestFlatten_ToolchainMissing(t *testing.T) {
	cfg := testConfig(t)
	tc := &fakeToolchain{countErr: domain.ToolchainMissing("pdfinfo is not installed", nil)}

	called := false
	out, err := newTestService(cfg, tc).Flatten(context.Background(), "a.pdf", samplePDF, Options{
		Raster:   raster(),
		Progress: func(float64) { called = true },
	})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, domain.IsType(err, domain.ErrorTypeToolchainMissing))
	assert.False(t, called, "no progress before the page count is known")
	assert.Empty(t, tc.calls)
	assertWorkspaceClean(t, cfg)
}

func TestFlatten_UntypedCountErrorIsMetadataUnavailable(t *testing.T) {
	cfg := testConfig(t)
	tc := &fakeToolchain{countErr: errors.New("xref table broken")}

	_, err := newTestService(cfg, tc).Flatten(context.Background(), "a.pdf", samplePDF, Options{Raster: raster()})
	assert.True(t, domain.IsType(err, domain.ErrorTypeMetadataUnavailable))
}

func TestFlatten_ZeroPages(t *testing.T) {
	cfg := testConfig(t)

	_, err := newTestService(cfg, &fakeToolchain{pages: 0}).Flatten(context.Background(), "a.pdf", samplePDF, Options{Raster: raster()})
	assert.True(t, domain.IsType(err, domain.ErrorTypeMetadataUnavailable))
}

func TestFlatten_ReassemblyFailure(t *testing.T) {
	cfg := testConfig(t)
	tc := &fakeToolchain{pages: 2}
	svc := NewService(cfg, tc, encode.NewJPEG(), failingReassembler{}, observability.Nop())

	var fractions []float64
	out, err := svc.Flatten(context.Background(), "a.pdf", samplePDF, Options{
		Raster:   raster(),
		Progress: func(f float64) { fractions = append(fractions, f) },
	})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, domain.IsType(err, domain.ErrorTypeReassembly))
	assert.Equal(t, []float64{0.5, 1.0}, fractions, "no completion report after a failed reassembly")
	assertWorkspaceClean(t, cfg)
}

func TestFlatten_InputRejected(t *testing.T) {
	cfg := testConfig(t)
	cfg.Flatten.MaxInputBytes = int64(len(samplePDF))

	tests := []struct {
		name string
		file string
		data []byte
		opts domain.RasterOptions
	}{
		{"empty input", "a.pdf", nil, raster()},
		{"one byte over limit", "a.pdf", append(append([]byte{}, samplePDF...), ' '), raster()},
		{"no pdf header", "a.pdf", []byte("hello, world"), raster()},
		{"wrong extension", "a.docx", samplePDF, raster()},
		{"dpi too low", "a.pdf", samplePDF, domain.RasterOptions{DPI: 10, Quality: 80}},
		{"dpi too high", "a.pdf", samplePDF, domain.RasterOptions{DPI: 1200, Quality: 80}},
		{"quality out of range", "a.pdf", samplePDF, domain.RasterOptions{DPI: 72, Quality: 101}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := &fakeToolchain{pages: 1}
			_, err := newTestService(cfg, tc).Flatten(context.Background(), tt.file, tt.data, Options{Raster: tt.opts})
			require.Error(t, err)
			assert.True(t, domain.IsType(err, domain.ErrorTypeInputRejected))
			assert.Empty(t, tc.calls)
		})
	}
}

func TestFlatten_ExactlyAtSizeLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Flatten.MaxInputBytes = int64(len(samplePDF))

	out, err := newTestService(cfg, &fakeToolchain{pages: 1}).Flatten(context.Background(), "a.pdf", samplePDF, Options{Raster: raster()})
	require.NoError(t, err)
	assert.Equal(t, 1, out.PageCount)
}

func TestFlatten_SourceFileStagedForToolchain(t *testing.T) {
	cfg := testConfig(t)
	tc := &fakeToolchain{pages: 1, needsFile: true}

	_, err := newTestService(cfg, tc).Flatten(context.Background(), "a.pdf", samplePDF, Options{Raster: raster()})
	require.NoError(t, err)
	assert.True(t, tc.sawSource)
	assertWorkspaceClean(t, cfg)
}

func TestFlatten_RetriesTransientRenderFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Toolchain.RenderRetries = 2
	tc := &fakeToolchain{pages: 2, failPage: 2, failTimes: 1}

	out, err := newTestService(cfg, tc).Flatten(context.Background(), "a.pdf", samplePDF, Options{Raster: raster()})
	require.NoError(t, err)
	assert.Equal(t, 2, out.PageCount)
	assert.Equal(t, []int{1, 2, 2}, tc.calls)
}

func TestFlatten_RetriesExhausted(t *testing.T) {
	cfg := testConfig(t)
	cfg.Toolchain.RenderRetries = 1
	tc := &fakeToolchain{pages: 1, failPage: 1, failTimes: -1}

	_, err := newTestService(cfg, tc).Flatten(context.Background(), "a.pdf", samplePDF, Options{Raster: raster()})
	assert.True(t, domain.IsType(err, domain.ErrorTypePageRender))
	assert.Equal(t, []int{1, 1}, tc.calls)
}

func TestFlatten_CanceledBetweenPages(t *testing.T) {
	cfg := testConfig(t)
	tc := &fakeToolchain{pages: 3}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := newTestService(cfg, tc).Flatten(ctx, "a.pdf", samplePDF, Options{
		Raster:   raster(),
		Progress: func(float64) { cancel() },
	})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeCanceled))
	assert.Equal(t, []int{1}, tc.calls)
	assertWorkspaceClean(t, cfg)
}

func TestFlatten_StateTransitions(t *testing.T) {
	cfg := testConfig(t)

	var states []State
	var pages []int
	_, err := newTestService(cfg, &fakeToolchain{pages: 2}).Flatten(context.Background(), "a.pdf", samplePDF, Options{
		Raster: raster(),
		RunID:  "run-1",
		Observer: func(tr Transition) {
			assert.Equal(t, "run-1", tr.RunID)
			states = append(states, tr.State)
			if tr.State == StateRasterizingPage {
				pages = append(pages, tr.Page)
				assert.Equal(t, 2, tr.Pages)
			}
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []State{
		StateIdle,
		StateValidating,
		StateResolvingPageCount,
		StateRasterizingPage,
		StateRasterizingPage,
		StateReassembling,
		StateComplete,
	}, states)
	assert.Equal(t, []int{1, 2}, pages)
}

func TestFlatten_FailedTransitionCarriesError(t *testing.T) {
	cfg := testConfig(t)

	var last Transition
	_, err := newTestService(cfg, &fakeToolchain{pages: 1}).Flatten(context.Background(), "a.pdf", nil, Options{
		Raster:   raster(),
		Observer: func(tr Transition) { last = tr },
	})
	require.Error(t, err)
	assert.Equal(t, StateFailed, last.State)
	assert.Equal(t, err, last.Err)
}

func TestFlatten_Deterministic(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(cfg, &fakeToolchain{pages: 4})

	first, err := svc.Flatten(context.Background(), "a.pdf", samplePDF, Options{Raster: raster()})
	require.NoError(t, err)

	svc = newTestService(cfg, &fakeToolchain{pages: 4})
	second, err := svc.Flatten(context.Background(), "a.pdf", samplePDF, Options{Raster: raster()})
	require.NoError(t, err)

	assert.Equal(t, first.PageCount, second.PageCount)
	assert.Equal(t, first.Name, second.Name)
}

func TestProgress_ClampsAndNeverDecreases(t *testing.T) {
	var got []float64
	p := newProgress(func(f float64) { got = append(got, f) })

	p.report(0.5)
	p.report(0.25)
	p.report(1.5)

	assert.Equal(t, []float64{0.5, 0.5, 1.0}, got)
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, calculateBackoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, calculateBackoff(1, cfg))
	assert.Equal(t, 300*time.Millisecond, calculateBackoff(2, cfg))
}

func TestValidator_TolerantHeaderOffset(t *testing.T) {
	v := NewValidator(1<<20, domain.RasterBounds{MinDPI: 72, MaxDPI: 600})
	data := append([]byte("\n\n"), samplePDF...)

	assert.NoError(t, v.Validate("a.PDF", data, raster()))
	assert.NoError(t, v.Validate("", data, raster()))
}

func TestFlatten_LowResolutionIsSmaller(t *testing.T) {
	cfg := testConfig(t)

	low, err := newTestService(cfg, &fakeToolchain{pages: 1}).Flatten(context.Background(), "a.pdf", samplePDF, Options{
		Raster: domain.RasterOptions{DPI: 72, Quality: 50},
	})
	require.NoError(t, err)

	high, err := newTestService(cfg, &fakeToolchain{pages: 1}).Flatten(context.Background(), "a.pdf", samplePDF, Options{
		Raster: domain.RasterOptions{DPI: 300, Quality: 50},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, low.PageCount)
	assert.Less(t, len(low.Data), len(high.Data))
}

func TestFlatten_ThirdOfFivePagesFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Buffer.Strategy = config.BufferSpool
	tc := &fakeToolchain{pages: 5, failPage: 3, failTimes: -1}

	out, err := newTestService(cfg, tc).Flatten(context.Background(), "a.pdf", samplePDF, Options{Raster: raster()})
	require.Error(t, err)
	assert.Nil(t, out)

	de, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrorTypePageRender, de.Type)
	assert.Equal(t, 3, de.Page)
	assert.Equal(t, []int{1, 2, 3}, tc.calls)
	assertWorkspaceClean(t, cfg)
}
