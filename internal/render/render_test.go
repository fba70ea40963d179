package render

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pdf-flattener/internal/config"
	"github.com/spherical/pdf-flattener/internal/domain"
)

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes require a POSIX shell")
	}
}

func sourceIn(t *testing.T) *domain.SourceDocument {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "source.pdf")
	data := []byte("%PDF-1.4\n%%EOF\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return &domain.SourceDocument{Name: "input.pdf", Data: data, Path: path}
}

func TestParsePageCount(t *testing.T) {
	output := "Title:          report\nProducer:       test\nPages:          5\nEncrypted:      no\n"
	n, err := parsePageCount(output)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestParsePageCount_Errors(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"missing line", "Title: report\n"},
		{"not a number", "Pages: many\n"},
		{"zero pages", "Pages: 0\n"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePageCount(tt.output)
			assert.Error(t, err)
		})
	}
}

func TestNew(t *testing.T) {
	tc, err := New(config.ToolchainConfig{Backend: config.BackendPoppler})
	require.NoError(t, err)
	assert.Equal(t, "poppler", tc.Name())
	assert.True(t, tc.NeedsSourceFile())

	tc, err = New(config.ToolchainConfig{Backend: config.BackendMuPDF})
	require.NoError(t, err)
	assert.Equal(t, "mupdf", tc.Name())
	assert.False(t, tc.NeedsSourceFile())

	_, err = New(config.ToolchainConfig{Backend: "ghostscript"})
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

func TestPoppler_MissingToolchain(t *testing.T) {
	p := NewPoppler([]string{t.TempDir()})
	src := sourceIn(t)

	err := p.Check()
	assert.True(t, domain.IsType(err, domain.ErrorTypeToolchainMissing))

	_, err = p.PageCount(context.Background(), src)
	assert.True(t, domain.IsType(err, domain.ErrorTypeToolchainMissing))

	_, err = p.Rasterize(context.Background(), src, 1, 72)
	assert.True(t, domain.IsType(err, domain.ErrorTypeToolchainMissing))
}

func TestPoppler_PageCount(t *testing.T) {
	skipOnWindows(t)
	bin := t.TempDir()
	writeScript(t, bin, "pdfinfo", "echo 'Producer:       fake'\necho 'Pages:          5'\n")

	p := NewPoppler([]string{bin})
	n, err := p.PageCount(context.Background(), sourceIn(t))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestPoppler_PageCountFailure(t *testing.T) {
	skipOnWindows(t)
	bin := t.TempDir()
	writeScript(t, bin, "pdfinfo", "echo 'Syntax Error: broken xref' >&2\nexit 1\n")

	p := NewPoppler([]string{bin})
	_, err := p.PageCount(context.Background(), sourceIn(t))
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeMetadataUnavailable))
	assert.Contains(t, err.Error(), "broken xref")
}

func TestPoppler_Rasterize(t *testing.T) {
	skipOnWindows(t)

	fixture := filepath.Join(t.TempDir(), "page.png")
	img := image.NewRGBA(image.Rect(0, 0, 12, 8))
	img.Set(1, 1, color.Black)
	f, err := os.Create(fixture)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	bin := t.TempDir()
	// The output root is the last argument; pdftoppm appends ".png" with -singlefile.
	writeScript(t, bin, "pdftoppm", "for a; do root=\"$a\"; done\ncp '"+fixture+"' \"$root.png\"\n")

	src := sourceIn(t)
	p := NewPoppler([]string{bin})
	out, err := p.Rasterize(context.Background(), src, 3, 72)
	require.NoError(t, err)
	assert.Equal(t, 12, out.Bounds().Dx())
	assert.Equal(t, 8, out.Bounds().Dy())

	entries, err := os.ReadDir(filepath.Dir(src.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "rendered page file must be removed")
}

func TestPoppler_RasterizeFailureCarriesOrdinal(t *testing.T) {
	skipOnWindows(t)
	bin := t.TempDir()
	writeScript(t, bin, "pdftoppm", "echo 'Wrong page range given' >&2\nexit 99\n")

	p := NewPoppler([]string{bin})
	_, err := p.Rasterize(context.Background(), sourceIn(t), 7, 72)
	require.Error(t, err)

	de, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrorTypePageRender, de.Type)
	assert.Equal(t, 7, de.Page)
}

func TestPoppler_RasterizeNoOutput(t *testing.T) {
	skipOnWindows(t)
	bin := t.TempDir()
	writeScript(t, bin, "pdftoppm", "exit 0\n")

	p := NewPoppler([]string{bin})
	_, err := p.Rasterize(context.Background(), sourceIn(t), 2, 72)
	assert.True(t, domain.IsType(err, domain.ErrorTypePageRender))
}

func TestLookupExecutable_SkipsNonExecutable(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pdfinfo"), []byte("x"), 0o644))

	_, err := lookupExecutable("pdfinfo", []string{dir})
	assert.Error(t, err)
}
