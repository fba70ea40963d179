package assemble

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pdf-flattener/internal/buffer"
	"github.com/spherical/pdf-flattener/internal/domain"
)

func jpegPage(t *testing.T, ordinal, w, h int) domain.PageArtifact {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * ordinal), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}))
	return domain.PageArtifact{Ordinal: ordinal, Data: buf.Bytes(), Width: w, Height: h}
}

func fill(t *testing.T, store domain.PageStore, pages int) {
	t.Helper()
	for i := 1; i <= pages; i++ {
		require.NoError(t, store.Append(jpegPage(t, i, 60+i, 80)))
	}
}

func TestAssemble_MemoryStore(t *testing.T) {
	store := buffer.NewMemory()
	fill(t, store, 3)

	out, err := NewPDF().Assemble(context.Background(), store, 3)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	n, err := api.PageCount(bytes.NewReader(out), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAssemble_SpoolStore(t *testing.T) {
	store, err := buffer.NewSpool(filepath.Join(t.TempDir(), "pages"))
	require.NoError(t, err)
	defer store.Release()
	fill(t, store, 2)

	out, err := NewPDF().Assemble(context.Background(), store, 2)
	require.NoError(t, err)

	n, err := api.PageCount(bytes.NewReader(out), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAssemble_CountMismatch(t *testing.T) {
	store := buffer.NewMemory()
	fill(t, store, 2)

	out, err := NewPDF().Assemble(context.Background(), store, 3)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, domain.IsType(err, domain.ErrorTypeReassembly))
}

func TestAssemble_EmptyStore(t *testing.T) {
	_, err := NewPDF().Assemble(context.Background(), buffer.NewMemory(), 0)
	assert.True(t, domain.IsType(err, domain.ErrorTypeReassembly))
}

func TestAssemble_CorruptPage(t *testing.T) {
	store := buffer.NewMemory()
	require.NoError(t, store.Append(domain.PageArtifact{Ordinal: 1, Data: []byte("not a jpeg"), Width: 1, Height: 1}))

	out, err := NewPDF().Assemble(context.Background(), store, 1)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, domain.IsType(err, domain.ErrorTypeReassembly))
}

func TestAssemble_Canceled(t *testing.T) {
	store := buffer.NewMemory()
	fill(t, store, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPDF().Assemble(ctx, store, 1)
	assert.True(t, domain.IsType(err, domain.ErrorTypeCanceled))
}
