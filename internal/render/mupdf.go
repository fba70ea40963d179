package render

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/pdf-flattener/internal/domain"
)

// MuPDF renders in-process using go-fitz (requires CGo and MuPDF).
// The document is opened from memory on every call so no state is kept between pages.
type MuPDF struct{}

// NewMuPDF creates a go-fitz backed renderer
func NewMuPDF() *MuPDF {
	return &MuPDF{}
}

func (m *MuPDF) Name() string { return "mupdf" }

func (m *MuPDF) NeedsSourceFile() bool { return false }

// PageCount opens the document and reports its page count
func (m *MuPDF) PageCount(ctx context.Context, src *domain.SourceDocument) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	doc, err := fitz.NewFromMemory(src.Data)
	if err != nil {
		return 0, domain.MetadataUnavailable("unable to open PDF document", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n < 1 {
		return 0, domain.MetadataUnavailable(fmt.Sprintf("document reports %d pages", n), nil)
	}
	return n, nil
}

// Rasterize renders a single page at the requested DPI
func (m *MuPDF) Rasterize(ctx context.Context, src *domain.SourceDocument, ordinal, dpi int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := fitz.NewFromMemory(src.Data)
	if err != nil {
		return nil, domain.PageRenderFailure(ordinal, fmt.Errorf("unable to open PDF document: %w", err))
	}
	defer doc.Close()

	img, err := doc.ImageDPI(ordinal-1, float64(dpi))
	if err != nil {
		return nil, domain.PageRenderFailure(ordinal, err)
	}
	return img, nil
}
