package domain

import (
	"context"
	"image"
	"io"
)

// PageCounter resolves the number of pages in a source document
type PageCounter interface {
	PageCount(ctx context.Context, src *SourceDocument) (int, error)
}

// Rasterizer renders exactly one page, by 1-based ordinal, to a bitmap
type Rasterizer interface {
	Rasterize(ctx context.Context, src *SourceDocument, ordinal, dpi int) (image.Image, error)
}

// Toolchain is a rendering backend providing both page counting and rasterization
type Toolchain interface {
	PageCounter
	Rasterizer

	// Name identifies the backend in logs
	Name() string

	// NeedsSourceFile reports whether SourceDocument.Path must be populated
	NeedsSourceFile() bool
}

// Encoder compresses a bitmap into a page artifact
type Encoder interface {
	Encode(img image.Image, quality int) (PageArtifact, error)
}

// PageStore is the ordered, append-only holder of encoded pages
type PageStore interface {
	// Append adds the next page. Its ordinal must equal Len()+1.
	Append(a PageArtifact) error

	// Len returns the number of buffered pages
	Len() int

	// Info lists buffered pages in ordinal order
	Info() []ArtifactInfo

	// Open returns the encoded bytes of one page
	Open(ordinal int) (io.ReadCloser, error)

	// Release deletes every buffered page. Safe to call more than once.
	Release() error
}

// Reassembler turns a fully populated store into a single document
type Reassembler interface {
	Assemble(ctx context.Context, store PageStore, expectedPages int) ([]byte, error)
}

// ProgressFunc receives fraction-complete notifications in [0, 1]
type ProgressFunc func(fraction float64)
