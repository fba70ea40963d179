package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// OutputMIMEType is the media type of every flattened document
	OutputMIMEType = "application/pdf"

	// OutputSuffix is appended to the source stem when naming the output
	OutputSuffix = "_flattened"
)

// SourceDocument is the input PDF owned by a single run.
type SourceDocument struct {
	Name      string
	Data      []byte
	Path      string // On-disk copy inside the run workspace, when the toolchain needs one
	PageCount int
}

// RasterOptions controls resolution and JPEG quality for a run.
type RasterOptions struct {
	DPI     int `yaml:"dpi" json:"dpi"`
	Quality int `yaml:"quality" json:"quality"`
}

// RasterBounds are the configured limits RasterOptions must fall within.
type RasterBounds struct {
	MinDPI int `yaml:"min_dpi"`
	MaxDPI int `yaml:"max_dpi"`
}

// Validate checks the options against bounds. Quality is always 0..100.
func (o RasterOptions) Validate(b RasterBounds) error {
	if o.DPI < b.MinDPI || o.DPI > b.MaxDPI {
		return InputRejected(fmt.Sprintf("dpi must be between %d and %d, got %d", b.MinDPI, b.MaxDPI, o.DPI), nil)
	}
	if o.Quality < 0 || o.Quality > 100 {
		return InputRejected(fmt.Sprintf("quality must be between 0 and 100, got %d", o.Quality), nil)
	}
	return nil
}

// PageArtifact is one encoded page.
type PageArtifact struct {
	Ordinal int
	Data    []byte
	Width   int // pixels
	Height  int // pixels
}

// Info returns the artifact's metadata without its bytes
func (a PageArtifact) Info() ArtifactInfo {
	return ArtifactInfo{
		Ordinal: a.Ordinal,
		Width:   a.Width,
		Height:  a.Height,
		Size:    int64(len(a.Data)),
	}
}

// ArtifactInfo describes a buffered artifact.
type ArtifactInfo struct {
	Ordinal int
	Width   int
	Height  int
	Size    int64
}

// OutputDocument is the flattened result. It only exists after a complete run.
type OutputDocument struct {
	Name      string
	MIMEType  string
	Data      []byte
	PageCount int
}

// OutputName derives "<stem>_flattened.pdf" from the source name.
func OutputName(sourceName string) string {
	base := filepath.Base(strings.TrimSpace(sourceName))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "document"
	}
	return stem + OutputSuffix + ".pdf"
}
