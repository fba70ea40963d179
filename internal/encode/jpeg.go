// Package encode turns rendered page bitmaps into compressed page artifacts.
package encode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/spherical/pdf-flattener/internal/domain"
)

// ErrEmptyImage is returned for nil or zero-area bitmaps.
var ErrEmptyImage = errors.New("image has no pixels")

// JPEG encodes bitmaps as baseline JPEG over an opaque white background.
type JPEG struct{}

// NewJPEG creates a JPEG encoder
func NewJPEG() *JPEG {
	return &JPEG{}
}

// Encode flattens img onto white, dropping alpha and palette, and compresses it at
// quality. The returned artifact has no ordinal; the caller assigns it.
func (e *JPEG) Encode(img image.Image, quality int) (domain.PageArtifact, error) {
	if img == nil || img.Bounds().Empty() {
		return domain.PageArtifact{}, ErrEmptyImage
	}

	size := img.Bounds().Size()
	opaque := imaging.Overlay(imaging.New(size.X, size.Y, color.White), img, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, opaque, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return domain.PageArtifact{}, fmt.Errorf("jpeg encode: %w", err)
	}

	return domain.PageArtifact{
		Data:   buf.Bytes(),
		Width:  size.X,
		Height: size.Y,
	}, nil
}
