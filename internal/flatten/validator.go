package flatten

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spherical/pdf-flattener/internal/domain"
)

// headerWindow is how far into the input the %PDF- marker may appear.
const headerWindow = 1024

var pdfMagic = []byte("%PDF-")

// Validator rejects inputs before any rendering starts
type Validator struct {
	maxBytes int64
	bounds   domain.RasterBounds
}

// NewValidator creates a validator with the given limits
func NewValidator(maxBytes int64, bounds domain.RasterBounds) *Validator {
	return &Validator{maxBytes: maxBytes, bounds: bounds}
}

// Validate checks size, type and options. Every failure is InputRejected.
func (v *Validator) Validate(name string, data []byte, opts domain.RasterOptions) error {
	if len(data) == 0 {
		return domain.InputRejected("input is empty", nil)
	}

	if int64(len(data)) > v.maxBytes {
		return domain.InputRejected(
			fmt.Sprintf("input is %d bytes, limit is %d", len(data), v.maxBytes), nil)
	}

	if name = strings.TrimSpace(name); name != "" {
		if ext := strings.ToLower(filepath.Ext(name)); ext != ".pdf" {
			return domain.InputRejected(fmt.Sprintf("file is not a PDF (has extension %q)", ext), nil)
		}
	}

	head := data
	if len(head) > headerWindow {
		head = head[:headerWindow]
	}
	if !bytes.Contains(head, pdfMagic) {
		return domain.InputRejected("input has no PDF header", nil)
	}

	return opts.Validate(v.bounds)
}
