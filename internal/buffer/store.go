// Package buffer holds encoded pages between rasterization and reassembly.
//
// Two strategies share the domain.PageStore contract: memory keeps page bytes
// on the heap, spool writes each page to its own file and keeps only metadata.
package buffer

import (
	"errors"
	"fmt"

	"github.com/spherical/pdf-flattener/internal/config"
	"github.com/spherical/pdf-flattener/internal/domain"
)

var (
	ErrReleased      = errors.New("page store released")
	ErrOutOfOrder    = errors.New("page appended out of order")
	ErrDuplicatePage = errors.New("page already buffered")
	ErrEmptyArtifact = errors.New("page artifact is empty")
	ErrPageNotFound  = errors.New("page not buffered")
)

// New returns a store for strategy. dir is only used by the spool strategy and
// becomes owned by the store: Release removes it.
func New(strategy, dir string) (domain.PageStore, error) {
	switch strategy {
	case config.BufferMemory, "":
		return NewMemory(), nil
	case config.BufferSpool:
		return NewSpool(dir)
	default:
		return nil, fmt.Errorf("unknown buffer strategy %q", strategy)
	}
}

// checkAppend enforces the append contract shared by both strategies.
func checkAppend(a domain.PageArtifact, n int) error {
	if len(a.Data) == 0 {
		return fmt.Errorf("page %d: %w", a.Ordinal, ErrEmptyArtifact)
	}
	switch {
	case a.Ordinal >= 1 && a.Ordinal <= n:
		return fmt.Errorf("page %d: %w", a.Ordinal, ErrDuplicatePage)
	case a.Ordinal != n+1:
		return fmt.Errorf("page %d, expected %d: %w", a.Ordinal, n+1, ErrOutOfOrder)
	}
	return nil
}
