package buffer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spherical/pdf-flattener/internal/domain"
)

// Spool writes each page to dir/page_NNNNN.jpg and keeps only metadata in memory.
type Spool struct {
	mu       sync.Mutex
	dir      string
	infos    []domain.ArtifactInfo
	released bool
}

// NewSpool creates dir if needed. The directory is removed by Release.
func NewSpool(dir string) (*Spool, error) {
	if dir == "" {
		return nil, fmt.Errorf("spool directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}
	return &Spool{dir: dir}, nil
}

func (s *Spool) pagePath(ordinal int) string {
	return filepath.Join(s.dir, fmt.Sprintf("page_%05d.jpg", ordinal))
}

func (s *Spool) Append(a domain.PageArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return ErrReleased
	}
	if err := checkAppend(a, len(s.infos)); err != nil {
		return err
	}
	if err := os.WriteFile(s.pagePath(a.Ordinal), a.Data, 0o600); err != nil {
		return fmt.Errorf("spool page %d: %w", a.Ordinal, err)
	}
	s.infos = append(s.infos, a.Info())
	return nil
}

func (s *Spool) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.infos)
}

func (s *Spool) Info() []domain.ArtifactInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]domain.ArtifactInfo, len(s.infos))
	copy(infos, s.infos)
	return infos
}

func (s *Spool) Open(ordinal int) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil, ErrReleased
	}
	if ordinal < 1 || ordinal > len(s.infos) {
		return nil, fmt.Errorf("page %d: %w", ordinal, ErrPageNotFound)
	}
	return os.Open(s.pagePath(ordinal))
}

// Release removes the spool directory and every page in it
func (s *Spool) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	s.released = true
	s.infos = nil

	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove spool directory: %w", err)
	}
	return nil
}
