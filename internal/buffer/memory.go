package buffer

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/spherical/pdf-flattener/internal/domain"
)

// Memory keeps every page in memory.
type Memory struct {
	mu       sync.Mutex
	pages    []domain.PageArtifact
	released bool
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(a domain.PageArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return ErrReleased
	}
	if err := checkAppend(a, len(m.pages)); err != nil {
		return err
	}
	m.pages = append(m.pages, a)
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pages)
}

func (m *Memory) Info() []domain.ArtifactInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]domain.ArtifactInfo, len(m.pages))
	for i, p := range m.pages {
		infos[i] = p.Info()
	}
	return infos
}

func (m *Memory) Open(ordinal int) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return nil, ErrReleased
	}
	if ordinal < 1 || ordinal > len(m.pages) {
		return nil, fmt.Errorf("page %d: %w", ordinal, ErrPageNotFound)
	}
	return io.NopCloser(bytes.NewReader(m.pages[ordinal-1].Data)), nil
}

// Release drops all page bytes
func (m *Memory) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pages = nil
	m.released = true
	return nil
}
