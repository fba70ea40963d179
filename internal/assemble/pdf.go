// Package assemble builds the image-only output PDF from buffered pages.
package assemble

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/spherical/pdf-flattener/internal/domain"
)

func init() {
	// pdfcpu otherwise creates a config directory under the user's home.
	api.DisableConfigDir()
}

// PDF lays out one page per buffered image, sized to the image in points.
type PDF struct{}

func NewPDF() *PDF {
	return &PDF{}
}

// Assemble builds a document from store. The store must hold exactly expectedPages
// non-empty pages in ordinal order; the result is re-read to confirm its page count.
func (p *PDF) Assemble(ctx context.Context, store domain.PageStore, expectedPages int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Canceled(err)
	}

	infos := store.Info()
	if len(infos) != expectedPages {
		return nil, domain.ReassemblyFailure(
			fmt.Sprintf("buffer holds %d pages, expected %d", len(infos), expectedPages), nil)
	}
	if expectedPages < 1 {
		return nil, domain.ReassemblyFailure("no pages to assemble", nil)
	}

	readers := make([]io.Reader, len(infos))
	lazies := make([]*lazyPage, len(infos))
	for i, info := range infos {
		if info.Ordinal != i+1 {
			return nil, domain.ReassemblyFailure(
				fmt.Sprintf("page at position %d has ordinal %d", i+1, info.Ordinal), nil)
		}
		if info.Size == 0 {
			return nil, domain.ReassemblyFailure(fmt.Sprintf("page %d is empty", info.Ordinal), nil)
		}
		lazies[i] = &lazyPage{store: store, ordinal: info.Ordinal}
		readers[i] = lazies[i]
	}
	defer func() {
		for _, l := range lazies {
			l.Close()
		}
	}()

	// Configuration is mutated by api calls, so each run gets its own.
	conf := model.NewDefaultConfiguration()

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full

	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, readers, imp, conf); err != nil {
		return nil, domain.ReassemblyFailure("import page images", err)
	}

	n, err := api.PageCount(bytes.NewReader(out.Bytes()), model.NewDefaultConfiguration())
	if err != nil {
		return nil, domain.ReassemblyFailure("read back assembled document", err)
	}
	if n != expectedPages {
		return nil, domain.ReassemblyFailure(
			fmt.Sprintf("assembled document has %d pages, expected %d", n, expectedPages), nil)
	}

	return out.Bytes(), nil
}

// lazyPage opens its page on first Read and closes it at EOF, so a large spool
// never holds more than one file open at a time.
type lazyPage struct {
	store   domain.PageStore
	ordinal int
	rc      io.ReadCloser
	done    bool
}

func (l *lazyPage) Read(b []byte) (int, error) {
	if l.done {
		return 0, io.EOF
	}
	if l.rc == nil {
		rc, err := l.store.Open(l.ordinal)
		if err != nil {
			return 0, fmt.Errorf("open page %d: %w", l.ordinal, err)
		}
		l.rc = rc
	}

	n, err := l.rc.Read(b)
	if err == io.EOF {
		l.Close()
		l.done = true
	}
	return n, err
}

func (l *lazyPage) Close() error {
	if l.rc == nil {
		return nil
	}
	err := l.rc.Close()
	l.rc = nil
	return err
}
