package render

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spherical/pdf-flattener/internal/domain"
)

const (
	pdfinfoBin  = "pdfinfo"
	pdftoppmBin = "pdftoppm"
)

// Poppler renders through the poppler-utils command line tools.
type Poppler struct {
	searchPath []string
}

// NewPoppler creates a backend that looks for pdfinfo and pdftoppm in searchPath.
// An empty searchPath means $PATH.
func NewPoppler(searchPath []string) *Poppler {
	return &Poppler{searchPath: searchPath}
}

func (p *Poppler) Name() string { return "poppler" }

// NeedsSourceFile is true: both utilities read the PDF from disk.
func (p *Poppler) NeedsSourceFile() bool { return true }

// Check verifies both executables can be located.
func (p *Poppler) Check() error {
	for _, bin := range []string{pdfinfoBin, pdftoppmBin} {
		if _, err := lookupExecutable(bin, p.searchPath); err != nil {
			return domain.ToolchainMissing(fmt.Sprintf("%s is not installed", bin), err)
		}
	}
	return nil
}

// PageCount runs pdfinfo and parses its "Pages:" line.
func (p *Poppler) PageCount(ctx context.Context, src *domain.SourceDocument) (int, error) {
	bin, err := lookupExecutable(pdfinfoBin, p.searchPath)
	if err != nil {
		return 0, domain.ToolchainMissing("pdfinfo is not installed", err)
	}
	if src.Path == "" {
		return 0, domain.MetadataUnavailable("source document has no path", nil)
	}

	stdout, stderr, err := run(ctx, bin, src.Path)
	if err != nil {
		if isStartFailure(err) {
			return 0, domain.ToolchainMissing("pdfinfo could not be started", err)
		}
		return 0, domain.MetadataUnavailable("pdfinfo failed", withStderr(err, stderr))
	}

	count, err := parsePageCount(stdout)
	if err != nil {
		return 0, domain.MetadataUnavailable("page count not reported", err)
	}
	return count, nil
}

// Rasterize renders one page with pdftoppm into the run workspace, decodes it and
// removes the file before returning.
func (p *Poppler) Rasterize(ctx context.Context, src *domain.SourceDocument, ordinal, dpi int) (image.Image, error) {
	bin, err := lookupExecutable(pdftoppmBin, p.searchPath)
	if err != nil {
		return nil, domain.ToolchainMissing("pdftoppm is not installed", err)
	}
	if src.Path == "" {
		return nil, domain.PageRenderFailure(ordinal, fmt.Errorf("source document has no path"))
	}

	root := filepath.Join(filepath.Dir(src.Path), fmt.Sprintf("raster_%05d", ordinal))
	outPath := root + ".png"
	defer os.Remove(outPath)

	page := strconv.Itoa(ordinal)
	_, stderr, err := run(ctx, bin,
		"-r", strconv.Itoa(dpi),
		"-f", page,
		"-l", page,
		"-singlefile",
		"-png",
		src.Path,
		root,
	)
	if err != nil {
		if isStartFailure(err) {
			return nil, domain.ToolchainMissing("pdftoppm could not be started", err)
		}
		return nil, domain.PageRenderFailure(ordinal, withStderr(err, stderr))
	}

	f, err := os.Open(outPath)
	if err != nil {
		return nil, domain.PageRenderFailure(ordinal, fmt.Errorf("pdftoppm produced no image: %w", err))
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, domain.PageRenderFailure(ordinal, fmt.Errorf("decode rendered page: %w", err))
	}
	return img, nil
}

func run(ctx context.Context, bin string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func withStderr(err error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}

// parsePageCount extracts the positive integer after "Pages:" in pdfinfo output.
func parsePageCount(output string) (int, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if err != nil {
			return 0, fmt.Errorf("invalid page count %q: %w", line, err)
		}
		if n < 1 {
			return 0, fmt.Errorf("document reports %d pages", n)
		}
		return n, nil
	}
	return 0, fmt.Errorf("no Pages line in pdfinfo output")
}
