package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spherical/pdf-flattener/cmd/pdf-flattener/ui"
)

// progressOutput is stderr when it is a terminal. Bars are dropped when output is
// redirected.
func progressOutput() io.Writer {
	if ui.IsTerminal(os.Stderr) {
		return os.Stderr
	}
	return io.Discard
}

// outputPath picks where a flattened document is written. An explicit path wins,
// then outDir, then the directory of the input.
func outputPath(input, explicit, outDir, docName string) string {
	if explicit != "" {
		return explicit
	}
	if outDir != "" {
		return filepath.Join(outDir, docName)
	}
	return filepath.Join(filepath.Dir(input), docName)
}

// writeAtomic writes data to a temp file beside dest and renames it into place,
// so a partial document is never visible at dest.
func writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*.pdf")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close output: %w", err)
	}
	_ = os.Chmod(tmpPath, 0o644)

	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move output into place: %w", err)
	}
	return nil
}
