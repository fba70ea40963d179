// Package render provides the page-count and rasterization backends.
//
// Two backends exist: Poppler, which shells out to the pdfinfo and pdftoppm
// utilities, and MuPDF, which renders in-process through go-fitz. Both render
// exactly one page per call.
package render

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spherical/pdf-flattener/internal/config"
	"github.com/spherical/pdf-flattener/internal/domain"
)

// New returns the backend selected by configuration.
func New(cfg config.ToolchainConfig) (domain.Toolchain, error) {
	switch cfg.Backend {
	case config.BackendPoppler, "":
		return NewPoppler(cfg.SearchPath), nil
	case config.BackendMuPDF:
		return NewMuPDF(), nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown toolchain backend %q", cfg.Backend), nil)
	}
}

// lookupExecutable finds name in searchPath, or in $PATH when searchPath is empty.
func lookupExecutable(name string, searchPath []string) (string, error) {
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		name += ".exe"
	}

	if len(searchPath) == 0 {
		return exec.LookPath(name)
	}

	for _, dir := range searchPath {
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s not found in %v: %w", name, searchPath, exec.ErrNotFound)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

// isStartFailure reports whether err means the process never ran.
func isStartFailure(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return true
	}
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}
