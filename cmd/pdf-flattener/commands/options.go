package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical/pdf-flattener/internal/config"
)

// renderFlags are shared by flatten and batch.
type renderFlags struct {
	dpi     int
	quality int
	backend string
	buffer  string
}

func (f *renderFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.dpi, "dpi", 0, "render resolution in dots per inch (default from config)")
	cmd.Flags().IntVar(&f.quality, "quality", 0, "JPEG quality 0-100 (default from config)")
	cmd.Flags().StringVar(&f.backend, "backend", "", "rendering backend: poppler or mupdf")
	cmd.Flags().StringVar(&f.buffer, "buffer", "", "page buffer: memory or spool")
}

// apply copies explicitly set flags over c and revalidates it.
func (f *renderFlags) apply(cmd *cobra.Command, c *config.Config) error {
	if cmd.Flags().Changed("dpi") {
		c.Flatten.DPI = f.dpi
	}
	if cmd.Flags().Changed("quality") {
		c.Flatten.Quality = f.quality
	}
	if f.backend != "" {
		c.Toolchain.Backend = f.backend
	}
	if f.buffer != "" {
		c.Buffer.Strategy = f.buffer
	}
	return c.Validate()
}
