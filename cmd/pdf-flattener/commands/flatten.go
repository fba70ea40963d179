package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/pdf-flattener/cmd/pdf-flattener/ui"
	"github.com/spherical/pdf-flattener/pkg/flattener"
)

var (
	flattenOutput string
	flattenRender renderFlags
)

var flattenCmd = &cobra.Command{
	Use:   "flatten <file.pdf>",
	Short: "Flatten a single PDF",
	Long: `Render every page of the input at the configured DPI and write an image-only copy
named <name>_flattened.pdf next to the input, or to --output.`,
	Args: cobra.ExactArgs(1),
	RunE: runFlatten,
}

func init() {
	flattenCmd.Flags().StringVarP(&flattenOutput, "output", "o", "", "output file path")
	flattenRender.register(flattenCmd)
	rootCmd.AddCommand(flattenCmd)
}

func runFlatten(cmd *cobra.Command, args []string) error {
	input := args[0]

	if err := flattenRender.apply(cmd, cfg); err != nil {
		return err
	}

	client, err := flattener.NewClientWithConfig(cfg, quietLogger())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := ui.NewDocumentProgress(input, progressOutput())
	start := time.Now()

	doc, err := client.FlattenFile(ctx, input, flattener.Options{
		Raster:   client.DefaultOptions(),
		Progress: progress.Update,
		Observer: progress.Observe,
	})
	progress.Stop()
	if err != nil {
		ui.Error("%s", flattener.Hint(err))
		return err
	}

	dest := outputPath(input, flattenOutput, "", doc.Name)
	if err := writeAtomic(dest, doc.Data); err != nil {
		return err
	}

	ui.Success("Wrote %s (%d pages, %s) in %s", dest, doc.PageCount,
		ui.FormatBytes(int64(len(doc.Data))), time.Since(start).Round(time.Millisecond))
	return nil
}
