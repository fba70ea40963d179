package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spherical/pdf-flattener/cmd/pdf-flattener/ui"
	"github.com/spherical/pdf-flattener/pkg/flattener"
)

var (
	batchOutDir  string
	batchWorkers int
	batchRender  renderFlags
)

var batchCmd = &cobra.Command{
	Use:   "batch <file.pdf>...",
	Short: "Flatten several PDFs",
	Long: `Flatten each input independently. A failed document does not stop the others;
the command exits non-zero if any document failed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchOutDir, "out-dir", "", "directory for flattened files (default: beside each input)")
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 1, "documents flattened concurrently")
	batchRender.register(batchCmd)
	rootCmd.AddCommand(batchCmd)
}

// batchResult is the outcome of one document
type batchResult struct {
	input  string
	output string
	pages  int
	size   int64
	err    error
}

func runBatch(cmd *cobra.Command, args []string) error {
	if batchWorkers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}
	if err := batchRender.apply(cmd, cfg); err != nil {
		return err
	}

	client, err := flattener.NewClientWithConfig(cfg, quietLogger())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.Info("Flattening %d documents with %d workers", len(args), batchWorkers)
	results := flattenAll(ctx, client, args, batchOutDir, batchWorkers, ui.NewBatchProgress(progressOutput()))

	rows := make([][]string, 0, len(results))
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			rows = append(rows, []string{filepath.Base(r.input), "failed", "-", "-", flattener.Hint(r.err)})
			continue
		}
		rows = append(rows, []string{filepath.Base(r.input), "ok", strconv.Itoa(r.pages), ui.FormatBytes(r.size), r.output})
	}
	ui.Table([]string{"INPUT", "STATUS", "PAGES", "SIZE", "OUTPUT"}, rows)

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(results))
	}
	ui.Success("Flattened %d documents", len(results))
	return nil
}

// flattenAll runs one flatten per input with at most workers in flight. Results keep
// the order of inputs.
func flattenAll(ctx context.Context, client *flattener.Client, inputs []string, outDir string,
	workers int, progress *ui.BatchProgress) []batchResult {
	results := make([]batchResult, len(inputs))

	var g errgroup.Group
	g.SetLimit(workers)

	for i, input := range inputs {
		bar := progress.Add(filepath.Base(input))
		g.Go(func() error {
			results[i] = flattenOne(ctx, client, input, outDir, bar)
			return nil
		})
	}
	_ = g.Wait()
	progress.Wait()

	return results
}

func flattenOne(ctx context.Context, client *flattener.Client, input, outDir string, bar *ui.DocumentBar) batchResult {
	res := batchResult{input: input}

	doc, err := client.FlattenFile(ctx, input, flattener.Options{
		Raster:   client.DefaultOptions(),
		Progress: bar.Update,
		Observer: bar.Observe,
	})
	if err != nil {
		// Inputs rejected before the run starts never reach the observer.
		bar.Fail()
		res.err = err
		return res
	}

	res.output = outputPath(input, "", outDir, doc.Name)
	if err := writeAtomic(res.output, doc.Data); err != nil {
		bar.Fail()
		res.err = err
		return res
	}
	bar.Done()
	res.pages = doc.PageCount
	res.size = int64(len(doc.Data))
	return res
}
