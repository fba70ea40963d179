package ui

import (
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/spherical/pdf-flattener/internal/flatten"
)

// BatchProgress renders one bar per document of a batch.
type BatchProgress struct {
	progress *mpb.Progress
}

// NewBatchProgress creates a multi-bar container writing to out.
func NewBatchProgress(out io.Writer) *BatchProgress {
	return &BatchProgress{
		progress: mpb.New(mpb.WithWidth(64), mpb.WithOutput(out)),
	}
}

// Add creates the bar for one document. The total is replaced once the page count is known.
func (b *BatchProgress) Add(name string) *DocumentBar {
	bar := b.progress.AddBar(0,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.OnAbort(
				decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "done"),
				"failed",
			),
			decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 12}),
		),
	)
	return &DocumentBar{bar: bar}
}

// Wait blocks until every bar has completed or aborted.
func (b *BatchProgress) Wait() {
	b.progress.Wait()
}

// DocumentBar tracks one run of a batch. Safe for use from the run's goroutine.
type DocumentBar struct {
	bar   *mpb.Bar
	pages int
}

// Observe follows pipeline state changes. A completed run leaves the bar open
// until Done, so a failed write can still mark it failed.
func (d *DocumentBar) Observe(tr flatten.Transition) {
	switch tr.State {
	case flatten.StateRasterizingPage:
		if d.pages == 0 {
			d.pages = tr.Pages
			d.bar.SetTotal(int64(tr.Pages), false)
		}
	case flatten.StateFailed:
		d.Fail()
	}
}

// Done marks the document finished.
func (d *DocumentBar) Done() {
	d.bar.SetTotal(-1, true)
}

// Fail marks the document failed. It is a no-op once the bar has ended.
func (d *DocumentBar) Fail() {
	d.bar.Abort(false)
}

// Update moves the bar to fraction of the page count.
func (d *DocumentBar) Update(fraction float64) {
	d.bar.SetCurrent(int64(fraction * float64(d.pages)))
}
