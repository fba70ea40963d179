package ui

import (
	"io"
	"math"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"

	"github.com/spherical/pdf-flattener/internal/flatten"
)

// DocumentProgress shows a spinner while the page count resolves, then a page bar.
// Its methods are meant to be passed as the run's Observer and Progress callbacks.
type DocumentProgress struct {
	name    string
	out     io.Writer
	spinner *spinner.Spinner
	bar     *progressbar.ProgressBar
	pages   int
	stopped bool
}

// NewDocumentProgress creates progress output for one document written to out.
func NewDocumentProgress(name string, out io.Writer) *DocumentProgress {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Reading " + name
	s.Writer = out
	return &DocumentProgress{name: name, out: out, spinner: s}
}

// Observe follows pipeline state changes.
func (p *DocumentProgress) Observe(tr flatten.Transition) {
	switch tr.State {
	case flatten.StateResolvingPageCount:
		p.spinner.Start()
	case flatten.StateRasterizingPage:
		if p.bar == nil {
			p.spinner.Stop()
			p.pages = tr.Pages
			p.bar = p.newBar(tr.Pages)
		}
	case flatten.StateReassembling:
		if p.bar != nil {
			p.bar.Describe("Assembling " + p.name)
		}
	case flatten.StateComplete:
		p.finish(false)
	case flatten.StateFailed:
		p.finish(true)
	}
}

// Update moves the bar to fraction of the page count.
func (p *DocumentProgress) Update(fraction float64) {
	if p.bar == nil {
		return
	}
	_ = p.bar.Set64(int64(math.Round(fraction * float64(p.pages))))
}

// Stop finishes any running indicator. Calls after the run ended are no-ops.
func (p *DocumentProgress) Stop() {
	p.finish(false)
}

func (p *DocumentProgress) finish(failed bool) {
	if p.stopped {
		return
	}
	p.stopped = true

	p.spinner.Stop()
	if p.bar == nil {
		return
	}
	if failed {
		_ = p.bar.Exit()
	} else {
		_ = p.bar.Finish()
	}
}

func (p *DocumentProgress) newBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		int64(total),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetDescription("Flattening "+p.name),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionShowIts(),
		progressbar.OptionOnCompletion(func() {
			io.WriteString(p.out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}
