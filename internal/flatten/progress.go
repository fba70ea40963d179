package flatten

import "github.com/spherical/pdf-flattener/internal/domain"

// progress forwards fractions to the caller's sink, clamped to [0, 1] and never
// decreasing.
type progress struct {
	sink domain.ProgressFunc
	last float64
}

func newProgress(sink domain.ProgressFunc) *progress {
	return &progress{sink: sink}
}

func (p *progress) report(fraction float64) {
	if fraction < p.last {
		fraction = p.last
	}
	if fraction > 1 {
		fraction = 1
	}
	p.last = fraction

	if p.sink != nil {
		p.sink(fraction)
	}
}
