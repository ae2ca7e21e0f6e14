package pacing

import (
	"golang.org/x/time/rate"

	"github.com/SakodaShintaro/gpudrive/internal/metrics"
)

// Options configure Run.
type Options struct {
	Batches        int                                   // batches to pull (0 means until the source is exhausted or ctx ends)
	Rate           float64                               // batches per second (0 means unlimited)
	Collector      *metrics.Collector                    // optional
	LimiterFactory func(perSecond float64) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.Batches < 0 {
		o.Batches = 0
	}
	if o.Rate < 0 {
		o.Rate = 0
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = newLimiter
	}
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	// A burst of one keeps batches evenly spaced.
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}
