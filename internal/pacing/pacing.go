// Package pacing pulls batches from a loader at a bounded rate and feeds them
// to a handler, recording fetch statistics along the way.
package pacing

import (
	"context"
	"errors"
	"time"

	"github.com/SakodaShintaro/gpudrive/internal/loader"
)

// Source produces batches. *loader.Loader satisfies it.
type Source interface {
	Next(ctx context.Context) (loader.Batch, error)
}

// Handler receives each batch with its zero-based sequence number.
type Handler func(i int, batch loader.Batch) error

// Result summarises a Run.
type Result struct {
	Batches   int64
	Exhausted bool // the source reported loader.ErrExhausted
	Duration  time.Duration
}

// Run pulls batches from src sequentially. Batches are fetched one at a time
// so the order matches the loader's seeded sequence.
//
// Run returns nil when the requested count is reached, the source is
// exhausted, or ctx is done. Any other fetch or handler error stops the loop
// and is returned.
func Run(ctx context.Context, src Source, opt Options, handle Handler) (Result, error) {
	opt.normalize()
	limiter := opt.LimiterFactory(opt.Rate)
	if opt.Collector != nil {
		opt.Collector.Start()
	}

	start := time.Now()
	var res Result

	for opt.Batches == 0 || res.Batches < int64(opt.Batches) {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return finish(res, start), nil
			}
		}

		fetchStart := time.Now()
		batch, err := src.Next(ctx)
		latency := time.Since(fetchStart)

		switch {
		case errors.Is(err, loader.ErrExhausted):
			res.Exhausted = true
			return finish(res, start), nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return finish(res, start), nil
		}
		if opt.Collector != nil {
			opt.Collector.RecordBatch(latency, batch, err)
		}
		if err != nil {
			return finish(res, start), err
		}

		if handle != nil {
			if err := handle(int(res.Batches), batch); err != nil {
				return finish(res, start), err
			}
		}
		res.Batches++
	}
	return finish(res, start), nil
}

func finish(res Result, start time.Time) Result {
	res.Duration = time.Since(start)
	return res
}
