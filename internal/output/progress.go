package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/SakodaShintaro/gpudrive/internal/metrics"
)

// ProgressReporter displays real-time sampling progress on a single line.
type ProgressReporter struct {
	collector   *metrics.Collector
	catalogSize int
	ticker      *time.Ticker
	done        chan struct{}
	finished    chan struct{}
	writer      io.Writer
	active      int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(collector *metrics.Collector, catalogSize int, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector:   collector,
		catalogSize: catalogSize,
		ticker:      time.NewTicker(interval),
		done:        make(chan struct{}),
		finished:    make(chan struct{}),
		writer:      writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates after writing a final line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line())
		case <-p.done:
			fmt.Fprintln(p.writer, p.line())
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	stats := p.collector.Stats(p.catalogSize)
	return fmt.Sprintf("\rBatches: %d | Failures: %d | Coverage: %.1f%% | Batches/s: %.1f",
		stats.Batches, stats.Failures, stats.Coverage*100, stats.BatchesPerSec)
}
