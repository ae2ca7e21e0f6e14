package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector records per-batch metrics in a thread-safe manner.
type Collector struct {
	mu           sync.Mutex
	hist         *hdrhistogram.Histogram
	batches      int64
	failures     int64
	draws        int64
	duplicates   int64
	minLatency   time.Duration
	maxLatency   time.Duration
	sumLatency   time.Duration
	drawsByScene map[string]int64
	errorsByType map[string]int64
	start        time.Time
}

// Stats represents aggregated metrics.
type Stats struct {
	Batches        int64         `json:"batches"`
	Failures       int64         `json:"failures"`
	Draws          int64         `json:"draws"`
	UniqueScenes   int           `json:"unique_scenes"`
	CatalogSize    int           `json:"catalog_size"`
	Coverage       float64       `json:"coverage"`
	DuplicateDraws int64         `json:"duplicate_draws"`
	MinLatency     time.Duration `json:"-"`
	MaxLatency     time.Duration `json:"-"`
	MeanLatency    time.Duration `json:"-"`
	P50Latency     time.Duration `json:"-"`
	P90Latency     time.Duration `json:"-"`
	P99Latency     time.Duration `json:"-"`
	Duration       time.Duration `json:"-"`
	BatchesPerSec  float64       `json:"batches_per_sec"`
	P50SceneDraws  int64         `json:"p50_scene_draws"`
	MaxSceneDraws  int64         `json:"max_scene_draws"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64        `json:"min_latency_ms"`
	MaxLatencyMs  float64        `json:"max_latency_ms"`
	MeanLatencyMs float64        `json:"mean_latency_ms"`
	P50LatencyMs  float64        `json:"p50_latency_ms"`
	P90LatencyMs  float64        `json:"p90_latency_ms"`
	P99LatencyMs  float64        `json:"p99_latency_ms"`
	DurationMs    float64        `json:"duration_ms"`
	Errors        map[string]int `json:"errors,omitempty"`
}

func NewCollector() *Collector {
	// Track fetch latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		hist:         h,
		drawsByScene: make(map[string]int64),
		errorsByType: make(map[string]int64),
		start:        time.Now(),
	}
}

// Start resets the clock used for throughput.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
}

// RecordBatch records one fetch. A non-nil err counts as a failure and batch
// is ignored.
func (c *Collector) RecordBatch(latency time.Duration, batch []string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency

	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	if err != nil {
		c.failures++
		errorType := fmt.Sprintf("%T", err)
		if len(errorType) > 30 {
			errorType = errorType[len(errorType)-30:]
		}
		c.errorsByType[errorType]++
		return
	}

	c.batches++
	seen := make(map[string]struct{}, len(batch))
	for _, scene := range batch {
		c.draws++
		c.drawsByScene[scene]++
		if _, dup := seen[scene]; dup {
			c.duplicates++
		}
		seen[scene] = struct{}{}
	}
}

// DrawCounts returns how many times each scene has been drawn.
func (c *Collector) DrawCounts() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.drawsByScene))
	for k, v := range c.drawsByScene {
		out[k] = v
	}
	return out
}

// Stats computes and returns current aggregated statistics. catalogSize is
// used for the coverage ratio.
func (c *Collector) Stats(catalogSize int) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.batches + c.failures
	stats := Stats{
		Batches:        c.batches,
		Failures:       c.failures,
		Draws:          c.draws,
		UniqueScenes:   len(c.drawsByScene),
		CatalogSize:    catalogSize,
		DuplicateDraws: c.duplicates,
		MinLatency:     c.minLatency,
		MaxLatency:     c.maxLatency,
	}

	if catalogSize > 0 {
		stats.Coverage = float64(stats.UniqueScenes) / float64(catalogSize)
	}
	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	if len(c.drawsByScene) > 0 {
		stats.P50SceneDraws, stats.MaxSceneDraws = sceneDrawQuantiles(c.drawsByScene, c.draws)
	}

	stats.MinLatencyMs = float64(stats.MinLatency) / float64(time.Millisecond)
	stats.MaxLatencyMs = float64(stats.MaxLatency) / float64(time.Millisecond)
	stats.MeanLatencyMs = float64(stats.MeanLatency) / float64(time.Millisecond)
	stats.P50LatencyMs = float64(stats.P50Latency) / float64(time.Millisecond)
	stats.P90LatencyMs = float64(stats.P90Latency) / float64(time.Millisecond)
	stats.P99LatencyMs = float64(stats.P99Latency) / float64(time.Millisecond)

	elapsed := time.Since(c.start)
	stats.Duration = elapsed
	stats.DurationMs = float64(elapsed) / float64(time.Millisecond)
	if elapsed > 0 && c.batches > 0 {
		stats.BatchesPerSec = float64(c.batches) / elapsed.Seconds()
	}

	if len(c.errorsByType) > 0 {
		stats.Errors = make(map[string]int, len(c.errorsByType))
		for k, v := range c.errorsByType {
			stats.Errors[k] = int(v)
		}
	}

	return stats
}

// sceneDrawQuantiles returns the median and maximum per-scene draw count.
func sceneDrawQuantiles(counts map[string]int64, total int64) (p50, maxDraws int64) {
	h := hdrhistogram.New(1, max(total, 2), 3)
	for _, n := range counts {
		_ = h.RecordValue(n)
	}
	return h.ValueAtQuantile(50), h.Max()
}
