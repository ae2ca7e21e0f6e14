package metrics_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SakodaShintaro/gpudrive/internal/metrics"
)

func TestCollectorLatencyStats(t *testing.T) {
	c := metrics.NewCollector()

	for i := 1; i <= 5; i++ {
		c.RecordBatch(time.Duration(i*10)*time.Millisecond, []string{"a"}, nil)
	}

	stats := c.Stats(1)

	if stats.Batches != 5 {
		t.Errorf("expected batches 5, got %d", stats.Batches)
	}
	if stats.Failures != 0 {
		t.Errorf("expected failures 0, got %d", stats.Failures)
	}
	if stats.MinLatency != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", stats.MinLatency)
	}
	if stats.MaxLatency != 50*time.Millisecond {
		t.Errorf("expected max 50ms, got %s", stats.MaxLatency)
	}
	if stats.MeanLatency != 30*time.Millisecond {
		t.Errorf("expected mean 30ms, got %s", stats.MeanLatency)
	}
}

func TestPercentilesCalculations(t *testing.T) {
	c := metrics.NewCollector()

	for i := 1; i <= 100; i++ {
		c.RecordBatch(time.Duration(i)*time.Millisecond, []string{"a"}, nil)
	}

	stats := c.Stats(1)

	if stats.P50Latency < 49*time.Millisecond || stats.P50Latency > 51*time.Millisecond {
		t.Errorf("expected P50 ~50ms, got %s", stats.P50Latency)
	}
	if stats.P99Latency < 98*time.Millisecond || stats.P99Latency > 100*time.Millisecond {
		t.Errorf("expected P99 ~99ms, got %s", stats.P99Latency)
	}
}

func TestCoverageAndDraws(t *testing.T) {
	c := metrics.NewCollector()

	c.RecordBatch(time.Millisecond, []string{"a", "b", "a", "a"}, nil)
	c.RecordBatch(time.Millisecond, []string{"c", "b"}, nil)

	stats := c.Stats(4)

	if stats.Draws != 6 {
		t.Errorf("Draws = %d, want 6", stats.Draws)
	}
	if stats.UniqueScenes != 3 {
		t.Errorf("UniqueScenes = %d, want 3", stats.UniqueScenes)
	}
	if stats.Coverage != 0.75 {
		t.Errorf("Coverage = %g, want 0.75", stats.Coverage)
	}
	if stats.DuplicateDraws != 2 {
		t.Errorf("DuplicateDraws = %d, want 2", stats.DuplicateDraws)
	}
	if stats.MaxSceneDraws != 3 {
		t.Errorf("MaxSceneDraws = %d, want 3", stats.MaxSceneDraws)
	}
	if stats.P50SceneDraws != 2 {
		t.Errorf("P50SceneDraws = %d, want 2", stats.P50SceneDraws)
	}

	counts := c.DrawCounts()
	if counts["a"] != 3 || counts["b"] != 2 || counts["c"] != 1 {
		t.Errorf("DrawCounts() = %v", counts)
	}
}

func TestFailuresAreNotDraws(t *testing.T) {
	c := metrics.NewCollector()

	c.RecordBatch(time.Millisecond, []string{"a"}, nil)
	c.RecordBatch(time.Millisecond, []string{"ignored"}, errors.New("boom"))

	stats := c.Stats(2)
	if stats.Batches != 1 || stats.Failures != 1 {
		t.Errorf("Batches/Failures = %d/%d, want 1/1", stats.Batches, stats.Failures)
	}
	if stats.Draws != 1 {
		t.Errorf("Draws = %d, want 1", stats.Draws)
	}
	if len(stats.Errors) != 1 {
		t.Errorf("Errors = %v, want one type", stats.Errors)
	}
}

func TestEmptyCollector(t *testing.T) {
	stats := metrics.NewCollector().Stats(0)
	if stats.Coverage != 0 || stats.BatchesPerSec != 0 || stats.MaxSceneDraws != 0 {
		t.Errorf("empty stats = %+v", stats)
	}
}

func TestConcurrentRecord(t *testing.T) {
	c := metrics.NewCollector()

	const workers = 8
	const perWorker = 250
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c.RecordBatch(time.Microsecond, []string{"x", "y"}, nil)
			}
		}()
	}
	wg.Wait()

	stats := c.Stats(2)
	if stats.Batches != workers*perWorker {
		t.Errorf("Batches = %d, want %d", stats.Batches, workers*perWorker)
	}
	if stats.Draws != 2*workers*perWorker {
		t.Errorf("Draws = %d, want %d", stats.Draws, 2*workers*perWorker)
	}
}

func TestStatsJSON(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordBatch(2*time.Millisecond, []string{"a", "b"}, nil)

	data, err := json.Marshal(c.Stats(2))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"batches", "coverage", "p99_latency_ms", "unique_scenes"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("JSON missing key %q: %s", key, data)
		}
	}
	if _, ok := decoded["errors"]; ok {
		t.Errorf("JSON has errors key without failures: %s", data)
	}
}
