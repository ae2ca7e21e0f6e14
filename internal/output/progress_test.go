package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/SakodaShintaro/gpudrive/internal/metrics"
)

func TestProgressReporterStopWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewProgressReporter(metrics.NewCollector(), 4, 100*time.Millisecond, &buf)
	if reporter == nil {
		t.Fatal("Expected non-nil reporter")
	}
	reporter.Stop()
	if buf.Len() != 0 {
		t.Errorf("unexpected output from reporter that never started: %q", buf.String())
	}
}

func TestProgressReporterFormatting(t *testing.T) {
	collector := metrics.NewCollector()
	collector.Start()
	collector.RecordBatch(time.Millisecond, []string{"a", "b"}, nil)

	var buf bytes.Buffer
	reporter := NewProgressReporter(collector, 4, 20*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start()

	time.Sleep(60 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	output := buf.String()
	if !strings.Contains(output, "Batches: 1") {
		t.Errorf("Expected 'Batches: 1' in progress output, got %q", output)
	}
	if !strings.Contains(output, "Coverage: 50.0%") {
		t.Errorf("Expected coverage in progress output, got %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("Expected final newline after Stop, got %q", output)
	}
}
