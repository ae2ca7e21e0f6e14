package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/SakodaShintaro/gpudrive/internal/metrics"
	"github.com/SakodaShintaro/gpudrive/internal/scenario"
	"github.com/SakodaShintaro/gpudrive/internal/threshold"
)

func sampleReport() Report {
	return Report{
		RunID:       "01HZX3B8Q6F0Y9ZKJ9M1V6T4RS",
		Source:      "root",
		Root:        "/data/scenes",
		CatalogSize: 4,
		BatchSize:   10,
		Seed:        42,
		Epochs:      1,
		Stats: metrics.Stats{
			Batches:        3,
			Draws:          30,
			UniqueScenes:   4,
			CatalogSize:    4,
			Coverage:       1,
			DuplicateDraws: 18,
			Duration:       2 * time.Second,
			BatchesPerSec:  1.5,
		},
	}
}

func TestPrintReportBasic(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleReport())

	output := buf.String()
	for _, want := range []string{
		"Sampling Results",
		"root /data/scenes",
		"Catalog Size:      4",
		"Unique Scenes:   4 (100.0%)",
		"Duplicate Draws: 18",
		"partitioned",
		"Epochs:            1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output:\n%s", want, output)
		}
	}
	if strings.Contains(output, "Errors:") {
		t.Errorf("Unexpected errors section without failures")
	}
}

func TestPrintReportReplacementAndErrors(t *testing.T) {
	r := sampleReport()
	r.SampleWithReplacement = true
	r.Manifest = "pinned.yaml"
	r.Stats.Failures = 2
	r.Stats.Errors = map[string]int{"*errors.errorString": 2}

	var buf bytes.Buffer
	PrintReport(&buf, r)

	output := buf.String()
	if !strings.Contains(output, "with replacement") {
		t.Errorf("Expected replacement mode in output")
	}
	if strings.Contains(output, "Epochs:") {
		t.Errorf("Epochs reported in replacement mode")
	}
	if !strings.Contains(output, "manifest pinned.yaml") {
		t.Errorf("Expected manifest source in output")
	}
	if !strings.Contains(output, "*errors.errorString: 2") {
		t.Errorf("Expected error breakdown in output:\n%s", output)
	}
}

func TestPrintReportThresholds(t *testing.T) {
	r := sampleReport()
	r.Thresholds = []threshold.Result{
		{Pass: true, Message: "PASS coverage:ratio >= 0.9: 1 >= 0.9"},
		{Pass: false, Message: "FAIL scene_draws:max < 5: 9 < 5"},
	}

	var buf bytes.Buffer
	PrintReport(&buf, r)

	output := buf.String()
	if !strings.Contains(output, "Thresholds: 1 passed, 1 failed") {
		t.Errorf("Expected threshold summary in output:\n%s", output)
	}
	if !strings.Contains(output, "FAIL scene_draws:max < 5") {
		t.Errorf("Expected failing threshold message in output")
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleReport()); err != nil {
		t.Fatalf("PrintJSONReport() error = %v", err)
	}

	var decoded struct {
		RunID       string                 `json:"run_id"`
		CatalogSize int                    `json:"catalog_size"`
		Stats       map[string]interface{} `json:"stats"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}
	if decoded.RunID != "01HZX3B8Q6F0Y9ZKJ9M1V6T4RS" || decoded.CatalogSize != 4 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Stats["coverage"] != float64(1) {
		t.Errorf("stats.coverage = %v, want 1", decoded.Stats["coverage"])
	}
}

func TestPrintBatch(t *testing.T) {
	batch := []string{"/s/a.json", "/s/b.json"}

	var text bytes.Buffer
	if err := PrintBatch(&text, 3, batch, false); err != nil {
		t.Fatalf("PrintBatch() error = %v", err)
	}
	if want := "batch 3:\n  /s/a.json\n  /s/b.json\n"; text.String() != want {
		t.Errorf("PrintBatch() text = %q, want %q", text.String(), want)
	}

	var js bytes.Buffer
	if err := PrintBatch(&js, 3, batch, true); err != nil {
		t.Fatalf("PrintBatch() error = %v", err)
	}
	var line batchLine
	if err := json.Unmarshal(js.Bytes(), &line); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if diff := cmp.Diff(batchLine{Index: 3, Scenes: batch}, line); diff != "" {
		t.Errorf("PrintBatch() JSON mismatch (-want +got):\n%s", diff)
	}
	if strings.Count(js.String(), "\n") != 1 {
		t.Errorf("JSON batch should be a single line: %q", js.String())
	}
}

func TestPrintCatalog(t *testing.T) {
	paths := []string{"/s/a.json", "/s/b.json"}
	headers := []scenario.Header{
		{Path: paths[0], ScenarioID: "a1", Objects: 3, Roads: 7, SDCIndex: 0, SDC: scenario.Steps{Total: 91, Valid: 88}},
		{Path: paths[1], ScenarioID: "b2", Objects: 1, Roads: 2, SDCIndex: -1},
	}

	tests := []struct {
		name    string
		headers []scenario.Header
		want    string
	}{
		{"paths only", nil, "/s/a.json\n/s/b.json\n"},
		{"with headers", headers, "/s/a.json  id=a1 objects=3 roads=7 sdc=0 sdc_valid=88/91\n/s/b.json  id=b2 objects=1 roads=2 sdc=-1 sdc_valid=0/0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := PrintCatalog(&buf, paths, tt.headers, false); err != nil {
				t.Fatalf("PrintCatalog() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("PrintCatalog() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestPrintCatalogJSON(t *testing.T) {
	paths := []string{"/s/a.json", "/s/b.json"}
	headers := []scenario.Header{{ScenarioID: "a1"}, {ScenarioID: "b2"}}

	var buf bytes.Buffer
	if err := PrintCatalog(&buf, paths, headers, true); err != nil {
		t.Fatalf("PrintCatalog() error = %v", err)
	}
	var entries []catalogEntry
	if err := json.Unmarshal(buf.Bytes(), &entries); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(entries) != 2 || entries[1].Path != "/s/b.json" || entries[1].Header.ScenarioID != "b2" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestPrintCatalogMismatchedHeaders(t *testing.T) {
	err := PrintCatalog(&bytes.Buffer{}, []string{"a", "b"}, []scenario.Header{{}}, false)
	if err == nil {
		t.Fatal("PrintCatalog() error = nil, want length mismatch")
	}
}
