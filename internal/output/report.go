package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/SakodaShintaro/gpudrive/internal/metrics"
	"github.com/SakodaShintaro/gpudrive/internal/scenario"
	"github.com/SakodaShintaro/gpudrive/internal/threshold"
)

// Report describes one sampling run.
type Report struct {
	RunID                 string        `json:"run_id"`
	Source                string        `json:"source"`
	Root                  string        `json:"root,omitempty"`
	Manifest              string        `json:"manifest,omitempty"`
	CatalogSize           int           `json:"catalog_size"`
	BatchSize             int           `json:"batch_size"`
	Seed                  int64         `json:"seed"`
	SampleWithReplacement bool          `json:"sample_with_replacement"`
	Shuffle               bool          `json:"shuffle"`
	Epochs                int           `json:"epochs"`
	Exhausted             bool          `json:"exhausted"`
	Stats                 metrics.Stats `json:"stats"`

	Thresholds []threshold.Result `json:"thresholds,omitempty"`
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	stats := r.Stats
	fmt.Fprintln(w, "\n--- Sampling Results ---")
	fmt.Fprintf(w, "Run ID:            %s\n", r.RunID)
	fmt.Fprintf(w, "Source:            %s\n", describeSource(r))
	fmt.Fprintf(w, "Catalog Size:      %d\n", r.CatalogSize)
	fmt.Fprintf(w, "Batch Size:        %d\n", r.BatchSize)
	fmt.Fprintf(w, "Seed:              %d\n", r.Seed)
	fmt.Fprintf(w, "Mode:              %s\n", samplingMode(r))
	fmt.Fprintf(w, "Batches:           %d\n", stats.Batches)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	if !r.SampleWithReplacement {
		fmt.Fprintf(w, "Epochs:            %d\n", r.Epochs)
		if r.Exhausted {
			fmt.Fprintln(w, "Exhausted:         yes")
		}
	}
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Batches/sec:       %.2f\n", stats.BatchesPerSec)

	fmt.Fprintln(w, "\nCoverage:")
	fmt.Fprintf(w, "  Draws:           %d\n", stats.Draws)
	fmt.Fprintf(w, "  Unique Scenes:   %d (%.1f%%)\n", stats.UniqueScenes, stats.Coverage*100)
	fmt.Fprintf(w, "  Duplicate Draws: %d\n", stats.DuplicateDraws)
	fmt.Fprintf(w, "  P50 Draws/Scene: %d\n", stats.P50SceneDraws)
	fmt.Fprintf(w, "  Max Draws/Scene: %d\n", stats.MaxSceneDraws)

	fmt.Fprintln(w, "\nFetch Latency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, name := range sortedKeys(stats.Errors) {
			fmt.Fprintf(w, "  %s: %d\n", name, stats.Errors[name])
		}
	}

	if len(r.Thresholds) > 0 {
		failed := threshold.Failed(r.Thresholds)
		fmt.Fprintf(w, "\nThresholds: %d passed, %d failed\n", len(r.Thresholds)-failed, failed)
		for _, res := range r.Thresholds {
			fmt.Fprintf(w, "  %s\n", res.Message)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

type batchLine struct {
	Index  int      `json:"index"`
	Scenes []string `json:"scenes"`
}

// PrintBatch writes one batch, either as a numbered block or as a single
// JSON line.
func PrintBatch(w io.Writer, i int, batch []string, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(batchLine{Index: i, Scenes: batch})
	}
	if _, err := fmt.Fprintf(w, "batch %d:\n", i); err != nil {
		return err
	}
	for _, p := range batch {
		if _, err := fmt.Fprintf(w, "  %s\n", p); err != nil {
			return err
		}
	}
	return nil
}

type catalogEntry struct {
	Path   string           `json:"path"`
	Header *scenario.Header `json:"header,omitempty"`
}

// PrintCatalog lists catalog paths in order. When headers is non-nil it must
// be parallel to paths and each line also shows the scenario summary.
func PrintCatalog(w io.Writer, paths []string, headers []scenario.Header, asJSON bool) error {
	if headers != nil && len(headers) != len(paths) {
		return fmt.Errorf("catalog has %d paths but %d headers", len(paths), len(headers))
	}

	if asJSON {
		entries := make([]catalogEntry, len(paths))
		for i, p := range paths {
			entries[i].Path = p
			if headers != nil {
				entries[i].Header = &headers[i]
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for i, p := range paths {
		if headers == nil {
			if _, err := fmt.Fprintln(w, p); err != nil {
				return err
			}
			continue
		}
		h := headers[i]
		if _, err := fmt.Fprintf(w, "%s  id=%s objects=%d roads=%d sdc=%d sdc_valid=%d/%d\n",
			p, h.ScenarioID, h.Objects, h.Roads, h.SDCIndex, h.SDC.Valid, h.SDC.Total); err != nil {
			return err
		}
	}
	return nil
}

func describeSource(r Report) string {
	switch {
	case r.Manifest != "":
		return "manifest " + r.Manifest
	case r.Root != "":
		return "root " + r.Root
	default:
		return r.Source
	}
}

func samplingMode(r Report) string {
	if r.SampleWithReplacement {
		return "with replacement"
	}
	parts := []string{"partitioned"}
	if r.Shuffle {
		parts = append(parts, "shuffled")
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
