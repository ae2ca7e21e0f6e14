package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SakodaShintaro/gpudrive/internal/config"
)

func TestParseFlagsDefaults(t *testing.T) {
	loader := config.NewLoader()

	cfg, err := loader.Load([]string{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Root != "" {
		t.Errorf("Root = %q, want empty", cfg.Root)
	}
	if cfg.FilePrefix != "tfrecord" {
		t.Errorf("FilePrefix = %q, want tfrecord", cfg.FilePrefix)
	}
	if cfg.FileExtension != ".json" {
		t.Errorf("FileExtension = %q, want .json", cfg.FileExtension)
	}
	if cfg.BatchSize != 1 {
		t.Errorf("BatchSize = %d, want 1", cfg.BatchSize)
	}
	if cfg.Seed != 42 {
		t.Errorf("Seed = %d, want 42", cfg.Seed)
	}
	if cfg.SampleWithReplacement {
		t.Errorf("SampleWithReplacement = true, want false")
	}
	if cfg.Remainder != config.RemainderPad {
		t.Errorf("Remainder = %q, want pad", cfg.Remainder)
	}
	if cfg.OnExhausted != config.ExhaustionRestart {
		t.Errorf("OnExhausted = %q, want restart", cfg.OnExhausted)
	}
	if cfg.Stream.Batches != 1 {
		t.Errorf("Stream.Batches = %d, want 1", cfg.Stream.Batches)
	}
	if cfg.Tracing.Enabled() {
		t.Errorf("Tracing.Enabled() = true, want false")
	}
}

func TestLoadHelpRequested(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--help"})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load(--help) error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loader.yaml")
	if err := os.WriteFile(path, []byte(`
root: data/processed/examples
batch_size: 10
dataset_size: 4
sample_with_replacement: true
seed: 42
shuffle: true
stream:
  batches: 5
log:
  level: warn
thresholds:
  - "coverage:ratio >= 0.5"
  - "fetch_latency:p99 < 10"
`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path, "--seed", "7"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Root != "data/processed/examples" {
		t.Errorf("Root = %q, want data/processed/examples", cfg.Root)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.BatchSize)
	}
	if cfg.DatasetSize != 4 {
		t.Errorf("DatasetSize = %d, want 4", cfg.DatasetSize)
	}
	if !cfg.SampleWithReplacement || !cfg.Shuffle {
		t.Errorf("SampleWithReplacement/Shuffle = %v/%v, want true/true", cfg.SampleWithReplacement, cfg.Shuffle)
	}
	if cfg.Seed != 7 {
		t.Errorf("Seed = %d, want 7 (flag wins over file)", cfg.Seed)
	}
	if cfg.Stream.Batches != 5 {
		t.Errorf("Stream.Batches = %d, want 5", cfg.Stream.Batches)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if len(cfg.Thresholds) != 2 || cfg.Thresholds[1] != "fetch_latency:p99 < 10" {
		t.Errorf("Thresholds = %v, want two entries", cfg.Thresholds)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfigFileJSONCamelCase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loader.json")
	if err := os.WriteFile(path, []byte(`{
		"root": "/scenes",
		"batchSize": 4,
		"datasetSize": 8,
		"onExhausted": "STOP",
		"jsonOutput": true,
		"htmlOutput": " report.html ",
		"progress": true,
		"dashboard": true
	}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BatchSize != 4 || cfg.DatasetSize != 8 {
		t.Errorf("BatchSize/DatasetSize = %d/%d, want 4/8", cfg.BatchSize, cfg.DatasetSize)
	}
	if cfg.OnExhausted != config.ExhaustionStop {
		t.Errorf("OnExhausted = %q, want stop", cfg.OnExhausted)
	}
	if !cfg.JSONOutput {
		t.Errorf("JSONOutput = false, want true")
	}
	if cfg.HTMLOutput != "report.html" {
		t.Errorf("HTMLOutput = %q, want report.html", cfg.HTMLOutput)
	}
	if !cfg.Progress {
		t.Errorf("Progress = false, want true")
	}
	if !cfg.Dashboard {
		t.Errorf("Dashboard = false, want true")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	if err == nil {
		t.Fatal("Load() error = nil, want error for missing config file")
	}
}

func TestConfigValidationErrors(t *testing.T) {
	valid := func() config.Config {
		c := *config.Defaults()
		c.Root = "/scenes"
		c.DatasetSize = 8
		c.BatchSize = 4
		return c
	}

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
	}{
		{
			name:   "missing root",
			mutate: func(c *config.Config) { c.Root = "" },
			want:   []string{"root"},
		},
		{
			name: "non-positive sizes",
			mutate: func(c *config.Config) {
				c.BatchSize = 0
				c.DatasetSize = -1
			},
			want: []string{"batch_size", "dataset_size"},
		},
		{
			name: "infeasible partition",
			mutate: func(c *config.Config) {
				c.BatchSize = 10
				c.DatasetSize = 4
			},
			want: []string{"cannot exceed dataset_size"},
		},
		{
			name: "reject uneven",
			mutate: func(c *config.Config) {
				c.DatasetSize = 10
				c.Remainder = config.RemainderReject
			},
			want: []string{"not a multiple"},
		},
		{
			name: "unknown policies",
			mutate: func(c *config.Config) {
				c.Remainder = "wrap"
				c.OnExhausted = "panic"
			},
			want: []string{"remainder", "on_exhausted"},
		},
		{
			name: "stream and logging",
			mutate: func(c *config.Config) {
				c.Stream.Rate = -1
				c.Stream.Batches = -2
				c.Log.Level = "trace"
				c.Log.Format = "xml"
			},
			want: []string{"stream.rate", "stream.batches", "log.level", "log.format"},
		},
		{
			name: "tracing",
			mutate: func(c *config.Config) {
				c.Tracing.SampleRate = 1.5
				c.Tracing.Protocol = "udp"
			},
			want: []string{"sample_rate", "tracing.protocol"},
		},
		{
			name: "thresholds",
			mutate: func(c *config.Config) {
				c.Thresholds = []string{"coverage:ratio >= 0.9", "http_req_duration:p95 < 500"}
			},
			want: []string{"thresholds[1]", "unsupported metric"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			have := valid()
			tc.mutate(&have)
			err := have.Validate()
			if err == nil {
				t.Fatalf("Validate() error = nil, want error")
			}
			var verr config.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error type = %T, want ValidationError", err)
			}
			for _, want := range tc.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Validate() error %q missing %q", err.Error(), want)
				}
			}
		})
	}
}

func TestConfigValidationAcceptsReplacementOversizedBatch(t *testing.T) {
	c := *config.Defaults()
	c.Root = "/scenes"
	c.DatasetSize = 4
	c.BatchSize = 10
	c.SampleWithReplacement = true
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestConfigValidationManifestReplacesRoot(t *testing.T) {
	c := *config.Defaults()
	c.Manifest = "catalog.yaml"
	c.DatasetSize = 2
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}
