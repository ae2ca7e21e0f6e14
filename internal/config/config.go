package config

import (
	"fmt"
	"strings"

	"github.com/SakodaShintaro/gpudrive/internal/threshold"
)

type RemainderPolicy string

const (
	RemainderPad    RemainderPolicy = "pad"
	RemainderDrop   RemainderPolicy = "drop"
	RemainderReject RemainderPolicy = "reject"
)

type ExhaustionPolicy string

const (
	ExhaustionRestart ExhaustionPolicy = "restart"
	ExhaustionStop    ExhaustionPolicy = "stop"
)

const (
	DefaultFilePrefix    = "tfrecord"
	DefaultFileExtension = ".json"
	DefaultSeed          = 42
)

type Config struct {
	Root                  string           `mapstructure:"root"`
	FilePrefix            string           `mapstructure:"file_prefix"`
	FileExtension         string           `mapstructure:"file_extension"`
	BatchSize             int              `mapstructure:"batch_size"`
	DatasetSize           int              `mapstructure:"dataset_size"`
	SampleWithReplacement bool             `mapstructure:"sample_with_replacement"`
	Seed                  int64            `mapstructure:"seed"`
	Shuffle               bool             `mapstructure:"shuffle"`
	Remainder             RemainderPolicy  `mapstructure:"remainder"`
	OnExhausted           ExhaustionPolicy `mapstructure:"on_exhausted"`
	Manifest              string           `mapstructure:"manifest"`
	ValidateScenes        bool             `mapstructure:"validate_scenes"`
	JSONOutput            bool             `mapstructure:"json_output"`
	HTMLOutput            string           `mapstructure:"html_output"`
	Progress              bool             `mapstructure:"progress"`
	Dashboard             bool             `mapstructure:"dashboard"`
	Thresholds            []string         `mapstructure:"thresholds"`
	ConfigFile            string           `mapstructure:"-"`
	Stream                StreamConfig     `mapstructure:"stream"`
	Log                   LogConfig        `mapstructure:"log"`
	Tracing               TracingConfig    `mapstructure:"tracing"`
}

// StreamConfig controls how many batches the sample command pulls and how fast.
type StreamConfig struct {
	Batches int     `mapstructure:"batches"`
	Rate    float64 `mapstructure:"rate"` // batches per second, 0 = unlimited
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // grpc or http
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// Defaults returns a Config populated with the values used when neither a
// config file nor a flag sets a field.
func Defaults() *Config {
	return &Config{
		FilePrefix:    DefaultFilePrefix,
		FileExtension: DefaultFileExtension,
		BatchSize:     1,
		Seed:          DefaultSeed,
		Remainder:     RemainderPad,
		OnExhausted:   ExhaustionRestart,
		Stream:        StreamConfig{Batches: 1},
		Log:           LogConfig{Level: "info", Format: "console"},
		Tracing:       TracingConfig{SampleRate: 1.0},
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Root) == "" && strings.TrimSpace(c.Manifest) == "" {
		issues = append(issues, "root is required (use --help for usage information)")
	}
	if c.BatchSize < 1 {
		issues = append(issues, "batch_size must be at least 1")
	}
	if c.DatasetSize < 1 {
		issues = append(issues, "dataset_size must be at least 1")
	}
	if c.BatchSize > 0 && c.DatasetSize > 0 && !c.SampleWithReplacement && c.BatchSize > c.DatasetSize {
		issues = append(issues, fmt.Sprintf("batch_size (%d) cannot exceed dataset_size (%d) without replacement", c.BatchSize, c.DatasetSize))
	}

	switch c.Remainder {
	case RemainderPad, RemainderDrop, RemainderReject:
	default:
		issues = append(issues, fmt.Sprintf("remainder must be pad, drop or reject, got %q", c.Remainder))
	}
	if !c.SampleWithReplacement && c.Remainder == RemainderReject &&
		c.BatchSize > 0 && c.DatasetSize > 0 && c.DatasetSize%c.BatchSize != 0 {
		issues = append(issues, fmt.Sprintf("dataset_size (%d) is not a multiple of batch_size (%d) and remainder is reject", c.DatasetSize, c.BatchSize))
	}

	switch c.OnExhausted {
	case ExhaustionRestart, ExhaustionStop:
	default:
		issues = append(issues, fmt.Sprintf("on_exhausted must be restart or stop, got %q", c.OnExhausted))
	}

	if c.Stream.Batches < 0 {
		issues = append(issues, "stream.batches must be non-negative")
	}
	if c.Stream.Rate < 0 {
		issues = append(issues, "stream.rate must be non-negative")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log.format must be console or json, got %q", c.Log.Format))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing.sample_rate must be between 0.0 and 1.0, got %g", c.Tracing.SampleRate))
	}
	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol must be grpc or http, got %q", c.Tracing.Protocol))
	}

	for i, raw := range c.Thresholds {
		if _, err := threshold.Parse(raw); err != nil {
			issues = append(issues, fmt.Sprintf("thresholds[%d]: %v", i, err))
		}
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}
