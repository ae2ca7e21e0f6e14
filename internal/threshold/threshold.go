// Package threshold evaluates pass/fail assertions against sampling
// statistics, such as "coverage:ratio >= 0.9" or "fetch_latency:p99 < 5".
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/SakodaShintaro/gpudrive/internal/metrics"
)

// Threshold represents an assertion that can pass or fail.
type Threshold struct {
	Metric    string  `json:"metric"`    // e.g., "fetch_latency", "coverage"
	Aggregate string  `json:"aggregate"` // e.g., "p99", "ratio", "count"
	Operator  string  `json:"operator"`  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 `json:"value"`     // The threshold value to compare against
	Raw       string  `json:"raw"`       // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"threshold"`
	Actual    float64   `json:"actual"`
	Pass      bool      `json:"pass"`
	Message   string    `json:"message"`
}

// aggregates lists the aggregates each metric supports.
var aggregates = map[string][]string{
	"fetch_latency":   {"p50", "p90", "p99", "avg", "min", "max"},
	"batches":         {"count", "rate"},
	"batch_failed":    {"count", "rate"},
	"coverage":        {"ratio", "count"},
	"duplicate_draws": {"count", "rate"},
	"scene_draws":     {"p50", "max"},
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Evaluator evaluates thresholds against collected metrics.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the provided stats.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, stats))
	}
	return results
}

// Failed counts results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Pass {
			n++
		}
	}
	return n
}

func evaluateOne(t Threshold, stats metrics.Stats) Result {
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		return Result{
			Threshold: t,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "PASS"
	if !pass {
		status = "FAIL"
	}

	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.4g %s %.4g", status, t.Raw, actual, t.Operator, t.Value),
	}
}

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "fetch_latency:p99 < 5"        (fetch latency percentile in ms)
// - "batches:count >= 100"         (batches served)
// - "batch_failed:rate < 0.01"     (failed fetches over all fetches)
// - "coverage:ratio >= 0.9"        (distinct scenes drawn over catalog size)
// - "duplicate_draws:rate < 0.5"   (repeats within a batch over all draws)
// - "scene_draws:max <= 20"        (draws of the most drawn scene)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'coverage:ratio >= 0.9')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %w", valueStr, err)
	}

	supported, ok := aggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: fetch_latency, batches, batch_failed, coverage, duplicate_draws, scene_draws)", metric)
	}
	if !contains(supported, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(supported, ", "))
	}
	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}

	return result, nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func isValidOperator(operator string) bool {
	return contains([]string{"<", "<=", ">", ">=", "=="}, operator)
}

func extractMetricValue(t Threshold, stats metrics.Stats) (float64, error) {
	switch t.Metric + ":" + t.Aggregate {
	case "fetch_latency:p50":
		return stats.P50LatencyMs, nil
	case "fetch_latency:p90":
		return stats.P90LatencyMs, nil
	case "fetch_latency:p99":
		return stats.P99LatencyMs, nil
	case "fetch_latency:avg":
		return stats.MeanLatencyMs, nil
	case "fetch_latency:min":
		return stats.MinLatencyMs, nil
	case "fetch_latency:max":
		return stats.MaxLatencyMs, nil
	case "batches:count":
		return float64(stats.Batches), nil
	case "batches:rate":
		return stats.BatchesPerSec, nil
	case "batch_failed:count":
		return float64(stats.Failures), nil
	case "batch_failed:rate":
		return ratio(stats.Failures, stats.Batches+stats.Failures), nil
	case "coverage:ratio":
		return stats.Coverage, nil
	case "coverage:count":
		return float64(stats.UniqueScenes), nil
	case "duplicate_draws:count":
		return float64(stats.DuplicateDraws), nil
	case "duplicate_draws:rate":
		return ratio(stats.DuplicateDraws, stats.Draws), nil
	case "scene_draws:p50":
		return float64(stats.P50SceneDraws), nil
	case "scene_draws:max":
		return float64(stats.MaxSceneDraws), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s", t.Aggregate, t.Metric)
	}
}

func ratio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
