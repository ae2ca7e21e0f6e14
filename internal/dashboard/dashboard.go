// Package dashboard renders a live terminal view of a sampling run.
package dashboard

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/SakodaShintaro/gpudrive/internal/metrics"
)

const (
	refreshInterval = 500 * time.Millisecond
	historySize     = 100
	topScenes       = 10
)

// SessionConfig holds the loader parameters shown in the summary panel.
type SessionConfig struct {
	Source      string  // root directory or manifest path
	CatalogSize int     // scenes in the realized catalog
	BatchSize   int     // scenes per batch
	Seed        int64   // generator seed
	Replacement bool    // sampling with replacement
	Shuffle     bool    // shuffled partitions
	Batches     int     // batches requested (0 = unlimited)
	Rate        float64 // batches per second (0 = unlimited)
	ConfigFile  string  // Path to config file if used
}

// Dashboard renders a live terminal UI for sampling metrics.
type Dashboard struct {
	collector    *metrics.Collector
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	rateGauge      *widgets.Gauge
	coverageGauge  *widgets.Gauge
	sceneList      *widgets.List
	errorList      *widgets.List
	summaryPara    *widgets.Paragraph
	latencyHistory []float64
	startTime      time.Time
	session        SessionConfig
}

// New initializes the terminal and builds the widget layout. shutdownFunc is
// called when the user presses q or Ctrl-C.
func New(collector *metrics.Collector, cfg SessionConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		collector:      collector,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, historySize),
		startTime:      time.Now(),
		session:        cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "Fetch latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Fetch Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "Min: 0ms\nMean: 0ms\nP50: 0ms\nP90: 0ms\nP99: 0ms"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.rateGauge = widgets.NewGauge()
	d.rateGauge.Title = "Batches Per Second"
	d.rateGauge.BarColor = ui.ColorBlue
	d.rateGauge.BorderStyle.Fg = ui.ColorCyan
	d.rateGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.coverageGauge = widgets.NewGauge()
	d.coverageGauge.Title = "Catalog Coverage"
	d.coverageGauge.BarColor = ui.ColorGreen
	d.coverageGauge.BorderStyle.Fg = ui.ColorCyan
	d.coverageGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.sceneList = widgets.NewList()
	d.sceneList.Title = "Most Drawn Scenes"
	d.sceneList.Rows = []string{"Awaiting data"}
	d.sceneList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.sceneList.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Errors"
	d.errorList.Rows = []string{"No failures"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Session"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.16,
			ui.NewCol(0.5, d.rateGauge),
			ui.NewCol(0.5, d.coverageGauge),
		),
		ui.NewRow(0.30,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.38,
			ui.NewCol(0.65, d.sceneList),
			ui.NewCol(0.35, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			return
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop cancels the context once sampling has wound down.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update refreshes all widget data from the collector.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := d.collector.Stats(d.session.CatalogSize)
	elapsed := time.Since(d.startTime)

	if stats.Batches > 0 {
		d.latencyHistory = appendHistory(d.latencyHistory, stats.MeanLatencyMs)
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Fetch Latency | Mean: %.3fms | Min: %.3fms | Max: %.3fms",
			stats.MeanLatencyMs,
			stats.MinLatencyMs,
			stats.MaxLatencyMs,
		)
	}

	d.rateGauge.Percent = ratePercent(stats.BatchesPerSec, d.session.Rate)
	d.rateGauge.Label = fmt.Sprintf("%.1f batches/s", stats.BatchesPerSec)

	d.coverageGauge.Percent = clampPercent(stats.Coverage * 100)
	d.coverageGauge.Label = fmt.Sprintf("%d / %d scenes", stats.UniqueScenes, d.session.CatalogSize)

	d.summaryPara.Text = fmt.Sprintf(
		"Source: %s\n%s\nElapsed: %s | Batches: %d | Draws: %d | Duplicates: %d",
		d.session.Source,
		formatSessionParams(d.session),
		elapsed.Round(time.Second),
		stats.Batches,
		stats.Draws,
		stats.DuplicateDraws,
	)

	d.latencyPara.Text = fmt.Sprintf(
		"Min:  %.3fms\nMean: %.3fms\nP50:  %.3fms\nP90:  %.3fms\nP99:  %.3fms",
		stats.MinLatencyMs,
		stats.MeanLatencyMs,
		stats.P50LatencyMs,
		stats.P90LatencyMs,
		stats.P99LatencyMs,
	)

	d.sceneList.Rows = formatSceneRows(d.collector.DrawCounts(), topScenes)
	d.errorList.Rows = formatErrorRows(stats.Errors)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func appendHistory(history []float64, v float64) []float64 {
	history = append(history, v)
	if len(history) > historySize {
		history = history[len(history)-historySize:]
	}
	return history
}

// ratePercent scales current throughput against the configured cap, or
// against a floor of 100 batches/s when unlimited.
func ratePercent(current, limit float64) int {
	ceiling := limit
	if ceiling <= 0 {
		ceiling = 100
		if current > ceiling {
			ceiling = current
		}
	}
	return clampPercent(current / ceiling * 100)
}

func clampPercent(p float64) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return int(p)
	}
}

func formatSceneRows(counts map[string]int64, limit int) []string {
	if len(counts) == 0 {
		return []string{"[No draws yet](fg:green)"}
	}
	type sceneRow struct {
		path  string
		draws int64
	}
	rows := make([]sceneRow, 0, len(counts))
	for path, n := range counts {
		rows = append(rows, sceneRow{path: path, draws: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].draws == rows[j].draws {
			return rows[i].path < rows[j].path
		}
		return rows[i].draws > rows[j].draws
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	formatted := make([]string, 0, len(rows))
	for _, r := range rows {
		formatted = append(formatted, fmt.Sprintf("[%5d](fg:yellow) %s", r.draws, filepath.Base(r.path)))
	}
	return formatted
}

func formatErrorRows(errs map[string]int) []string {
	if len(errs) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)
	formatted := make([]string, 0, len(names))
	for _, name := range names {
		formatted = append(formatted, fmt.Sprintf("[%s](fg:red) %d", name, errs[name]))
	}
	return formatted
}

// formatSessionParams formats the loader parameters for display.
func formatSessionParams(cfg SessionConfig) string {
	parts := []string{
		fmt.Sprintf("Catalog: %d", cfg.CatalogSize),
		fmt.Sprintf("Batch: %d", cfg.BatchSize),
		fmt.Sprintf("Seed: %d", cfg.Seed),
	}

	switch {
	case cfg.Replacement:
		parts = append(parts, "Mode: replacement")
	case cfg.Shuffle:
		parts = append(parts, "Mode: shuffled partitions")
	default:
		parts = append(parts, "Mode: partitions")
	}

	if cfg.Batches > 0 {
		parts = append(parts, fmt.Sprintf("Batches: %d", cfg.Batches))
	}

	if cfg.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %g/s", cfg.Rate))
	} else {
		parts = append(parts, "Rate: unlimited")
	}

	if cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
