package output

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"
)

// SceneDraws is one row of the per-scene draw table.
type SceneDraws struct {
	Path  string
	Draws int64
	Share float64 // percentage of all draws
	Width float64 // bar width relative to the most drawn scene
}

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt string
	Report      Report
	Scenes      []SceneDraws
	Unseen      int
}

// GenerateHTMLReport writes a standalone HTML page summarising a run and how
// often each catalog scene was drawn.
func GenerateHTMLReport(w io.Writer, r Report, drawCounts map[string]int64) error {
	data := HTMLReportData{
		GeneratedAt: time.Now().Format(time.RFC3339),
		Report:      r,
		Scenes:      sceneRows(drawCounts, r.Stats.Draws),
	}
	if unseen := r.CatalogSize - len(drawCounts); unseen > 0 {
		data.Unseen = unseen
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			return d.String()
		},
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatPercent": func(ratio float64) string {
			return fmt.Sprintf("%.1f", ratio*100)
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

// sceneRows orders scenes by draw count, most drawn first, ties by path.
func sceneRows(counts map[string]int64, total int64) []SceneDraws {
	rows := make([]SceneDraws, 0, len(counts))
	var top int64
	for path, n := range counts {
		rows = append(rows, SceneDraws{Path: path, Draws: n})
		if n > top {
			top = n
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Draws != rows[j].Draws {
			return rows[i].Draws > rows[j].Draws
		}
		return rows[i].Path < rows[j].Path
	})
	for i := range rows {
		if total > 0 {
			rows[i].Share = float64(rows[i].Draws) / float64(total) * 100
		}
		if top > 0 {
			rows[i].Width = float64(rows[i].Draws) / float64(top) * 100
		}
	}
	return rows
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Scene Sampling Report</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 {
            font-size: 2rem;
            margin-bottom: 10px;
        }
        header .meta {
            opacity: 0.9;
            font-size: 0.9rem;
        }
        .content {
            padding: 40px;
        }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #667eea;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value {
            font-size: 2rem;
            font-weight: bold;
        }
        .card .subvalue {
            font-size: 0.85rem;
            color: #6c757d;
            margin-top: 5px;
        }
        .card.error {
            border-left-color: #ef4444;
        }
        .section {
            margin-bottom: 40px;
        }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        table {
            width: 100%;
            border-collapse: collapse;
        }
        th, td {
            text-align: left;
            padding: 12px;
            border-bottom: 1px solid #e5e7eb;
        }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
        }
        .badge {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 12px;
            font-size: 0.85rem;
            font-weight: 600;
        }
        .badge-success {
            background: #d1fae5;
            color: #065f46;
        }
        .badge-error {
            background: #fee2e2;
            color: #991b1b;
        }
        .bar {
            background: #667eea;
            height: 10px;
            border-radius: 5px;
        }
        .latency-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(150px, 1fr));
            gap: 15px;
        }
        .latency-item {
            background: #f8f9fa;
            padding: 15px;
            border-radius: 6px;
            text-align: center;
        }
        .latency-item .label {
            font-size: 0.85rem;
            color: #6c757d;
        }
        .latency-item .value {
            font-size: 1.3rem;
            font-weight: bold;
        }
        .no-data {
            text-align: center;
            padding: 40px;
            color: #6c757d;
            font-style: italic;
        }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>Scene Sampling Report</h1>
            <div class="meta">Run {{.Report.RunID}} | Seed {{.Report.Seed}} | Batch size {{.Report.BatchSize}}{{if .Report.SampleWithReplacement}} | with replacement{{else if .Report.Shuffle}} | shuffled{{end}}</div>
            <div class="meta">Generated: {{.GeneratedAt}} | Duration: {{formatDuration .Report.Stats.Duration}}</div>
        </header>

        <div class="content">
            <div class="grid">
                <div class="card">
                    <h3>Batches</h3>
                    <div class="value">{{.Report.Stats.Batches}}</div>
                    <div class="subvalue">{{formatFloat .Report.Stats.BatchesPerSec}} per second</div>
                </div>
                <div class="card">
                    <h3>Coverage</h3>
                    <div class="value">{{formatPercent .Report.Stats.Coverage}}%</div>
                    <div class="subvalue">{{.Report.Stats.UniqueScenes}} of {{.Report.CatalogSize}} scenes</div>
                </div>
                <div class="card">
                    <h3>Draws</h3>
                    <div class="value">{{.Report.Stats.Draws}}</div>
                    <div class="subvalue">{{.Report.Stats.DuplicateDraws}} duplicates within batches</div>
                </div>
                <div class="card error">
                    <h3>Failed</h3>
                    <div class="value">{{.Report.Stats.Failures}}</div>
                </div>
            </div>

            <div class="section">
                <h2>Fetch Latency</h2>
                <div class="latency-grid">
                    <div class="latency-item"><div class="label">Min</div><div class="value">{{formatFloat .Report.Stats.MinLatencyMs}}ms</div></div>
                    <div class="latency-item"><div class="label">Mean</div><div class="value">{{formatFloat .Report.Stats.MeanLatencyMs}}ms</div></div>
                    <div class="latency-item"><div class="label">P50</div><div class="value">{{formatFloat .Report.Stats.P50LatencyMs}}ms</div></div>
                    <div class="latency-item"><div class="label">P90</div><div class="value">{{formatFloat .Report.Stats.P90LatencyMs}}ms</div></div>
                    <div class="latency-item"><div class="label">P99</div><div class="value">{{formatFloat .Report.Stats.P99LatencyMs}}ms</div></div>
                    <div class="latency-item"><div class="label">Max</div><div class="value">{{formatFloat .Report.Stats.MaxLatencyMs}}ms</div></div>
                </div>
            </div>

            {{if .Report.Thresholds}}
            <div class="section">
                <h2>Thresholds</h2>
                <table>
                    <thead>
                        <tr><th>Threshold</th><th>Actual</th><th>Status</th></tr>
                    </thead>
                    <tbody>
                        {{range .Report.Thresholds}}
                        <tr>
                            <td>{{.Threshold.Raw}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>{{if .Pass}}<span class="badge badge-success">PASS</span>{{else}}<span class="badge badge-error">FAIL</span>{{end}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            <div class="section">
                <h2>Draws per Scene</h2>
                {{if .Scenes}}
                <table>
                    <thead>
                        <tr><th>Scene</th><th>Draws</th><th>Share</th><th></th></tr>
                    </thead>
                    <tbody>
                        {{range .Scenes}}
                        <tr>
                            <td>{{.Path}}</td>
                            <td>{{.Draws}}</td>
                            <td>{{formatFloat .Share}}%</td>
                            <td style="width: 30%"><div class="bar" style="width: {{formatFloat .Width}}%"></div></td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
                {{if .Unseen}}<p class="subvalue">{{.Unseen}} catalog scenes were never drawn.</p>{{end}}
                {{else}}
                <div class="no-data">No batches were drawn.</div>
                {{end}}
            </div>
        </div>
    </div>
</body>
</html>
`
