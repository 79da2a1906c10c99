// Package report writes run results to files for sharing and archival.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"sort"

	"github.com/devstress/devstress/internal/metrics"
	"github.com/devstress/devstress/internal/threshold"
)

// Report bundles everything a rendered report contains.
type Report struct {
	Summary    *metrics.Summary   `json:"summary"`
	Thresholds []threshold.Result `json:"thresholds,omitempty"`
	Passed     bool               `json:"passed"`
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WriteHTML writes a self-contained HTML report.
func WriteHTML(path string, r *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	if err := htmlTemplate.Execute(f, newHTMLData(r)); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

type htmlData struct {
	*Report
	StatusRows []statusRow
	ErrorRows  []errorRow
	Verdict    string
}

type statusRow struct {
	Code    int
	Count   int64
	Percent float64
}

type errorRow struct {
	Kind  string
	Count int64
}

func newHTMLData(r *Report) htmlData {
	d := htmlData{Report: r}

	s := r.Summary
	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := s.StatusCodes[code]
		pct := 0.0
		if s.TotalRequests > 0 {
			pct = float64(count) / float64(s.TotalRequests) * 100
		}
		d.StatusRows = append(d.StatusRows, statusRow{Code: code, Count: count, Percent: pct})
	}

	kinds := make([]string, 0, len(s.Errors))
	for kind := range s.Errors {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		d.ErrorRows = append(d.ErrorRows, errorRow{Kind: kind, Count: s.Errors[kind]})
	}

	switch {
	case s.TotalRequests == 0:
		d.Verdict = "No requests completed."
	case 100-s.SuccessRate > 5:
		d.Verdict = "High error rate detected."
	case s.LatencyMs.Avg > 2000:
		d.Verdict = "Slow response times."
	default:
		d.Verdict = "Performance looks good."
	}
	return d
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>DevStress Report {{.Summary.RunID}}</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
         background: #f5f6fa; margin: 0; padding: 2rem; color: #2f3542; }
  .card { max-width: 960px; margin: 0 auto 1.5rem; background: #fff; border-radius: 8px;
          box-shadow: 0 2px 8px rgba(0,0,0,.08); padding: 1.5rem 2rem; }
  h1 { margin-top: 0; font-size: 1.4rem; }
  h2 { font-size: 1.05rem; border-bottom: 1px solid #eee; padding-bottom: .4rem; }
  table { border-collapse: collapse; width: 100%; }
  th, td { text-align: left; padding: .4rem .8rem; border-bottom: 1px solid #f0f0f0; }
  .ok { color: #2ed573; } .warn { color: #ffa502; } .bad { color: #ff4757; }
  .verdict { font-weight: 600; }
</style>
</head>
<body>
<div class="card">
  <h1>DevStress Load Test Report</h1>
  <p>{{if .Summary.Name}}{{.Summary.Name}} · {{end}}{{.Summary.URL}}<br>
     run {{.Summary.RunID}} · started {{.Summary.StartTime.Format "2006-01-02 15:04:05"}}</p>
  <p class="verdict">{{.Verdict}}</p>
</div>
<div class="card">
  <h2>Performance</h2>
  <table>
    <tr><td>Total requests</td><td>{{.Summary.TotalRequests}}</td></tr>
    <tr><td>Successful</td><td>{{.Summary.SuccessfulRequests}}</td></tr>
    <tr><td>Success rate</td><td>{{printf "%.2f%%" .Summary.SuccessRate}}</td></tr>
    <tr><td>Requests/second</td><td>{{printf "%.1f" .Summary.RequestsPerSecond}}</td></tr>
    <tr><td>Duration</td><td>{{printf "%.1fs" .Summary.DurationSeconds}}</td></tr>
  </table>
</div>
<div class="card">
  <h2>Latency (ms)</h2>
  <table>
    <tr><th>avg</th><th>min</th><th>max</th><th>p50</th><th>p95</th><th>p99</th></tr>
    <tr>
      <td>{{printf "%.0f" .Summary.LatencyMs.Avg}}</td>
      <td>{{printf "%.0f" .Summary.LatencyMs.Min}}</td>
      <td>{{printf "%.0f" .Summary.LatencyMs.Max}}</td>
      <td>{{printf "%.0f" .Summary.LatencyMs.P50}}</td>
      <td>{{printf "%.0f" .Summary.LatencyMs.P95}}</td>
      <td>{{printf "%.0f" .Summary.LatencyMs.P99}}</td>
    </tr>
  </table>
</div>
{{if .StatusRows}}
<div class="card">
  <h2>Status codes</h2>
  <table>
    {{range .StatusRows}}<tr><td>{{.Code}}</td><td>{{.Count}}</td><td>{{printf "%.1f%%" .Percent}}</td></tr>
    {{end}}
  </table>
</div>
{{end}}
{{if .ErrorRows}}
<div class="card">
  <h2>Transport errors</h2>
  <table>
    {{range .ErrorRows}}<tr><td class="bad">{{.Kind}}</td><td>{{.Count}}</td></tr>
    {{end}}
  </table>
</div>
{{end}}
{{if .Thresholds}}
<div class="card">
  <h2>Thresholds</h2>
  <table>
    {{range .Thresholds}}<tr>
      <td>{{if .Passed}}<span class="ok">✓</span>{{else}}<span class="bad">✗</span>{{end}}</td>
      <td>{{.Expression}}</td><td>{{.Value}}</td><td>{{.Message}}</td>
    </tr>
    {{end}}
  </table>
</div>
{{end}}
</body>
</html>
`))
