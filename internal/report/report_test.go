package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devstress/devstress/internal/metrics"
	"github.com/devstress/devstress/internal/threshold"
)

func sampleReport() *Report {
	return &Report{
		Summary: &metrics.Summary{
			RunID:              "abc-123",
			Name:               "checkout smoke",
			URL:                "https://api.example.com",
			StartTime:          time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
			DurationSeconds:    30.1,
			TotalRequests:      3000,
			SuccessfulRequests: 2985,
			SuccessRate:        99.5,
			RequestsPerSecond:  99.7,
			LatencyMs:          metrics.LatencySummary{Min: 5, Avg: 42, Max: 400, P50: 38, P95: 120, P99: 250},
			StatusCodes:        map[int]int64{200: 2985, 503: 15},
			Errors:             map[string]int64{"timeout": 3},
		},
		Thresholds: []threshold.Result{
			{Expression: "p95 < 500ms", Passed: true, Value: "120.0ms"},
		},
		Passed: true,
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteJSON(path, sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var back Report
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "abc-123", back.Summary.RunID)
	assert.Equal(t, int64(3000), back.Summary.TotalRequests)
	assert.True(t, back.Passed)
	require.Len(t, back.Thresholds, 1)
	assert.Equal(t, "p95 < 500ms", back.Thresholds[0].Expression)
}

func TestWriteHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, WriteHTML(path, sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)

	for _, want := range []string{
		"abc-123",
		"checkout smoke",
		"https://api.example.com",
		"99.50%",
		"p95 &lt; 500ms",
		"timeout",
		"503",
	} {
		assert.Contains(t, html, want)
	}
	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
}

func TestNewHTMLData_Verdicts(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*metrics.Summary)
		verdict string
	}{
		{"healthy run", func(s *metrics.Summary) {}, "Performance looks good."},
		{"no requests", func(s *metrics.Summary) { s.TotalRequests = 0 }, "No requests completed."},
		{"high error rate", func(s *metrics.Summary) { s.SuccessRate = 80 }, "High error rate detected."},
		{"slow responses", func(s *metrics.Summary) { s.LatencyMs.Avg = 3000 }, "Slow response times."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleReport()
			tt.mutate(r.Summary)
			assert.Equal(t, tt.verdict, newHTMLData(r).Verdict)
		})
	}
}

func TestNewHTMLData_RowsSorted(t *testing.T) {
	r := sampleReport()
	r.Summary.TotalRequests = 16
	r.Summary.StatusCodes = map[int]int64{503: 1, 200: 10, 404: 5}

	d := newHTMLData(r)
	require.Len(t, d.StatusRows, 3)
	assert.Equal(t, []int{200, 404, 503}, []int{d.StatusRows[0].Code, d.StatusRows[1].Code, d.StatusRows[2].Code})
	assert.InDelta(t, 62.5, d.StatusRows[0].Percent, 0.01)
}
