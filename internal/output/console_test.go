package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/devstress/devstress/internal/metrics"
	"github.com/devstress/devstress/internal/threshold"
)

func renderedSummary(t *testing.T, s *metrics.Summary) string {
	t.Helper()
	var buf bytes.Buffer
	NewConsole(&buf).Summary(s)
	return buf.String()
}

func TestConsole_Summary(t *testing.T) {
	out := renderedSummary(t, &metrics.Summary{
		TotalRequests:      1000,
		SuccessfulRequests: 990,
		SuccessRate:        99,
		RequestsPerSecond:  33.3,
		DurationSeconds:    30,
		LatencyMs:          metrics.LatencySummary{Min: 5, Avg: 40, Max: 300, P50: 35, P95: 110, P99: 200},
		StatusCodes:        map[int]int64{200: 990, 429: 7, 503: 3},
		Errors:             map[string]int64{"timeout": 2},
	})

	for _, want := range []string{
		"TEST RESULTS",
		"Total requests",
		"1000",
		"99.00%",
		"p95",
		"429",
		"503",
		"timeout",
		"Performance looks good.",
	} {
		assert.Contains(t, out, want)
	}
}

func TestConsole_SummaryVerdicts(t *testing.T) {
	tests := []struct {
		name    string
		summary *metrics.Summary
		want    string
	}{
		{
			"empty run",
			&metrics.Summary{},
			"No requests completed.",
		},
		{
			"high error rate",
			&metrics.Summary{TotalRequests: 100, SuccessRate: 90},
			"High error rate",
		},
		{
			"slow average",
			&metrics.Summary{TotalRequests: 100, SuccessRate: 100, LatencyMs: metrics.LatencySummary{Avg: 2500}},
			"Slow response times",
		},
		{
			"slow tail",
			&metrics.Summary{TotalRequests: 100, SuccessRate: 100, LatencyMs: metrics.LatencySummary{Avg: 50, P95: 6000}},
			"High tail latency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, renderedSummary(t, tt.summary), tt.want)
		})
	}
}

func TestConsole_Thresholds(t *testing.T) {
	var buf bytes.Buffer
	NewConsole(&buf).Thresholds([]threshold.Result{
		{Expression: "p95 < 500ms", Passed: true, Value: "110.0ms"},
		{Expression: "successRate >= 99.9", Passed: false, Message: "successRate is 99.00, threshold: >= 99.9"},
	})

	out := buf.String()
	assert.Contains(t, out, "✓ p95 < 500ms")
	assert.Contains(t, out, "✗ successRate >= 99.9")
	assert.Contains(t, out, "threshold: >= 99.9")
}

func TestConsole_ThresholdsEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewConsole(&buf).Thresholds(nil)
	assert.Zero(t, buf.Len())
}

func TestConsole_ProgressSilentWithoutTTY(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.Progress(metrics.LiveStats{TotalRequests: 10}, 30)
	c.ProgressDone()
	assert.Zero(t, buf.Len(), "a piped console must not emit control characters")
}

func TestConsole_SummaryWithoutColorCodes(t *testing.T) {
	out := renderedSummary(t, &metrics.Summary{TotalRequests: 1, SuccessfulRequests: 1, SuccessRate: 100})
	assert.False(t, strings.Contains(out, "\x1b["), "non-TTY output must be free of ANSI escapes")
}
