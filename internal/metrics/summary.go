package metrics

import (
	"time"
)

// Summary is the stable result shape produced once per run, at drain
// completion. External consumers (console renderer, report writers, history
// store, threshold evaluation) all read this and nothing else.
type Summary struct {
	RunID     string    `json:"runId"`
	Name      string    `json:"name,omitempty"`
	URL       string    `json:"url,omitempty"`
	StartTime time.Time `json:"startTime"`

	DurationSeconds    float64 `json:"durationSeconds"`
	TotalRequests      int64   `json:"totalRequests"`
	SuccessfulRequests int64   `json:"successfulRequests"`

	// SuccessRate is a percentage in [0, 100].
	SuccessRate       float64 `json:"successRate"`
	RequestsPerSecond float64 `json:"requestsPerSecond"`

	LatencyMs LatencySummary `json:"latencyMs"`

	// StatusCodes counts every received response by status.
	StatusCodes map[int]int64 `json:"statusCodes"`

	// Errors counts transport failures by kind; application errors are not
	// transport failures and appear only in StatusCodes.
	Errors map[string]int64 `json:"errors"`
}

// LatencySummary holds latency statistics over successful requests, in
// milliseconds.
type LatencySummary struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// LiveStats is a cheap point-in-time view for progress rendering while the
// run is still going. Percentiles here come from the HDR histogram, not the
// exact sample used for the final Summary.
type LiveStats struct {
	Elapsed            time.Duration
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	RequestsPerSecond  float64
	ErrorRatePercent   float64
	P50                time.Duration
	P95                time.Duration
	P99                time.Duration
}
