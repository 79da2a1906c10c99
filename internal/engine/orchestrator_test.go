package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devstress/devstress/internal/config"
	"github.com/devstress/devstress/internal/governor"
	"github.com/devstress/devstress/internal/metrics"
)

// idleGovernor approves any request up to the hard cap.
func idleGovernor() *governor.Governor {
	return governor.NewWithSampler(func() (governor.Sample, error) {
		return governor.Sample{CPUPercent: 5, MemoryPercent: 30, AvailableBytes: 8 << 30}, nil
	})
}

func testConfig(url string, workers int, duration time.Duration) *config.TestConfig {
	return &config.TestConfig{
		URL:      url,
		Workers:  workers,
		Duration: config.Duration(duration),
		Timeout:  config.Duration(5 * time.Second),
		Scenario: &config.Scenario{
			ThinkTimeMs: []int{0, 0},
			Steps:       []config.Step{{Name: "hit", Method: "GET", Path: "/"}},
		},
	}
}

func TestOrchestrator_RunAllSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	orch, err := New(testConfig(server.URL, 4, 1*time.Second), WithGovernor(idleGovernor()))
	require.NoError(t, err)
	assert.Equal(t, StateConfigured, orch.State())

	summary, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateComplete, orch.State())

	assert.Greater(t, summary.TotalRequests, int64(0))
	assert.Equal(t, summary.TotalRequests, summary.SuccessfulRequests)
	assert.Equal(t, 100.0, summary.SuccessRate)
	assert.Equal(t, summary.TotalRequests, summary.StatusCodes[http.StatusOK])
	assert.Empty(t, summary.Errors)
	assert.Greater(t, summary.LatencyMs.P95, 0.0)
	assert.NotEmpty(t, summary.RunID)

	// Worker counters and the aggregate describe the same run.
	var issued int64
	for _, ws := range orch.WorkerStates() {
		issued += ws.RequestsIssued
	}
	assert.Equal(t, summary.TotalRequests, issued)
}

func TestOrchestrator_RunAllApplicationErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	orch, err := New(testConfig(server.URL, 2, 600*time.Millisecond), WithGovernor(idleGovernor()))
	require.NoError(t, err)

	summary, err := orch.Run(context.Background())
	require.NoError(t, err, "a run where every request gets a 500 still completes")

	assert.Greater(t, summary.TotalRequests, int64(0))
	assert.Equal(t, int64(0), summary.SuccessfulRequests)
	assert.Equal(t, 0.0, summary.SuccessRate)
	assert.Equal(t, summary.TotalRequests, summary.StatusCodes[http.StatusInternalServerError])
	assert.Empty(t, summary.Errors, "application errors are not transport errors")
	assert.Equal(t, metrics.LatencySummary{}, summary.LatencyMs, "latency covers successful requests only")
}

func TestOrchestrator_RunTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	cfg := testConfig(url, 2, 600*time.Millisecond)
	cfg.MaxAttempts = 1
	orch, err := New(cfg, WithGovernor(idleGovernor()))
	require.NoError(t, err)

	summary, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Greater(t, summary.TotalRequests, int64(0))
	assert.Equal(t, int64(0), summary.SuccessfulRequests)
	assert.Empty(t, summary.StatusCodes, "no response was ever received")
	assert.Greater(t, summary.Errors["connection_refused"], int64(0))
}

func TestOrchestrator_CancellationDrainsEarly(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	orch, err := New(testConfig(server.URL, 4, 30*time.Second), WithGovernor(idleGovernor()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	summary, err := orch.Run(ctx)
	elapsed := time.Since(start)

	require.NoError(t, err, "cancellation is a normal completion, not an error")
	assert.Equal(t, StateComplete, orch.State())
	assert.Less(t, elapsed, 5*time.Second, "drain must not wait out the full 30s duration")
	assert.Greater(t, summary.TotalRequests, int64(0), "work done before cancellation is kept")

	// No new requests once the drain finished.
	settled := requests.Load()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, settled, requests.Load())
}

func TestOrchestrator_GovernorClampsWorkers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Memory headroom for exactly 3 workers.
	gov := governor.NewWithSampler(func() (governor.Sample, error) {
		return governor.Sample{CPUPercent: 5, MemoryPercent: 50, AvailableBytes: 3 * governor.MemoryPerWorker}, nil
	})

	orch, err := New(testConfig(server.URL, 100, 500*time.Millisecond), WithGovernor(gov))
	require.NoError(t, err)

	_, err = orch.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, orch.WorkerStates(), 3, "worker count must follow the governor, not the request")
}

func TestOrchestrator_GovernorAbortFailsRun(t *testing.T) {
	gov := governor.NewWithSampler(func() (governor.Sample, error) {
		return governor.Sample{CPUPercent: 95, MemoryPercent: 92, AvailableBytes: 1 << 30}, nil
	})

	orch, err := New(testConfig("http://localhost:1", 10, time.Second), WithGovernor(gov))
	require.NoError(t, err)

	summary, err := orch.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Equal(t, StateFailed, orch.State())

	var insufficient *governor.InsufficientResourcesError
	assert.ErrorAs(t, err, &insufficient)
}

func TestOrchestrator_RunsExactlyOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	orch, err := New(testConfig(server.URL, 1, 300*time.Millisecond), WithGovernor(idleGovernor()))
	require.NoError(t, err)

	_, err = orch.Run(context.Background())
	require.NoError(t, err)

	_, err = orch.Run(context.Background())
	assert.Error(t, err, "an orchestrator is single-use")
}

func TestOrchestrator_NewRejectsInvalidConfig(t *testing.T) {
	_, err := New(&config.TestConfig{URL: "not a url", Workers: 0})
	require.Error(t, err)
}

func TestOrchestrator_ProgressCallbacks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var calls atomic.Int32
	var lastTotal atomic.Int64
	orch, err := New(testConfig(server.URL, 2, 1200*time.Millisecond),
		WithGovernor(idleGovernor()),
		WithProgress(func(live metrics.LiveStats) {
			calls.Add(1)
			lastTotal.Store(live.TotalRequests)
		}))
	require.NoError(t, err)

	summary, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, calls.Load(), int32(1), "a 1.2s run sees at least one 500ms tick")
	assert.LessOrEqual(t, lastTotal.Load(), summary.TotalRequests)
}

func TestOrchestrator_ScenarioStepsAndExtraction(t *testing.T) {
	var listHits, viewHits atomic.Int64
	var sawSubstituted atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		listHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"products": [{"id": "p-7"}]}`))
	})
	mux.HandleFunc("/products/p-7", func(w http.ResponseWriter, r *http.Request) {
		viewHits.Add(1)
		sawSubstituted.Store(true)
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL, 1, 700*time.Millisecond)
	cfg.Scenario = &config.Scenario{
		Name:        "browse",
		ThinkTimeMs: []int{0, 0},
		Steps: []config.Step{
			{
				Name:   "list",
				Method: "GET",
				Path:   "/products",
				Extract: []config.Extract{
					{Name: "productId", Source: "body", Path: "products.0.id"},
				},
			},
			{
				Name:   "view",
				Method: "GET",
				Path:   "/products/{{productId}}",
			},
		},
	}

	orch, err := New(cfg, WithGovernor(idleGovernor()))
	require.NoError(t, err)

	summary, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, sawSubstituted.Load(), "second step must hit the extracted product URL")
	assert.Greater(t, listHits.Load(), int64(0))
	assert.Greater(t, viewHits.Load(), int64(0))
	assert.Equal(t, summary.TotalRequests, summary.SuccessfulRequests)
}

func TestOrchestrator_RateLimitBoundsThroughput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig(server.URL, 8, 1*time.Second)
	cfg.RPS = 20
	orch, err := New(cfg, WithGovernor(idleGovernor()))
	require.NoError(t, err)

	summary, err := orch.Run(context.Background())
	require.NoError(t, err)

	// The bucket starts full, so up to one second's tokens can land as an
	// initial burst on top of the steady rate.
	assert.LessOrEqual(t, summary.TotalRequests, int64(50),
		"8 unthrottled workers against a local server would do far more than this")
	assert.Greater(t, summary.TotalRequests, int64(0))
}
