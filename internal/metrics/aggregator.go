// Package metrics aggregates per-request outcomes into run statistics.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/google/uuid"

	"github.com/devstress/devstress/internal/httpclient"
)

// AggregationFault reports an internal invariant violation inside the
// aggregator, such as a negative latency. It is a programming-error
// condition, never a normal runtime outcome.
type AggregationFault struct {
	Reason string
}

func (f *AggregationFault) Error() string {
	return "aggregation fault: " + f.Reason
}

// Aggregator is the concurrency-safe sink for outcome records.
//
// Counters use atomics for lock-free progress reads; the latency sample,
// histograms and code/error maps share one mutex. The critical section
// covers only the read-modify-write and never spans a suspending call.
//
// The raw latency sample is retained for the run's lifetime so the final
// percentiles follow the exact indexing convention. Operator-bounded runs
// make that acceptable; a streaming quantile estimator is the extension
// point for very long or very high-rate runs.
type Aggregator struct {
	runID     string
	startTime time.Time

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration // successful requests only, unsorted
	statusCodes map[int]int64
	errors      map[string]int64

	// HDR histogram over successful latencies, for live progress only.
	// Range 1 microsecond to 1 hour, 3 significant figures.
	liveHist *hdrhistogram.Histogram
}

// NewAggregator creates an aggregator for a new run.
func NewAggregator() *Aggregator {
	return &Aggregator{
		runID:       uuid.NewString(),
		startTime:   time.Now(),
		statusCodes: make(map[int]int64),
		errors:      make(map[string]int64),
		liveHist:    hdrhistogram.New(1, 3600000000, 3),
	}
}

// RunID returns the unique identifier for this run.
func (a *Aggregator) RunID() string {
	return a.runID
}

// StartTime returns when the aggregator (and the run) started.
func (a *Aggregator) StartTime() time.Time {
	return a.startTime
}

// Record merges one outcome into the running totals. Every record is merged
// exactly once; concurrent calls are safe. A record that faults is not
// counted anywhere.
func (a *Aggregator) Record(o *httpclient.Outcome) error {
	if o.Latency < 0 {
		return &AggregationFault{Reason: fmt.Sprintf("negative latency %v from worker %d", o.Latency, o.WorkerID)}
	}

	switch o.Class {
	case httpclient.ClassSuccess:
		a.successRequests.Add(1)
		a.mu.Lock()
		a.latencies = append(a.latencies, o.Latency)
		a.statusCodes[o.Status]++
		a.liveHist.RecordValue(clampMicros(o.Latency))
		a.mu.Unlock()

	case httpclient.ClassApplicationError:
		a.failedRequests.Add(1)
		a.mu.Lock()
		a.statusCodes[o.Status]++
		a.mu.Unlock()

	case httpclient.ClassTransportError:
		a.failedRequests.Add(1)
		a.mu.Lock()
		a.errors[string(o.TransportKind)]++
		a.mu.Unlock()

	default:
		return &AggregationFault{Reason: fmt.Sprintf("unclassified outcome from worker %d", o.WorkerID)}
	}

	a.totalRequests.Add(1)
	return nil
}

// Live returns a cheap snapshot for progress rendering.
func (a *Aggregator) Live() LiveStats {
	elapsed := time.Since(a.startTime)
	total := a.totalRequests.Load()
	failed := a.failedRequests.Load()

	rps := 0.0
	if elapsed > 0 {
		rps = float64(total) / elapsed.Seconds()
	}
	errRate := 0.0
	if total > 0 {
		errRate = float64(failed) / float64(total) * 100
	}

	a.mu.Lock()
	p50 := time.Duration(a.liveHist.ValueAtQuantile(50)) * time.Microsecond
	p95 := time.Duration(a.liveHist.ValueAtQuantile(95)) * time.Microsecond
	p99 := time.Duration(a.liveHist.ValueAtQuantile(99)) * time.Microsecond
	a.mu.Unlock()

	return LiveStats{
		Elapsed:            elapsed,
		TotalRequests:      total,
		SuccessfulRequests: a.successRequests.Load(),
		FailedRequests:     failed,
		RequestsPerSecond:  rps,
		ErrorRatePercent:   errRate,
		P50:                p50,
		P95:                p95,
		P99:                p99,
	}
}

// Snapshot computes the Summary over everything recorded so far. It may be
// called at any time; the final call happens once, at drain completion.
func (a *Aggregator) Snapshot() *Summary {
	elapsed := time.Since(a.startTime)
	total := a.totalRequests.Load()
	success := a.successRequests.Load()

	a.mu.Lock()
	sample := make([]time.Duration, len(a.latencies))
	copy(sample, a.latencies)
	codes := make(map[int]int64, len(a.statusCodes))
	for k, v := range a.statusCodes {
		codes[k] = v
	}
	errs := make(map[string]int64, len(a.errors))
	for k, v := range a.errors {
		errs[k] = v
	}
	a.mu.Unlock()

	sort.Slice(sample, func(i, j int) bool { return sample[i] < sample[j] })

	summary := &Summary{
		RunID:              a.runID,
		StartTime:          a.startTime,
		DurationSeconds:    elapsed.Seconds(),
		TotalRequests:      total,
		SuccessfulRequests: success,
		StatusCodes:        codes,
		Errors:             errs,
	}
	if total > 0 {
		summary.SuccessRate = float64(success) / float64(total) * 100
	}
	if elapsed > 0 {
		summary.RequestsPerSecond = float64(total) / elapsed.Seconds()
	}

	if len(sample) > 0 {
		var sum time.Duration
		for _, d := range sample {
			sum += d
		}
		summary.LatencyMs = LatencySummary{
			Min: toMillis(sample[0]),
			Max: toMillis(sample[len(sample)-1]),
			Avg: toMillis(sum / time.Duration(len(sample))),
			P50: toMillis(Percentile(sample, 0.50)),
			P95: toMillis(Percentile(sample, 0.95)),
			P99: toMillis(Percentile(sample, 0.99)),
		}
	}

	return summary
}

// Percentile returns the value at quantile p of an ascending-sorted sample,
// using the single fixed convention: index = floor(p * count), clamped to
// count-1. With fewer than ceil(1/p) samples the percentile is the maximum
// observed value.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n < int(math.Ceil(1/p)) {
		return sorted[n-1]
	}
	idx := int(math.Floor(p * float64(n)))
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// clampMicros converts a latency to microseconds within the histogram range.
func clampMicros(d time.Duration) int64 {
	micros := d.Microseconds()
	if micros < 1 {
		return 1
	}
	if micros > 3600000000 {
		return 3600000000
	}
	return micros
}
