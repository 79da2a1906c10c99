package engine

import (
	"context"
	"math/rand"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/devstress/devstress/internal/config"
	"github.com/devstress/devstress/internal/httpclient"
	"github.com/devstress/devstress/internal/metrics"
	"github.com/devstress/devstress/internal/rate"
)

// WorkerState holds one worker's running counters. Outcomes are folded into
// the aggregator continuously; these counters exist so the worker's view can
// be reconciled against the aggregate.
type WorkerState struct {
	ID                int
	RequestsIssued    int64
	RequestsSucceeded int64
	CumulativeLatency time.Duration
	Errors            map[string]int64
}

// worker drives one concurrency unit through the scenario's step sequence
// until the stop context ends.
type worker struct {
	id       int
	baseURL  string
	headers  map[string]string
	scenario *config.Scenario
	limiter  *rate.TokenBucket
	executor *httpclient.Executor
	agg      *metrics.Aggregator
	log      *logrus.Entry

	// Per-worker state: no synchronization needed, only this goroutine
	// touches it while running.
	rng   *rand.Rand
	vars  map[string]string
	state WorkerState
}

func newWorker(id int, cfg *config.TestConfig, limiter *rate.TokenBucket, executor *httpclient.Executor, agg *metrics.Aggregator, log *logrus.Entry) *worker {
	return &worker{
		id:       id,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		headers:  cfg.Headers,
		scenario: cfg.Scenario,
		limiter:  limiter,
		executor: executor,
		agg:      agg,
		log:      log.WithField("worker", id),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
		vars:     make(map[string]string),
		state:    WorkerState{ID: id, Errors: make(map[string]int64)},
	}
}

// run loops through the scenario until stopCtx ends. A panic anywhere in the
// loop is isolated: this worker logs it and exits, the rest of the run
// continues, and everything recorded so far stays in the aggregator.
func (w *worker) run(stopCtx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.WithField("panic", r).Errorf("worker failed, isolating it from the run\n%s", debug.Stack())
		}
	}()

	// Requests in flight are never truncated by the run deadline; they
	// finish (or time out) under their own configured timeout.
	reqCtx := context.WithoutCancel(stopCtx)

	thinkMin, thinkMax := w.scenario.ThinkTime()

	for {
		for i := range w.scenario.Steps {
			// Stop checkpoint: never start a new request past the deadline.
			select {
			case <-stopCtx.Done():
				return
			default:
			}

			if err := w.limiter.Acquire(stopCtx); err != nil {
				return
			}

			w.executeStep(reqCtx, &w.scenario.Steps[i])

			if !w.think(stopCtx, thinkMin, thinkMax) {
				return
			}
		}
	}
}

// executeStep issues one request, folds the outcome, and runs extractions.
func (w *worker) executeStep(ctx context.Context, step *config.Step) {
	url := w.baseURL + w.substitute(step.Path)
	body := w.substitute(step.Body)

	headers := make(map[string]string, len(w.headers)+len(step.Headers))
	for k, v := range w.headers {
		headers[k] = v
	}
	for k, v := range step.Headers {
		headers[k] = w.substitute(v)
	}

	outcome := w.executor.Do(ctx, step.Method, url, headers, body)
	outcome.WorkerID = w.id
	outcome.StepName = step.Name

	w.state.RequestsIssued++
	w.state.CumulativeLatency += outcome.Latency
	if outcome.Success() {
		w.state.RequestsSucceeded++
	} else if outcome.Class == httpclient.ClassTransportError {
		w.state.Errors[string(outcome.TransportKind)]++
	}

	if err := w.agg.Record(&outcome); err != nil {
		// Aggregation faults are programming errors, not run outcomes.
		w.log.WithError(err).Error("dropping outcome record")
	}

	w.extract(step, &outcome)
}

// think sleeps for a uniformly sampled duration from [min,max], honoring the
// stop signal. Returns false if the worker should exit.
func (w *worker) think(ctx context.Context, min, max time.Duration) bool {
	if max <= 0 {
		return ctx.Err() == nil
	}
	d := min
	if max > min {
		d += time.Duration(w.rng.Int63n(int64(max - min + 1)))
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// substitute replaces {{name}} placeholders with worker variables.
func (w *worker) substitute(input string) string {
	if len(w.vars) == 0 || !strings.Contains(input, "{{") {
		return input
	}
	result := input
	for key, value := range w.vars {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

// extract pulls configured values out of the response into worker variables.
func (w *worker) extract(step *config.Step, o *httpclient.Outcome) {
	for _, ext := range step.Extract {
		var value string

		switch ext.Source {
		case "body":
			if len(o.Body) == 0 {
				continue
			}
			result := gjson.Get(string(o.Body), toGjsonPath(ext.Path))
			if !result.Exists() {
				w.log.WithField("path", ext.Path).Debug("extract path not found in response body")
				continue
			}
			value = result.String()
		case "header":
			if o.Header == nil {
				continue
			}
			value = o.Header.Get(ext.Path)
		case "status":
			// Status 0 means no response was ever received.
			if o.Status == 0 {
				continue
			}
			value = strconv.Itoa(o.Status)
		}

		if value != "" {
			w.vars[ext.Name] = value
		}
	}
}

// toGjsonPath converts a JSONPath-style expression ($.users[0].name) to the
// gjson form (users.0.name). Plain gjson paths pass through unchanged.
func toGjsonPath(path string) string {
	p := strings.TrimPrefix(path, "$.")
	p = strings.TrimPrefix(p, "$")
	p = strings.ReplaceAll(p, "[", ".")
	p = strings.ReplaceAll(p, "]", "")
	return strings.TrimPrefix(p, ".")
}

// snapshotState returns a copy of the worker's counters.
func (w *worker) snapshotState() WorkerState {
	s := WorkerState{
		ID:                w.state.ID,
		RequestsIssued:    w.state.RequestsIssued,
		RequestsSucceeded: w.state.RequestsSucceeded,
		CumulativeLatency: w.state.CumulativeLatency,
		Errors:            make(map[string]int64, len(w.state.Errors)),
	}
	for k, v := range w.state.Errors {
		s.Errors[k] = v
	}
	return s
}
