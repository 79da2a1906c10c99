// Package engine generates controlled concurrent HTTP load and produces the
// run's Summary.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devstress/devstress/internal/config"
	"github.com/devstress/devstress/internal/governor"
	"github.com/devstress/devstress/internal/httpclient"
	"github.com/devstress/devstress/internal/metrics"
	"github.com/devstress/devstress/internal/rate"
)

// progressInterval is how often live stats are published and the limiter's
// feedback loop is fed.
const progressInterval = 500 * time.Millisecond

// ProgressFunc receives live stats while the run is in progress.
type ProgressFunc func(metrics.LiveStats)

// Orchestrator coordinates one load-test run:
// capacity check, worker spawning per the stagger policy, the run deadline,
// drain, and finalization.
//
// State machine:
//
//	CONFIGURED -> CAPACITY_CHECKED -> RUNNING -> DRAINING -> COMPLETE
//	              CAPACITY_CHECKED -> FAILED
//
// An orchestrator runs exactly once.
type Orchestrator struct {
	cfg *config.TestConfig
	gov *governor.Governor
	log *logrus.Entry

	onProgress ProgressFunc

	state   atomic.Int32
	agg     *metrics.Aggregator
	limiter *rate.TokenBucket
	workers []*worker
	wg      sync.WaitGroup

	started atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGovernor substitutes the resource governor (tests inject fixed
// samplers through this).
func WithGovernor(g *governor.Governor) Option {
	return func(o *Orchestrator) { o.gov = g }
}

// WithLogger sets the logger for run lifecycle events.
func WithLogger(log *logrus.Entry) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithProgress registers a live-stats callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

// New validates the configuration and builds an orchestrator for it.
// Validation failures are fatal before any request is issued.
func New(cfg *config.TestConfig, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	config.ApplyDefaults(cfg)

	o := &Orchestrator{
		cfg: cfg,
		gov: governor.New(),
		log: logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.state.Store(int32(StateConfigured))
	return o, nil
}

// State returns the orchestrator's current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Run executes the load test and blocks until the Summary is ready.
//
// The run ends when the configured duration elapses or ctx is cancelled,
// whichever comes first; both lead through the same drain. In-flight
// requests finish under their own timeout. A run that reaches the drain
// always yields a Summary, even if every request failed.
func (o *Orchestrator) Run(ctx context.Context) (*metrics.Summary, error) {
	if !o.started.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("orchestrator has already run")
	}

	// CONFIGURED -> CAPACITY_CHECKED
	safe, err := o.gov.Capacity(o.cfg.Workers)
	if err != nil {
		o.state.Store(int32(StateFailed))
		return nil, err
	}
	o.state.Store(int32(StateCapacityChecked))
	if safe < o.cfg.Workers {
		o.log.WithFields(logrus.Fields{
			"requested": o.cfg.Workers,
			"safe":      safe,
		}).Warn("reducing workers to stay within system capacity")
	}

	duration := time.Duration(o.cfg.Duration)
	o.agg = metrics.NewAggregator()
	o.limiter = rate.NewTokenBucket(o.cfg.RPS)
	executor := httpclient.NewExecutor(time.Duration(o.cfg.Timeout), o.cfg.MaxAttempts)
	defer executor.CloseIdleConnections()

	o.log.WithFields(logrus.Fields{
		"run":      o.agg.RunID(),
		"url":      o.cfg.URL,
		"workers":  safe,
		"duration": duration,
		"rps":      o.cfg.RPS,
		"stagger":  o.cfg.Stagger,
	}).Info("starting load test")

	// CAPACITY_CHECKED -> RUNNING
	stopCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	o.state.Store(int32(StateRunning))

	delays := staggerDelays(o.cfg.Stagger, safe, duration, o.cfg.RampFraction)
	o.workers = make([]*worker, safe)
	for i := 0; i < safe; i++ {
		w := newWorker(i, o.cfg, o.limiter, executor, o.agg, o.log)
		o.workers[i] = w

		o.wg.Add(1)
		go func(w *worker, delay time.Duration) {
			defer o.wg.Done()
			if delay > 0 {
				select {
				case <-stopCtx.Done():
					return
				case <-time.After(delay):
				}
			}
			w.run(stopCtx)
		}(w, delays[i])
	}

	o.monitor(stopCtx)

	// RUNNING -> DRAINING: the shared stop signal is set; workers observe it
	// at their per-step checkpoint and finish in-flight work naturally.
	o.state.Store(int32(StateDraining))
	o.log.Debug("draining workers")
	o.wg.Wait()

	// DRAINING -> COMPLETE
	summary := o.agg.Snapshot()
	summary.Name = o.cfg.Name
	summary.URL = o.cfg.URL
	o.state.Store(int32(StateComplete))

	o.log.WithFields(logrus.Fields{
		"run":      summary.RunID,
		"requests": summary.TotalRequests,
		"rps":      fmt.Sprintf("%.1f", summary.RequestsPerSecond),
	}).Info("load test complete")

	return summary, nil
}

// monitor publishes live stats and feeds observed throughput back into the
// rate limiter until the stop signal fires.
func (o *Orchestrator) monitor(stopCtx context.Context) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCtx.Done():
			return
		case <-ticker.C:
			live := o.agg.Live()
			o.limiter.Adjust(live.RequestsPerSecond)
			if o.onProgress != nil {
				o.onProgress(live)
			}
		}
	}
}

// Live returns current stats; nil-safe before the run starts.
func (o *Orchestrator) Live() metrics.LiveStats {
	if o.agg == nil {
		return metrics.LiveStats{}
	}
	return o.agg.Live()
}

// WorkerStates returns each worker's final counters. Only meaningful once
// the run is complete.
func (o *Orchestrator) WorkerStates() []WorkerState {
	states := make([]WorkerState, 0, len(o.workers))
	for _, w := range o.workers {
		states = append(states, w.snapshotState())
	}
	return states
}
