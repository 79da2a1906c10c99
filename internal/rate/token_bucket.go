// Package rate provides admission control for load generation.
package rate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Bounds for the performance-factor feedback loop.
const (
	factorFloor = 0.5
	factorCeil  = 2.0
	factorDecay = 0.9
)

// TokenBucket is an admission-controlled rate limiter with adaptive refill.
//
// One bucket is shared by every worker of a run. Tokens accumulate
// continuously up to the target rate; each admitted request debits one token
// (or a caller-chosen weight). When the target service cannot sustain the
// nominal rate, Adjust feeds the observed throughput back and the effective
// refill rate compensates smoothly.
//
// # Thread Safety
//
// The token count, refill timestamp and performance factor form a single
// critical section: refill, decide and debit happen atomically with respect
// to other acquirers. Waiting always happens outside the lock.
type TokenBucket struct {
	targetRate        float64
	tokens            float64
	lastRefill        time.Time
	performanceFactor float64
	mu                sync.Mutex

	// Metrics
	totalAcquired atomic.Int64
	totalWaitTime atomic.Int64 // nanoseconds
}

// NewTokenBucket creates a shared token bucket for the given target rate in
// requests per second.
//
// A nil bucket is valid and means unlimited: every Acquire returns
// immediately. Callers therefore construct the bucket only when a target
// rate was configured.
func NewTokenBucket(targetRate float64) *TokenBucket {
	if targetRate <= 0 {
		return nil
	}
	return &TokenBucket{
		targetRate:        targetRate,
		tokens:            targetRate, // start full, matching a freshly provisioned bucket
		lastRefill:        time.Now(),
		performanceFactor: 1.0,
	}
}

// Acquire admits one request, blocking until a token is available or the
// context is cancelled.
func (b *TokenBucket) Acquire(ctx context.Context) error {
	return b.AcquireN(ctx, 1)
}

// AcquireN admits a request of the given weight.
//
// The caller suspends (never spins) until enough tokens accumulated. Returns
// ctx.Err() if the context ends first; the tokens are not debited in that
// case.
func (b *TokenBucket) AcquireN(ctx context.Context, weight float64) error {
	if b == nil {
		return nil
	}
	if weight > b.targetRate {
		return fmt.Errorf("acquire weight %.1f exceeds bucket capacity %.1f", weight, b.targetRate)
	}

	start := time.Now()
	for {
		b.mu.Lock()
		now := time.Now()
		effective := b.targetRate * b.performanceFactor

		elapsed := now.Sub(b.lastRefill).Seconds()
		if elapsed > 0 {
			b.tokens += elapsed * effective
			if b.tokens > b.targetRate {
				b.tokens = b.targetRate
			}
			b.lastRefill = now
		}

		if b.tokens >= weight {
			b.tokens -= weight
			b.mu.Unlock()
			b.totalAcquired.Add(1)
			b.totalWaitTime.Add(int64(time.Since(start)))
			return nil
		}

		deficit := weight - b.tokens
		wait := time.Duration(deficit / effective * float64(time.Second))
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			// Re-check under the lock; another acquirer may have won the tokens.
		}
	}
}

// Adjust feeds back the observed throughput in requests per second.
//
// The performance factor is an exponentially weighted average of the
// target/observed ratio, clamped to [0.5, 2.0]. The smoothing damps
// oscillation while still compensating when the target service cannot
// sustain the nominal rate.
func (b *TokenBucket) Adjust(observedRPS float64) {
	if b == nil || observedRPS <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	adjustment := b.targetRate / observedRPS
	if adjustment < factorFloor {
		adjustment = factorFloor
	}
	if adjustment > factorCeil {
		adjustment = factorCeil
	}
	b.performanceFactor = factorDecay*b.performanceFactor + (1-factorDecay)*adjustment
}

// TargetRate returns the configured nominal rate, or 0 for unlimited.
func (b *TokenBucket) TargetRate() float64 {
	if b == nil {
		return 0
	}
	return b.targetRate
}

// PerformanceFactor returns the current feedback factor.
func (b *TokenBucket) PerformanceFactor() float64 {
	if b == nil {
		return 1.0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.performanceFactor
}

// Stats returns counters describing the bucket's operation so far.
func (b *TokenBucket) Stats() Stats {
	if b == nil {
		return Stats{}
	}
	b.mu.Lock()
	tokens := b.tokens
	factor := b.performanceFactor
	b.mu.Unlock()

	return Stats{
		TargetRate:        b.targetRate,
		Tokens:            tokens,
		PerformanceFactor: factor,
		TotalAcquired:     b.totalAcquired.Load(),
		TotalWaitTime:     time.Duration(b.totalWaitTime.Load()),
	}
}

// Stats describes a bucket's operation.
type Stats struct {
	TargetRate        float64       `json:"targetRate"`
	Tokens            float64       `json:"tokens"`
	PerformanceFactor float64       `json:"performanceFactor"`
	TotalAcquired     int64         `json:"totalAcquired"`
	TotalWaitTime     time.Duration `json:"totalWaitTime"`
}
