package engine

import (
	"time"

	"github.com/devstress/devstress/internal/config"
)

// staggerDelays returns each worker's start delay relative to run start.
//
// steady and spike start everyone at t=0. ramp delays worker i by
// i * (rampWindow / n), so concurrency rises linearly from 1 to n over the
// window and then holds steady.
func staggerDelays(policy config.StaggerPolicy, n int, duration time.Duration, rampFraction float64) []time.Duration {
	delays := make([]time.Duration, n)

	if policy != config.StaggerRamp || n == 0 {
		return delays
	}

	window := time.Duration(float64(duration) * rampFraction)
	for i := 0; i < n; i++ {
		delays[i] = time.Duration(i) * window / time.Duration(n)
	}
	return delays
}
