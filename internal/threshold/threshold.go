// Package threshold evaluates pass/fail expressions against a run Summary.
//
// The engine itself enforces nothing; thresholds belong to the caller, which
// compares Summary fields against operator-supplied limits and decides the
// exit code.
package threshold

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/devstress/devstress/internal/metrics"
)

// Result is the outcome of one threshold expression.
type Result struct {
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

var exprRe = regexp.MustCompile(`^(\w+)\s*([<>=!]+)\s*(.+)$`)

// Evaluate runs every expression against the summary. Expressions look like
// "p95 < 500ms", "successRate >= 99", "rps > 100" or "count > 1000".
func Evaluate(summary *metrics.Summary, expressions []string) ([]Result, bool) {
	results := make([]Result, 0, len(expressions))
	passed := true

	for _, expr := range expressions {
		r := evaluateOne(summary, expr)
		if !r.Passed {
			passed = false
		}
		results = append(results, r)
	}
	return results, passed
}

func evaluateOne(summary *metrics.Summary, expr string) Result {
	result := Result{Expression: expr}

	matches := exprRe.FindStringSubmatch(strings.TrimSpace(expr))
	if len(matches) != 4 {
		result.Message = fmt.Sprintf("invalid expression format: %s", expr)
		return result
	}
	metric, op, valueStr := matches[1], matches[2], strings.TrimSpace(matches[3])

	actual, isDuration, err := metricValue(summary, metric)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	var limit float64
	if isDuration {
		d, err := time.ParseDuration(valueStr)
		if err != nil {
			result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
			return result
		}
		limit = float64(d) / float64(time.Millisecond)
		result.Value = fmt.Sprintf("%.1fms", actual)
	} else {
		limit, err = strconv.ParseFloat(valueStr, 64)
		if err != nil {
			result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
			return result
		}
		result.Value = fmt.Sprintf("%.2f", actual)
	}

	result.Passed = compare(actual, op, limit)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", metric, result.Value, op, valueStr)
	}
	return result
}

// metricValue resolves a metric name to its value; durations are in
// milliseconds.
func metricValue(s *metrics.Summary, metric string) (value float64, isDuration bool, err error) {
	switch metric {
	case "min":
		return s.LatencyMs.Min, true, nil
	case "max":
		return s.LatencyMs.Max, true, nil
	case "avg":
		return s.LatencyMs.Avg, true, nil
	case "p50", "med":
		return s.LatencyMs.P50, true, nil
	case "p95":
		return s.LatencyMs.P95, true, nil
	case "p99":
		return s.LatencyMs.P99, true, nil
	case "successRate":
		return s.SuccessRate, false, nil
	case "rps", "rate":
		return s.RequestsPerSecond, false, nil
	case "count":
		return float64(s.TotalRequests), false, nil
	default:
		return 0, false, fmt.Errorf("unknown metric: %s", metric)
	}
}

func compare(actual float64, op string, limit float64) bool {
	switch op {
	case "<":
		return actual < limit
	case "<=":
		return actual <= limit
	case ">":
		return actual > limit
	case ">=":
		return actual >= limit
	case "==", "=":
		return actual == limit
	case "!=", "<>":
		return actual != limit
	default:
		return false
	}
}
