// Package output renders run progress and results to a terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/devstress/devstress/internal/metrics"
	"github.com/devstress/devstress/internal/threshold"
)

// ColorScheme defines the colors used for the console output.
type ColorScheme struct {
	Header    *color.Color
	Label     *color.Color
	Value     *color.Color
	Success   *color.Color
	Warn      *color.Color
	Error     *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Header:    color.New(color.FgCyan, color.Bold),
		Label:     color.New(color.FgWhite),
		Value:     color.New(color.FgWhite, color.Bold),
		Success:   color.New(color.FgGreen, color.Bold),
		Warn:      color.New(color.FgYellow, color.Bold),
		Error:     color.New(color.FgRed, color.Bold),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
}

// NoColorScheme returns a scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	scheme.Header.DisableColor()
	scheme.Label.DisableColor()
	scheme.Value.DisableColor()
	scheme.Success.DisableColor()
	scheme.Warn.DisableColor()
	scheme.Error.DisableColor()
	scheme.Highlight.DisableColor()
	return scheme
}

// Console writes human-readable progress and summaries.
type Console struct {
	w      io.Writer
	scheme *ColorScheme
	isTTY  bool
}

// NewConsole creates a console writer. Colors and the in-place progress bar
// are enabled only when w is a terminal.
func NewConsole(w io.Writer) *Console {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	scheme := DefaultColorScheme()
	if !tty {
		scheme = NoColorScheme()
	}
	return &Console{w: w, scheme: scheme, isTTY: tty}
}

// Progress renders a single live progress line, rewritten in place on TTYs.
func (c *Console) Progress(live metrics.LiveStats, total float64) {
	if !c.isTTY {
		return
	}

	frac := 0.0
	if total > 0 {
		frac = live.Elapsed.Seconds() / total
		if frac > 1 {
			frac = 1
		}
	}
	const barLen = 40
	filled := int(barLen * frac)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barLen-filled)

	fmt.Fprintf(c.w, "\r[%s] %5.1f%% | requests: %d | rps: %.1f | errors: %.1f%%",
		bar, frac*100, live.TotalRequests, live.RequestsPerSecond, live.ErrorRatePercent)
}

// ProgressDone terminates the progress line.
func (c *Console) ProgressDone() {
	if c.isTTY {
		fmt.Fprintln(c.w)
	}
}

// Summary renders the final run results.
func (c *Console) Summary(s *metrics.Summary) {
	line := strings.Repeat("═", 60)

	fmt.Fprintln(c.w, line)
	c.scheme.Header.Fprintln(c.w, "  TEST RESULTS")
	fmt.Fprintln(c.w, line)

	c.scheme.Header.Fprintln(c.w, "\nPerformance:")
	c.row("Total requests", fmt.Sprintf("%d", s.TotalRequests))
	c.row("Successful", fmt.Sprintf("%d", s.SuccessfulRequests))
	c.row("Success rate", fmt.Sprintf("%.2f%%", s.SuccessRate))
	c.row("Requests/second", fmt.Sprintf("%.1f", s.RequestsPerSecond))
	c.row("Duration", fmt.Sprintf("%.1fs", s.DurationSeconds))

	c.scheme.Header.Fprintln(c.w, "\nLatency (successful requests):")
	c.row("Average", fmt.Sprintf("%.0fms", s.LatencyMs.Avg))
	c.row("Min", fmt.Sprintf("%.0fms", s.LatencyMs.Min))
	c.row("Max", fmt.Sprintf("%.0fms", s.LatencyMs.Max))
	c.row("p50", fmt.Sprintf("%.0fms", s.LatencyMs.P50))
	c.row("p95", fmt.Sprintf("%.0fms", s.LatencyMs.P95))
	c.row("p99", fmt.Sprintf("%.0fms", s.LatencyMs.P99))

	if len(s.StatusCodes) > 0 {
		c.scheme.Header.Fprintln(c.w, "\nStatus codes:")
		codes := make([]int, 0, len(s.StatusCodes))
		for code := range s.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			count := s.StatusCodes[code]
			pct := float64(count) / float64(s.TotalRequests) * 100
			label := fmt.Sprintf("%d", code)
			val := fmt.Sprintf("%d (%.1f%%)", count, pct)
			switch {
			case code < 400:
				c.scheme.Success.Fprintf(c.w, "  %-18s", label)
			case code < 500:
				c.scheme.Warn.Fprintf(c.w, "  %-18s", label)
			default:
				c.scheme.Error.Fprintf(c.w, "  %-18s", label)
			}
			fmt.Fprintln(c.w, val)
		}
	}

	if len(s.Errors) > 0 {
		c.scheme.Header.Fprintln(c.w, "\nTransport errors:")
		kinds := make([]string, 0, len(s.Errors))
		for kind := range s.Errors {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			c.scheme.Error.Fprintf(c.w, "  %-18s", kind)
			fmt.Fprintf(c.w, "%d\n", s.Errors[kind])
		}
	}

	fmt.Fprintln(c.w, "\n"+strings.Repeat("─", 60))
	c.verdict(s)
}

// verdict prints a one-line reading of the results.
func (c *Console) verdict(s *metrics.Summary) {
	errorRate := 100 - s.SuccessRate
	switch {
	case s.TotalRequests == 0:
		c.scheme.Warn.Fprintln(c.w, "No requests completed.")
	case errorRate > 5:
		c.scheme.Error.Fprintln(c.w, "High error rate detected. Service may be struggling.")
	case s.LatencyMs.Avg > 2000:
		c.scheme.Warn.Fprintln(c.w, "Slow response times. Consider optimization.")
	case s.LatencyMs.P95 > 5000:
		c.scheme.Warn.Fprintln(c.w, "High tail latency. Some users experiencing slowness.")
	default:
		c.scheme.Success.Fprintln(c.w, "Performance looks good.")
	}
}

// Thresholds renders threshold evaluation results.
func (c *Console) Thresholds(results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	c.scheme.Header.Fprintln(c.w, "\nThresholds:")
	for _, r := range results {
		if r.Passed {
			c.scheme.Success.Fprintf(c.w, "  ✓ %s", r.Expression)
			fmt.Fprintf(c.w, " (%s)\n", r.Value)
		} else {
			c.scheme.Error.Fprintf(c.w, "  ✗ %s", r.Expression)
			fmt.Fprintf(c.w, " (%s)\n", r.Message)
		}
	}
}

func (c *Console) row(label, value string) {
	c.scheme.Label.Fprintf(c.w, "  %-18s", label)
	c.scheme.Value.Fprintln(c.w, value)
}
