package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/devstress/devstress/internal/config"
	"github.com/devstress/devstress/internal/engine"
	"github.com/devstress/devstress/internal/history"
	"github.com/devstress/devstress/internal/metrics"
	"github.com/devstress/devstress/internal/output"
	"github.com/devstress/devstress/internal/report"
	"github.com/devstress/devstress/internal/threshold"
)

var runFlags struct {
	name         string
	workers      int
	duration     time.Duration
	rps          float64
	timeout      time.Duration
	stagger      string
	rampFraction float64
	maxAttempts  int
	headers      []string
	scenarioFile string
	thresholds   []string
	jsonPath     string
	htmlPath     string
	historyDir   string
	quiet        bool
}

var runCmd = &cobra.Command{
	Use:   "run <url>",
	Short: "Run a load test against a target URL",
	Long: `Run a load test and print the resulting statistics.

Examples:
  devstress run https://api.example.com --workers 100 --duration 30s
  devstress run https://api.example.com --rps 200 --stagger ramp
  devstress run https://api.example.com --scenario-file browse.yaml \
    --threshold "p95 < 500ms" --threshold "successRate >= 99"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runLoadTest(args[0]))
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.name, "name", "", "test name for reports")
	f.IntVarP(&runFlags.workers, "workers", "w", 100, "concurrent workers")
	f.DurationVarP(&runFlags.duration, "duration", "d", 30*time.Second, "test duration")
	f.Float64Var(&runFlags.rps, "rps", 0, "target requests per second (0 = unlimited)")
	f.DurationVar(&runFlags.timeout, "timeout", config.DefaultTimeout, "per-request timeout")
	f.StringVar(&runFlags.stagger, "stagger", "steady", "worker start policy: steady, spike or ramp")
	f.Float64Var(&runFlags.rampFraction, "ramp-fraction", config.DefaultRampFraction, "fraction of the duration used to ramp workers up")
	f.IntVar(&runFlags.maxAttempts, "max-attempts", config.DefaultMaxAttempts, "attempt cap per request (retries on transport errors only)")
	f.StringArrayVarP(&runFlags.headers, "header", "H", nil, "header applied to every request (key: value)")
	f.StringVar(&runFlags.scenarioFile, "scenario-file", "", "YAML or JSON scenario file")
	f.StringArrayVar(&runFlags.thresholds, "threshold", nil, `pass/fail expression, e.g. "p95 < 500ms"`)
	f.StringVar(&runFlags.jsonPath, "json", "", "write a JSON report to this path")
	f.StringVar(&runFlags.htmlPath, "html", "", "write an HTML report to this path")
	f.StringVar(&runFlags.historyDir, "history-dir", "", "directory to record run summaries in")
	f.BoolVarP(&runFlags.quiet, "quiet", "q", false, "suppress progress output")
}

// runLoadTest executes one run and returns the process exit code.
func runLoadTest(url string) int {
	cfg, err := buildConfig(url)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	console := output.NewConsole(os.Stdout)

	opts := []engine.Option{
		engine.WithLogger(logrus.WithField("component", "engine")),
	}
	if !runFlags.quiet {
		total := runFlags.duration.Seconds()
		opts = append(opts, engine.WithProgress(func(live metrics.LiveStats) {
			console.Progress(live, total)
		}))
	}

	orch, err := engine.New(cfg, opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	// Signals become context cancellation here, at the boundary; the engine
	// itself never touches process signals.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := orch.Run(ctx)
	if !runFlags.quiet {
		console.ProgressDone()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	console.Summary(summary)

	results, passed := threshold.Evaluate(summary, runFlags.thresholds)
	console.Thresholds(results)

	if err := writeArtifacts(summary, results, passed); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	if !passed {
		return 1
	}
	return 0
}

func buildConfig(url string) (*config.TestConfig, error) {
	cfg := &config.TestConfig{
		Name:         runFlags.name,
		URL:          url,
		Workers:      runFlags.workers,
		Duration:     config.Duration(runFlags.duration),
		RPS:          runFlags.rps,
		Timeout:      config.Duration(runFlags.timeout),
		Stagger:      config.StaggerPolicy(runFlags.stagger),
		RampFraction: runFlags.rampFraction,
		MaxAttempts:  runFlags.maxAttempts,
	}

	for _, h := range runFlags.headers {
		key, value, found := strings.Cut(h, ":")
		if !found {
			return nil, fmt.Errorf("invalid header %q, expected 'key: value'", h)
		}
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		cfg.Headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	if runFlags.scenarioFile != "" {
		scenario, err := config.LoadScenario(runFlags.scenarioFile)
		if err != nil {
			return nil, err
		}
		cfg.Scenario = scenario
	}

	return cfg, nil
}

func writeArtifacts(summary *metrics.Summary, results []threshold.Result, passed bool) error {
	rep := &report.Report{Summary: summary, Thresholds: results, Passed: passed}

	if runFlags.jsonPath != "" {
		if err := report.WriteJSON(runFlags.jsonPath, rep); err != nil {
			return err
		}
		fmt.Println("JSON report saved:", runFlags.jsonPath)
	}
	if runFlags.htmlPath != "" {
		if err := report.WriteHTML(runFlags.htmlPath, rep); err != nil {
			return err
		}
		fmt.Println("HTML report saved:", runFlags.htmlPath)
	}
	if runFlags.historyDir != "" {
		store, err := history.NewStore(runFlags.historyDir)
		if err != nil {
			return err
		}
		path, err := store.Save(summary)
		if err != nil {
			return err
		}
		fmt.Println("Run recorded:", path)
	}
	return nil
}
