// Package config provides the typed configuration for a load test run.
package config

import (
	"time"
)

// TestConfig is the immutable configuration for a single run.
//
// It is built once, validated once, and never mutated afterwards. The engine
// performs no argument parsing or environment lookup itself; callers (the CLI
// or an embedding program) construct this value and hand it over.
//
// Example YAML:
//
//	name: "checkout smoke"
//	url: "https://api.example.com"
//	workers: 50
//	duration: 30s
//	rps: 200
//	stagger: ramp
type TestConfig struct {
	// Name of the test (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// URL is the target base URL; step paths are appended to it
	URL string `json:"url" yaml:"url"`

	// Workers is the requested concurrency (may be clamped by the governor)
	Workers int `json:"workers" yaml:"workers"`

	// Duration is how long to generate load
	Duration Duration `json:"duration" yaml:"duration"`

	// RPS is the optional target request rate; 0 means unlimited
	RPS float64 `json:"rps,omitempty" yaml:"rps,omitempty"`

	// Timeout is the per-request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Stagger selects how workers start relative to run start
	Stagger StaggerPolicy `json:"stagger,omitempty" yaml:"stagger,omitempty"`

	// RampFraction is the portion of Duration over which workers start
	// under the ramp stagger policy
	RampFraction float64 `json:"rampFraction,omitempty" yaml:"rampFraction,omitempty"`

	// MaxAttempts caps request attempts (first try included)
	MaxAttempts int `json:"maxAttempts,omitempty" yaml:"maxAttempts,omitempty"`

	// Headers are default headers applied to every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Scenario is the step sequence each worker loops through
	Scenario *Scenario `json:"scenario,omitempty" yaml:"scenario,omitempty"`
}

// StaggerPolicy selects when each worker begins issuing requests.
type StaggerPolicy string

const (
	// StaggerSteady starts every worker at t=0.
	StaggerSteady StaggerPolicy = "steady"

	// StaggerSpike is identical to steady: maximal concurrency immediately.
	StaggerSpike StaggerPolicy = "spike"

	// StaggerRamp delays worker i by i * (rampWindow / N).
	StaggerRamp StaggerPolicy = "ramp"
)

// Scenario is an ordered step sequence with a think-time window applied
// between steps. Workers loop back to the first step after the last.
type Scenario struct {
	// Name of the scenario (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// ThinkTimeMs is the [min,max] pause between steps, in milliseconds
	ThinkTimeMs []int `json:"thinkTimeMs,omitempty" yaml:"thinkTimeMs,omitempty"`

	// Steps to execute in order
	Steps []Step `json:"steps" yaml:"steps"`
}

// Step defines a single HTTP request within a scenario.
type Step struct {
	// Name for this step (used in logs and per-step metrics)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// HTTP method
	Method string `json:"method" yaml:"method"`

	// Path relative to the base URL (supports {{var}} substitution)
	Path string `json:"path" yaml:"path"`

	// Headers for this step (supports {{var}} substitution)
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Body payload (supports {{var}} substitution)
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// Extract pulls values out of the response into worker variables
	Extract []Extract `json:"extract,omitempty" yaml:"extract,omitempty"`
}

// Extract defines how to pull a value from a step's response.
type Extract struct {
	// Name of the variable to store
	Name string `json:"name" yaml:"name"`

	// Source: "body", "header", or "status"
	Source string `json:"source" yaml:"source"`

	// Path: gjson path for body, header name for header
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Defaults applied by ApplyDefaults.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxAttempts  = 3
	DefaultRampFraction = 0.3
	DefaultThinkMinMs   = 100
	DefaultThinkMaxMs   = 500
)

// DefaultScenario returns the zero-config scenario: one unauthenticated GET
// at the base path with think time 100-500ms.
func DefaultScenario() *Scenario {
	return &Scenario{
		Name:        "default",
		ThinkTimeMs: []int{DefaultThinkMinMs, DefaultThinkMaxMs},
		Steps: []Step{
			{Name: "home", Method: "GET", Path: "/"},
		},
	}
}

// ApplyDefaults fills in unset optional fields.
func ApplyDefaults(c *TestConfig) {
	if c.Timeout == 0 {
		c.Timeout = Duration(DefaultTimeout)
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Stagger == "" {
		c.Stagger = StaggerSteady
	}
	if c.RampFraction == 0 {
		c.RampFraction = DefaultRampFraction
	}
	if c.Scenario == nil {
		c.Scenario = DefaultScenario()
	}
	if c.Scenario.ThinkTimeMs == nil {
		c.Scenario.ThinkTimeMs = []int{DefaultThinkMinMs, DefaultThinkMaxMs}
	}
	for i := range c.Scenario.Steps {
		if c.Scenario.Steps[i].Method == "" {
			c.Scenario.Steps[i].Method = "GET"
		}
	}
}

// ThinkTime returns the scenario's think-time window as durations.
func (s *Scenario) ThinkTime() (min, max time.Duration) {
	if len(s.ThinkTimeMs) == 2 {
		return time.Duration(s.ThinkTimeMs[0]) * time.Millisecond,
			time.Duration(s.ThinkTimeMs[1]) * time.Millisecond
	}
	return 0, 0
}

// Duration is a time.Duration that marshals as a string ("30s", "2m").
type Duration time.Duration

// GetDuration returns the duration or a default if unset.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return d.parse(s)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if s == "" || s == "null" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}
