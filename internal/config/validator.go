package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one pass so callers can
// report them all at once.
type ValidationErrors struct {
	Errors []ValidationError
}

// Add appends a validation error.
func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

// HasErrors reports whether any error was recorded.
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration before a run starts. A failure here is
// fatal: no request is issued.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	if c.URL == "" {
		errs.Add("url", "target URL is required")
	} else if u, err := url.Parse(c.URL); err != nil {
		errs.Add("url", "invalid URL: "+err.Error())
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add("url", "URL scheme must be http or https")
	}

	if c.Workers <= 0 {
		errs.Add("workers", "workers must be > 0")
	}
	if c.Duration <= 0 {
		errs.Add("duration", "duration must be > 0")
	}
	if c.RPS < 0 {
		errs.Add("rps", "rps must be >= 0")
	}
	if c.Timeout < 0 {
		errs.Add("timeout", "timeout must be >= 0")
	}
	if c.MaxAttempts < 0 {
		errs.Add("maxAttempts", "maxAttempts must be >= 0")
	}

	switch c.Stagger {
	case "", StaggerSteady, StaggerSpike, StaggerRamp:
	default:
		errs.Add("stagger", "unknown stagger policy: "+string(c.Stagger))
	}
	// 0 means unset; ApplyDefaults fills in the default fraction.
	if c.RampFraction < 0 || c.RampFraction > 1 {
		errs.Add("rampFraction", "rampFraction must be between 0 and 1")
	}

	if c.Scenario != nil {
		validateScenario(c.Scenario, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateScenario(s *Scenario, errs *ValidationErrors) {
	if len(s.Steps) == 0 {
		errs.Add("scenario.steps", "at least one step is required")
	}

	if s.ThinkTimeMs != nil {
		if len(s.ThinkTimeMs) != 2 {
			errs.Add("scenario.thinkTimeMs", "thinkTimeMs must be [min, max]")
		} else if s.ThinkTimeMs[0] < 0 || s.ThinkTimeMs[1] < s.ThinkTimeMs[0] {
			errs.Add("scenario.thinkTimeMs", "thinkTimeMs requires 0 <= min <= max")
		}
	}

	for i, step := range s.Steps {
		prefix := fmt.Sprintf("scenario.steps[%d]", i)

		switch step.Method {
		case "", "GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS":
		default:
			errs.Add(prefix+".method", "unsupported method: "+step.Method)
		}

		if step.Path != "" && !strings.HasPrefix(step.Path, "/") {
			errs.Add(prefix+".path", "path must start with /")
		}

		for j, ext := range step.Extract {
			extPrefix := fmt.Sprintf("%s.extract[%d]", prefix, j)
			if ext.Name == "" {
				errs.Add(extPrefix+".name", "extract name is required")
			}
			switch ext.Source {
			case "body", "header":
				if ext.Path == "" {
					errs.Add(extPrefix+".path", "path is required for source "+ext.Source)
				}
			case "status":
			default:
				errs.Add(extPrefix+".source", "source must be body, header or status")
			}
		}
	}
}
