// Package httpclient executes individual load-test requests with bounded
// timeouts, bounded retries, and outcome classification.
package httpclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/avast/retry-go"
)

// Classification of a completed step.
type Classification string

const (
	// ClassSuccess is a received response with status < 400 (redirects are
	// not followed; a 3xx is a terminal successful exchange).
	ClassSuccess Classification = "success"

	// ClassApplicationError is a received 4xx/5xx. The HTTP exchange itself
	// succeeded, so it is never retried.
	ClassApplicationError Classification = "application_error"

	// ClassTransportError is a failure below the application layer.
	ClassTransportError Classification = "transport_error"
)

// TransportKind refines a transport error.
type TransportKind string

const (
	KindTimeout           TransportKind = "timeout"
	KindConnectionRefused TransportKind = "connection_refused"
	KindDNSFailure        TransportKind = "dns_failure"
	KindOther             TransportKind = "other"
)

// Outcome is the record produced once per executed step and consumed
// immediately by the aggregator.
type Outcome struct {
	WorkerID  int
	StepName  string
	Timestamp time.Time
	Latency   time.Duration

	Class         Classification
	Status        int // 0 when no response was received
	TransportKind TransportKind
	Attempts      int

	// Response payload, carried only so the worker can run extractions.
	// The aggregator never retains it.
	Body   []byte
	Header http.Header
}

// Success reports whether the exchange completed with status < 400.
func (o *Outcome) Success() bool {
	return o.Class == ClassSuccess
}

// backoffSchedule is the fixed delay before each retry: the first retry is
// immediate, then 100ms, 500ms, 1s. Attempts beyond the schedule reuse the
// last entry.
var backoffSchedule = []time.Duration{0, 100 * time.Millisecond, 500 * time.Millisecond, time.Second}

// Executor issues one HTTP step at a time over a shared, pooled transport.
//
// Redirects are never followed and received responses are never retried;
// only timeouts and connection-level failures are, up to the configured
// attempt cap.
type Executor struct {
	client      *http.Client
	maxAttempts int
}

// NewExecutor creates an executor with the given per-request timeout and
// attempt cap (first attempt included; values < 1 mean a single attempt).
func NewExecutor(timeout time.Duration, maxAttempts int) *Executor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	transport := &http.Transport{
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Executor{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxAttempts: maxAttempts,
	}
}

// Do executes one step and classifies the result. It always returns an
// Outcome; transport failures are recorded, never propagated.
func (e *Executor) Do(ctx context.Context, method, url string, headers map[string]string, body string) Outcome {
	start := time.Now()
	outcome := Outcome{Timestamp: start}

	attempts := 0
	var lastKind TransportKind

	err := retry.Do(
		func() error {
			attempts++

			var reader io.Reader
			if body != "" {
				reader = strings.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, method, url, reader)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			for k, v := range headers {
				req.Header.Set(k, v)
			}

			resp, err := e.client.Do(req)
			if err != nil {
				if ctx.Err() != nil {
					// The run is being cancelled; don't burn retries on it.
					lastKind = classifyTransport(err)
					return retry.Unrecoverable(err)
				}
				lastKind = classifyTransport(err)
				return err
			}
			defer resp.Body.Close()

			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				lastKind = classifyTransport(err)
				return err
			}

			outcome.Status = resp.StatusCode
			outcome.Body = respBody
			outcome.Header = resp.Header
			if resp.StatusCode >= 400 {
				outcome.Class = ClassApplicationError
			} else {
				outcome.Class = ClassSuccess
			}
			return nil
		},
		retry.Attempts(uint(e.maxAttempts)),
		retry.DelayType(scheduleDelay),
		retry.LastErrorOnly(true),
	)

	outcome.Latency = time.Since(start)
	outcome.Attempts = attempts

	if err != nil {
		outcome.Class = ClassTransportError
		if lastKind == "" {
			lastKind = classifyTransport(err)
		}
		outcome.TransportKind = lastKind
	}
	return outcome
}

// CloseIdleConnections releases pooled connections after a run.
func (e *Executor) CloseIdleConnections() {
	e.client.CloseIdleConnections()
}

// scheduleDelay maps the retry index onto the fixed backoff schedule.
func scheduleDelay(n uint, _ error, _ *retry.Config) time.Duration {
	if int(n) >= len(backoffSchedule) {
		return backoffSchedule[len(backoffSchedule)-1]
	}
	return backoffSchedule[n]
}

// classifyTransport buckets a transport-level error by kind.
func classifyTransport(err error) TransportKind {
	if err == nil {
		return KindOther
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNSFailure
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return KindConnectionRefused
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	return KindOther
}
