package retry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"agentbridge/pkg/agent/apierrors"
	"agentbridge/pkg/agent/metrics"
	"agentbridge/pkg/agent/resilience/ratelimit"
	"agentbridge/pkg/logx"
)

// RequestFactory builds a fresh *http.Request for each attempt. Request
// bodies are consumed on send, so the executor cannot reuse one request
// across attempts.
type RequestFactory func(ctx context.Context) (*http.Request, error)

// verdict tags the outcome of a single attempt.
type verdict int8

const (
	verdictReturn verdict = iota // Terminal: hand the response to the caller
	verdictRetry                 // Sleep for delay, then try again
	verdictFatal                 // Terminal: propagate the error
)

// outcome is the tagged result of assessing one attempt.
type outcome struct {
	resp    *http.Response
	err     error
	delay   time.Duration
	verdict verdict
}

// Executor performs one logical HTTP call with token-bucket admission,
// cooldown awareness, and retry with exponential backoff plus jitter.
type Executor struct {
	transport *http.Client
	limiter   *ratelimit.Limiter
	policy    Policy
	recorder  metrics.Recorder
	logger    *logx.Logger

	// sendMu serializes "acquire token -> issue HTTP call" so request
	// issuance order observed downstream matches acquisition order.
	// Limiter bookkeeping has its own lock inside ratelimit.Limiter.
	sendMu sync.Mutex
}

// NewExecutor creates an executor around the given transport and limiter.
// A nil recorder disables metrics; a nil logger disables logging.
func NewExecutor(transport *http.Client, limiter *ratelimit.Limiter, policy Policy, recorder metrics.Recorder, logger *logx.Logger) *Executor {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	if logger == nil {
		logger = logx.NewLogger("retry")
	}
	return &Executor{
		transport: transport,
		limiter:   limiter,
		policy:    policy,
		recorder:  recorder,
		logger:    logger,
	}
}

// Do performs one logical call with up to MaxRetries+1 attempts. Before every
// attempt it acquires a token from the limiter. A 429 that survives all
// attempts is returned as a response, not an error; a transport failure that
// survives all attempts is returned as a transient fault.
func (e *Executor) Do(ctx context.Context, build RequestFactory) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := e.attempt(ctx, req)
		if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
			return nil, ctxErr
		}

		out := e.assess(attempt, resp, err)
		switch out.verdict {
		case verdictReturn:
			return out.resp, nil
		case verdictFatal:
			return nil, out.err
		case verdictRetry:
			e.logger.Info("backing off %v before retry (attempt %d/%d)",
				out.delay.Round(time.Millisecond), attempt+1, e.policy.MaxRetries+1)
			if err := sleepCtx(ctx, out.delay); err != nil {
				return nil, err
			}
		}
	}
}

// attempt acquires a token and issues the HTTP request under the send lock.
func (e *Executor) attempt(ctx context.Context, req *http.Request) (*http.Response, error) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	waitStart := time.Now()
	if err := e.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	e.recorder.ObserveLimiterWait(time.Since(waitStart))

	e.recorder.IncAttempt()
	return e.transport.Do(req) //nolint:wrapcheck // Classified by assess
}

// assess maps one attempt's result to a tagged outcome. Any status other than
// 429 is terminal at this layer; classification of non-2xx statuses happens
// one layer up.
func (e *Executor) assess(attempt int, resp *http.Response, err error) outcome {
	exhausted := attempt >= e.policy.MaxRetries

	if err != nil {
		if exhausted {
			return outcome{
				verdict: verdictFatal,
				err: apierrors.NewWithCause(apierrors.FaultTransient, err,
					fmt.Sprintf("transport failure after %d attempts", attempt+1)),
			}
		}
		e.logger.Warn("transport error on attempt %d: %v", attempt+1, err)
		return outcome{verdict: verdictRetry, delay: e.policy.SleepFor(attempt+1, 0)}
	}

	if resp.StatusCode != http.StatusTooManyRequests {
		return outcome{verdict: verdictReturn, resp: resp}
	}

	hint, hinted := RetryHint(resp)
	if hinted {
		e.limiter.RegisterViolation(hint)
	} else {
		e.limiter.RegisterViolation(0)
	}
	e.recorder.IncThrottle("rate_limited")
	e.recorder.IncCooldown()
	e.logger.Warn("rate limited by agent service (attempt %d/%d, hint=%v)",
		attempt+1, e.policy.MaxRetries+1, hint)

	if exhausted {
		// Exhaustion on rate limiting is a terminal response, not a fault.
		return outcome{verdict: verdictReturn, resp: resp}
	}
	drainBody(resp)
	return outcome{verdict: verdictRetry, delay: e.policy.SleepFor(attempt+1, hint)}
}

// drainBody closes an intermediate response body so the transport can reuse
// the connection.
func drainBody(resp *http.Response) {
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck // Context error propagated as-is
	case <-timer.C:
		return nil
	}
}
