// Package bridge forwards frontend messages to a processor and turns every
// outcome into exactly one Response.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"nova_bridge/pkg/config"
	"nova_bridge/pkg/logging"
	"nova_bridge/pkg/processor"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// RetryOptions configures retries of unavailable processors.
type RetryOptions struct {
	Enabled         bool
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// BreakerOptions configures the circuit breaker in front of the processor.
type BreakerOptions struct {
	Enabled             bool
	ConsecutiveFailures int
	OpenTimeout         time.Duration
}

// Options tune a Bridge. The zero value means no deadline, no rate limit,
// a single attempt and no breaker.
type Options struct {
	Timeout           time.Duration
	Logger            *slog.Logger
	RequestsPerMinute int
	Retry             RetryOptions
	Breaker           BreakerOptions
}

// OptionsFromConfig converts the bridge section of the config.
func OptionsFromConfig(cfg config.BridgeConfig, logger *slog.Logger) Options {
	return Options{
		Timeout:           time.Duration(cfg.TimeoutSeconds) * time.Second,
		Logger:            logger,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Retry: RetryOptions{
			Enabled:         cfg.Retry.Enabled,
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: time.Duration(cfg.Retry.InitialIntervalMillis) * time.Millisecond,
			MaxInterval:     time.Duration(cfg.Retry.MaxIntervalMillis) * time.Millisecond,
		},
		Breaker: BreakerOptions{
			Enabled:             cfg.CircuitBreaker.Enabled,
			ConsecutiveFailures: cfg.CircuitBreaker.ConsecutiveFailures,
			OpenTimeout:         time.Duration(cfg.CircuitBreaker.OpenSeconds) * time.Second,
		},
	}
}

// Bridge is safe for concurrent use. Requests share only the processor,
// the limiter and the breaker.
type Bridge struct {
	proc    processor.Processor
	opts    Options
	logger  *slog.Logger
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// New creates a bridge in front of proc.
func New(proc processor.Processor, opts Options) *Bridge {
	b := &Bridge{
		proc:   proc,
		opts:   opts,
		logger: opts.Logger,
	}
	if b.logger == nil {
		b.logger = logging.Discard()
	}

	if opts.RequestsPerMinute > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), opts.RequestsPerMinute)
	}

	if opts.Breaker.Enabled {
		failures := opts.Breaker.ConsecutiveFailures
		if failures < 1 {
			failures = 1
		}
		logger := b.logger
		b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "processor",
			MaxRequests: 1,
			Timeout:     opts.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(failures)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Debug("bridge_breaker_state", "from", from.String(), "to", to.String())
			},
			// Only an unreachable processor counts against the breaker.
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				kind, _ := processor.Classify(err)
				return kind != processor.KindUnavailable
			},
		})
	}

	return b
}

// Handle forwards message to the processor and returns its outcome. It never
// panics and returns once the processor answers, the deadline passes or ctx
// is cancelled, whichever happens first.
func (b *Bridge) Handle(ctx context.Context, message string) Response {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, requestID := logging.EnsureRequestID(ctx)
	logger := b.logger.With("request_id", requestID)

	logger.Info("bridge_request",
		"message_bytes", len(message),
		"message_runes", utf8.RuneCountInString(message),
	)

	callCtx := ctx
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := b.run(callCtx, logger, message)
	elapsed := time.Since(start)

	if err == nil {
		logger.Debug("bridge_success", "duration_ms", elapsed.Milliseconds(), "reply_bytes", len(text))
		return Success(text)
	}

	resp := b.failure(ctx, callCtx, err)
	logger.Debug("bridge_failure",
		"kind", resp.Failure.Kind,
		"reason", resp.Failure.Reason,
		"duration_ms", elapsed.Milliseconds(),
	)
	return resp
}

// Chat is the frontend form of Handle: the reply text, or a *FailureError.
func (b *Bridge) Chat(ctx context.Context, message string) (string, error) {
	resp := b.Handle(ctx, message)
	if err := resp.Err(); err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (b *Bridge) failure(callerCtx, callCtx context.Context, err error) Response {
	if errors.Is(callerCtx.Err(), context.Canceled) {
		return Fail(processor.KindCancelled, "request cancelled")
	}
	if callCtx.Err() != nil {
		return Fail(processor.KindTimeout, b.timeoutReason())
	}
	kind, reason := processor.Classify(err)
	return Fail(kind, reason)
}

func (b *Bridge) timeoutReason() string {
	if b.opts.Timeout > 0 {
		return fmt.Sprintf("processor timeout: no response within %s", b.opts.Timeout)
	}
	return "processor timeout: deadline exceeded"
}

func (b *Bridge) run(ctx context.Context, logger *slog.Logger, message string) (string, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", fmt.Errorf("%w: rate limit wait exceeds deadline", processor.ErrTimeout)
		}
	}

	if !b.opts.Retry.Enabled || b.opts.Retry.MaxAttempts <= 1 {
		return b.attempt(ctx, logger, message)
	}
	return b.retry(ctx, logger, message)
}

func (b *Bridge) retry(ctx context.Context, logger *slog.Logger, message string) (string, error) {
	policy := backoff.NewExponentialBackOff()
	if b.opts.Retry.InitialInterval > 0 {
		policy.InitialInterval = b.opts.Retry.InitialInterval
	}
	if b.opts.Retry.MaxInterval > 0 {
		policy.MaxInterval = b.opts.Retry.MaxInterval
	}
	// Bounded by attempts and the request deadline instead.
	policy.MaxElapsedTime = 0

	retries := uint64(b.opts.Retry.MaxAttempts - 1)
	policyWithContext := backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx)

	var text string
	operation := func() error {
		out, err := b.attempt(ctx, logger, message)
		if err == nil {
			text = out
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		if kind, _ := processor.Classify(err); kind != processor.KindUnavailable {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.Debug("bridge_retry", "error", err, "wait_ms", wait.Milliseconds())
	}

	if err := backoff.RetryNotify(operation, policyWithContext, notify); err != nil {
		return "", err
	}
	return text, nil
}

func (b *Bridge) attempt(ctx context.Context, logger *slog.Logger, message string) (string, error) {
	if b.breaker == nil {
		return b.invoke(ctx, logger, message)
	}

	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.invoke(ctx, logger, message)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", processor.Unavailable(err)
		}
		return "", err
	}
	return result.(string), nil
}

type result struct {
	text string
	err  error
}

// invoke runs the processor in its own goroutine so a processor that ignores
// ctx is abandoned at the deadline. The buffered channel lets the abandoned
// goroutine finish without a reader.
func (b *Bridge) invoke(ctx context.Context, logger *slog.Logger, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Debug("bridge_processor_panic", "panic", fmt.Sprint(r))
				done <- result{err: processor.NewError(fmt.Sprintf("processor panic: %v", r))}
			}
		}()
		text, err := b.proc.Process(ctx, message)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
