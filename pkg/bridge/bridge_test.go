package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nova_bridge/pkg/ai"
	"nova_bridge/pkg/ai/providers"
	"nova_bridge/pkg/config"
	"nova_bridge/pkg/processor"
)

func newEchoBridge(t *testing.T, opts Options) *Bridge {
	t.Helper()
	provider, err := providers.NewEchoProvider(ai.ProviderConfig{Type: ai.ProviderEcho, Config: config.Default()})
	if err != nil {
		t.Fatalf("NewEchoProvider() error: %v", err)
	}
	return New(processor.FromProvider(provider, processor.Options{}), opts)
}

// blockingProcessor ignores ctx until release is closed.
func blockingProcessor(t *testing.T) processor.Processor {
	t.Helper()
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	return processor.Func(func(ctx context.Context, text string) (string, error) {
		<-release
		return "too late", nil
	})
}

func TestHandle_EchoScenarios(t *testing.T) {
	b := newEchoBridge(t, Options{Timeout: time.Second})

	tests := []struct {
		input string
		want  string
	}{
		{"hello", "Echo from backend: hello"},
		{"", "Echo from backend: "},
	}
	for _, tt := range tests {
		resp := b.Handle(context.Background(), tt.input)
		if !resp.OK() {
			t.Fatalf("Handle(%q) failed: %+v", tt.input, resp.Failure)
		}
		if resp.Text != tt.want {
			t.Fatalf("Handle(%q) = %q, want %q", tt.input, resp.Text, tt.want)
		}
	}
}

func TestHandle_AnyInputYieldsOneResponse(t *testing.T) {
	b := newEchoBridge(t, Options{Timeout: time.Second})

	inputs := []string{
		"",
		"plain",
		"\x00\x01\x02",
		"tab\tnew\nline\r",
		"\x1b[31mred\x1b[0m",
		"héllo 世界 🚀",
		strings.Repeat("a", 64*1024),
		string([]byte{0xff, 0xfe}),
	}
	for _, input := range inputs {
		resp := b.Handle(context.Background(), input)
		if !resp.OK() {
			t.Fatalf("Handle(%q) failed: %+v", input, resp.Failure)
		}
		if resp.Text != "Echo from backend: "+input {
			t.Fatalf("Handle(%q) returned %q", input, resp.Text)
		}
	}
}

func TestHandle_ReturnsProcessorTextUnchanged(t *testing.T) {
	b := New(processor.Func(func(ctx context.Context, text string) (string, error) {
		return "  raw\nreply  ", nil
	}), Options{})

	resp := b.Handle(context.Background(), "x")
	if resp.Text != "  raw\nreply  " {
		t.Fatalf("Expected unchanged reply, got %q", resp.Text)
	}
}

func TestHandle_ProcessorErrorReasonIsVerbatim(t *testing.T) {
	b := New(processor.Func(func(ctx context.Context, text string) (string, error) {
		return "", processor.NewError("model refused the prompt")
	}), Options{})

	resp := b.Handle(context.Background(), "x")
	if resp.OK() {
		t.Fatal("Expected failure")
	}
	if resp.Failure.Kind != processor.KindProcessorError {
		t.Fatalf("Expected processor_error, got %q", resp.Failure.Kind)
	}
	if resp.Failure.Reason != "model refused the prompt" {
		t.Fatalf("Expected verbatim reason, got %q", resp.Failure.Reason)
	}
}

func TestHandle_BlankErrorStillHasReason(t *testing.T) {
	errs := []error{
		errors.New(""),
		processor.NewError(""),
		processor.NewError("   "),
	}
	for _, procErr := range errs {
		b := New(processor.Func(func(ctx context.Context, text string) (string, error) {
			return "", procErr
		}), Options{})

		resp := b.Handle(context.Background(), "x")
		if resp.OK() {
			t.Fatalf("Expected failure for %#v", procErr)
		}
		if resp.Failure.Kind != processor.KindProcessorError {
			t.Fatalf("Expected processor_error, got %q", resp.Failure.Kind)
		}
		if resp.Failure.Reason != "processor error" {
			t.Fatalf("Expected default reason, got %q", resp.Failure.Reason)
		}
	}
}

func TestHandle_Unavailable(t *testing.T) {
	b := New(processor.Func(func(ctx context.Context, text string) (string, error) {
		return "", processor.Unavailable(errors.New("connection refused"))
	}), Options{Timeout: time.Second})

	start := time.Now()
	resp := b.Handle(context.Background(), "hello")
	if resp.OK() {
		t.Fatal("Expected failure")
	}
	if resp.Failure.Kind != processor.KindUnavailable {
		t.Fatalf("Expected unavailable, got %q", resp.Failure.Kind)
	}
	if !strings.Contains(resp.Failure.Reason, "unavailable") {
		t.Fatalf("Expected reason to mention unavailable, got %q", resp.Failure.Reason)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Expected immediate failure, took %s", elapsed)
	}
}

func TestHandle_TimeoutAtDeadline(t *testing.T) {
	timeout := 50 * time.Millisecond
	b := New(blockingProcessor(t), Options{Timeout: timeout})

	start := time.Now()
	resp := b.Handle(context.Background(), "slow")
	elapsed := time.Since(start)

	if resp.OK() {
		t.Fatalf("Expected timeout, got %q", resp.Text)
	}
	if resp.Failure.Kind != processor.KindTimeout {
		t.Fatalf("Expected timeout kind, got %q", resp.Failure.Kind)
	}
	if !strings.Contains(resp.Failure.Reason, "timeout") {
		t.Fatalf("Expected reason to mention timeout, got %q", resp.Failure.Reason)
	}
	if elapsed < timeout {
		t.Fatalf("Returned before the deadline: %s", elapsed)
	}
	if elapsed > timeout+time.Second {
		t.Fatalf("Returned too long after the deadline: %s", elapsed)
	}
}

func TestHandle_CallerDeadlineWithoutBridgeTimeout(t *testing.T) {
	b := New(blockingProcessor(t), Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	resp := b.Handle(ctx, "slow")
	if resp.OK() || resp.Failure.Kind != processor.KindTimeout {
		t.Fatalf("Expected timeout, got %+v", resp)
	}
}

func TestHandle_Cancelled(t *testing.T) {
	b := New(blockingProcessor(t), Options{Timeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	resp := b.Handle(ctx, "bye")
	if resp.OK() {
		t.Fatal("Expected failure")
	}
	if resp.Failure.Kind != processor.KindCancelled {
		t.Fatalf("Expected cancelled, got %q", resp.Failure.Kind)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Cancellation took %s", elapsed)
	}
}

func TestHandle_ProcessorPanicIsContained(t *testing.T) {
	b := New(processor.Func(func(ctx context.Context, text string) (string, error) {
		panic("kaboom")
	}), Options{Timeout: time.Second})

	resp := b.Handle(context.Background(), "x")
	if resp.OK() {
		t.Fatal("Expected failure")
	}
	if resp.Failure.Kind != processor.KindProcessorError {
		t.Fatalf("Expected processor_error, got %q", resp.Failure.Kind)
	}
	if !strings.Contains(resp.Failure.Reason, "kaboom") {
		t.Fatalf("Expected panic value in reason, got %q", resp.Failure.Reason)
	}
}

func TestHandle_ConcurrentRequestsDoNotCrossTalk(t *testing.T) {
	b := New(processor.Func(func(ctx context.Context, text string) (string, error) {
		time.Sleep(time.Duration(len(text)%5) * time.Millisecond)
		return "reply:" + text, nil
	}), Options{Timeout: 5 * time.Second})

	const workers = 64
	var wg sync.WaitGroup
	errs := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := fmt.Sprintf("msg-%d", i)
			resp := b.Handle(context.Background(), input)
			if resp.Text != "reply:"+input {
				errs <- fmt.Sprintf("input %q got %q", input, resp.Text)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestHandle_NoGlobalSerialization(t *testing.T) {
	var inFlight, peak int32
	b := New(processor.Func(func(ctx context.Context, text string) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return text, nil
	}), Options{Timeout: 5 * time.Second})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Handle(context.Background(), "x")
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&peak) < 2 {
		t.Fatalf("Expected requests to overlap, peak concurrency %d", peak)
	}
}

func TestHandle_RetryDisabledByDefault(t *testing.T) {
	var calls int32
	b := New(processor.Func(func(ctx context.Context, text string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", processor.ErrUnavailable
	}), Options{Timeout: time.Second})

	b.Handle(context.Background(), "x")
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("Expected a single attempt, got %d", got)
	}
}

func TestHandle_RetryUnavailable(t *testing.T) {
	var calls int32
	b := New(processor.Func(func(ctx context.Context, text string) (string, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return "", processor.ErrUnavailable
		}
		return "finally", nil
	}), Options{
		Timeout: 5 * time.Second,
		Retry:   RetryOptions{Enabled: true, MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
	})

	resp := b.Handle(context.Background(), "x")
	if !resp.OK() || resp.Text != "finally" {
		t.Fatalf("Expected success after retries, got %+v", resp)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("Expected 3 attempts, got %d", got)
	}
}

func TestHandle_RetryStopsAtMaxAttempts(t *testing.T) {
	var calls int32
	b := New(processor.Func(func(ctx context.Context, text string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", processor.ErrUnavailable
	}), Options{
		Timeout: 5 * time.Second,
		Retry:   RetryOptions{Enabled: true, MaxAttempts: 4, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
	})

	resp := b.Handle(context.Background(), "x")
	if resp.OK() || resp.Failure.Kind != processor.KindUnavailable {
		t.Fatalf("Expected unavailable, got %+v", resp)
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Fatalf("Expected 4 attempts, got %d", got)
	}
}

func TestHandle_RetrySkipsProcessorErrors(t *testing.T) {
	var calls int32
	b := New(processor.Func(func(ctx context.Context, text string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", processor.NewError("bad request")
	}), Options{
		Retry: RetryOptions{Enabled: true, MaxAttempts: 5, InitialInterval: time.Millisecond},
	})

	resp := b.Handle(context.Background(), "x")
	if resp.OK() || resp.Failure.Kind != processor.KindProcessorError {
		t.Fatalf("Expected processor_error, got %+v", resp)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("Expected no retries, got %d attempts", got)
	}
}

func TestHandle_RetryRespectsDeadline(t *testing.T) {
	b := New(processor.Func(func(ctx context.Context, text string) (string, error) {
		return "", processor.ErrUnavailable
	}), Options{
		Timeout: 60 * time.Millisecond,
		Retry:   RetryOptions{Enabled: true, MaxAttempts: 100, InitialInterval: 40 * time.Millisecond, MaxInterval: 40 * time.Millisecond},
	})

	start := time.Now()
	resp := b.Handle(context.Background(), "x")
	if resp.OK() {
		t.Fatal("Expected failure")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Retries ran past the deadline: %s", elapsed)
	}
}

func TestHandle_BreakerFailsFast(t *testing.T) {
	var calls int32
	b := New(processor.Func(func(ctx context.Context, text string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", processor.ErrUnavailable
	}), Options{
		Breaker: BreakerOptions{Enabled: true, ConsecutiveFailures: 2, OpenTimeout: time.Minute},
	})

	for i := 0; i < 2; i++ {
		b.Handle(context.Background(), "x")
	}
	resp := b.Handle(context.Background(), "x")

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("Expected open breaker to skip the processor, got %d calls", got)
	}
	if resp.OK() || resp.Failure.Kind != processor.KindUnavailable {
		t.Fatalf("Expected unavailable from open breaker, got %+v", resp)
	}
	if !strings.Contains(resp.Failure.Reason, "unavailable") {
		t.Fatalf("Expected reason to mention unavailable, got %q", resp.Failure.Reason)
	}
}

func TestHandle_BreakerIgnoresProcessorErrors(t *testing.T) {
	var calls int32
	b := New(processor.Func(func(ctx context.Context, text string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", processor.NewError("nope")
	}), Options{
		Breaker: BreakerOptions{Enabled: true, ConsecutiveFailures: 1, OpenTimeout: time.Minute},
	})

	for i := 0; i < 3; i++ {
		b.Handle(context.Background(), "x")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("Expected breaker to stay closed, got %d calls", got)
	}
}

func TestHandle_RateLimitWaitBeyondDeadline(t *testing.T) {
	b := newEchoBridge(t, Options{Timeout: 50 * time.Millisecond, RequestsPerMinute: 1})

	if resp := b.Handle(context.Background(), "first"); !resp.OK() {
		t.Fatalf("Expected first request to pass, got %+v", resp.Failure)
	}
	resp := b.Handle(context.Background(), "second")
	if resp.OK() || resp.Failure.Kind != processor.KindTimeout {
		t.Fatalf("Expected timeout while waiting for the limiter, got %+v", resp)
	}
}

func TestHandle_LogsOneInfoEntryWithoutContent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	b := newEchoBridge(t, Options{Logger: logger})

	secret := "my password is hunter2"
	b.Handle(context.Background(), secret)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected exactly one info entry, got %d: %s", len(lines), buf.String())
	}
	if strings.Contains(buf.String(), "hunter2") {
		t.Fatalf("Log leaked message content: %s", buf.String())
	}
	for _, want := range []string{`"msg":"bridge_request"`, `"message_bytes":22`, `"request_id"`} {
		if !strings.Contains(lines[0], want) {
			t.Fatalf("Expected %s in log entry, got %s", want, lines[0])
		}
	}
}

func TestHandle_NilLoggerAndContext(t *testing.T) {
	b := newEchoBridge(t, Options{})

	var ctx context.Context
	resp := b.Handle(ctx, "hi")
	if resp.Text != "Echo from backend: hi" {
		t.Fatalf("Expected echo, got %+v", resp)
	}
}

func TestChat(t *testing.T) {
	b := newEchoBridge(t, Options{})
	text, err := b.Chat(context.Background(), "hello")
	if err != nil || text != "Echo from backend: hello" {
		t.Fatalf("Chat() = %q, %v", text, err)
	}

	failing := New(processor.Func(func(ctx context.Context, text string) (string, error) {
		return "", processor.ErrUnavailable
	}), Options{})
	_, err = failing.Chat(context.Background(), "hello")
	var failure *FailureError
	if !errors.As(err, &failure) {
		t.Fatalf("Expected *FailureError, got %T", err)
	}
	if !errors.Is(err, processor.ErrUnavailable) {
		t.Fatalf("Expected errors.Is(err, ErrUnavailable), got %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default().Bridge
	cfg.Retry.Enabled = true
	cfg.RequestsPerMinute = 30

	opts := OptionsFromConfig(cfg, nil)
	if opts.Timeout != 30*time.Second {
		t.Fatalf("Expected 30s timeout, got %s", opts.Timeout)
	}
	if !opts.Retry.Enabled || opts.Retry.MaxAttempts != 3 || opts.Retry.InitialInterval != 200*time.Millisecond {
		t.Fatalf("Unexpected retry options: %+v", opts.Retry)
	}
	if opts.Breaker.Enabled || opts.Breaker.OpenTimeout != 30*time.Second {
		t.Fatalf("Unexpected breaker options: %+v", opts.Breaker)
	}
	if opts.RequestsPerMinute != 30 {
		t.Fatalf("Expected 30 requests per minute, got %d", opts.RequestsPerMinute)
	}
}
