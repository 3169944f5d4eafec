package commands

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"nova_bridge/pkg/ai/providers"
	"nova_bridge/pkg/bridge"
	"nova_bridge/pkg/processor"
)

type panicHandler struct{}

func (h *panicHandler) Name() string        { return "boom" }
func (h *panicHandler) Description() string { return "always panics" }
func (h *panicHandler) Execute(ctx context.Context, input string) bridge.Response {
	panic("handler exploded")
}

func newTestDispatcher() *Dispatcher {
	b := bridge.New(processor.Func(func(ctx context.Context, text string) (string, error) {
		return "Echo from backend: " + text, nil
	}), bridge.Options{})

	d := NewDispatcher(nil)
	d.Register(&ChatHandler{Bridge: b})
	d.Register(&ProvidersHandler{Registry: providers.NewRegistry(), Active: "echo"})
	d.Register(&VersionHandler{})
	return d
}

func TestDispatcher_Chat(t *testing.T) {
	d := newTestDispatcher()

	resp := d.Dispatch(context.Background(), "chat", "hello")
	if !resp.OK() {
		t.Fatalf("Expected success, got %+v", resp.Failure)
	}
	if resp.Text != "Echo from backend: hello" {
		t.Errorf("Expected echo, got %q", resp.Text)
	}
}

func TestDispatcher_Dispatch_UnknownCommand(t *testing.T) {
	d := newTestDispatcher()

	resp := d.Dispatch(context.Background(), "unknown", "x")
	if resp.OK() {
		t.Fatal("Expected failure for unknown command")
	}
	if resp.Failure.Kind != processor.KindInvalidInput {
		t.Errorf("Expected invalid_input, got %q", resp.Failure.Kind)
	}
	if resp.Failure.Reason != "unknown command: unknown" {
		t.Errorf("Unexpected reason %q", resp.Failure.Reason)
	}
}

func TestDispatcher_PanickingHandler(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(&panicHandler{})

	resp := d.Dispatch(context.Background(), "boom", "")
	if resp.OK() {
		t.Fatal("Expected failure")
	}
	if resp.Failure.Kind != processor.KindProcessorError {
		t.Errorf("Expected processor_error, got %q", resp.Failure.Kind)
	}
	if !strings.Contains(resp.Failure.Reason, "handler exploded") {
		t.Errorf("Expected panic value in reason, got %q", resp.Failure.Reason)
	}
}

func TestDispatcher_LogsToInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	d := NewDispatcher(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	d.Register(&panicHandler{})

	d.Dispatch(context.Background(), "boom", "")
	d.Dispatch(context.Background(), "nope", "")

	out := buf.String()
	for _, event := range []string{"command_dispatch", "command_panic", "command_unknown"} {
		if !strings.Contains(out, "msg="+event) {
			t.Errorf("Expected %s entry, got:\n%s", event, out)
		}
	}
}

func TestDispatcher_Handlers(t *testing.T) {
	d := newTestDispatcher()

	handlers := d.Handlers()
	var names []string
	for _, h := range handlers {
		names = append(names, h.Name())
		if h.Description() == "" {
			t.Errorf("Expected description for %s", h.Name())
		}
	}
	if strings.Join(names, ",") != "chat,providers,version" {
		t.Errorf("Expected sorted handlers, got %v", names)
	}
}

func TestProvidersHandler(t *testing.T) {
	d := newTestDispatcher()

	resp := d.Dispatch(context.Background(), "providers", "")
	if !resp.OK() {
		t.Fatalf("Expected success, got %+v", resp.Failure)
	}
	for _, want := range []string{"* echo", "  openai", "  anthropic", "  google", "  copilot", "  openrouter"} {
		if !strings.Contains(resp.Text, want) {
			t.Errorf("Expected %q in providers output:\n%s", want, resp.Text)
		}
	}
}

func TestVersionHandler(t *testing.T) {
	d := newTestDispatcher()

	resp := d.Dispatch(context.Background(), "version", "")
	if !resp.OK() || !strings.Contains(resp.Text, "nova_bridge version") {
		t.Errorf("Unexpected version response: %+v", resp)
	}
}
