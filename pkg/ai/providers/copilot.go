package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nova_bridge/pkg/ai"
	"nova_bridge/pkg/processor"

	copilot "github.com/github/copilot-sdk/go"
)

const (
	copilotDefaultModel   = "gpt-4o"
	copilotDefaultTimeout = 30 * time.Second
)

var copilotInfo = ai.ProviderInfo{
	Type:         ai.ProviderCopilot,
	Name:         "GitHub Copilot",
	Description:  "GitHub Copilot through the local Copilot CLI (run `copilot auth` first)",
	AuthMethod:   "copilot_cli",
	RequiresKey:  false,
	DefaultModel: copilotDefaultModel,
}

// copilotClient is the slice of the SDK client used per request.
type copilotClient interface {
	Start() error
	Stop() []error
	GetAuthStatus() (*copilot.GetAuthStatusResponse, error)
	CreateSession(config *copilot.SessionConfig) (copilotSession, error)
}

type copilotSession interface {
	SendAndWait(options copilot.MessageOptions, timeout time.Duration) (*copilot.SessionEvent, error)
	Abort() error
	Destroy() error
}

// sdkClient adapts *copilot.Client, whose CreateSession returns a concrete type.
type sdkClient struct {
	*copilot.Client
}

func (c sdkClient) CreateSession(config *copilot.SessionConfig) (copilotSession, error) {
	session, err := c.Client.CreateSession(config)
	if err != nil {
		return nil, err
	}
	return session, nil
}

var newCopilotClient = func() copilotClient {
	return sdkClient{copilot.NewClient(nil)}
}

// CopilotProvider answers each request in its own CLI session. The CLI is
// started and stopped around every call, so an idle bridge holds no process.
type CopilotProvider struct {
	client       copilotClient
	defaultModel string
	timeout      time.Duration
}

// NewCopilotProvider creates the Copilot backend from config. Temperature and
// max_tokens have no Copilot equivalent and are ignored.
func NewCopilotProvider(cfg ai.ProviderConfig) (ai.Provider, error) {
	settings := cfg.Config.Providers.Copilot

	p := &CopilotProvider{
		client:       newCopilotClient(),
		defaultModel: strings.TrimSpace(settings.Model),
		timeout:      time.Duration(settings.APITimeoutSeconds) * time.Second,
	}
	if p.defaultModel == "" {
		p.defaultModel = copilotDefaultModel
	}
	if p.timeout <= 0 {
		p.timeout = copilotDefaultTimeout
	}

	slog.Debug("provider_ready", "provider", "copilot", "model", p.defaultModel, "timeout", p.timeout.String())
	return p, nil
}

// copilotPrompt is a conversation flattened into Copilot's single-prompt form.
type copilotPrompt struct {
	system string
	text   string
}

// CreateChatCompletion sends the flattened conversation and waits for the
// assistant message. A CLI that cannot start is reported as unavailable.
func (p *CopilotProvider) CreateChatCompletion(ctx context.Context, req ai.ChatRequest) (ai.ChatResponse, error) {
	prompt, err := flattenForCopilot(req)
	if err != nil {
		return ai.ChatResponse{}, err
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.defaultModel
	}

	if err := p.client.Start(); err != nil {
		return ai.ChatResponse{}, processor.Unavailable(fmt.Errorf("copilot cli: %w", err))
	}
	defer p.stop()

	if err := p.checkAuth(); err != nil {
		return ai.ChatResponse{}, err
	}

	session, err := p.client.CreateSession(&copilot.SessionConfig{
		Model:         model,
		Streaming:     false,
		SystemMessage: copilotSystemMessage(prompt.system),
	})
	if err != nil {
		return ai.ChatResponse{}, processor.Unavailable(fmt.Errorf("copilot session: %w", err))
	}
	defer session.Destroy()

	stopWatch := abortOnDone(ctx, session)
	defer stopWatch()

	event, err := session.SendAndWait(copilot.MessageOptions{Prompt: prompt.text}, copilotWait(ctx, p.timeout))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ai.ChatResponse{}, ctxErr
		}
		return ai.ChatResponse{}, fmt.Errorf("copilot reply: %w", err)
	}

	var content string
	if event != nil && event.Data.Content != nil {
		content = *event.Data.Content
	}
	return ai.ChatResponse{Content: content, Model: model}, nil
}

func (p *CopilotProvider) stop() {
	for _, err := range p.client.Stop() {
		if err != nil {
			slog.Debug("copilot_stop_error", "error", err)
		}
	}
}

// checkAuth reports a logged-out CLI as a 401 so it classifies as a
// processor error rather than an outage.
func (p *CopilotProvider) checkAuth() error {
	status, err := p.client.GetAuthStatus()
	if err != nil {
		return processor.Unavailable(fmt.Errorf("copilot auth status: %w", err))
	}
	if status != nil && status.IsAuthenticated {
		return nil
	}
	msg := "Copilot CLI is not authenticated"
	if status != nil && status.StatusMessage != nil {
		if s := strings.TrimSpace(*status.StatusMessage); s != "" {
			msg = s
		}
	}
	return &ai.APIError{Provider: "copilot", StatusCode: http.StatusUnauthorized, Message: msg}
}

// copilotWait bounds the SDK wait by the caller's deadline.
func copilotWait(ctx context.Context, limit time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < limit {
			return remaining
		}
	}
	return limit
}

func copilotSystemMessage(content string) *copilot.SystemMessageConfig {
	if content == "" {
		return nil
	}
	return &copilot.SystemMessageConfig{Mode: "append", Content: content}
}

// flattenForCopilot joins system and developer messages into the system
// text and labels the rest by role. Empty user text is still sent.
func flattenForCopilot(req ai.ChatRequest) (copilotPrompt, error) {
	if len(req.Messages) == 0 {
		return copilotPrompt{}, fmt.Errorf("%w: copilot request has no messages", processor.ErrInvalidInput)
	}

	var system, turns []string
	for _, msg := range req.Messages {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		content := strings.TrimSpace(msg.Content)
		switch role {
		case "system", "developer":
			if content != "" {
				system = append(system, content)
			}
		case "assistant":
			turns = append(turns, "Assistant: "+content)
		default:
			turns = append(turns, "User: "+content)
		}
	}

	if len(turns) == 0 {
		turns = append(turns, "User: ")
	}
	return copilotPrompt{
		system: strings.Join(system, "\n\n"),
		text:   strings.Join(turns, "\n\n"),
	}, nil
}

// abortOnDone aborts the session when ctx ends before the reply arrives.
// The returned func stops the watcher.
func abortOnDone(ctx context.Context, session copilotSession) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			slog.Debug("copilot_session_abort", "reason", ctx.Err())
			_ = session.Abort()
		case <-done:
		}
	}()
	return func() { close(done) }
}

var _ ai.Provider = (*CopilotProvider)(nil)
