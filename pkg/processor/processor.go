// Package processor defines the backend collaborator the bridge forwards
// messages to, and the failure taxonomy shared with the bridge.
package processor

import (
	"context"
	"strings"

	"nova_bridge/pkg/ai"
)

// Processor turns one message into one reply. Implementations may be slow
// and must be safe for concurrent use.
type Processor interface {
	Process(ctx context.Context, text string) (string, error)
}

// Func adapts a function to the Processor interface.
type Func func(ctx context.Context, text string) (string, error)

// Process calls f(ctx, text).
func (f Func) Process(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// Options tune the requests sent to a provider.
type Options struct {
	Model        string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    *int
}

type providerProcessor struct {
	provider ai.Provider
	opts     Options
}

// FromProvider adapts an LLM provider to a Processor. Each message becomes a
// single-turn chat request.
func FromProvider(provider ai.Provider, opts Options) Processor {
	return &providerProcessor{provider: provider, opts: opts}
}

func (p *providerProcessor) Process(ctx context.Context, text string) (string, error) {
	messages := make([]ai.Message, 0, 2)
	if prompt := strings.TrimSpace(p.opts.SystemPrompt); prompt != "" {
		messages = append(messages, ai.Message{Role: "system", Content: prompt})
	}
	messages = append(messages, ai.Message{Role: "user", Content: text})

	resp, err := p.provider.CreateChatCompletion(ctx, ai.ChatRequest{
		Model:       p.opts.Model,
		Messages:    messages,
		Temperature: p.opts.Temperature,
		MaxTokens:   p.opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
