package providers

import (
	"context"
	"fmt"

	"nova_bridge/pkg/ai"
)

const echoDefaultPrefix = "Echo from backend: "

var echoInfo = ai.ProviderInfo{
	Type:         ai.ProviderEcho,
	Name:         "Echo",
	Description:  "Local placeholder backend that echoes the message back",
	AuthMethod:   "none",
	RequiresKey:  false,
	DefaultModel: "echo",
}

// EchoProvider answers every request with the last user message behind a
// fixed prefix. It never calls out of process.
type EchoProvider struct {
	prefix string
}

// NewEchoProvider creates the echo backend from config.
func NewEchoProvider(cfg ai.ProviderConfig) (ai.Provider, error) {
	prefix := cfg.Config.Providers.Echo.Prefix
	if prefix == "" {
		prefix = echoDefaultPrefix
	}
	return &EchoProvider{prefix: prefix}, nil
}

// CreateChatCompletion echoes the final user message.
func (p *EchoProvider) CreateChatCompletion(ctx context.Context, req ai.ChatRequest) (ai.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return ai.ChatResponse{}, err
	}
	text, ok := ai.LastUserMessage(req)
	if !ok {
		return ai.ChatResponse{}, fmt.Errorf("at least one user message is required")
	}
	return ai.ChatResponse{
		Content: p.prefix + text,
		Model:   "echo",
	}, nil
}

var _ ai.Provider = (*EchoProvider)(nil)
