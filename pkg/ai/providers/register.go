// Package providers holds the concrete LLM backends.
package providers

import "nova_bridge/pkg/ai"

// RegisterBuiltins adds every built-in provider to reg.
func RegisterBuiltins(reg *ai.Registry) {
	reg.Register(echoInfo, NewEchoProvider)
	reg.Register(openAIInfo, NewOpenAIProvider)
	reg.Register(openRouterInfo, NewOpenRouterProvider)
	reg.Register(anthropicInfo, NewAnthropicProvider)
	reg.Register(googleInfo, NewGoogleProvider)
	reg.Register(copilotInfo, NewCopilotProvider)
}

// NewRegistry returns a registry with all built-in providers registered.
func NewRegistry() *ai.Registry {
	reg := ai.NewRegistry()
	RegisterBuiltins(reg)
	return reg
}
