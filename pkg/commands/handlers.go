package commands

import (
	"context"
	"fmt"
	"strings"

	"nova_bridge/pkg/ai"
	"nova_bridge/pkg/bridge"
	"nova_bridge/pkg/version"
)

// ChatHandler forwards the input to the request bridge.
type ChatHandler struct {
	Bridge *bridge.Bridge
}

func (h *ChatHandler) Name() string        { return "chat" }
func (h *ChatHandler) Description() string { return "Send a message to the configured backend" }

func (h *ChatHandler) Execute(ctx context.Context, input string) bridge.Response {
	return h.Bridge.Handle(ctx, input)
}

// ProvidersHandler lists the registered providers, marking the active one.
type ProvidersHandler struct {
	Registry *ai.Registry
	Active   string
}

func (h *ProvidersHandler) Name() string        { return "providers" }
func (h *ProvidersHandler) Description() string { return "List available backend providers" }

func (h *ProvidersHandler) Execute(ctx context.Context, input string) bridge.Response {
	var sb strings.Builder
	for _, info := range h.Registry.ListProviders() {
		marker := " "
		if string(info.Type) == h.Active {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s %s - %s (auth: %s)\n", marker, info.Type, info.Description, info.AuthMethod)
	}
	return bridge.Success(sb.String())
}

// VersionHandler reports build information.
type VersionHandler struct{}

func (h *VersionHandler) Name() string        { return "version" }
func (h *VersionHandler) Description() string { return "Show version information" }

func (h *VersionHandler) Execute(ctx context.Context, input string) bridge.Response {
	return bridge.Success(version.Info())
}
