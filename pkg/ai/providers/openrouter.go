package providers

import (
	"net/http"
	"strings"
	"time"

	"nova_bridge/pkg/ai"
	"nova_bridge/pkg/config"

	"github.com/openai/openai-go/v3/option"
)

const openRouterDefaultModel = "openai/gpt-4o-mini"

var openRouterInfo = ai.ProviderInfo{
	Type:         ai.ProviderOpenRouter,
	Name:         "OpenRouter",
	Description:  "Access 400+ LLM models through OpenRouter API",
	AuthMethod:   "api_key",
	RequiresKey:  true,
	DefaultModel: openRouterDefaultModel,
}

// NewOpenRouterProvider creates a new OpenRouter provider from config.
func NewOpenRouterProvider(cfg ai.ProviderConfig) (ai.Provider, error) {
	orCfg := cfg.Config.Providers.OpenRouter
	orCfg.APIKey = cfg.APIKey(orCfg.APIKey)
	httpClient := &http.Client{Timeout: time.Duration(orCfg.APITimeoutSeconds) * time.Second}
	return newOpenRouterProviderWithHTTPClient(orCfg, httpClient)
}

func newOpenRouterProviderWithHTTPClient(cfg config.OpenRouterConfig, httpClient *http.Client) (*ChatCompletionsProvider, error) {
	var headers []option.RequestOption
	if strings.TrimSpace(cfg.HTTPReferer) != "" {
		headers = append(headers, option.WithHeader("HTTP-Referer", cfg.HTTPReferer))
	}
	if strings.TrimSpace(cfg.XTitle) != "" {
		headers = append(headers, option.WithHeader("X-Title", cfg.XTitle))
	}
	return newChatCompletionsProvider(string(ai.ProviderOpenRouter), cfg.ProviderConfig, httpClient, headers...)
}
