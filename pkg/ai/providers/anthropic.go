package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nova_bridge/pkg/ai"

	"github.com/tidwall/gjson"
)

const (
	anthropicDefaultAPIURL  = "https://api.anthropic.com/v1"
	anthropicDefaultModel   = "claude-3-5-sonnet-20241022"
	anthropicDefaultTimeout = 60
	anthropicAPIVersion     = "2023-06-01"
	anthropicMaxErrorBody   = 4096
)

var anthropicInfo = ai.ProviderInfo{
	Type:         ai.ProviderAnthropic,
	Name:         "Anthropic",
	Description:  "Direct Anthropic Claude API access",
	AuthMethod:   "api_key",
	RequiresKey:  true,
	DefaultModel: anthropicDefaultModel,
}

// AnthropicProvider implements the Provider interface using the Anthropic messages API.
type AnthropicProvider struct {
	apiKey             string
	apiURL             string
	httpClient         *http.Client
	defaultModel       string
	defaultTemperature float64
	defaultMaxTokens   int
}

// NewAnthropicProvider creates a new Anthropic provider from config.
func NewAnthropicProvider(cfg ai.ProviderConfig) (ai.Provider, error) {
	providerCfg := cfg.Config.Providers.Anthropic

	apiKey := cfg.APIKey(providerCfg.APIKey)
	if strings.TrimSpace(apiKey) == "" {
		slog.Debug("provider_missing_key", "provider", "anthropic")
		return nil, fmt.Errorf("anthropic api_key is required (set in config or with `nova_bridge keys set anthropic`)")
	}

	apiURL := strings.TrimRight(providerCfg.APIURL, "/")
	if apiURL == "" {
		apiURL = anthropicDefaultAPIURL
	}

	model := providerCfg.Model
	if model == "" {
		model = anthropicDefaultModel
	}

	timeout := providerCfg.APITimeoutSeconds
	if timeout <= 0 {
		timeout = anthropicDefaultTimeout
	}

	slog.Debug("provider_ready",
		"provider", "anthropic",
		"api_url", apiURL,
		"model", model,
		"timeout_seconds", timeout,
	)
	return &AnthropicProvider{
		apiKey:             apiKey,
		apiURL:             apiURL,
		httpClient:         &http.Client{Timeout: time.Duration(timeout) * time.Second},
		defaultModel:       model,
		defaultTemperature: providerCfg.Temperature,
		defaultMaxTokens:   providerCfg.MaxTokens,
	}, nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
}

// CreateChatCompletion sends a messages API request.
func (p *AnthropicProvider) CreateChatCompletion(ctx context.Context, req ai.ChatRequest) (ai.ChatResponse, error) {
	anthropicReq, err := p.buildRequest(req)
	if err != nil {
		return ai.ChatResponse{}, err
	}

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return ai.ChatResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return ai.ChatResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	slog.Debug("chat_completion_request",
		"provider", "anthropic",
		"model", anthropicReq.Model,
		"message_count", len(anthropicReq.Messages),
	)
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return ai.ChatResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, anthropicMaxErrorBody))
		return ai.ChatResponse{}, anthropicAPIError(resp.StatusCode, errBody)
	}

	var anthropicResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&anthropicResp); err != nil {
		return ai.ChatResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}

	var content strings.Builder
	for _, block := range anthropicResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return ai.ChatResponse{
		Content: content.String(),
		Model:   anthropicResp.Model,
	}, nil
}

func (p *AnthropicProvider) buildRequest(req ai.ChatRequest) (*anthropicRequest, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.defaultModel
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages are required")
	}

	var systemParts []string
	messages := make([]anthropicMessage, 0, len(req.Messages))

	for _, msg := range req.Messages {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		if role == "system" || role == "developer" {
			if content := strings.TrimSpace(msg.Content); content != "" {
				systemParts = append(systemParts, content)
			}
			continue
		}
		if role != "assistant" {
			role = "user"
		}
		messages = append(messages, anthropicMessage{Role: role, Content: msg.Content})
	}

	if len(messages) == 0 {
		return nil, fmt.Errorf("at least one user or assistant message is required")
	}

	temperature := p.defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	maxTokens := p.defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &anthropicRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      strings.Join(systemParts, "\n\n"),
	}, nil
}

// anthropicAPIError extracts error.message from an API error body and falls
// back to the raw body when it is not the documented JSON shape.
func anthropicAPIError(status int, body []byte) error {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &ai.APIError{
		Provider:   "anthropic",
		StatusCode: status,
		Message:    msg,
	}
}

var _ ai.Provider = (*AnthropicProvider)(nil)
