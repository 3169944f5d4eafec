package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nova_bridge/pkg/ai"
	"nova_bridge/pkg/config"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	openAIDefaultAPIURL  = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4o"
	openAIDefaultTimeout = 30
)

var openAIInfo = ai.ProviderInfo{
	Type:         ai.ProviderOpenAI,
	Name:         "OpenAI",
	Description:  "Direct OpenAI API access",
	AuthMethod:   "api_key",
	RequiresKey:  true,
	DefaultModel: openAIDefaultModel,
}

// ChatCompletionsProvider talks to any OpenAI-compatible chat completions API.
// It backs both the openai and openrouter providers.
type ChatCompletionsProvider struct {
	name               string
	client             openai.Client
	defaultModel       string
	defaultTemperature float64
	defaultMaxTokens   int
}

// NewOpenAIProvider creates a new OpenAI provider from config.
func NewOpenAIProvider(cfg ai.ProviderConfig) (ai.Provider, error) {
	settings := cfg.Config.Providers.OpenAI
	settings.APIKey = cfg.APIKey(settings.APIKey)
	if settings.APIURL == "" {
		settings.APIURL = openAIDefaultAPIURL
	}
	if settings.Model == "" {
		settings.Model = openAIDefaultModel
	}
	if settings.APITimeoutSeconds <= 0 {
		settings.APITimeoutSeconds = openAIDefaultTimeout
	}
	return newChatCompletionsProvider(string(ai.ProviderOpenAI), settings, nil)
}

func newChatCompletionsProvider(name string, settings config.ProviderConfig, httpClient *http.Client, extra ...option.RequestOption) (*ChatCompletionsProvider, error) {
	if strings.TrimSpace(settings.APIKey) == "" {
		slog.Debug("provider_missing_key", "provider", name)
		return nil, fmt.Errorf("%s api_key is required (set in config or with `nova_bridge keys set %s`)", name, name)
	}
	if strings.TrimSpace(settings.APIURL) == "" {
		return nil, fmt.Errorf("%s api_url is required", name)
	}
	if strings.TrimSpace(settings.Model) == "" {
		return nil, fmt.Errorf("%s model is required", name)
	}
	if settings.APITimeoutSeconds <= 0 {
		return nil, fmt.Errorf("%s api_timeout_seconds must be positive", name)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(settings.APITimeoutSeconds) * time.Second}
	}

	// Retries belong to the bridge, so the SDK makes a single attempt.
	opts := []option.RequestOption{
		option.WithAPIKey(settings.APIKey),
		option.WithBaseURL(settings.APIURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	opts = append(opts, extra...)

	slog.Debug("provider_ready",
		"provider", name,
		"api_url", settings.APIURL,
		"model", settings.Model,
		"timeout_seconds", settings.APITimeoutSeconds,
	)
	return &ChatCompletionsProvider{
		name:               name,
		client:             openai.NewClient(opts...),
		defaultModel:       settings.Model,
		defaultTemperature: settings.Temperature,
		defaultMaxTokens:   settings.MaxTokens,
	}, nil
}

// CreateChatCompletion sends a non-streaming chat completion request.
func (p *ChatCompletionsProvider) CreateChatCompletion(ctx context.Context, req ai.ChatRequest) (ai.ChatResponse, error) {
	params, err := p.buildChatParams(req)
	if err != nil {
		return ai.ChatResponse{}, err
	}

	slog.Debug("chat_completion_request",
		"provider", p.name,
		"model", string(params.Model),
		"message_count", len(req.Messages),
		"has_temperature", req.Temperature != nil,
		"has_max_tokens", req.MaxTokens != nil,
	)
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ai.ChatResponse{}, normalizeOpenAIError(p.name, err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return ai.ChatResponse{
		Content: content,
		Model:   resp.Model,
	}, nil
}

func (p *ChatCompletionsProvider) buildChatParams(req ai.ChatRequest) (openai.ChatCompletionNewParams, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.defaultModel
	}
	if model == "" {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("messages are required")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		param, err := toChatMessageParam(msg)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, param)
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}

	temperature := p.defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	params.Temperature = openai.Float(temperature)

	maxTokens := p.defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	return params, nil
}

func toChatMessageParam(msg ai.Message) (openai.ChatCompletionMessageParamUnion, error) {
	role := strings.ToLower(strings.TrimSpace(msg.Role))
	switch role {
	case "system":
		return openai.SystemMessage(msg.Content), nil
	case "user":
		return openai.UserMessage(msg.Content), nil
	case "assistant":
		return openai.AssistantMessage(msg.Content), nil
	case "developer":
		return openai.DeveloperMessage(msg.Content), nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unsupported role: %s", msg.Role)
	}
}

// normalizeOpenAIError turns SDK status errors into *ai.APIError and leaves
// transport errors untouched so they can still be classified.
func normalizeOpenAIError(name string, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := strings.TrimSpace(apiErr.Message)
	if msg == "" {
		msg = http.StatusText(apiErr.StatusCode)
	}
	return &ai.APIError{
		Provider:   name,
		StatusCode: apiErr.StatusCode,
		Message:    msg,
	}
}

var _ ai.Provider = (*ChatCompletionsProvider)(nil)
