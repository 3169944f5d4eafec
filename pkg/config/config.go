package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const configDirName = ".nova_bridge"

// Config represents the application configuration
type Config struct {
	LLMProvider    string          `json:"llm_provider" yaml:"llm_provider"`
	SystemPrompt   string          `json:"system_prompt" yaml:"system_prompt"`
	Providers      ProvidersConfig `json:"providers" yaml:"providers"`
	Bridge         BridgeConfig    `json:"bridge" yaml:"bridge"`
	Server         ServerConfig    `json:"server" yaml:"server"`
	VerboseLogging bool            `json:"verbose_logging" yaml:"verbose_logging"`
	LogLevel       string          `json:"log_level" yaml:"log_level"`
	LogFormat      string          `json:"log_format" yaml:"log_format"`
	LogFile        string          `json:"log_file" yaml:"log_file"`
}

// ProvidersConfig holds per-provider settings. Only the section matching
// LLMProvider is read at runtime.
type ProvidersConfig struct {
	Echo       EchoConfig       `json:"echo" yaml:"echo"`
	OpenAI     ProviderConfig   `json:"openai" yaml:"openai"`
	OpenRouter OpenRouterConfig `json:"openrouter" yaml:"openrouter"`
	Anthropic  ProviderConfig   `json:"anthropic" yaml:"anthropic"`
	Google     ProviderConfig   `json:"google" yaml:"google"`
	Copilot    ProviderConfig   `json:"copilot" yaml:"copilot"`
}

// EchoConfig configures the built-in echo backend.
type EchoConfig struct {
	Prefix string `json:"prefix" yaml:"prefix"`
}

// ProviderConfig holds the settings shared by every remote provider.
type ProviderConfig struct {
	APIKey            string  `json:"api_key" yaml:"api_key"`
	APIURL            string  `json:"api_url,omitempty" yaml:"api_url,omitempty"`
	Model             string  `json:"model" yaml:"model"`
	Temperature       float64 `json:"temperature" yaml:"temperature"`
	MaxTokens         int     `json:"max_tokens" yaml:"max_tokens"`
	APITimeoutSeconds int     `json:"api_timeout_seconds" yaml:"api_timeout_seconds"`
}

// OpenRouterConfig adds the OpenRouter attribution headers.
type OpenRouterConfig struct {
	ProviderConfig `yaml:",inline"`
	HTTPReferer    string `json:"http_referer,omitempty" yaml:"http_referer,omitempty"`
	XTitle         string `json:"x_title,omitempty" yaml:"x_title,omitempty"`
}

// BridgeConfig controls how requests reach the processor.
type BridgeConfig struct {
	// TimeoutSeconds is the per-request deadline. 0 disables it.
	TimeoutSeconds    int                  `json:"timeout_seconds" yaml:"timeout_seconds"`
	RequestsPerMinute int                  `json:"requests_per_minute" yaml:"requests_per_minute"`
	Retry             RetryConfig          `json:"retry" yaml:"retry"`
	CircuitBreaker    CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
}

// RetryConfig enables retries of unavailable processors. Off by default.
type RetryConfig struct {
	Enabled               bool `json:"enabled" yaml:"enabled"`
	MaxAttempts           int  `json:"max_attempts" yaml:"max_attempts"`
	InitialIntervalMillis int  `json:"initial_interval_ms" yaml:"initial_interval_ms"`
	MaxIntervalMillis     int  `json:"max_interval_ms" yaml:"max_interval_ms"`
}

// CircuitBreakerConfig trips the bridge after consecutive unavailable failures.
type CircuitBreakerConfig struct {
	Enabled             bool `json:"enabled" yaml:"enabled"`
	ConsecutiveFailures int  `json:"consecutive_failures" yaml:"consecutive_failures"`
	OpenSeconds         int  `json:"open_seconds" yaml:"open_seconds"`
}

// ServerConfig holds the HTTP frontend endpoint settings.
type ServerConfig struct {
	Addr            string `json:"addr" yaml:"addr"`
	MaxMessageBytes int64  `json:"max_message_bytes" yaml:"max_message_bytes"`
	AllowedOrigin   string `json:"allowed_origin" yaml:"allowed_origin"`
}

// SupportedProviders lists the provider names accepted in llm_provider.
var SupportedProviders = []string{"echo", "openai", "openrouter", "anthropic", "google", "copilot"}

// Default returns a configuration with default values
func Default() Config {
	return Config{
		LLMProvider:  "echo",
		SystemPrompt: "You are Nova, a concise and helpful desktop assistant.",
		Providers: ProvidersConfig{
			Echo: EchoConfig{Prefix: "Echo from backend: "},
			OpenAI: ProviderConfig{
				APIURL:            "https://api.openai.com/v1",
				Model:             "gpt-4o",
				Temperature:       0.7,
				MaxTokens:         2000,
				APITimeoutSeconds: 30,
			},
			OpenRouter: OpenRouterConfig{
				ProviderConfig: ProviderConfig{
					APIURL:            "https://openrouter.ai/api/v1",
					Model:             "openai/gpt-4o-mini",
					Temperature:       0.7,
					MaxTokens:         2000,
					APITimeoutSeconds: 30,
				},
				XTitle: "nova_bridge",
			},
			Anthropic: ProviderConfig{
				APIURL:            "https://api.anthropic.com/v1",
				Model:             "claude-3-5-sonnet-20241022",
				Temperature:       0.7,
				MaxTokens:         2000,
				APITimeoutSeconds: 60,
			},
			Google: ProviderConfig{
				Model:             "gemini-2.5-flash",
				Temperature:       0.7,
				MaxTokens:         2000,
				APITimeoutSeconds: 60,
			},
			Copilot: ProviderConfig{
				Model:             "gpt-4o",
				APITimeoutSeconds: 30,
			},
		},
		Bridge: BridgeConfig{
			TimeoutSeconds: 30,
			Retry: RetryConfig{
				Enabled:               false,
				MaxAttempts:           3,
				InitialIntervalMillis: 200,
				MaxIntervalMillis:     2000,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:             false,
				ConsecutiveFailures: 5,
				OpenSeconds:         30,
			},
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8765",
			MaxMessageBytes: 1 << 20,
			AllowedOrigin:   "*",
		},
		VerboseLogging: false,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// Load loads configuration from the specified path
// If the file doesn't exist, creates one with default values.
// Fields missing from the file keep their defaults.
func Load(configPath string) (Config, error) {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return Config{}, fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(configPath, cfg); err != nil {
				return Config{}, fmt.Errorf("failed to create default config: %w", err)
			}
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if isYAML(configPath) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to the specified path
func Save(configPath string, cfg Config) error {
	var (
		data []byte
		err  error
	)
	if isYAML(configPath) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if !isSupportedProvider(c.LLMProvider) {
		return fmt.Errorf("unsupported LLM provider: %s", c.LLMProvider)
	}

	if active, ok := c.ActiveProvider(); ok {
		if strings.TrimSpace(active.Model) == "" {
			return fmt.Errorf("%s model is required", c.LLMProvider)
		}
		if active.Temperature < 0 || active.Temperature > 2 {
			return fmt.Errorf("temperature must be between 0 and 2, got: %f", active.Temperature)
		}
		if active.MaxTokens < 0 {
			return fmt.Errorf("max_tokens must not be negative, got: %d", active.MaxTokens)
		}
		if active.APITimeoutSeconds <= 0 {
			return fmt.Errorf("api_timeout_seconds must be positive, got: %d", active.APITimeoutSeconds)
		}
		if active.APIURL != "" {
			if err := validateURL(active.APIURL); err != nil {
				return err
			}
		}
	}

	if c.Bridge.TimeoutSeconds < 0 {
		return fmt.Errorf("bridge timeout_seconds must not be negative, got: %d", c.Bridge.TimeoutSeconds)
	}
	if c.Bridge.RequestsPerMinute < 0 {
		return fmt.Errorf("bridge requests_per_minute must not be negative, got: %d", c.Bridge.RequestsPerMinute)
	}
	if c.Bridge.Retry.Enabled && c.Bridge.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1, got: %d", c.Bridge.Retry.MaxAttempts)
	}
	if c.Bridge.CircuitBreaker.Enabled && c.Bridge.CircuitBreaker.ConsecutiveFailures < 1 {
		return fmt.Errorf("circuit_breaker consecutive_failures must be at least 1, got: %d", c.Bridge.CircuitBreaker.ConsecutiveFailures)
	}

	if c.Server.MaxMessageBytes <= 0 {
		return fmt.Errorf("server max_message_bytes must be positive, got: %d", c.Server.MaxMessageBytes)
	}

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}

	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid log_format: %s", c.LogFormat)
	}

	return nil
}

// ActiveProvider returns the settings of the configured remote provider.
// The echo backend has no remote settings and reports false.
func (c Config) ActiveProvider() (ProviderConfig, bool) {
	switch c.LLMProvider {
	case "openai":
		return c.Providers.OpenAI, true
	case "openrouter":
		return c.Providers.OpenRouter.ProviderConfig, true
	case "anthropic":
		return c.Providers.Anthropic, true
	case "google":
		return c.Providers.Google, true
	case "copilot":
		return c.Providers.Copilot, true
	default:
		return ProviderConfig{}, false
	}
}

// Dir returns the directory holding config, credentials and logs.
func Dir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(homeDir) == "" {
		return configDirName
	}
	return filepath.Join(homeDir, configDirName)
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	return filepath.Join(Dir(), "config.json")
}

func isSupportedProvider(name string) bool {
	for _, p := range SupportedProviders {
		if p == name {
			return true
		}
	}
	return false
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func validateURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid api_url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("api_url must include scheme and host: %s", raw)
	}
	return nil
}
