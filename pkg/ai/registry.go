package ai

import (
	"fmt"
	"sort"
	"sync"

	"nova_bridge/pkg/config"
	"nova_bridge/pkg/credentials"
)

// ProviderType represents a supported LLM provider.
type ProviderType string

const (
	ProviderEcho       ProviderType = "echo"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderOpenAI     ProviderType = "openai"
	ProviderCopilot    ProviderType = "copilot"
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderGoogle     ProviderType = "google"
)

// ProviderConfig holds configuration for creating a provider.
type ProviderConfig struct {
	Type        ProviderType
	Config      config.Config
	Credentials *credentials.Store
}

// APIKey resolves the key for this provider: config first, then the
// credentials store.
func (c ProviderConfig) APIKey(fromConfig string) string {
	if fromConfig != "" {
		return fromConfig
	}
	return c.Credentials.APIKey(string(c.Type))
}

// ProviderFactory is a function that creates a Provider from config.
type ProviderFactory func(cfg ProviderConfig) (Provider, error)

// ProviderInfo describes a registered provider.
type ProviderInfo struct {
	Type         ProviderType
	Name         string
	Description  string
	AuthMethod   string // "api_key", "copilot_cli", "none"
	RequiresKey  bool
	DefaultModel string
}

// Registry manages provider factories and instantiation.
type Registry struct {
	mu        sync.RWMutex
	factories map[ProviderType]ProviderFactory
	info      map[ProviderType]ProviderInfo
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[ProviderType]ProviderFactory),
		info:      make(map[ProviderType]ProviderInfo),
	}
}

// Register adds a provider factory to the registry.
func (r *Registry) Register(info ProviderInfo, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[info.Type] = factory
	r.info[info.Type] = info
}

// GetProvider creates a provider instance by type.
func (r *Registry) GetProvider(cfg ProviderConfig) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}

	return factory(cfg)
}

// ListProviders returns information about all registered providers,
// sorted by type.
func (r *Registry) ListProviders() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]ProviderInfo, 0, len(r.info))
	for _, info := range r.info {
		providers = append(providers, info)
	}
	sort.Slice(providers, func(i, j int) bool {
		return providers[i].Type < providers[j].Type
	})
	return providers
}

// GetProviderInfo returns information about a specific provider.
func (r *Registry) GetProviderInfo(providerType ProviderType) (ProviderInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.info[providerType]
	return info, ok
}

// IsRegistered checks if a provider type is registered.
func (r *Registry) IsRegistered(providerType ProviderType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[providerType]
	return ok
}

// ProviderFromConfig creates the provider named by cfg.LLMProvider.
func (r *Registry) ProviderFromConfig(cfg config.Config, store *credentials.Store) (Provider, error) {
	providerType := ProviderType(cfg.LLMProvider)
	if providerType == "" {
		providerType = ProviderEcho
	}
	if !r.IsRegistered(providerType) {
		return nil, fmt.Errorf("unknown provider type: %s", providerType)
	}

	return r.GetProvider(ProviderConfig{
		Type:        providerType,
		Config:      cfg,
		Credentials: store,
	})
}
