// Package app holds the runtime constructed once at process start and torn
// down at exit.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"nova_bridge/pkg/ai"
	"nova_bridge/pkg/ai/providers"
	"nova_bridge/pkg/bridge"
	"nova_bridge/pkg/commands"
	"nova_bridge/pkg/config"
	"nova_bridge/pkg/credentials"
	"nova_bridge/pkg/logging"
	"nova_bridge/pkg/processor"
)

// App wires configuration, logging, the provider and the command registry.
type App struct {
	Config      config.Config
	Logger      *slog.Logger
	Credentials *credentials.Store
	Registry    *ai.Registry
	Provider    ai.Provider
	Bridge      *bridge.Bridge
	Dispatcher  *commands.Dispatcher

	logCloser io.Closer
	closeOnce sync.Once
	closeErr  error
}

type options struct {
	logger      *slog.Logger
	credentials *credentials.Store
	registry    *ai.Registry
	processor   processor.Processor
}

// Option customizes New.
type Option func(*options)

// WithLogger uses logger instead of initializing logging from config.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCredentials uses store instead of the default credentials file.
func WithCredentials(store *credentials.Store) Option {
	return func(o *options) { o.credentials = store }
}

// WithRegistry uses reg instead of the built-in providers.
func WithRegistry(reg *ai.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithProcessor bypasses the provider registry.
func WithProcessor(proc processor.Processor) Option {
	return func(o *options) { o.processor = proc }
}

// New builds the runtime from cfg. Logging is resolved once here from
// verbose_logging.
func New(cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{Config: cfg}

	if o.logger != nil {
		a.Logger = o.logger
	} else {
		logger, closer, err := logging.Init(cfg)
		if err != nil {
			return nil, fmt.Errorf("init logging: %w", err)
		}
		a.Logger = logger
		a.logCloser = closer
	}

	a.Credentials = o.credentials
	if a.Credentials == nil {
		a.Credentials = credentials.NewStore(credentials.DefaultPath())
	}

	a.Registry = o.registry
	if a.Registry == nil {
		a.Registry = providers.NewRegistry()
	}

	proc := o.processor
	if proc == nil {
		provider, err := a.Registry.ProviderFromConfig(cfg, a.Credentials)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create provider %s: %w", cfg.LLMProvider, err)
		}
		a.Provider = provider
		proc = processor.FromProvider(provider, processor.Options{SystemPrompt: cfg.SystemPrompt})
	}

	a.Bridge = bridge.New(proc, bridge.OptionsFromConfig(cfg.Bridge, a.Logger))

	a.Dispatcher = commands.NewDispatcher(a.Logger)
	a.Dispatcher.Register(&commands.ChatHandler{Bridge: a.Bridge})
	a.Dispatcher.Register(&commands.ProvidersHandler{Registry: a.Registry, Active: cfg.LLMProvider})
	a.Dispatcher.Register(&commands.VersionHandler{})

	a.Logger.Debug("app_ready",
		"llm_provider", cfg.LLMProvider,
		"timeout_seconds", cfg.Bridge.TimeoutSeconds,
		"retry_enabled", cfg.Bridge.Retry.Enabled,
		"breaker_enabled", cfg.Bridge.CircuitBreaker.Enabled,
	)
	return a, nil
}

// Close releases the provider and the log writer. Safe to call repeatedly.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if closer, ok := a.Provider.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close provider: %w", err))
			}
		}
		if a.Logger != nil {
			a.Logger.Debug("app_closed")
		}
		if a.logCloser != nil {
			if err := a.logCloser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close log: %w", err))
			}
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
