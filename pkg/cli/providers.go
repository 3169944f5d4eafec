package cli

import (
	"io"

	"nova_bridge/pkg/ai"
	"nova_bridge/pkg/ai/providers"
	"nova_bridge/pkg/config"
	"nova_bridge/pkg/credentials"

	"github.com/spf13/cobra"
)

func newProvidersCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List backend providers and their key status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}
			return writeProviders(cmd.OutOrStdout(), providers.NewRegistry(), cfg, o.credentials())
		},
	}
}

// writeProviders prints one row per registered provider. The active
// provider is marked with "*".
func writeProviders(w io.Writer, reg *ai.Registry, cfg config.Config, store *credentials.Store) error {
	rows := [][]string{{"", "PROVIDER", "NAME", "AUTH", "KEY", "DEFAULT MODEL"}}
	for _, info := range reg.ListProviders() {
		marker := ""
		if string(info.Type) == cfg.LLMProvider {
			marker = "*"
		}
		rows = append(rows, []string{
			marker,
			string(info.Type),
			info.Name,
			info.AuthMethod,
			keyStatus(info, cfg, store),
			info.DefaultModel,
		})
	}
	return renderTable(w, rows)
}

func keyStatus(info ai.ProviderInfo, cfg config.Config, store *credentials.Store) string {
	if !info.RequiresKey {
		return "-"
	}
	if configAPIKey(cfg, info.Type) != "" {
		return "config"
	}
	if store.APIKey(string(info.Type)) != "" {
		return "stored"
	}
	return "missing"
}

func configAPIKey(cfg config.Config, t ai.ProviderType) string {
	switch t {
	case ai.ProviderOpenAI:
		return cfg.Providers.OpenAI.APIKey
	case ai.ProviderOpenRouter:
		return cfg.Providers.OpenRouter.APIKey
	case ai.ProviderAnthropic:
		return cfg.Providers.Anthropic.APIKey
	case ai.ProviderGoogle:
		return cfg.Providers.Google.APIKey
	case ai.ProviderCopilot:
		return cfg.Providers.Copilot.APIKey
	}
	return ""
}
