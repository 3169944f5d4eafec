// Package cli provides the nova_bridge command line.
package cli

import (
	"fmt"
	"io"

	"nova_bridge/pkg/app"
	"nova_bridge/pkg/config"
	"nova_bridge/pkg/credentials"
	"nova_bridge/pkg/version"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath      string
	credentialsPath string
	verbose         bool
	provider        string
	timeout         int

	// appOptions are passed to app.New; tests use them to swap in stubs.
	appOptions []app.Option
}

// NewRootCommand builds the nova_bridge command tree.
func NewRootCommand() *cobra.Command {
	return newRootCmd(&rootOptions{
		configPath:      config.GetConfigPath(),
		credentialsPath: credentials.DefaultPath(),
	})
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

func newRootCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.Name,
		Short: "Request/response bridge between a frontend and an AI backend",
		Long: `nova_bridge forwards one message at a time from a frontend to the
configured backend and returns either the reply or a structured failure.

Examples:
  nova_bridge serve                     Serve the HTTP API
  nova_bridge mcp                       Serve commands as MCP tools on stdio
  nova_bridge chat "hello"              Send a single message
  echo hello | nova_bridge chat         Read the message from stdin
  nova_bridge keys set openai sk-...    Store an API key`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&o.configPath, "config", o.configPath, "Path to config file (.json, .yaml or .yml)")
	cmd.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "Enable logging")
	cmd.PersistentFlags().StringVarP(&o.provider, "provider", "p", "", "Override llm_provider")
	cmd.PersistentFlags().IntVar(&o.timeout, "timeout", 0, "Override bridge timeout in seconds (0 disables)")

	cmd.AddCommand(newServeCmd(o))
	cmd.AddCommand(newMCPCmd(o))
	cmd.AddCommand(newChatCmd(o))
	cmd.AddCommand(newProvidersCmd(o))
	cmd.AddCommand(newKeysCmd(o))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// loadConfig reads the config file and applies flag overrides.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.verbose {
		cfg.VerboseLogging = true
	}
	if o.provider != "" {
		cfg.LLMProvider = o.provider
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Bridge.TimeoutSeconds = o.timeout
	}
	return cfg, nil
}

func (o *rootOptions) credentials() *credentials.Store {
	return credentials.NewStore(o.credentialsPath)
}

// newApp loads config and builds the runtime. Callers must Close it.
func (o *rootOptions) newApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	opts := append([]app.Option{app.WithCredentials(o.credentials())}, o.appOptions...)
	return app.New(cfg, opts...)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Info())
			return err
		},
	}
}

func writeLine(w io.Writer, s string) error {
	if s == "" || s[len(s)-1] != '\n' {
		s += "\n"
	}
	_, err := io.WriteString(w, s)
	return err
}
