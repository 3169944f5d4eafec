package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"nova_bridge/pkg/ai"
	"nova_bridge/pkg/ai/providers"

	"github.com/spf13/cobra"
)

func newKeysCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored provider API keys",
	}
	cmd.AddCommand(newKeysSetCmd(o))
	cmd.AddCommand(newKeysListCmd(o))
	cmd.AddCommand(newKeysDeleteCmd(o))
	return cmd
}

func newKeysSetCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <provider> [api-key]",
		Short: "Store an API key (read from stdin when omitted)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := args[0]
			if err := checkKeyProvider(provider); err != nil {
				return err
			}

			var key string
			if len(args) == 2 {
				key = args[1]
			} else {
				line, err := readFirstLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				key = line
			}

			store := o.credentials()
			if err := store.Set(provider, key); err != nil {
				return err
			}
			cred, err := store.Get(provider)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored %s key %s\n", provider, cred.Masked())
			return err
		},
	}
}

func newKeysListCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored API keys (masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := o.credentials().List()
			if err != nil {
				return err
			}
			if len(creds) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no keys stored")
				return err
			}
			rows := [][]string{{"PROVIDER", "KEY", "UPDATED"}}
			for _, c := range creds {
				rows = append(rows, []string{c.Provider, c.Masked(), c.UpdatedAt.Format("2006-01-02 15:04")})
			}
			return renderTable(cmd.OutOrStdout(), rows)
		},
	}
}

func newKeysDeleteCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <provider>",
		Short: "Remove a stored API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.credentials().Delete(args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s key\n", args[0])
			return err
		},
	}
}

func checkKeyProvider(name string) error {
	info, ok := providers.NewRegistry().GetProviderInfo(ai.ProviderType(name))
	if !ok {
		return fmt.Errorf("unknown provider: %s", name)
	}
	if !info.RequiresKey {
		return fmt.Errorf("provider %s does not use an API key", name)
	}
	return nil
}

func readFirstLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
