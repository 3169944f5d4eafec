package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"nova_bridge/pkg/mcpserver"
	"nova_bridge/pkg/server"

	"github.com/spf13/cobra"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newServeCmd(o *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the command registry over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.Config.Server.Addr
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			h := server.NewHandler(a.Dispatcher, server.Options{
				MaxMessageBytes: a.Config.Server.MaxMessageBytes,
				AllowedOrigin:   a.Config.Server.AllowedOrigin,
				Logger:          a.Logger,
			})
			fmt.Fprintf(cmd.ErrOrStderr(), "listening on http://%s\n", addr)
			return server.ListenAndServe(ctx, addr, h, a.Logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config server.addr)")
	return cmd
}

func newMCPCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve every command as an MCP tool on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return mcpserver.New(a.Dispatcher, a.Logger).Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
