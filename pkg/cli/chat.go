package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aymanbagabas/go-osc52/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errNoMessage = errors.New("no message: pass one as an argument or pipe it on stdin")

func newChatCmd(o *rootOptions) *cobra.Command {
	var copyReply bool

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one message to the backend and print the reply",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := readMessage(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			a, err := o.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			resp := a.Dispatcher.Dispatch(cmd.Context(), "chat", message)
			if !resp.OK() {
				return fmt.Errorf("%s: %w", resp.Failure.Kind, resp.Err())
			}

			if err := writeLine(cmd.OutOrStdout(), resp.Text); err != nil {
				return err
			}
			if copyReply {
				// The reply owns stdout, so the clipboard sequence goes to stderr.
				_, _ = fmt.Fprint(cmd.ErrOrStderr(), osc52.New(resp.Text))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&copyReply, "copy", "c", false, "Copy the reply to the clipboard (OSC52)")
	return cmd
}

// readMessage prefers the argument and falls back to stdin unless stdin is
// an interactive terminal. An empty piped message is valid.
func readMessage(in io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", errNoMessage
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}
