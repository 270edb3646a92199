package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lushly-dev/afd/pkg/tui"
)

// newConnectCmd opens a handshake against a remote afd MCP server and
// remembers the session so later invocations of tools/call/shell/validate
// talk to it without repeating --url.
func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <url>",
		Short: "open and remember a session against a remote afd MCP server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := args[0]
			sessionID := uuid.NewString()
			rc := newRemoteClient(url, sessionID)

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			info, err := rc.initialize(ctx)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", url, err)
			}

			if err := saveSession(sessionFile{URL: url, SessionID: sessionID}); err != nil {
				return fmt.Errorf("save session: %w", err)
			}

			fmt.Println(tui.SuccessText.Render(fmt.Sprintf("connected to %s (%s %s)", url, info.Name, info.Version)))
			return nil
		},
	}
}
