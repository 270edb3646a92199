package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lushly-dev/afd/pkg/constants"
	"github.com/lushly-dev/afd/pkg/tui"
)

var (
	flagJSON bool
	flagURL  string
)

func cliInterface() constants.Interface { return constants.InterfaceCLI }

// newRootCmd builds the root command: persistent flags, SilenceUsage/
// SilenceErrors so errors are printed once by main, and one newXxxCmd()
// factory per subcommand group.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "afd",
		Short: "afd — terminal surface for the Agent-First Development command runtime",
		Long: `afd is the terminal surface over an AFD command registry: connect to a
running MCP server, list and call its commands, open an interactive shell,
or statically validate a command surface for naming and schema issues.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "accepted but not read by any subcommand; output is unchanged")
	root.PersistentFlags().StringVar(&flagURL, "url", "", "MCP server base URL (overrides a connected session)")

	root.AddCommand(
		newServeCmd(),
		newConnectCmd(),
		newToolsCmd(),
		newCallCmd(),
		newDocsCmd(),
		newShellCmd(),
		newValidateCmd(),
		newVersionCmd(),
	)

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(tui.Banner(formatVersion()))
		},
	}
}

// resolveRemote returns a remoteClient for flagURL or the remembered
// session, or nil if neither is set (meaning the caller should fall back
// to the local in-process demo registry).
func resolveRemote() (*remoteClient, error) {
	if flagURL != "" {
		return newRemoteClient(flagURL, ""), nil
	}
	sess, err := loadSession()
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	return newRemoteClient(sess.URL, sess.SessionID), nil
}
