package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/lushly-dev/afd/pkg/tui"
)

// newShellCmd opens a readline REPL over the resolved client (remote or
// local). Typing "palette" drops into the bubbletea list-picker — the
// palette surface from the exposure map.
func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "open an interactive command shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd)
		},
	}
}

func runShell(cmd *cobra.Command) error {
	fmt.Println(tui.Banner(formatVersion()))
	fmt.Println(tui.MutedText.Render("type \"help\" for commands, \"palette\" for the picker, \"exit\" to quit"))

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          tui.PrimaryText.Render("afd> "),
		HistoryFile:     filepath.Join(os.TempDir(), ".afd_history"),
		HistoryLimit:    500,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch fields := strings.Fields(line); fields[0] {
		case "exit", "quit":
			return nil
		case "help":
			printShellHelp()
		case "tools":
			rows, err := listTools(cmd.Context())
			if err != nil {
				fmt.Println(tui.ErrorText.Render(err.Error()))
				continue
			}
			renderTools(rows)
		case "palette":
			if err := runPalette(cmd); err != nil {
				fmt.Println(tui.ErrorText.Render(err.Error()))
			}
		case "call":
			if len(fields) < 3 {
				fmt.Println(tui.ErrorText.Render("usage: call <name> <json>"))
				continue
			}
			rawArgs := strings.TrimSpace(strings.TrimPrefix(line, "call "+fields[1]))
			if !json.Valid([]byte(rawArgs)) {
				fmt.Println(tui.ErrorText.Render("argument is not valid JSON"))
				continue
			}
			out, err := callCommand(cmd.Context(), fields[1], json.RawMessage(rawArgs))
			if err != nil {
				fmt.Println(tui.ErrorText.Render(err.Error()))
				continue
			}
			printEnvelope(out, true)
		default:
			fmt.Println(tui.ErrorText.Render(fmt.Sprintf("unknown command %q, type \"help\"", fields[0])))
		}
	}
}

func printShellHelp() {
	fmt.Println(`commands:
  tools                 list registered commands
  palette               open the interactive tool picker
  call <name> <json>    invoke a command
  help                  show this message
  exit                  leave the shell`)
}
