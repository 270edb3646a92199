package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/lushly-dev/afd/pkg/config"
)

// newDocsCmd calls the <prefix>-docs bootstrap tool and renders its Markdown
// to the terminal with glamour, the way cmd_shell.go renders tool listings
// with tui's lipgloss styles — docs get the richer renderer since Markdown
// tables and code fences don't read well through a plain styled line.
func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs [command]",
		Short: "render a command's documentation (or every command's, if omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runDocsCmd(cmd.Context(), name)
		},
	}
	return cmd
}

func runDocsCmd(ctx context.Context, name string) error {
	reqArgs, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	raw, err := callCommand(ctx, docsToolName(), reqArgs)
	if err != nil {
		return err
	}

	var env struct {
		Success bool `json:"success"`
		Data    struct {
			Markdown string `json:"markdown"`
		} `json:"data"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return err
	}
	out, err := renderer.Render(env.Data.Markdown)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, out)
	return nil
}

func docsToolName() string {
	cfg, err := config.Load(configFilePath())
	if err != nil || cfg.BootstrapPrefix == "" {
		return "afd-docs"
	}
	return cfg.BootstrapPrefix + "-docs"
}
