package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lushly-dev/afd/pkg/bootstrap"
	"github.com/lushly-dev/afd/pkg/tui"
)

// newValidateCmd runs the surface validator over the connected server's (or
// the local demo registry's) command set.
func newValidateCmd() *cobra.Command {
	var strict bool
	var surface bool
	var suppress []string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "run the surface quality checks over the registered commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmds, err := surfaceCommands(cmd.Context())
			if err != nil {
				return err
			}
			result := bootstrap.Validate(cmds, bootstrap.Options{
				Strict:   strict,
				Suppress: suppress,
			})
			renderValidation(result)
			if !result.Valid {
				return fmt.Errorf("surface validation failed: %d error(s), %d warning(s)",
					result.Summary.Errors, result.Summary.Warnings)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&surface, "surface", true, "validate the registered command surface (the only validation mode)")
	cmd.Flags().BoolVar(&strict, "strict", false, "treat unsuppressed warnings as failures")
	cmd.Flags().StringSliceVar(&suppress, "suppress", nil, "suppress a rule or rule:command[:command...] key, repeatable")
	return cmd
}

// surfaceCommands hydrates bootstrap.SurfaceCommand from whichever registry
// is in scope: the local demo registry directly, or a remote server's
// tools/list response when a session is connected (remote commands carry
// name, description, input schema and requires, but no category or tags).
func surfaceCommands(ctx context.Context) ([]bootstrap.SurfaceCommand, error) {
	rc, err := resolveRemote()
	if err != nil {
		return nil, err
	}
	if rc == nil {
		app, err := newLocalApp()
		if err != nil {
			return nil, err
		}
		return bootstrap.FromRegistry(app.reg), nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	list, err := rc.toolsList(ctx)
	if err != nil {
		return nil, err
	}
	cmds := make([]bootstrap.SurfaceCommand, 0, len(list.Tools))
	for _, t := range list.Tools {
		sc := bootstrap.SurfaceCommand{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}
		if t.Meta != nil {
			sc.Requires = t.Meta.Requires
		}
		cmds = append(cmds, sc)
	}
	return cmds, nil
}

func renderValidation(result bootstrap.Result) {
	for _, f := range result.Findings {
		if f.Suppressed {
			continue
		}
		var style = tui.MutedText
		switch f.Severity {
		case bootstrap.SeverityError:
			style = tui.ErrorText
		case bootstrap.SeverityWarning:
			style = tui.WarnText
		}
		line := fmt.Sprintf("[%s] %s: %s", f.Rule, f.Message, strings.Join(f.Commands, ", "))
		fmt.Println(style.Render(line))
	}

	summary := fmt.Sprintf("%d finding(s): %d error, %d warning, %d info",
		result.Summary.Total, result.Summary.Errors, result.Summary.Warnings, result.Summary.Infos)
	if result.Valid {
		fmt.Println(tui.SuccessText.Render(summary))
	} else {
		fmt.Println(tui.ErrorText.Render(summary))
	}
}
