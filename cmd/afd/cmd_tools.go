package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lushly-dev/afd/pkg/registry"
	"github.com/lushly-dev/afd/pkg/tui"
)

// toolRow is the remote/local-agnostic view newToolsCmd renders.
type toolRow struct {
	Name        string
	Description string
	Category    string
	Mutation    bool
}

func newToolsCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "list the commands registered on the connected server (or the local demo registry)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := listTools(cmd.Context())
			if err != nil {
				return err
			}
			if category != "" {
				filtered := rows[:0]
				for _, r := range rows {
					if r.Category == category {
						filtered = append(filtered, r)
					}
				}
				rows = filtered
			}
			renderTools(rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "filter to one category")
	return cmd
}

func listTools(ctx context.Context) ([]toolRow, error) {
	rc, err := resolveRemote()
	if err != nil {
		return nil, err
	}
	if rc != nil {
		return listRemoteTools(ctx, rc)
	}
	return listLocalTools()
}

func listRemoteTools(ctx context.Context, rc *remoteClient) ([]toolRow, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	list, err := rc.toolsList(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]toolRow, 0, len(list.Tools))
	for _, t := range list.Tools {
		row := toolRow{Name: t.Name, Description: t.Description}
		if t.Meta != nil {
			row.Mutation = t.Meta.Mutation
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func listLocalTools() ([]toolRow, error) {
	app, err := newLocalApp()
	if err != nil {
		return nil, err
	}
	var defs []registry.Definition
	defs = app.reg.List()
	rows := make([]toolRow, 0, len(defs))
	for _, d := range defs {
		rows = append(rows, toolRow{Name: d.Name, Description: d.Description, Category: d.Category, Mutation: d.Mutation})
	}
	return rows, nil
}

func renderTools(rows []toolRow) {
	for _, r := range rows {
		marker := " "
		if r.Mutation {
			marker = tui.WarnText.Render("!")
		}
		line := fmt.Sprintf("%s %-28s %s", marker, tui.PrimaryText.Render(r.Name), r.Description)
		fmt.Println(tui.ToolRowStyle.Render(line))
	}
	fmt.Println(tui.MutedText.Render(strings.TrimSpace(fmt.Sprintf("%d commands", len(rows)))))
}
