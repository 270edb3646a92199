package mcpserver

import (
	js "github.com/google/jsonschema-go/jsonschema"

	"github.com/lushly-dev/afd/pkg/constants"
	"github.com/lushly-dev/afd/pkg/registry"
)

// Strategy selects how the command registry is projected onto tools/list.
type Strategy string

const (
	// StrategyIndividual advertises one tool per command (default for small
	// surfaces).
	StrategyIndividual Strategy = "individual"
	// StrategyGrouped advertises one tool per category with a discriminated
	// {action, args} input (for large surfaces).
	StrategyGrouped Strategy = "grouped"
)

// buildToolsList projects every command exposed to the mcp interface into
// tools/list's response according to strategy.
func buildToolsList(reg *registry.Registry, strategy Strategy) ToolsListResult {
	defs := reg.ListByExposure(constants.InterfaceMCP)
	if strategy == StrategyGrouped {
		return buildGroupedTools(reg, defs)
	}
	return buildIndividualTools(defs)
}

func buildIndividualTools(defs []registry.Definition) ToolsListResult {
	out := ToolsListResult{Tools: make([]ToolInfo, 0, len(defs))}
	for _, d := range defs {
		tool := ToolInfo{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
		meta := ToolMeta{Requires: d.Requires, Mutation: d.Mutation}
		if !meta.isEmpty() {
			tool.Meta = &meta
		}
		out.Tools = append(out.Tools, tool)
	}
	return out
}

// buildGroupedTools collapses defs into one tool per category. Categories
// are walked in reg.Categories() order so output is deterministic; each
// category's schema enumerates its member command names as the "action"
// discriminator and leaves "args" untyped, since the union of that
// category's member schemas is exactly what *-schema and *-help already
// expose and grouped tools intentionally push prerequisite/mutation
// discovery to the help bootstrap tool instead of _meta.
func buildGroupedTools(reg *registry.Registry, defs []registry.Definition) ToolsListResult {
	byCategory := make(map[string][]registry.Definition)
	for _, d := range defs {
		cat := d.Category
		if cat == "" {
			cat = "uncategorized"
		}
		byCategory[cat] = append(byCategory[cat], d)
	}

	out := ToolsListResult{}
	for _, cat := range reg.Categories() {
		members, ok := byCategory[cat]
		if !ok {
			continue
		}
		out.Tools = append(out.Tools, ToolInfo{
			Name:        cat,
			Description: groupDescription(cat, members),
			InputSchema: groupSchema(members),
		})
	}
	if uncategorized, ok := byCategory["uncategorized"]; ok {
		out.Tools = append(out.Tools, ToolInfo{
			Name:        "uncategorized",
			Description: groupDescription("uncategorized", uncategorized),
			InputSchema: groupSchema(uncategorized),
		})
	}
	return out
}

func groupDescription(cat string, members []registry.Definition) string {
	desc := "dispatches one of the " + cat + " category's commands"
	return desc
}

func groupSchema(members []registry.Definition) *js.Schema {
	actions := make([]any, 0, len(members))
	for _, d := range members {
		actions = append(actions, d.Name)
	}
	return &js.Schema{
		Type: "object",
		Properties: map[string]*js.Schema{
			"action": {Type: "string", Enum: actions},
			"args":   {Type: "object"},
		},
		Required: []string{"action"},
	}
}

// resolveCall maps a tools/call request onto the concrete command name and
// raw input, undoing the grouped strategy's discriminator if applicable.
func resolveCall(strategy Strategy, params ToolsCallParams) (name string, input []byte, err error) {
	if strategy != StrategyGrouped {
		return params.Name, params.Arguments, nil
	}
	var g groupedArguments
	if len(params.Arguments) > 0 {
		if e := unmarshalStrict(params.Arguments, &g); e != nil {
			return "", nil, e
		}
	}
	return g.Action, g.Args, nil
}
