package bootstrap

import (
	"fmt"
	"strings"

	js "github.com/google/jsonschema-go/jsonschema"

	"github.com/lushly-dev/afd/pkg/afdcontext"
	"github.com/lushly-dev/afd/pkg/registry"
	"github.com/lushly-dev/afd/pkg/schema"
)

// HelpInput is *-help's request. Format selects "brief" (name + description
// only) or "full" (name, description, category, tags, mutation, requires).
type HelpInput struct {
	Tags        []string `json:"tags,omitempty"`
	ExcludeTags []string `json:"excludeTags,omitempty"`
	Category    string   `json:"category,omitempty"`
	Format      string   `json:"format,omitempty" validate:"omitempty,oneof=brief full"`
}

// HelpEntry describes one command in *-help's response.
type HelpEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Mutation    bool     `json:"mutation,omitempty"`
	Requires    []string `json:"requires,omitempty"`
}

// HelpOutput is *-help's response.
type HelpOutput struct {
	Commands []HelpEntry `json:"commands"`
}

// DocsInput is *-docs's request. An empty Name documents every command.
type DocsInput struct {
	Name string `json:"name,omitempty"`
}

// DocsOutput is *-docs's response: Markdown, ready for a terminal Markdown
// renderer (the CLI's glamour integration) or direct display.
type DocsOutput struct {
	Markdown string `json:"markdown"`
}

// SchemaInput is *-schema's request; it takes no fields.
type SchemaInput struct{}

// SchemaOutput bundles every command's wire JSON-Schema plus the result
// envelope's own shape.
type SchemaOutput struct {
	Commands map[string]*js.Schema `json:"commands"`
	Result   *js.Schema            `json:"result"`
}

// StartInput is *-start's request; it takes no fields.
type StartInput struct{}

// StartOutput is *-start's response: a short orientation for a freshly
// connected agent pointing at the rest of the bootstrap tools.
type StartOutput struct {
	Server        string   `json:"server"`
	CommandCount  int      `json:"commandCount"`
	Message       string   `json:"message"`
	BootstrapTools []string `json:"bootstrapTools"`
}

// RegisterDiscoveryTools registers the four auto-generated discovery tools
// (<prefix>-start, <prefix>-help, <prefix>-docs, <prefix>-schema) against
// reg. They are ordinary typed command handlers running through the same
// registry/middleware path as any other command — no special-cased
// bootstrap dispatch.
func RegisterDiscoveryTools(reg *registry.Registry, serverName, serverVersion string) {
	prefix := strings.TrimSuffix(serverName, "-")
	startName := prefix + "-start"
	helpName := prefix + "-help"
	docsName := prefix + "-docs"
	schemaName := prefix + "-schema"

	registry.Register(reg, registry.Definition{
		Name:        startName,
		Version:     serverVersion,
		Description: "orient a new agent session: lists the other bootstrap tools and how many commands are registered",
		Category:    "bootstrap",
		Tags:        []string{"bootstrap", "discovery"},
		Exposure:    registry.ExposureMap{Palette: true, Agent: true, MCP: true, CLI: true},
	}, schema.New[StartInput](), func(ctx *afdcontext.Context, req StartInput) (StartOutput, error) {
		defs := reg.List()
		return StartOutput{
			Server:       serverName,
			CommandCount: len(defs),
			Message: fmt.Sprintf(
				"%s exposes %d commands. Call %s for a filterable listing, %s for Markdown documentation, and %s for the raw JSON-Schema bundle.",
				serverName, len(defs), helpName, docsName, schemaName,
			),
			BootstrapTools: []string{helpName, docsName, schemaName},
		}, nil
	})

	registry.Register(reg, registry.Definition{
		Name:        helpName,
		Version:     serverVersion,
		Description: "list registered commands, filterable by tags, excludeTags, or category",
		Category:    "bootstrap",
		Tags:        []string{"bootstrap", "discovery"},
		Exposure:    registry.ExposureMap{Palette: true, Agent: true, MCP: true, CLI: true},
	}, schema.New[HelpInput](), func(ctx *afdcontext.Context, req HelpInput) (HelpOutput, error) {
		return runHelp(reg, req), nil
	})

	registry.Register(reg, registry.Definition{
		Name:        docsName,
		Version:     serverVersion,
		Description: "render Markdown documentation for one command or every command",
		Category:    "bootstrap",
		Tags:        []string{"bootstrap", "discovery"},
		Exposure:    registry.ExposureMap{Palette: true, Agent: true, MCP: true, CLI: true},
	}, schema.New[DocsInput](), func(ctx *afdcontext.Context, req DocsInput) (DocsOutput, error) {
		return runDocs(reg, req)
	})

	registry.Register(reg, registry.Definition{
		Name:        schemaName,
		Version:     serverVersion,
		Description: "return the JSON-Schema bundle for every command's input, plus the result envelope shape",
		Category:    "bootstrap",
		Tags:        []string{"bootstrap", "discovery"},
		Exposure:    registry.ExposureMap{Palette: true, Agent: true, MCP: true, CLI: true},
	}, schema.New[SchemaInput](), func(ctx *afdcontext.Context, req SchemaInput) (SchemaOutput, error) {
		return runSchema(reg), nil
	})
}

func runHelp(reg *registry.Registry, req HelpInput) HelpOutput {
	var defs []registry.Definition
	switch {
	case req.Category != "":
		defs = reg.ListByCategory(req.Category)
	case len(req.Tags) > 0:
		defs = reg.ListByTags(req.Tags...)
	default:
		defs = reg.List()
	}

	out := HelpOutput{Commands: make([]HelpEntry, 0, len(defs))}
	for _, d := range defs {
		if hasAnyTag(d.Tags, req.ExcludeTags) {
			continue
		}
		entry := HelpEntry{Name: d.Name, Description: d.Description}
		if req.Format == "full" {
			entry.Category = d.Category
			entry.Tags = d.Tags
			entry.Mutation = d.Mutation
			entry.Requires = d.Requires
		}
		out.Commands = append(out.Commands, entry)
	}
	return out
}

func hasAnyTag(have, exclude []string) bool {
	if len(exclude) == 0 {
		return false
	}
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range exclude {
		if set[t] {
			return true
		}
	}
	return false
}

func runDocs(reg *registry.Registry, req DocsInput) (DocsOutput, error) {
	if req.Name != "" {
		d, ok := reg.Lookup(req.Name)
		if !ok {
			return DocsOutput{}, fmt.Errorf("schema: docs: unknown command %q", req.Name)
		}
		return DocsOutput{Markdown: renderCommandDocs(d)}, nil
	}

	var b strings.Builder
	defs := reg.List()
	for i, d := range defs {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		b.WriteString(renderCommandDocs(d))
	}
	return DocsOutput{Markdown: b.String()}, nil
}

func renderCommandDocs(d registry.Definition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", d.Name)
	if d.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", d.Description)
	}
	if d.Category != "" {
		fmt.Fprintf(&b, "- **Category:** %s\n", d.Category)
	}
	if len(d.Tags) > 0 {
		fmt.Fprintf(&b, "- **Tags:** %s\n", strings.Join(d.Tags, ", "))
	}
	if d.Mutation {
		b.WriteString("- **Mutation:** yes\n")
	}
	if d.Destructive {
		b.WriteString("- **Destructive:** yes\n")
		if d.ConfirmPrompt != "" {
			fmt.Fprintf(&b, "  - Confirm: %s\n", d.ConfirmPrompt)
		}
	}
	if len(d.Requires) > 0 {
		fmt.Fprintf(&b, "- **Requires:** %s\n", strings.Join(d.Requires, ", "))
	}
	if d.Deprecated {
		b.WriteString("- **Deprecated**\n")
	}
	return b.String()
}

func runSchema(reg *registry.Registry) SchemaOutput {
	defs := reg.List()
	commands := make(map[string]*js.Schema, len(defs))
	for _, d := range defs {
		commands[d.Name] = d.InputSchema
	}
	return SchemaOutput{Commands: commands, Result: resultEnvelopeSchema()}
}

// resultEnvelopeSchema hand-describes result.Result[T]'s wire shape.
// It is intentionally generic over Data/Error rather than reflected, since
// the envelope's T varies per command and *-schema's job is to describe
// the envelope's fixed scaffolding once, not per-command payload types
// (those are already covered by SchemaOutput.Commands).
func resultEnvelopeSchema() *js.Schema {
	return &js.Schema{
		Type: "object",
		Properties: map[string]*js.Schema{
			"success": {Type: "boolean"},
			"data":    {},
			"error": {
				Type: "object",
				Properties: map[string]*js.Schema{
					"code":       {Type: "string"},
					"message":    {Type: "string"},
					"suggestion": {Type: "string"},
					"retryable":  {Type: "boolean"},
					"details":    {Type: "object"},
				},
				Required: []string{"code", "message", "retryable"},
			},
			"confidence":   {Type: "number", Minimum: floatPtr(0), Maximum: floatPtr(1)},
			"reasoning":    {Type: "string"},
			"sources":      {Type: "array"},
			"plan":         {Type: "array"},
			"alternatives": {Type: "array"},
			"warnings":     {Type: "array"},
			"suggestions":  {Type: "array", Items: &js.Schema{Type: "string"}},
			"undoCommand":  {Type: "string"},
			"undoArgs":     {Type: "object"},
			"metadata": {
				Type: "object",
				Properties: map[string]*js.Schema{
					"executionTimeMs": {Type: "integer"},
					"commandVersion":  {Type: "string"},
					"traceId":         {Type: "string"},
				},
				Required: []string{"executionTimeMs"},
			},
		},
		Required: []string{"success", "metadata"},
	}
}

func floatPtr(f float64) *float64 { return &f }
