// Package registry holds every registered command definition and the
// type-erased executor that parses, validates, and runs it.
//
// A bare map of definitions would have no stable iteration order, and
// discovery output (tools/list, *-help, the surface validator's report)
// needs to be diffable run to run, so Registry keeps an ordered slice of
// names alongside the map index.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/lushly-dev/afd/pkg/afdcontext"
	"github.com/lushly-dev/afd/pkg/constants"
	"github.com/lushly-dev/afd/pkg/result"
	js "github.com/google/jsonschema-go/jsonschema"
)

// namePattern is the kebab-case command grammar: lowercase letters/digits,
// a mandatory hyphenated category prefix, no dots. Legacy dotted names
// (e.g. "todo.create") are rejected here at registration time rather than
// surfacing as a runtime CommandError, since registration happens at
// process start before any surface is live.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9]*-[a-z][a-z0-9-]*$`)

const maxNameLength = 64

// ExposureMap gates which surfaces a command is reachable from. Defaults to
// {Palette: true, Agent: true, MCP: false, CLI: false} — a command is
// discoverable by a human or an agent loop by default, but must opt in to
// being reachable over the network (mcp) or the bare CLI.
type ExposureMap struct {
	Palette bool
	Agent   bool
	MCP     bool
	CLI     bool
}

// DefaultExposure is applied to any command definition that doesn't set
// Exposure explicitly.
var DefaultExposure = ExposureMap{Palette: true, Agent: true, MCP: false, CLI: false}

// Handler is the typed function a command registers. It receives the
// per-invocation Context and the already-parsed, already-validated
// request, and returns the raw (pre-enrichment) response value or an
// error; the middleware/invoker layer (pkg/middleware) is responsible for
// wrapping this into a result.Result[Resp] and attaching Metadata.
type Handler[Req, Resp any] func(ctx *afdcontext.Context, req Req) (Resp, error)

// Definition is the untyped, discoverable metadata for a registered
// command — what tools/list, *-help, and the surface validator all walk.
type Definition struct {
	Name        string
	Version     string
	Description string
	Category    string
	Exposure    ExposureMap
	Requires    []string // names of commands this one expects to have run first
	Handoff     string   // stored on the definition only; no surface emits it and the core does not act on it
	Deprecated  bool
	Supersedes  string
	InputSchema *js.Schema
	Examples    []Example

	Tags          []string
	Mutation      bool
	Destructive   bool
	ConfirmPrompt string
	Undoable      bool
	SideEffects   string
}

// Example documents one call/response pair for *-docs rendering.
type Example struct {
	Description string
	Input       any
	Output      any
}

// executor is the type-erased bridge from raw JSON to a typed Handler,
// built once at Register time. Parse and run are split so the invoker can
// validate input before any middleware wraps the handler, and time the
// handler alone. run also returns any envelope-level options (warnings,
// plan, confidence, ...) the handler attached via result.Enriched, so the
// invoker can apply them to the final Result.
type executor struct {
	parse func(raw json.RawMessage) (any, error)
	run   func(ctx *afdcontext.Context, req any) (json.RawMessage, []result.Option[json.RawMessage], error)
}

// envelopeCarrier is implemented by result.Enriched[T] for any T. A
// handler's Resp satisfies it when it wraps its real response in
// result.Enriched, letting the registry unwrap the value to marshal and
// the options to hand back to the invoker without knowing the concrete
// Enriched[T] type at the call site.
type envelopeCarrier interface {
	EnvelopeValue() any
	EnvelopeOptions() []result.Option[json.RawMessage]
}

// Registry holds every registered command in insertion order.
type Registry struct {
	order     []string
	defs      map[string]Definition
	executors map[string]executor
	logger    *slog.Logger
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithLogger overrides the logger used for registration-time warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		defs:      make(map[string]Definition),
		executors: make(map[string]executor),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a typed command. It panics on a malformed name or a
// duplicate registration — both are programmer errors caught at process
// start, never at runtime.
func Register[Req, Resp any](r *Registry, def Definition, schema interface {
	Wire() *js.Schema
	Parse(json.RawMessage) (Req, error)
}, handler Handler[Req, Resp]) {
	if err := validateName(def.Name); err != nil {
		panic(fmt.Sprintf("registry: %v", err))
	}
	if _, exists := r.defs[def.Name]; exists {
		panic(fmt.Sprintf("registry: command %q already registered", def.Name))
	}
	if def.Exposure == (ExposureMap{}) {
		def.Exposure = DefaultExposure
	}
	def.InputSchema = schema.Wire()

	// A requires edge pointing at a command that isn't registered yet is
	// only warned about: registration order is the host's business, and
	// hard failure on genuinely dangling references belongs to the surface
	// validator's unresolved-prerequisite rule.
	for _, req := range def.Requires {
		if _, ok := r.defs[req]; !ok {
			r.logger.Warn("command requires a prerequisite that is not registered",
				"command", def.Name, "requires", req)
		}
	}

	r.order = append(r.order, def.Name)
	r.defs[def.Name] = def
	r.executors[def.Name] = executor{
		parse: func(raw json.RawMessage) (any, error) {
			return schema.Parse(raw)
		},
		run: func(ctx *afdcontext.Context, req any) (json.RawMessage, []result.Option[json.RawMessage], error) {
			resp, err := handler(ctx, req.(Req))
			if err != nil {
				return nil, nil, err
			}

			var value any = resp
			var opts []result.Option[json.RawMessage]
			if ec, ok := any(resp).(envelopeCarrier); ok {
				value = ec.EnvelopeValue()
				opts = ec.EnvelopeOptions()
			}

			out, err := json.Marshal(value)
			if err != nil {
				return nil, nil, err
			}
			return out, opts, nil
		},
	}
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("command name must not be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("command name %q exceeds %d characters", name, maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("command name %q must match %s (kebab-case, no dots)", name, namePattern.String())
	}
	return nil
}

// ParseInput validates raw against name's schema and returns the parsed,
// typed input value, opaque to the caller. The invoker calls this before
// any middleware runs; the returned value is what Run expects back.
func (r *Registry) ParseInput(name string, raw json.RawMessage) (any, error) {
	exec, ok := r.executors[name]
	if !ok {
		return nil, fmt.Errorf("registry: unknown command %q", name)
	}
	return exec.parse(raw)
}

// Run invokes name's handler with an input value previously returned by
// ParseInput, returning the marshaled response alongside any envelope-level
// options the handler attached via result.Enriched.
func (r *Registry) Run(ctx *afdcontext.Context, name string, parsed any) (json.RawMessage, []result.Option[json.RawMessage], error) {
	exec, ok := r.executors[name]
	if !ok {
		return nil, nil, fmt.Errorf("registry: unknown command %q", name)
	}
	return exec.run(ctx, parsed)
}

// Execute parses raw and runs the handler in one step, for in-process
// callers that don't need the parse/run split the invoker uses.
func (r *Registry) Execute(ctx *afdcontext.Context, name string, input json.RawMessage) (json.RawMessage, []result.Option[json.RawMessage], error) {
	parsed, err := r.ParseInput(name, input)
	if err != nil {
		return nil, nil, err
	}
	return r.Run(ctx, name, parsed)
}

// Lookup returns a command's definition.
func (r *Registry) Lookup(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// List returns every registered command's definition in registration order.
func (r *Registry) List() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Categories returns the distinct categories in first-seen order.
func (r *Registry) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range r.order {
		cat := r.defs[name].Category
		if cat == "" || seen[cat] {
			continue
		}
		seen[cat] = true
		out = append(out, cat)
	}
	return out
}

// Exposed reports whether name is reachable from iface, false for an
// unknown command.
func (r *Registry) Exposed(name string, iface constants.Interface) bool {
	d, ok := r.defs[name]
	if !ok {
		return false
	}
	switch iface {
	case constants.InterfacePalette:
		return d.Exposure.Palette
	case constants.InterfaceAgent:
		return d.Exposure.Agent
	case constants.InterfaceMCP:
		return d.Exposure.MCP
	case constants.InterfaceCLI:
		return d.Exposure.CLI
	default:
		// direct and any future interface bypass the gate entirely.
		return true
	}
}

// ListByExposure returns every command reachable from iface, in
// registration order.
func (r *Registry) ListByExposure(iface constants.Interface) []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		if r.Exposed(name, iface) {
			out = append(out, r.defs[name])
		}
	}
	return out
}

// ListByCategory returns every command in the given category, in
// registration order.
func (r *Registry) ListByCategory(category string) []Definition {
	out := make([]Definition, 0)
	for _, name := range r.order {
		if d := r.defs[name]; d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

// ListByTags returns every command carrying all of the given tags, in
// registration order.
func (r *Registry) ListByTags(tags ...string) []Definition {
	out := make([]Definition, 0)
	for _, name := range r.order {
		d := r.defs[name]
		if hasAllTags(d.Tags, tags) {
			out = append(out, d)
		}
	}
	return out
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}
