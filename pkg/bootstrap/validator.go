// Package bootstrap provides the auto-registered discovery tools
// (*-help/*-docs/*-schema/*-start) and the static surface validator every
// afd MCP server runs over its own registered command set.
package bootstrap

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	js "github.com/google/jsonschema-go/jsonschema"

	"github.com/lushly-dev/afd/pkg/registry"
)

// SurfaceCommand is the normalized view of a registered command the
// validator walks. FromRegistry builds a slice of these from a live
// registry.Registry; a caller may also hand-build the slice to validate a
// command set before it's registered.
type SurfaceCommand struct {
	Name        string
	Description string
	Category    string
	Tags        []string
	Requires    []string
	InputSchema *js.Schema
}

// FromRegistry snapshots every command in reg as a SurfaceCommand, in
// registration order.
func FromRegistry(reg *registry.Registry) []SurfaceCommand {
	defs := reg.List()
	out := make([]SurfaceCommand, 0, len(defs))
	for _, d := range defs {
		out = append(out, SurfaceCommand{
			Name:        d.Name,
			Description: d.Description,
			Category:    d.Category,
			Tags:        d.Tags,
			Requires:    d.Requires,
			InputSchema: d.InputSchema,
		})
	}
	return out
}

// Severity classifies a Finding.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Rule ids, one per validator check.
const (
	RuleSimilarDescriptions   = "similar-descriptions"
	RuleSchemaOverlap         = "schema-overlap"
	RuleNamingConvention      = "naming-convention"
	RuleNamingCollision       = "naming-collision"
	RuleMissingCategory       = "missing-category"
	RuleDescriptionInjection  = "description-injection"
	RuleDescriptionQuality    = "description-quality"
	RuleOrphanedCategory      = "orphaned-category"
	RuleSchemaComplexity      = "schema-complexity"
	RuleUnresolvedPrereq      = "unresolved-prerequisite"
	RuleCircularPrereq        = "circular-prerequisite"
)

// Finding is one issue raised by a validator rule.
type Finding struct {
	Rule       string   `json:"rule"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Commands   []string `json:"commands,omitempty"`
	Suppressed bool     `json:"suppressed"`
}

// Summary totals findings by severity.
type Summary struct {
	Total    int `json:"total"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Infos    int `json:"infos"`
}

// Result is the validator's overall report.
type Result struct {
	Valid    bool      `json:"valid"`
	Findings []Finding `json:"findings"`
	Summary  Summary   `json:"summary"`
}

// Options configures a Validate run. Zero values fall back to the
// documented defaults.
type Options struct {
	Strict                 bool
	Suppress               []string
	SimilarityThreshold    float64 // default 0.7
	SchemaOverlapThreshold float64 // default 0.8
	DescriptionMinLen      int     // default 20
}

func (o Options) withDefaults() Options {
	if o.SimilarityThreshold == 0 {
		o.SimilarityThreshold = 0.7
	}
	if o.SchemaOverlapThreshold == 0 {
		o.SchemaOverlapThreshold = 0.8
	}
	if o.DescriptionMinLen == 0 {
		o.DescriptionMinLen = 20
	}
	return o
}

// Validate runs all eleven rules over cmds and returns the aggregate
// report. Suppressed findings are included (flagged Suppressed:true) and
// never affect Valid; in Strict mode, unsuppressed warnings count toward
// Valid:false alongside errors.
func Validate(cmds []SurfaceCommand, opts Options) Result {
	opts = opts.withDefaults()
	suppress := normalizeSuppressions(opts.Suppress)

	var findings []Finding
	findings = append(findings, similarDescriptions(cmds, opts.SimilarityThreshold)...)
	findings = append(findings, schemaOverlap(cmds, opts.SchemaOverlapThreshold)...)
	findings = append(findings, namingConvention(cmds)...)
	findings = append(findings, namingCollision(cmds)...)
	findings = append(findings, missingCategory(cmds)...)
	findings = append(findings, descriptionInjection(cmds)...)
	findings = append(findings, descriptionQuality(cmds, opts.DescriptionMinLen)...)
	findings = append(findings, orphanedCategory(cmds)...)
	findings = append(findings, schemaComplexityFindings(cmds)...)
	findings = append(findings, unresolvedPrerequisite(cmds)...)
	findings = append(findings, circularPrerequisite(cmds)...)

	var summary Summary
	valid := true
	for i := range findings {
		f := &findings[i]
		f.Suppressed = isSuppressed(*f, suppress)
		summary.Total++
		switch f.Severity {
		case SeverityError:
			summary.Errors++
			if !f.Suppressed {
				valid = false
			}
		case SeverityWarning:
			summary.Warnings++
			if !f.Suppressed && opts.Strict {
				valid = false
			}
		case SeverityInfo:
			summary.Infos++
		}
	}

	return Result{Valid: valid, Findings: findings, Summary: summary}
}

// ── suppression matching ───────────────────────────────────────────

func normalizeSuppressions(raw []string) map[string]bool {
	out := make(map[string]bool, len(raw))
	for _, s := range raw {
		out[normalizeSuppressionKey(s)] = true
	}
	return out
}

// normalizeSuppressionKey canonicalizes "rule:a:b" pairs so suppression is
// order-independent.
func normalizeSuppressionKey(s string) string {
	parts := strings.Split(s, ":")
	if len(parts) <= 2 {
		return s
	}
	rest := append([]string(nil), parts[1:]...)
	sort.Strings(rest)
	return strings.Join(append([]string{parts[0]}, rest...), ":")
}

func isSuppressed(f Finding, suppress map[string]bool) bool {
	if suppress[f.Rule] {
		return true
	}
	if len(f.Commands) == 0 {
		return false
	}
	cmds := append([]string(nil), f.Commands...)
	sort.Strings(cmds)
	key := strings.Join(append([]string{f.Rule}, cmds...), ":")
	return suppress[key]
}

// ── rule 1: similar-descriptions ────────────────────────────────────

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "to": true, "and": true,
	"or": true, "in": true, "on": true, "for": true, "with": true, "is": true,
	"are": true, "this": true, "that": true, "it": true, "as": true, "by": true,
	"at": true, "from": true, "be": true, "will": true, "can": true, "your": true,
	"you": true, "its": true, "into": true, "if": true, "then": true,
}

func tokenize(s string) []string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	var out []string
	for _, tok := range strings.Fields(b.String()) {
		if !stopWords[tok] {
			out = append(out, tok)
		}
	}
	return out
}

func termFrequency(tokens []string) map[string]float64 {
	tf := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

func cosineSimilarity(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for k, v := range a {
		dot += v * b[k]
		normA += v * v
	}
	for _, v := range b {
		normB += v * v
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func similarDescriptions(cmds []SurfaceCommand, threshold float64) []Finding {
	var findings []Finding
	vectors := make([]map[string]float64, len(cmds))
	for i, c := range cmds {
		vectors[i] = termFrequency(tokenize(c.Description))
	}
	for i := 0; i < len(cmds); i++ {
		for j := i + 1; j < len(cmds); j++ {
			sim := cosineSimilarity(vectors[i], vectors[j])
			if sim >= threshold {
				findings = append(findings, Finding{
					Rule:     RuleSimilarDescriptions,
					Severity: SeverityWarning,
					Message:  "descriptions are too similar to distinguish reliably",
					Commands: []string{cmds[i].Name, cmds[j].Name},
				})
			}
		}
	}
	return findings
}

// ── rule 2: schema-overlap ──────────────────────────────────────────

func topLevelFields(s *js.Schema) map[string]bool {
	out := map[string]bool{}
	if s == nil {
		return out
	}
	for name := range s.Properties {
		out[name] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	shared := 0
	union := map[string]bool{}
	for k := range a {
		union[k] = true
		if b[k] {
			shared++
		}
	}
	for k := range b {
		union[k] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(shared) / float64(len(union))
}

func schemaOverlap(cmds []SurfaceCommand, threshold float64) []Finding {
	var findings []Finding
	fields := make([]map[string]bool, len(cmds))
	for i, c := range cmds {
		fields[i] = topLevelFields(c.InputSchema)
	}
	for i := 0; i < len(cmds); i++ {
		for j := i + 1; j < len(cmds); j++ {
			if len(fields[i]) == 0 || len(fields[j]) == 0 {
				continue
			}
			if jaccard(fields[i], fields[j]) >= threshold {
				findings = append(findings, Finding{
					Rule:     RuleSchemaOverlap,
					Severity: SeverityWarning,
					Message:  "input schemas share nearly all top-level fields",
					Commands: []string{cmds[i].Name, cmds[j].Name},
				})
			}
		}
	}
	return findings
}

// ── rule 3 & 4: naming-convention / naming-collision ────────────────

var kebabDomainAction = regexp.MustCompile(`^[a-z][a-z0-9]*-[a-z][a-z0-9-]*$`)

func namingConvention(cmds []SurfaceCommand) []Finding {
	var findings []Finding
	for _, c := range cmds {
		if len(c.Name) > 64 || !kebabDomainAction.MatchString(c.Name) {
			findings = append(findings, Finding{
				Rule:     RuleNamingConvention,
				Severity: SeverityError,
				Message:  "command name violates the kebab-case domain-action grammar",
				Commands: []string{c.Name},
			})
		}
	}
	return findings
}

var separatorReplacer = strings.NewReplacer("_", "-", ".", "-")

func normalizeCommandName(name string) string {
	return strings.ToLower(separatorReplacer.Replace(name))
}

func namingCollision(cmds []SurfaceCommand) []Finding {
	var findings []Finding
	seen := map[string][]string{}
	var order []string
	for _, c := range cmds {
		key := normalizeCommandName(c.Name)
		if _, ok := seen[key]; !ok {
			order = append(order, key)
		}
		seen[key] = append(seen[key], c.Name)
	}
	for _, key := range order {
		names := seen[key]
		if len(names) < 2 {
			continue
		}
		unique := map[string]bool{}
		for _, n := range names {
			unique[n] = true
		}
		if len(unique) < 2 {
			continue // same name registered twice isn't a naming collision
		}
		findings = append(findings, Finding{
			Rule:     RuleNamingCollision,
			Severity: SeverityError,
			Message:  "command names collapse to the same identifier after normalization",
			Commands: names,
		})
	}
	return findings
}

// ── rule 5 & 8: missing-category / orphaned-category ────────────────

func missingCategory(cmds []SurfaceCommand) []Finding {
	var findings []Finding
	for _, c := range cmds {
		if c.Category == "" {
			findings = append(findings, Finding{
				Rule:     RuleMissingCategory,
				Severity: SeverityInfo,
				Message:  "command has no category",
				Commands: []string{c.Name},
			})
		}
	}
	return findings
}

func orphanedCategory(cmds []SurfaceCommand) []Finding {
	counts := map[string][]string{}
	var order []string
	for _, c := range cmds {
		if c.Category == "" {
			continue
		}
		if _, ok := counts[c.Category]; !ok {
			order = append(order, c.Category)
		}
		counts[c.Category] = append(counts[c.Category], c.Name)
	}
	var findings []Finding
	for _, cat := range order {
		if len(counts[cat]) == 1 {
			findings = append(findings, Finding{
				Rule:     RuleOrphanedCategory,
				Severity: SeverityInfo,
				Message:  "category has exactly one command: " + cat,
				Commands: counts[cat],
			})
		}
	}
	return findings
}

// ── rule 6 & 7: description-injection / description-quality ────────

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all |any )?(the )?(previous|prior|above)\s+(instructions|rules|prompt)`),
	regexp.MustCompile(`(?i)disregard (the )?(above|previous|prior)`),
	regexp.MustCompile(`(?i)\byou are now\b`),
	regexp.MustCompile(`(?i)\bact as (a|an)\s`),
	regexp.MustCompile(`(?i)^\s*system\s*:`),
	regexp.MustCompile(`(?i)\[system\]`),
	regexp.MustCompile(`<\|im_start\|>`),
	regexp.MustCompile(`(?i)^\s*assistant\s*:`),
	regexp.MustCompile(`<!--[\s\S]*-->`),
	regexp.MustCompile(`[\x{200B}-\x{200F}\x{202A}-\x{202E}\x{FEFF}]`),
}

func descriptionInjection(cmds []SurfaceCommand) []Finding {
	var findings []Finding
	for _, c := range cmds {
		for _, p := range injectionPatterns {
			if p.MatchString(c.Description) {
				findings = append(findings, Finding{
					Rule:     RuleDescriptionInjection,
					Severity: SeverityError,
					Message:  "description matches a prompt-injection pattern",
					Commands: []string{c.Name},
				})
				break
			}
		}
	}
	return findings
}

var actionVerbs = map[string]bool{}

func init() {
	for _, v := range []string{
		"create", "list", "delete", "update", "get", "fetch", "run", "execute",
		"start", "stop", "deploy", "validate", "send", "remove", "add", "check",
		"build", "sync", "scan", "analyze", "generate", "restart", "rollback",
		"register", "cancel", "pause", "resume", "clone", "export", "import",
		"search", "query", "invoke", "trigger", "schedule", "archive", "restore",
		"publish", "merge", "fork", "read", "write", "set", "reset", "open",
		"close", "enable", "disable", "connect", "disconnect", "upload", "download",
		"render", "return", "report", "orient", "show", "describe", "filter",
		"inspect", "summarize",
	} {
		actionVerbs[v] = true
	}
}

func hasActionVerb(description string) bool {
	for _, tok := range tokenize(description) {
		if actionVerbs[tok] {
			return true
		}
	}
	return false
}

func descriptionQuality(cmds []SurfaceCommand, minLen int) []Finding {
	var findings []Finding
	for _, c := range cmds {
		if len(c.Description) < minLen || !hasActionVerb(c.Description) {
			findings = append(findings, Finding{
				Rule:     RuleDescriptionQuality,
				Severity: SeverityWarning,
				Message:  "description is too short or lacks a recognizable action verb",
				Commands: []string{c.Name},
			})
		}
	}
	return findings
}

// ── rule 10 & 11: unresolved-prerequisite / circular-prerequisite ──

func unresolvedPrerequisite(cmds []SurfaceCommand) []Finding {
	names := map[string]bool{}
	for _, c := range cmds {
		names[c.Name] = true
	}
	var findings []Finding
	for _, c := range cmds {
		for _, req := range c.Requires {
			if !names[req] {
				findings = append(findings, Finding{
					Rule:     RuleUnresolvedPrereq,
					Severity: SeverityError,
					Message:  "requires references an unregistered command: " + req,
					Commands: []string{c.Name},
				})
			}
		}
	}
	return findings
}

func circularPrerequisite(cmds []SurfaceCommand) []Finding {
	graph := map[string][]string{}
	for _, c := range cmds {
		graph[c.Name] = c.Requires
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var cycle []string
	var found bool

	var visit func(node string, stack []string)
	visit = func(node string, stack []string) {
		if found {
			return
		}
		color[node] = gray
		stack = append(stack, node)
		for _, dep := range graph[node] {
			if found {
				return
			}
			switch color[dep] {
			case gray:
				// Found a cycle; extract the loop portion of the stack.
				idx := 0
				for i, n := range stack {
					if n == dep {
						idx = i
						break
					}
				}
				cycle = append([]string(nil), stack[idx:]...)
				found = true
				return
			case white:
				visit(dep, stack)
			}
		}
		if !found {
			color[node] = black
		}
	}

	// Sort node names for deterministic traversal order.
	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if found {
			break
		}
		if color[name] == white {
			visit(name, nil)
		}
	}

	if !found {
		return nil
	}
	return []Finding{{
		Rule:     RuleCircularPrereq,
		Severity: SeverityError,
		Message:  "prerequisite graph contains a cycle",
		Commands: cycle,
	}}
}
