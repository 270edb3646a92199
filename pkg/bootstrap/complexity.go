package bootstrap

import (
	"fmt"
	"math"

	js "github.com/google/jsonschema-go/jsonschema"
)

// complexityField accumulates what the walker has seen about one field
// name across every union variant that declares it.
type complexityField struct {
	requiredSomewhere bool
	hasEnum           bool
	hasPatternOrFmt   bool
	numericBounds     int
}

type complexityWalk struct {
	fields        map[string]*complexityField
	maxDepth      int
	unions        int
	intersections int
}

// ComplexityScore computes the weighted schema-complexity score over s and
// classifies it into a tier. Score is never negative; tier is
// one of "low" (0-5, no finding), "moderate" (6-12, info), "high" (13-20,
// warning), or "very-high" (21+, warning) — the rule never fires "error".
func ComplexityScore(s *js.Schema) (score int, tier string) {
	w := &complexityWalk{fields: map[string]*complexityField{}}
	walkComplexity(s, 0, w)

	fields := len(w.fields)
	optional := 0
	enums := 0
	patterns := 0
	numericBounds := 0
	for _, f := range w.fields {
		if !f.requiredSomewhere {
			optional++
		}
		if f.hasEnum {
			enums++
		}
		if f.hasPatternOrFmt {
			patterns++
		}
		numericBounds += f.numericBounds
	}

	var optionalRatio float64
	if fields > 0 {
		optionalRatio = float64(optional) / float64(fields)
	}

	score = fields*1 + w.maxDepth*3 + w.unions*5 + w.intersections*2 +
		enums*1 + patterns*2 + numericBounds*1 + int(math.Floor(optionalRatio*4))

	switch {
	case score <= 5:
		tier = "low"
	case score <= 12:
		tier = "moderate"
	case score <= 20:
		tier = "high"
	default:
		tier = "very-high"
	}
	return score, tier
}

func complexitySeverity(tier string) (Severity, bool) {
	switch tier {
	case "moderate":
		return SeverityInfo, true
	case "high", "very-high":
		return SeverityWarning, true
	default:
		return "", false
	}
}

func schemaComplexityFindings(cmds []SurfaceCommand) []Finding {
	var findings []Finding
	for _, c := range cmds {
		if c.InputSchema == nil {
			continue
		}
		score, tier := ComplexityScore(c.InputSchema)
		severity, fires := complexitySeverity(tier)
		if !fires {
			continue
		}
		findings = append(findings, Finding{
			Rule:     RuleSchemaComplexity,
			Severity: severity,
			Message:  fmt.Sprintf("input schema complexity score %d is %s", score, tier),
			Commands: []string{c.Name},
		})
	}
	return findings
}

func isNullSchema(s *js.Schema) bool {
	return s != nil && s.Type == "null"
}

func walkComplexity(s *js.Schema, depth int, w *complexityWalk) {
	if s == nil {
		return
	}
	if len(s.AllOf) > 0 {
		w.intersections++
		for _, sub := range s.AllOf {
			walkComplexity(sub, depth, w)
		}
	}
	if len(s.OneOf) > 0 {
		walkUnion(s.OneOf, depth, w)
	}
	if len(s.AnyOf) > 0 {
		walkUnion(s.AnyOf, depth, w)
	}
	if len(s.Properties) > 0 {
		walkObjectFields(s.Properties, s.Required, depth, w)
	}
}

// walkUnion tallies a oneOf/anyOf group as a real union only when at least
// two non-null variants are present — a two-branch {T, null} wrapper is a
// nullable-field idiom, not a semantic union.
func walkUnion(variants []*js.Schema, depth int, w *complexityWalk) {
	nonNull := 0
	for _, v := range variants {
		if !isNullSchema(v) {
			nonNull++
		}
	}
	if nonNull >= 2 {
		w.unions++
	}
	for _, v := range variants {
		if !isNullSchema(v) {
			walkComplexity(v, depth, w)
		}
	}
}

func walkObjectFields(props map[string]*js.Schema, required []string, depth int, w *complexityWalk) {
	requiredSet := make(map[string]bool, len(required))
	for _, r := range required {
		requiredSet[r] = true
	}

	for name, prop := range props {
		f, ok := w.fields[name]
		if !ok {
			f = &complexityField{}
			w.fields[name] = f
		}
		if requiredSet[name] {
			f.requiredSomewhere = true
		}
		if prop == nil {
			continue
		}
		// const is deliberately excluded from the enum tally.
		if len(prop.Enum) > 0 {
			f.hasEnum = true
		}
		if prop.Pattern != "" || prop.Format != "" {
			f.hasPatternOrFmt = true
		}
		if prop.Minimum != nil {
			f.numericBounds++
		}
		if prop.Maximum != nil {
			f.numericBounds++
		}

		switch {
		case prop.Type == "object" && len(prop.Properties) > 0:
			if depth+1 > w.maxDepth {
				w.maxDepth = depth + 1
			}
			walkObjectFields(prop.Properties, prop.Required, depth+1, w)
		case prop.Type == "array" && prop.Items != nil && prop.Items.Type == "object":
			if depth+1 > w.maxDepth {
				w.maxDepth = depth + 1
			}
			walkObjectFields(prop.Items.Properties, prop.Items.Required, depth+1, w)
		}

		if len(prop.OneOf) > 0 || len(prop.AnyOf) > 0 || len(prop.AllOf) > 0 {
			walkComplexity(prop, depth, w)
		}
	}
}
