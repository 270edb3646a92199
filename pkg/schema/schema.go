// Package schema is the parse/validate/describe abstraction every command
// input goes through before a handler ever sees it.
//
// A command's input type is a plain Go struct with go-playground/validator
// tags (`validate:"required"`, `validate:"gte=0,lte=5"`,
// `validate:"omitempty,oneof=fast careful"`). Schema[T] reflects that
// struct into a wire *jsonschema.Schema (via
// github.com/google/jsonschema-go, which natively models oneOf/anyOf/allOf/
// const/enum so the projection sent to MCP clients never has to strip
// composition keywords) and validates decoded values with
// github.com/go-playground/validator/v10 against the very same tags.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	js "github.com/google/jsonschema-go/jsonschema"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Schema ties a Go input type T to its wire JSON-Schema representation and
// its parse/validate behavior.
type Schema[T any] struct {
	wire     *js.Schema
	override *js.Schema
}

// Option customizes a Schema at construction time.
type Option func(*schemaConfig)

type schemaConfig struct {
	override *js.Schema
}

// WithOverride replaces the reflected schema entirely — needed for
// discriminated unions a flat struct reflection cannot express.
func WithOverride(s *js.Schema) Option {
	return func(c *schemaConfig) { c.override = s }
}

var reflectCache sync.Map // reflect.Type -> *js.Schema

// New builds a Schema[T] by reflecting over T's struct tags.
func New[T any](opts ...Option) *Schema[T] {
	cfg := &schemaConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var zero T
	t := reflect.TypeOf(zero)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	wire := cfg.override
	if wire == nil {
		wire = reflectSchema(t)
	}

	return &Schema[T]{wire: wire, override: cfg.override}
}

// Wire returns the JSON-Schema representation sent to MCP clients.
func (s *Schema[T]) Wire() *js.Schema {
	return s.wire
}

// Parse decodes raw JSON into T and validates it via struct tags. Parse
// errors and validation errors are both reported as plain errors; the
// invoker (pkg/middleware) is responsible for mapping them onto
// errcode.ValidationError.
func (s *Schema[T]) Parse(raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("schema: decode: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return v, fmt.Errorf("schema: validate: %w", err)
	}
	return v, nil
}

// reflectSchema reflects a Go struct type into a *js.Schema, honoring `json`
// tags for property names and `validate` tags for required/bounds/enum/
// format hints. Results are cached per type since the same command's schema
// is requested on every tools/list call.
func reflectSchema(t reflect.Type) *js.Schema {
	if cached, ok := reflectCache.Load(t); ok {
		return cached.(*js.Schema)
	}

	s := &js.Schema{Type: "object", Properties: map[string]*js.Schema{}}
	if t == nil || t.Kind() != reflect.Struct {
		reflectCache.Store(t, s)
		return s
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, omit := jsonFieldName(f)
		if name == "-" {
			continue
		}

		prop := fieldSchema(f.Type)
		tag := f.Tag.Get("validate")
		required := false
		for _, rule := range strings.Split(tag, ",") {
			rule = strings.TrimSpace(rule)
			switch {
			case rule == "required":
				required = true
			case strings.HasPrefix(rule, "oneof="):
				for _, v := range strings.Fields(strings.TrimPrefix(rule, "oneof=")) {
					prop.Enum = append(prop.Enum, v)
				}
			case strings.HasPrefix(rule, "gte="):
				if n, err := strconv.ParseFloat(strings.TrimPrefix(rule, "gte="), 64); err == nil {
					prop.Minimum = &n
				}
			case strings.HasPrefix(rule, "lte="):
				if n, err := strconv.ParseFloat(strings.TrimPrefix(rule, "lte="), 64); err == nil {
					prop.Maximum = &n
				}
			case rule == "url":
				prop.Format = "uri"
			case rule == "email":
				prop.Format = "email"
			}
		}
		if desc := f.Tag.Get("description"); desc != "" {
			prop.Description = desc
		}

		s.Properties[name] = prop
		if required && !omit {
			s.Required = append(s.Required, name)
		}
	}

	reflectCache.Store(t, s)
	return s
}

func fieldSchema(t reflect.Type) *js.Schema {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return &js.Schema{Type: "string"}
	case reflect.Bool:
		return &js.Schema{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &js.Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &js.Schema{Type: "number"}
	case reflect.Slice, reflect.Array:
		return &js.Schema{Type: "array", Items: fieldSchema(t.Elem())}
	case reflect.Map:
		return &js.Schema{Type: "object"}
	case reflect.Struct:
		return reflectSchema(t)
	default:
		return &js.Schema{}
	}
}

func jsonFieldName(f reflect.StructField) (name string, omitempty bool) {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name, false
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = f.Name
	}
	for _, p := range parts[1:] {
		if p == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty
}
