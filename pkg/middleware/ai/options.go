package ai

import (
	"github.com/invopop/jsonschema"
)

// AgentOptions holds per-call settings.
type AgentOptions struct {
	Schema *ResponseFormat
	// System is prepended as a system instruction when the provider
	// supports one.
	System string
}

// AgentOption configures a call.
type AgentOption interface {
	Apply(*AgentOptions)
}

type schemaOption struct{ schema *ResponseFormat }

func (o schemaOption) Apply(opts *AgentOptions) { opts.Schema = o.schema }

type systemOption struct{ system string }

func (o systemOption) Apply(opts *AgentOptions) { opts.System = o.system }

// WithSchema requests JSON output matching a schema. The argument is a
// *ResponseFormat, a ResponseFormat, or a value whose type is reflected
// into a JSON schema.
//
// Example:
//
//	type modeDecision struct {
//	    Mode   string `json:"mode" jsonschema:"enum=normal,enum=research"`
//	    Reason string `json:"reason"`
//	}
//	out, err := ai.Complete(ctx, planner, prompt, ai.WithSchema(&modeDecision{}))
func WithSchema(source any) AgentOption {
	switch v := source.(type) {
	case *ResponseFormat:
		return schemaOption{schema: v}
	case ResponseFormat:
		return schemaOption{schema: &v}
	default:
		return schemaOption{schema: reflectSchema(v)}
	}
}

// WithSchemaFor requests JSON output matching the schema of T.
func WithSchemaFor[T any]() AgentOption {
	var zero T
	return schemaOption{schema: reflectSchema(zero)}
}

// WithJSON requests a JSON object without a schema.
func WithJSON() AgentOption {
	return schemaOption{schema: &ResponseFormat{Type: "json_object"}}
}

// WithSystem sets a system instruction.
func WithSystem(system string) AgentOption {
	return systemOption{system: system}
}

// Options folds opts into a new AgentOptions.
func Options(opts ...AgentOption) *AgentOptions {
	o := &AgentOptions{}
	for _, opt := range opts {
		opt.Apply(o)
	}
	return o
}

// GetSchema returns the requested response format or nil.
func GetSchema(opts *AgentOptions) *ResponseFormat {
	if opts == nil {
		return nil
	}
	return opts.Schema
}

// GetSystem returns the system instruction or "".
func GetSystem(opts *AgentOptions) string {
	if opts == nil {
		return ""
	}
	return opts.System
}

func reflectSchema(v any) *ResponseFormat {
	r := jsonschema.Reflector{
		// Providers reject $ref/$defs in structured output schemas.
		DoNotReference: true,
		ExpandedStruct: true,
	}
	return &ResponseFormat{Type: "json_schema", Schema: r.Reflect(v)}
}
