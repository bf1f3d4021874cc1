// Package registry holds the typed tool catalogue: every tool the server
// exposes, its parameter schema, and argument validation against it.
package registry

import (
	"github.com/google/jsonschema-go/jsonschema"

	"binancemcp/pkg/core"
)

// ParamType is the JSON type of a tool parameter.
type ParamType string

// Supported parameter types.
const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// ParamSpec describes one tool parameter.
type ParamSpec struct {
	// Name is the argument key.
	Name string
	// Type is the expected JSON type.
	Type ParamType
	// Description is surfaced in the tool's input schema.
	Description string
	// Required marks the parameter as mandatory.
	Required bool
	// Enum restricts string values to this set, matched case-insensitively.
	Enum []string
}

// ToolDefinition binds a tool name to an exchange operation and the
// parameters it accepts.
type ToolDefinition struct {
	// Name is the tool name exposed over MCP.
	Name string
	// Description explains the tool to the calling agent.
	Description string
	// Operation is the exchange operation the tool dispatches to.
	Operation core.Operation
	// Params lists every accepted parameter; anything else is rejected.
	Params []ParamSpec
}

// InputSchema renders the definition as a JSON schema for tool listing.
func (d *ToolDefinition) InputSchema() *jsonschema.Schema {
	properties := make(map[string]*jsonschema.Schema, len(d.Params))
	var required []string

	for _, p := range d.Params {
		prop := &jsonschema.Schema{
			Type:        string(p.Type),
			Description: p.Description,
		}
		if len(p.Enum) > 0 {
			prop.Enum = make([]any, len(p.Enum))
			for i, v := range p.Enum {
				prop.Enum[i] = v
			}
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}
