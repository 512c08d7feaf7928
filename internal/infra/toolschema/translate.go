// Package toolschema turns a child's JSON-Schema tool definitions into the
// parameter descriptor sets the dynamic registry presents on the aggregator.
package toolschema

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tsoernes/mcp-registry/internal/domain"
)

// Kind is the closed set of parameter types.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindNull    Kind = "null"
)

// Param describes one parameter of a translated tool. Name is the sanitized
// spelling used on the aggregator surface; OriginalName is used when
// marshalling the outgoing tools/call arguments.
type Param struct {
	Name         string
	OriginalName string
	Kind         Kind
	Optional     bool // nullable union with the kind
	Required     bool
	HasDefault   bool
	Default      any
	Description  string
}

// Invocable is the translated form of one discovered tool: the namespaced
// name presented upstream, the original short-name sent downstream, and the
// parameter surface between them.
type Invocable struct {
	FullName    string
	ToolName    string
	Description string
	Params      []Param
}

// Translate validates a tool definition and derives its parameter surface.
// A malformed definition yields a diagnostic error; the caller logs and
// skips that tool without failing the mount.
func Translate(def domain.ToolDefinition, prefix string, logger *zap.Logger) (Invocable, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(def.Name) == "" {
		return Invocable{}, fmt.Errorf("tool has no name")
	}

	inv := Invocable{
		FullName:    domain.FullToolName(prefix, def.Name),
		ToolName:    def.Name,
		Description: def.Description,
	}

	schema := def.InputSchema
	if schema == nil {
		// No declared inputs is a zero-parameter tool.
		return inv, nil
	}
	typ, ok := schema["type"]
	if !ok {
		return Invocable{}, fmt.Errorf("tool %s: inputSchema missing type", def.Name)
	}
	if typStr, ok := typ.(string); !ok || typStr != "object" {
		return Invocable{}, fmt.Errorf("tool %s: inputSchema type is not object", def.Name)
	}

	properties, err := objectField(schema, "properties")
	if err != nil {
		return Invocable{}, fmt.Errorf("tool %s: %w", def.Name, err)
	}
	required := stringSet(schema["required"])

	for _, name := range propertyOrder(properties) {
		propSchema, _ := properties[name].(map[string]any)
		param, err := translateProperty(def.Name, name, propSchema, required, logger)
		if err != nil {
			return Invocable{}, err
		}
		inv.Params = append(inv.Params, param)
	}
	return inv, nil
}

func translateProperty(toolName, name string, propSchema map[string]any, required map[string]struct{}, logger *zap.Logger) (Param, error) {
	kind, optional := mapType(toolName, name, propSchema, logger)
	param := Param{
		Name:         SanitizeName(name),
		OriginalName: name,
		Kind:         kind,
		Optional:     optional,
	}
	if propSchema != nil {
		if desc, ok := propSchema["description"].(string); ok {
			param.Description = desc
		}
	}
	if _, ok := required[name]; ok {
		param.Required = true
		return param, nil
	}
	if propSchema != nil {
		if def, ok := propSchema["default"]; ok {
			param.HasDefault = true
			param.Default = def
		}
	}
	return param, nil
}

func mapType(toolName, propName string, propSchema map[string]any, logger *zap.Logger) (Kind, bool) {
	if propSchema == nil {
		return KindString, false
	}
	switch typ := propSchema["type"].(type) {
	case string:
		return kindOf(typ), false
	case []any:
		names := make([]string, 0, len(typ))
		hasNull := false
		for _, member := range typ {
			name, _ := member.(string)
			if name == "null" {
				hasNull = true
				continue
			}
			names = append(names, name)
		}
		if len(names) == 0 {
			return KindNull, false
		}
		// Only the exact two-element ["X","null"] union is optional-of-X;
		// every other union narrows to its first non-null member.
		if len(names) == 1 && hasNull {
			return kindOf(names[0]), true
		}
		if len(names) > 1 {
			logger.Warn("union type narrowed to first non-null member",
				zap.String("tool", toolName),
				zap.String("property", propName),
			)
		}
		return kindOf(names[0]), false
	default:
		return KindString, false
	}
}

func kindOf(name string) Kind {
	switch name {
	case "string":
		return KindString
	case "integer":
		return KindInteger
	case "number":
		return KindNumber
	case "boolean":
		return KindBoolean
	case "object":
		return KindObject
	case "array":
		return KindArray
	case "null":
		return KindNull
	default:
		return KindString
	}
}

// BuildArguments assembles the outgoing tools/call arguments map from
// caller-supplied kwargs keyed by sanitized names: sanitized keys map back
// to originals, schema defaults fill omitted optionals, and absent-sentinel
// optionals are dropped.
func BuildArguments(params []Param, kwargs map[string]any) (map[string]any, error) {
	args := make(map[string]any, len(kwargs))
	for _, param := range params {
		if val, ok := kwargs[param.Name]; ok {
			args[param.OriginalName] = val
			continue
		}
		if param.Required {
			return nil, fmt.Errorf("missing required argument %q", param.Name)
		}
		if param.HasDefault {
			args[param.OriginalName] = param.Default
		}
	}
	return args, nil
}

// SanitizeName replaces every character outside [A-Za-z0-9_] with an
// underscore so the name is valid on the registration surface.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// InputSchema renders the parameter surface back to a JSON-Schema object for
// the aggregator's tool listing.
func (inv Invocable) InputSchema() map[string]any {
	properties := make(map[string]any, len(inv.Params))
	var required []string
	for _, param := range inv.Params {
		prop := make(map[string]any, 3)
		if param.Optional {
			prop["type"] = []any{string(param.Kind), "null"}
		} else {
			prop["type"] = string(param.Kind)
		}
		if param.Description != "" {
			prop["description"] = param.Description
		}
		if param.HasDefault {
			prop["default"] = param.Default
		}
		properties[param.Name] = prop
		if param.Required {
			required = append(required, param.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func objectField(schema map[string]any, key string) (map[string]any, error) {
	raw, ok := schema[key]
	if !ok || raw == nil {
		return map[string]any{}, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("inputSchema.%s is not an object", key)
	}
	return obj, nil
}

func stringSet(raw any) map[string]struct{} {
	out := make(map[string]struct{})
	list, ok := raw.([]any)
	if !ok {
		return out
	}
	for _, item := range list {
		if name, ok := item.(string); ok {
			out[name] = struct{}{}
		}
	}
	return out
}

// propertyOrder yields property names in a stable order. Decoded JSON
// objects carry no order, so names sort lexically.
func propertyOrder(properties map[string]any) []string {
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
