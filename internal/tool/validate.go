package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/flemzord/deskclaw/internal/security"
)

// schemaNode is the subset of JSON Schema that tool declarations use.
type schemaNode struct {
	Type       string                `json:"type"`
	Properties map[string]schemaNode `json:"properties"`
	Required   []string              `json:"required"`
	Items      *schemaNode           `json:"items"`
	Enum       []json.RawMessage     `json:"enum"`
	MaxLength  *int                  `json:"maxLength"`
	MinItems   *int                  `json:"minItems"`
	MaxItems   *int                  `json:"maxItems"`
	Minimum    *float64              `json:"minimum"`
	Maximum    *float64              `json:"maximum"`
}

// ValidateArgs checks args against schema. The top level must be an object;
// unknown properties are ignored. The returned error wraps
// ErrInvalidArguments and names the first offending field.
func ValidateArgs(schema, args json.RawMessage) error {
	var root schemaNode
	if err := json.Unmarshal(schema, &root); err != nil {
		return fmt.Errorf("%w: unreadable schema: %w", ErrInvalidSchema, err)
	}
	if root.Type == "" {
		root.Type = "object"
	}

	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := security.CheckArgsDepth(args, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	var value any
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return fmt.Errorf("%w: arguments are not valid JSON", ErrInvalidArguments)
	}
	if _, ok := value.(map[string]any); !ok {
		return fmt.Errorf("%w: arguments must be a JSON object", ErrInvalidArguments)
	}

	return validateNode(root, value, "")
}

func validateNode(node schemaNode, value any, path string) error {
	if node.Type != "" && !matchesType(node.Type, value) {
		return fmt.Errorf("%w: %s must be %s", ErrInvalidArguments, fieldName(path), article(node.Type))
	}

	if len(node.Enum) > 0 && !inEnum(node.Enum, value) {
		return fmt.Errorf("%w: %s must be one of %s", ErrInvalidArguments, fieldName(path), enumList(node.Enum))
	}

	switch v := value.(type) {
	case map[string]any:
		for _, name := range node.Required {
			if _, ok := v[name]; !ok {
				return fmt.Errorf("%w: missing required field %q", ErrInvalidArguments, join(path, name))
			}
		}
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			prop, ok := node.Properties[name]
			if !ok {
				continue
			}
			if err := validateNode(prop, v[name], join(path, name)); err != nil {
				return err
			}
		}

	case []any:
		if node.MinItems != nil && len(v) < *node.MinItems {
			return fmt.Errorf("%w: %s needs at least %d items", ErrInvalidArguments, fieldName(path), *node.MinItems)
		}
		if node.MaxItems != nil && len(v) > *node.MaxItems {
			return fmt.Errorf("%w: %s allows at most %d items", ErrInvalidArguments, fieldName(path), *node.MaxItems)
		}
		if node.Items != nil {
			for i, item := range v {
				if err := validateNode(*node.Items, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}

	case string:
		if node.MaxLength != nil && utf8.RuneCountInString(v) > *node.MaxLength {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidArguments, fieldName(path), *node.MaxLength)
		}

	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return fmt.Errorf("%w: %s is not a number", ErrInvalidArguments, fieldName(path))
		}
		if node.Minimum != nil && f < *node.Minimum {
			return fmt.Errorf("%w: %s must be >= %v", ErrInvalidArguments, fieldName(path), *node.Minimum)
		}
		if node.Maximum != nil && f > *node.Maximum {
			return fmt.Errorf("%w: %s must be <= %v", ErrInvalidArguments, fieldName(path), *node.Maximum)
		}
	}
	return nil
}

func matchesType(typ string, value any) bool {
	switch typ {
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		_, ok := value.(json.Number)
		return ok
	case "integer":
		n, ok := value.(json.Number)
		if !ok {
			return false
		}
		f, err := n.Float64()
		return err == nil && f == math.Trunc(f)
	case "null":
		return value == nil
	}
	return true
}

func inEnum(enum []json.RawMessage, value any) bool {
	got, err := json.Marshal(value)
	if err != nil {
		return false
	}
	for _, e := range enum {
		var want any
		dec := json.NewDecoder(bytes.NewReader(e))
		dec.UseNumber()
		if dec.Decode(&want) != nil {
			continue
		}
		wantBytes, err := json.Marshal(want)
		if err == nil && bytes.Equal(got, wantBytes) {
			return true
		}
	}
	return false
}

func enumList(enum []json.RawMessage) string {
	parts := make([]string, len(enum))
	for i, e := range enum {
		parts[i] = string(bytes.TrimSpace(e))
	}
	return strings.Join(parts, ", ")
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func fieldName(path string) string {
	if path == "" {
		return "arguments"
	}
	return fmt.Sprintf("%q", path)
}

func article(typ string) string {
	switch typ {
	case "array", "integer", "object":
		return "an " + typ
	}
	return "a " + typ
}
