package models

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// nodeDataSchemas maps node types to the JSON Schema their data blob must
// satisfy at launch time. Types absent from the map accept any data.
var nodeDataSchemas = map[NodeType]map[string]any{
	NodeTypeMessage: {
		"type":     "object",
		"required": []any{"text"},
		"properties": map[string]any{
			"text":    map[string]any{"type": "string", "minLength": 1},
			"channel": map[string]any{"type": "string", "enum": []any{"whatsapp", "sms"}},
		},
	},
	NodeTypeDelay: {
		"type": "object",
		"properties": map[string]any{
			"mode":     map[string]any{"type": "string", "enum": []any{"seconds", "duration", "until"}},
			"seconds":  map[string]any{"type": "number", "minimum": 0},
			"duration": map[string]any{"type": "string"},
			"until":    map[string]any{"type": "string"},
		},
	},
	NodeTypeWait: {
		"type": "object",
		"properties": map[string]any{
			"timeout": map[string]any{"type": "string"},
		},
	},
	NodeTypeAPI: {
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url":    map[string]any{"type": "string", "minLength": 1},
			"method": map[string]any{"type": "string"},
			"body":   map[string]any{"type": "string"},
			"mappings": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"var", "path"},
					"properties": map[string]any{
						"var":  map[string]any{"type": "string"},
						"path": map[string]any{"type": "string"},
					},
				},
			},
			"continue_on_error": map[string]any{"type": "boolean"},
		},
	},
	NodeTypeAudience: {
		"type": "object",
		"properties": map[string]any{
			"phoneKey": map[string]any{"type": "string"},
			"rows":     map[string]any{"type": "array"},
			"mapping":  map[string]any{"type": "object"},
		},
	},
}

// ValidateNodeData checks a node's data blob against the schema for its type.
func ValidateNodeData(node *Node) error {
	schema, ok := nodeDataSchemas[node.Type]
	if !ok {
		return nil
	}

	data := node.Data
	if data == nil {
		data = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("failed to validate node %s data: %w", node.ID, err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("node %s (%s) data invalid: %s", node.ID, node.Type, strings.Join(descriptions, "; "))
	}

	return nil
}
