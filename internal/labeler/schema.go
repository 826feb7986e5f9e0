package labeler

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildLabelJSONSchema returns the JSON-Schema constraint for model
// output. Values stay raw strings: normalization is not the model's job,
// and a string survives the round trip even when the model sees "(1,234)".
func BuildLabelJSONSchema() map[string]any {
	fieldProps := map[string]any{
		"raw_label":      map[string]any{"type": "string", "minLength": 1},
		"raw_value":      map[string]any{"type": "string", "minLength": 1},
		"proposed_label": map[string]any{"type": "string"},
		"raw_period":     map[string]any{"type": "string"},
		"raw_currency":   map[string]any{"type": "string"},
		"statement": map[string]any{
			"type": "string",
			"enum": []string{"income_statement", "balance_sheet", "cash_flow_statement", "unknown"},
		},
		"page":       map[string]any{"type": "integer", "minimum": 1},
		"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"document_type": map[string]any{
				"type": "string",
				"enum": []string{"income_statement", "balance_sheet", "cash_flow_statement", "unknown"},
			},
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"fields": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties":           fieldProps,
					"required":             []string{"raw_label", "raw_value", "statement", "page", "confidence"},
				},
			},
		},
		"required": []string{"document_type", "fields"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
