package vision

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Caption is the structured description we want back for a diagram page.
// Labels and relationships form the reply contract; summary is accepted when
// the model volunteers one but never required.
type Caption struct {
	Summary       string         `json:"summary,omitempty"`
	Labels        []string       `json:"labels"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

// Relationship is one directed edge read off a diagram.
type Relationship struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// BuildCaptionJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. It is sent to the model as the output contract and reused
// locally to validate the reply.
func BuildCaptionJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"summary": map[string]any{"type": "string", "minLength": 1},
			"labels": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string", "minLength": 1},
			},
			"relationships": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"from":  map[string]any{"type": "string", "minLength": 1},
						"to":    map[string]any{"type": "string", "minLength": 1},
						"label": map[string]any{"type": "string"},
					},
					"required": []string{"from", "to"},
				},
			},
		},
		"required": []string{"labels"},
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
