package extract

// BuildPageJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass it to the model as a structured output constraint and
// also use it locally to validate the response.
func BuildPageJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"page_title": map[string]any{"type": "string"},
			"rows": map[string]any{
				"type": "object",
				"additionalProperties": map[string]any{
					"type": "object",
					"additionalProperties": map[string]any{
						"type": []any{"string", "number"},
					},
				},
			},
			"confidence_score": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"rows"},
	}
}

// BuildMetadataJSONSchema constrains the first-page metadata response.
func BuildMetadataJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"company_name": map[string]any{"type": []any{"string", "null"}},
			"publication_year": map[string]any{
				"type":    []any{"string", "null"},
				"pattern": `^(19|20)\d{2}$`,
			},
			"publication_date": map[string]any{
				"type":    []any{"string", "null"},
				"pattern": `^\d{8}$`,
			},
		},
		"required": []string{"company_name", "publication_year", "publication_date"},
	}
}
