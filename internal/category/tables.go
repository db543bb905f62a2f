package category

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
)

//go:embed tables.json
var defaultTablesJSON []byte

// KnownCompany maps a name fragment to a category.
type KnownCompany struct {
	Pattern  string             `json:"pattern"`
	Category constants.Category `json:"category"`
}

// KeywordGroup lists words that indicate a category.
type KeywordGroup struct {
	Category constants.Category `json:"category"`
	Words    []string           `json:"words"`
}

// Tables are the keyword tables used by the keyword stages. Order is significant:
// the first matching entry wins. Tables are read-only once loaded.
type Tables struct {
	Default        constants.Category `json:"default"`
	KnownCompanies []KnownCompany     `json:"known_companies"`
	Keywords       []KeywordGroup     `json:"keywords"`
}

// DefaultTables returns the tables compiled into the binary.
func DefaultTables() *Tables {
	t, err := ParseTables(defaultTablesJSON)
	if err != nil {
		panic(fmt.Sprintf("embedded category tables: %v", err))
	}
	return t
}

// LoadTables reads tables from path, or returns the embedded tables when path is empty.
func LoadTables(path string) (*Tables, error) {
	if path == "" {
		return DefaultTables(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category tables: %w", err)
	}
	return ParseTables(data)
}

// ParseTables validates data against the tables schema and decodes it.
func ParseTables(data []byte) (*Tables, error) {
	if err := validateTables(data); err != nil {
		return nil, err
	}
	var t Tables
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode category tables: %w", err)
	}
	for i := range t.KnownCompanies {
		t.KnownCompanies[i].Pattern = normalizeName(t.KnownCompanies[i].Pattern)
	}
	for i := range t.Keywords {
		for j, w := range t.Keywords[i].Words {
			t.Keywords[i].Words[j] = normalizeName(w)
		}
	}
	return &t, nil
}

// BuildTablesJSONSchema returns the schema for table files as a generic map.
func BuildTablesJSONSchema(allowedCategories []string) map[string]any {
	category := map[string]any{"type": "string", "enum": allowedCategories}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"default", "known_companies", "keywords"},
		"properties": map[string]any{
			"default": category,
			"known_companies": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"pattern", "category"},
					"properties": map[string]any{
						"pattern":  map[string]any{"type": "string", "minLength": 2},
						"category": category,
					},
				},
			},
			"keywords": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"category", "words"},
					"properties": map[string]any{
						"category": category,
						"words": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string", "minLength": 2},
						},
					},
				},
			},
		},
	}
}

func validateTables(data []byte) error {
	b, err := json.Marshal(BuildTablesJSONSchema(constants.AsStringSlice()))
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tables.schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("tables.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal category tables: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("category tables do not match schema: %w", err)
	}
	return nil
}
