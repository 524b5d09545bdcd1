package schema

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/auditflow/auditflow/internal/domain"
)

// RowValidator checks working paper rows against a JSON Schema derived from the template
type RowValidator struct{}

// NewRowValidator creates a new row validator
func NewRowValidator() *RowValidator {
	return &RowValidator{}
}

// Schema builds the JSON Schema of a template row. Values are checked for shape only;
// option membership, date parsing and formulas stay with the domain decoder.
func (v *RowValidator) Schema(t *domain.WorkingPaperTemplate) (map[string]interface{}, error) {
	if t == nil || len(t.Columns) == 0 {
		return nil, domain.NewValidation("working paper has no columns")
	}

	properties := make(map[string]interface{}, len(t.Columns))
	for _, col := range t.Columns {
		properties[col.Name] = columnSchema(col)
	}

	return map[string]interface{}{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"title":                t.Name,
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}, nil
}

func columnSchema(col domain.Column) map[string]interface{} {
	switch col.Type {
	case domain.ColumnNumber:
		return map[string]interface{}{"type": []string{"number", "string", "null"}}
	case domain.ColumnDate:
		return map[string]interface{}{
			"type":    []string{"string", "null"},
			"pattern": `^\s*(\d{4}-\d{2}-\d{2})?\s*$`,
		}
	case domain.ColumnMultiSelect:
		return map[string]interface{}{
			"type":  []string{"array", "null"},
			"items": map[string]interface{}{"type": "string", "enum": col.Options},
		}
	case domain.ColumnFormula:
		// recomputed server side
		return map[string]interface{}{}
	default:
		return map[string]interface{}{"type": []string{"string", "null"}}
	}
}

// ValidateRow validates a single raw row
func (v *RowValidator) ValidateRow(t *domain.WorkingPaperTemplate, raw json.RawMessage) error {
	schema, err := v.Schema(t)
	if err != nil {
		return err
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return domain.NewValidation("row is not valid JSON: %v", err)
	}

	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return domain.NewValidation("%s", strings.Join(errs, "; "))
	}

	return nil
}
