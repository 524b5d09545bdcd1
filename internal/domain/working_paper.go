package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// ColumnType represents the type of a working paper column
type ColumnType string

const (
	ColumnText        ColumnType = "text"
	ColumnNumber      ColumnType = "number"
	ColumnDate        ColumnType = "date"
	ColumnSelect      ColumnType = "select"
	ColumnMultiSelect ColumnType = "multiselect"
	ColumnFile        ColumnType = "file"
	ColumnURL         ColumnType = "url"
	ColumnFormula     ColumnType = "formula"
)

// IsValid reports whether t is a known column type
func (t ColumnType) IsValid() bool {
	switch t {
	case ColumnText, ColumnNumber, ColumnDate, ColumnSelect, ColumnMultiSelect, ColumnFile, ColumnURL, ColumnFormula:
		return true
	}
	return false
}

// Column is one column of a working paper template
type Column struct {
	ID      int64      `json:"id,omitempty"`
	Name    string     `json:"column_name"`
	Type    ColumnType `json:"column_type"`
	Order   int        `json:"column_order"`
	Options []string   `json:"options,omitempty"`
	Formula string     `json:"formula,omitempty"`
}

// WorkingPaperTemplate is an organization's reusable tabular schema
type WorkingPaperTemplate struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	AllowRowInsert bool      `json:"allow_row_insert"`
	Columns        []Column  `json:"columns"`
	CreatedBy      int64     `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NormalizeColumnOrder sorts columns by their requested order and renumbers them 0..n-1.
// Formula references are rewritten to follow the renumbering. Two columns asking for
// the same position are rejected.
func NormalizeColumnOrder(cols []Column) ([]Column, error) {
	out := make([]Column, len(cols))
	copy(out, cols)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	for i := 1; i < len(out); i++ {
		if out[i].Order == out[i-1].Order {
			return nil, NewValidation("columns %q and %q share position %d", out[i-1].Name, out[i].Name, out[i].Order)
		}
	}
	positions := make(map[int]int, len(out))
	for i := range out {
		positions[out[i].Order] = i
		out[i].Order = i
	}
	for i := range out {
		if out[i].Type != ColumnFormula {
			continue
		}
		formula, err := remapFormulaRefs(out[i].Formula, positions)
		if err != nil {
			return nil, NewValidation("column %q: %v", out[i].Name, err)
		}
		out[i].Formula = formula
	}
	return out, nil
}

// Validate checks the template and its column invariants
func (t *WorkingPaperTemplate) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return NewValidation("working paper name is required")
	}
	if len(t.Columns) == 0 {
		return NewValidation("at least one column is required")
	}

	names := make(map[string]bool, len(t.Columns))
	for i, c := range t.Columns {
		if c.Order != i {
			return NewValidation("column order must be contiguous from 0, got %d at position %d", c.Order, i)
		}
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return NewValidation("column %d has no name", i)
		}
		if names[name] {
			return NewValidation("duplicate column name %q", name)
		}
		names[name] = true
		if !c.Type.IsValid() {
			return NewValidation("column %q has invalid type %q", name, c.Type)
		}
		if (c.Type == ColumnSelect || c.Type == ColumnMultiSelect) && len(c.Options) == 0 {
			return NewValidation("column %q needs at least one option", name)
		}
	}

	for _, c := range t.Columns {
		if c.Type != ColumnFormula {
			continue
		}
		expr, err := ParseFormula(c.Formula)
		if err != nil {
			return NewValidation("column %q: %v", c.Name, err)
		}
		for _, ref := range expr.Refs() {
			if ref == c.Order {
				return NewValidation("column %q refers to itself", c.Name)
			}
			if ref < 0 || ref >= len(t.Columns) {
				return NewValidation("column %q refers to missing column C%d", c.Name, ref)
			}
			if t.Columns[ref].Type != ColumnNumber {
				return NewValidation("column %q refers to non-numeric column C%d", c.Name, ref)
			}
		}
	}
	return nil
}

// Column returns the column with the given name
func (t *WorkingPaperTemplate) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// AttachedWorkingPaper is a template attached to a folder together with its rows
type AttachedWorkingPaper struct {
	Template WorkingPaperTemplate `json:"working_paper"`
	Rows     []DataRow            `json:"rows"`
}

// DataRow is a stored row of a working paper within a folder
type DataRow struct {
	ID       int64           `json:"id,omitempty"`
	RowOrder int             `json:"row_order"`
	Data     json.RawMessage `json:"data"`
}
