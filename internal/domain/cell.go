package domain

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format of date cells and due dates
const DateLayout = "2006-01-02"

// CellValue is a typed working paper cell. Exactly one payload field is
// meaningful, selected by Type; an empty cell has Empty set.
type CellValue struct {
	Type    ColumnType
	Empty   bool
	Text    string
	Number  float64
	Date    time.Time
	Choices []string
}

// MarshalJSON renders the natural JSON value of the cell
func (v CellValue) MarshalJSON() ([]byte, error) {
	if v.Empty {
		return []byte("null"), nil
	}
	switch v.Type {
	case ColumnNumber, ColumnFormula:
		return json.Marshal(v.Number)
	case ColumnDate:
		return json.Marshal(v.Date.Format(DateLayout))
	case ColumnMultiSelect:
		return json.Marshal(v.Choices)
	default:
		return json.Marshal(v.Text)
	}
}

// Row is a validated working paper row keyed by column name
type Row map[string]CellValue

// DecodeRow validates a raw row against the template's columns and returns typed
// values for every column. Formula columns are recomputed; client values for them are ignored.
func (t *WorkingPaperTemplate) DecodeRow(raw map[string]json.RawMessage) (Row, error) {
	for name := range raw {
		if _, ok := t.Column(name); !ok {
			return nil, NewValidation("unknown column %q", name)
		}
	}

	row := make(Row, len(t.Columns))
	numbers := make(map[int]float64)
	for _, col := range t.Columns {
		if col.Type == ColumnFormula {
			continue
		}
		cell, err := decodeCell(col, raw[col.Name])
		if err != nil {
			return nil, err
		}
		row[col.Name] = cell
		if col.Type == ColumnNumber && !cell.Empty {
			numbers[col.Order] = cell.Number
		}
	}

	for _, col := range t.Columns {
		if col.Type != ColumnFormula {
			continue
		}
		f, err := ParseFormula(col.Formula)
		if err != nil {
			return nil, NewValidation("column %q: %v", col.Name, err)
		}
		result, ok, err := f.Eval(numbers)
		switch {
		case err == errDivisionByZero || !ok:
			row[col.Name] = CellValue{Type: ColumnFormula, Empty: true}
		case err != nil:
			return nil, NewValidation("column %q: %v", col.Name, err)
		default:
			row[col.Name] = CellValue{Type: ColumnFormula, Number: result}
		}
	}
	return row, nil
}

func decodeCell(col Column, raw json.RawMessage) (CellValue, error) {
	empty := CellValue{Type: col.Type, Empty: true}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return empty, nil
	}

	if col.Type == ColumnMultiSelect {
		var choices []string
		if err := json.Unmarshal(trimmed, &choices); err != nil {
			return CellValue{}, NewValidation("column %q expects a list of options", col.Name)
		}
		if len(choices) == 0 {
			return empty, nil
		}
		for _, c := range choices {
			if !containsString(col.Options, c) {
				return CellValue{}, NewValidation("column %q: %q is not an allowed option", col.Name, c)
			}
		}
		return CellValue{Type: col.Type, Choices: choices}, nil
	}

	if col.Type == ColumnNumber && trimmed[0] != '"' {
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return CellValue{}, NewValidation("column %q expects a number", col.Name)
		}
		return CellValue{Type: col.Type, Number: n}, nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return CellValue{}, NewValidation("column %q expects a string value", col.Name)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return empty, nil
	}

	switch col.Type {
	case ColumnNumber:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return CellValue{}, NewValidation("column %q expects a number", col.Name)
		}
		return CellValue{Type: col.Type, Number: n}, nil
	case ColumnDate:
		d, err := time.Parse(DateLayout, s)
		if err != nil {
			return CellValue{}, NewValidation("column %q expects a date in YYYY-MM-DD form", col.Name)
		}
		return CellValue{Type: col.Type, Date: d}, nil
	case ColumnSelect:
		if !containsString(col.Options, s) {
			return CellValue{}, NewValidation("column %q: %q is not an allowed option", col.Name, s)
		}
	case ColumnURL:
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return CellValue{}, NewValidation("column %q expects an http(s) URL", col.Name)
		}
	}
	return CellValue{Type: col.Type, Text: s}, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
