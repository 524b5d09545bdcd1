package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func invoiceTemplate() *WorkingPaperTemplate {
	return &WorkingPaperTemplate{
		Name: "Invoice test",
		Columns: []Column{
			{Name: "Invoice", Type: ColumnText, Order: 0},
			{Name: "Amount", Type: ColumnNumber, Order: 1},
			{Name: "Tax", Type: ColumnNumber, Order: 2},
			{Name: "Total", Type: ColumnFormula, Order: 3, Formula: "C1 + C2"},
			{Name: "Status", Type: ColumnSelect, Order: 4, Options: []string{"Open", "Closed"}},
			{Name: "Tags", Type: ColumnMultiSelect, Order: 5, Options: []string{"urgent", "vat"}},
			{Name: "Posted", Type: ColumnDate, Order: 6},
			{Name: "Link", Type: ColumnURL, Order: 7},
			{Name: "Ratio", Type: ColumnFormula, Order: 8, Formula: "C1 / C2"},
		},
	}
}

func TestWorkingPaperTemplate_Validate(t *testing.T) {
	if err := invoiceTemplate().Validate(); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*WorkingPaperTemplate)
	}{
		{"missing name", func(wp *WorkingPaperTemplate) { wp.Name = " " }},
		{"no columns", func(wp *WorkingPaperTemplate) { wp.Columns = nil }},
		{"gap in order", func(wp *WorkingPaperTemplate) { wp.Columns[1].Order = 5 }},
		{"duplicate name", func(wp *WorkingPaperTemplate) { wp.Columns[2].Name = "Amount" }},
		{"unknown type", func(wp *WorkingPaperTemplate) { wp.Columns[0].Type = "currency" }},
		{"select without options", func(wp *WorkingPaperTemplate) { wp.Columns[4].Options = nil }},
		{"self reference", func(wp *WorkingPaperTemplate) { wp.Columns[3].Formula = "C3 + 1" }},
		{"non-numeric reference", func(wp *WorkingPaperTemplate) { wp.Columns[3].Formula = "C0 + 1" }},
		{"missing reference", func(wp *WorkingPaperTemplate) { wp.Columns[3].Formula = "C42" }},
		{"broken formula", func(wp *WorkingPaperTemplate) { wp.Columns[3].Formula = "C1 +" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wp := invoiceTemplate()
			tt.mutate(wp)
			if err := wp.Validate(); !errors.Is(err, ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestNormalizeColumnOrder(t *testing.T) {
	cols, err := NormalizeColumnOrder([]Column{{Name: "b", Order: 7}, {Name: "a", Order: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if cols[0].Name != "a" || cols[0].Order != 0 || cols[1].Order != 1 {
		t.Errorf("NormalizeColumnOrder = %+v", cols)
	}
	if _, err := NormalizeColumnOrder([]Column{{Name: "a", Order: 1}, {Name: "b", Order: 1}}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected duplicate position to fail, got %v", err)
	}
}

func TestNormalizeColumnOrder_RewritesFormulaRefs(t *testing.T) {
	cols, err := NormalizeColumnOrder([]Column{
		{Name: "Total", Type: ColumnFormula, Formula: "C1 + c2 * 2", Order: 3},
		{Name: "Amount", Type: ColumnNumber, Order: 1},
		{Name: "Tax", Type: ColumnNumber, Order: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	if cols[2].Name != "Total" || cols[2].Formula != "C0 + C1 * 2" {
		t.Errorf("formula not remapped: %+v", cols[2])
	}
	wp := &WorkingPaperTemplate{Name: "Invoices", Columns: cols}
	if err := wp.Validate(); err != nil {
		t.Errorf("remapped template should validate, got %v", err)
	}

	_, err = NormalizeColumnOrder([]Column{
		{Name: "Amount", Type: ColumnNumber, Order: 1},
		{Name: "Total", Type: ColumnFormula, Formula: "C5 * 2", Order: 2},
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected dangling reference to fail, got %v", err)
	}
}

func decode(t *testing.T, wp *WorkingPaperTemplate, src string) (Row, error) {
	t.Helper()
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(src), &raw); err != nil {
		t.Fatal(err)
	}
	return wp.DecodeRow(raw)
}

func TestDecodeRow_TypedCellsAndRecomputedFormulas(t *testing.T) {
	row, err := decode(t, invoiceTemplate(), `{
		"Invoice": " INV-7 ",
		"Amount": "100.5",
		"Tax": 10,
		"Total": 99999,
		"Status": "Open",
		"Tags": ["vat"],
		"Posted": "2025-03-01",
		"Link": "https://erp.example.com/inv/7"
	}`)
	if err != nil {
		t.Fatal(err)
	}
	if row["Invoice"].Text != "INV-7" {
		t.Errorf("Invoice = %q", row["Invoice"].Text)
	}
	if row["Total"].Number != 110.5 {
		t.Errorf("client value for a formula must be ignored, Total = %v", row["Total"].Number)
	}
	if !row["Posted"].Date.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Posted = %v", row["Posted"].Date)
	}

	data, err := json.Marshal(row)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]interface{}
	_ = json.Unmarshal(data, &back)
	if back["Posted"] != "2025-03-01" || back["Total"] != 110.5 || back["Ratio"] != 10.05 {
		t.Errorf("unexpected JSON rendering: %s", data)
	}
}

func TestDecodeRow_EmptyAndDivisionByZero(t *testing.T) {
	row, err := decode(t, invoiceTemplate(), `{"Amount": 5, "Tax": 0, "Invoice": null}`)
	if err != nil {
		t.Fatal(err)
	}
	if !row["Ratio"].Empty {
		t.Error("division by zero should leave the formula cell empty")
	}
	if !row["Invoice"].Empty || !row["Status"].Empty {
		t.Error("missing and null cells should be empty")
	}

	row, err = decode(t, invoiceTemplate(), `{"Amount": 5}`)
	if err != nil {
		t.Fatal(err)
	}
	if !row["Total"].Empty {
		t.Error("a formula over an empty cell is empty")
	}
}

func TestDecodeRow_Rejects(t *testing.T) {
	for _, src := range []string{
		`{"Vendor": "Acme"}`,
		`{"Amount": "ten"}`,
		`{"Amount": true}`,
		`{"Status": "Pending"}`,
		`{"Tags": ["urgent", "late"]}`,
		`{"Tags": "urgent"}`,
		`{"Posted": "01/03/2025"}`,
		`{"Link": "ftp://example.com/file"}`,
		`{"Invoice": 42}`,
	} {
		if _, err := decode(t, invoiceTemplate(), src); !errors.Is(err, ErrValidation) {
			t.Errorf("DecodeRow(%s) = %v, want validation error", src, err)
		}
	}
}
