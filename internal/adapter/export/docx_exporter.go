package export

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/auditflow/auditflow/internal/domain"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
</Types>`

const rootRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const documentRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
</Relationships>`

const stylesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/><w:rPr><w:sz w:val="22"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Title"><w:name w:val="Title"/><w:basedOn w:val="Normal"/><w:pPr><w:jc w:val="center"/></w:pPr><w:rPr><w:b/><w:sz w:val="40"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:basedOn w:val="Normal"/><w:rPr><w:b/><w:sz w:val="32"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/><w:basedOn w:val="Normal"/><w:rPr><w:b/><w:sz w:val="26"/></w:rPr></w:style>
</w:styles>`

// DocxExporter renders a report as a Word document
type DocxExporter struct{}

// NewDocxExporter creates a new DOCX exporter
func NewDocxExporter() *DocxExporter {
	return &DocxExporter{}
}

// ContentType returns the MIME type of generated documents
func (e *DocxExporter) ContentType() string {
	return docxContentType
}

// ExportIssues renders the document and packages it
func (e *DocxExporter) ExportIssues(ctx context.Context, doc domain.ReportDocument) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", rootRelsXML},
		{"word/_rels/document.xml.rels", documentRelsXML},
		{"word/styles.xml", stylesXML},
		{"word/document.xml", renderDocument(doc)},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", p.name, err)
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish document: %w", err)
	}
	return buf.Bytes(), nil
}

type body struct {
	strings.Builder
}

func (b *body) para(style, text string) {
	b.WriteString("<w:p>")
	if style != "" {
		b.WriteString(`<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`)
	}
	b.run(text, false)
	b.WriteString("</w:p>")
}

func (b *body) labelled(label, text string) {
	if strings.TrimSpace(text) == "" {
		text = "-"
	}
	b.WriteString("<w:p>")
	b.run(label+": ", true)
	b.run(text, false)
	b.WriteString("</w:p>")
}

func (b *body) run(text string, bold bool) {
	b.WriteString("<w:r>")
	if bold {
		b.WriteString("<w:rPr><w:b/></w:rPr>")
	}
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString("<w:br/>")
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		xml.EscapeText(&b.Builder, []byte(line))
		b.WriteString("</w:t>")
	}
	b.WriteString("</w:r>")
}

func renderDocument(doc domain.ReportDocument) string {
	var b body
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	b.para("Title", "Audit Report")
	b.para("", doc.AuditName)
	if doc.AuditeeName != "" {
		b.labelled("Auditee", doc.AuditeeName)
	}
	b.labelled("Report date", doc.GeneratedAt.Format("2 January 2006"))

	b.para("Heading1", "Executive Summary")
	b.para("", fmt.Sprintf("This audit identified %d finding(s) for management attention.", doc.Counts.Total()))
	b.labelled("High risk", fmt.Sprint(doc.Counts.High))
	b.labelled("Medium risk", fmt.Sprint(doc.Counts.Medium))
	b.labelled("Low risk", fmt.Sprint(doc.Counts.Low))
	if doc.Counts.Unrated > 0 {
		b.labelled("Unrated", fmt.Sprint(doc.Counts.Unrated))
	}

	b.para("Heading1", "Detailed Findings")
	if len(doc.Findings) == 0 {
		b.para("", "No findings were included in this report.")
	}
	for i, f := range doc.Findings {
		b.para("Heading2", fmt.Sprintf("%d. %s", i+1, f.Title))
		b.labelled("Audit area", f.AuditArea)
		b.labelled("Risk rating", riskLabel(f))
		b.labelled("Criteria", f.Criteria)
		b.labelled("Condition", f.Condition)
		b.labelled("Cause", f.Cause)
		b.labelled("Consequence", f.Consequence)
		b.labelled("Corrective action", f.CorrectiveAction)
		if f.CorrectiveDate != nil {
			b.labelled("Target date", f.CorrectiveDate.Format(domain.DateLayout))
		}
	}

	b.WriteString(`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/><w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440"/></w:sectPr>`)
	b.WriteString("</w:body></w:document>")
	return b.String()
}

func riskLabel(f *domain.IssueView) string {
	if f.Band == nil || f.Rating == nil {
		return "Not rated"
	}
	return fmt.Sprintf("%s (%d)", *f.Band, *f.Rating)
}
