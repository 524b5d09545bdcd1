package domain

import (
	"sort"
	"time"
)

// ReportDocument is the read-only projection handed to a document exporter
type ReportDocument struct {
	AuditName   string       `json:"audit_name"`
	AuditeeName string       `json:"auditee_name"`
	GeneratedAt time.Time    `json:"generated_at"`
	Counts      BandCounts   `json:"counts"`
	Findings    []*IssueView `json:"findings"`
}

// BandCounts counts findings per band
type BandCounts struct {
	High    int `json:"high"`
	Medium  int `json:"medium"`
	Low     int `json:"low"`
	Unrated int `json:"unrated"`
}

// Total returns the number of counted findings
func (c BandCounts) Total() int {
	return c.High + c.Medium + c.Low + c.Unrated
}

// FinalizedFindings keeps approved, report-included issues ordered by area then title
func FinalizedFindings(issues []*IssueView) []*IssueView {
	var out []*IssueView
	for _, iv := range issues {
		if iv.Status == IssueStatusApproved && iv.IncludeInReport {
			out = append(out, iv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AuditArea != out[j].AuditArea {
			return out[i].AuditArea < out[j].AuditArea
		}
		return out[i].Title < out[j].Title
	})
	return out
}

// BuildReport assembles the exported document for an audit
func BuildReport(audit *Audit, issues []*IssueView, now time.Time) ReportDocument {
	findings := FinalizedFindings(issues)
	doc := ReportDocument{
		AuditName:   audit.Name,
		AuditeeName: audit.AuditeeName,
		GeneratedAt: now,
		Findings:    findings,
	}
	for _, f := range findings {
		if f.Band == nil {
			doc.Counts.Unrated++
			continue
		}
		switch *f.Band {
		case BandHigh:
			doc.Counts.High++
		case BandMedium:
			doc.Counts.Medium++
		default:
			doc.Counts.Low++
		}
	}
	return doc
}
