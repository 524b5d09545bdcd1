package domain

import "time"

// ProcedureResult is the pass/fail outcome of field work
type ProcedureResult string

const (
	ResultNone ProcedureResult = ""
	ResultPass ProcedureResult = "pass"
	ResultFail ProcedureResult = "fail"
)

// AuditProcedure is the field-work record for one selected risk assessment.
// Its likelihood/impact score the issue severity, not the inherent risk.
type AuditProcedure struct {
	ID               int64           `json:"id"`
	AuditID          int64           `json:"audit_id"`
	RiskAssessmentID int64           `json:"risk_assessment_id"`
	RecordOfWork     string          `json:"record_of_work"`
	Conclusion       string          `json:"conclusion"`
	Result           ProcedureResult `json:"result"`
	Cause            string          `json:"cause"`
	EvidencePath     string          `json:"evidence_path,omitempty"`
	Likelihood       *int            `json:"likelihood"`
	Impact           *int            `json:"impact"`
	Rating           *int            `json:"rating"`
	Band             *Band           `json:"band"`
	IncludeInReport  bool            `json:"include_in_report"`
	WorkingPaperID   *int64          `json:"working_paper_id,omitempty"`
	UpdatedBy        int64           `json:"updated_by"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// Joined on read
	AuditArea        string `json:"audit_area,omitempty"`
	WorkingPaperName string `json:"working_paper_name,omitempty"`
}

// ProcedureFields are the auditor-editable fields of a procedure
type ProcedureFields struct {
	RecordOfWork    string          `json:"record_of_work"`
	Conclusion      string          `json:"conclusion"`
	Result          ProcedureResult `json:"result"`
	Cause           string          `json:"cause"`
	Likelihood      *int            `json:"likelihood"`
	Impact          *int            `json:"impact"`
	IncludeInReport bool            `json:"include_in_report"`
}

// Validate checks result and optional scores
func (f ProcedureFields) Validate() error {
	switch f.Result {
	case ResultNone, ResultPass, ResultFail:
	default:
		return NewValidation("result must be pass or fail")
	}
	if f.Likelihood != nil {
		if err := ValidateLevel("likelihood", *f.Likelihood); err != nil {
			return err
		}
	}
	if f.Impact != nil {
		if err := ValidateLevel("impact", *f.Impact); err != nil {
			return err
		}
	}
	return nil
}

// Apply copies fields onto the procedure and re-derives its severity
func (p *AuditProcedure) Apply(f ProcedureFields, by int64, now time.Time) {
	p.RecordOfWork = f.RecordOfWork
	p.Conclusion = f.Conclusion
	p.Result = f.Result
	p.Cause = f.Cause
	p.Likelihood = f.Likelihood
	p.Impact = f.Impact
	p.IncludeInReport = f.IncludeInReport
	sev := SeverityOf(f.Likelihood, f.Impact)
	p.Rating = sev.Rating
	p.Band = sev.Band
	p.UpdatedBy = by
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}

// Severity returns the procedure's derived issue severity
func (p *AuditProcedure) Severity() Severity {
	return Severity{Rating: p.Rating, Band: p.Band}
}
