package domain

import (
	"sort"
	"time"
)

// RiskAssessment scores one universe item for one audit
type RiskAssessment struct {
	ID                int64     `json:"id"`
	AuditID           int64     `json:"audit_id"`
	UniverseID        int64     `json:"audit_universe_id"`
	Likelihood        int       `json:"likelihood"`
	Impact            int       `json:"impact"`
	IsSelected        bool      `json:"is_selected"`
	AssignedAuditorID *int64    `json:"assigned_auditor_id,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`

	// Joined from the universe item on read
	AuditArea      string `json:"audit_area,omitempty"`
	Process        string `json:"process,omitempty"`
	AuditProcedure string `json:"audit_procedure,omitempty"`
}

// Rating returns likelihood x impact
func (ra *RiskAssessment) Rating() int {
	r, _ := Score(ra.Likelihood, ra.Impact)
	return r
}

// Band returns the band of the assessment's rating
func (ra *RiskAssessment) Band() Band {
	_, b := Score(ra.Likelihood, ra.Impact)
	return b
}

// AssessmentItem is one entry of a risk-assessment batch save
type AssessmentItem struct {
	UniverseID        *int64 `json:"universe_id"`
	Likelihood        int    `json:"likelihood"`
	Impact            int    `json:"impact"`
	IsSelected        bool   `json:"is_selected"`
	AssignedAuditorID *int64 `json:"assigned_auditor_id"`
}

// Validate checks scores of an item that carries a universe id
func (i AssessmentItem) Validate() error {
	if err := ValidateLevel("likelihood", i.Likelihood); err != nil {
		return err
	}
	return ValidateLevel("impact", i.Impact)
}

// AssessmentPlan is the outcome of reconciling a batch with existing rows
type AssessmentPlan struct {
	Upserts []AssessmentItem
	// Existing rows whose universe item was omitted from the batch
	Omitted []int64
	Skipped int
}

// PlanAssessments splits a batch into upserts and omitted existing universe ids.
// Items without a universe id or with unscored levels are skipped; a skipped item that
// names a universe id still counts as present, so its existing row is left as it is.
// A repeated universe id keeps its last entry.
func PlanAssessments(existingUniverseIDs []int64, items []AssessmentItem) AssessmentPlan {
	var plan AssessmentPlan
	present := make(map[int64]bool)
	incoming := make(map[int64]int)
	for _, item := range items {
		if item.UniverseID == nil || *item.UniverseID == 0 {
			plan.Skipped++
			continue
		}
		present[*item.UniverseID] = true
		if item.Validate() != nil {
			plan.Skipped++
			continue
		}
		if idx, dup := incoming[*item.UniverseID]; dup {
			plan.Upserts[idx] = item
			continue
		}
		incoming[*item.UniverseID] = len(plan.Upserts)
		plan.Upserts = append(plan.Upserts, item)
	}
	for _, id := range existingUniverseIDs {
		if !present[id] {
			plan.Omitted = append(plan.Omitted, id)
		}
	}
	sort.Slice(plan.Omitted, func(i, j int) bool { return plan.Omitted[i] < plan.Omitted[j] })
	return plan
}
