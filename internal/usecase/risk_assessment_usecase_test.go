package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

func int64Ptr(v int64) *int64 { return &v }

func TestSaveAssessments_UpsertIsIdempotentPerUniverseItem(t *testing.T) {
	f := newFixture()
	uc := f.riskAssessments()
	ctx := context.Background()
	cash := f.addUniverse("Cash Handling")

	_, err := uc.SaveAssessments(ctx, f.auditor(), f.auditID, SaveAssessmentsRequest{Items: []domain.AssessmentItem{
		{UniverseID: int64Ptr(cash), Likelihood: 2, Impact: 2, IsSelected: true},
	}})
	require.NoError(t, err)

	resp, err := uc.SaveAssessments(ctx, f.auditor(), f.auditID, SaveAssessmentsRequest{Items: []domain.AssessmentItem{
		{UniverseID: int64Ptr(cash), Likelihood: 4, Impact: 5, IsSelected: true},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Upserted)

	views, err := uc.ListAssessments(ctx, f.auditor(), f.auditID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 20, views[0].Rating)
	assert.Equal(t, domain.BandHigh, views[0].Band)
	assert.Equal(t, "Cash Handling", views[0].AuditArea)
}

func TestSaveAssessments_SkipsItemsWithoutUniverseAndKeepsReferencedRows(t *testing.T) {
	f := newFixture()
	uc := f.riskAssessments()
	ctx := context.Background()
	cash := f.addUniverse("Cash Handling")
	payroll := f.addUniverse("Payroll")
	vendors := f.addUniverse("Vendors")

	_, err := uc.SaveAssessments(ctx, f.auditor(), f.auditID, SaveAssessmentsRequest{Items: []domain.AssessmentItem{
		{UniverseID: int64Ptr(cash), Likelihood: 3, Impact: 3, IsSelected: true},
		{UniverseID: int64Ptr(payroll), Likelihood: 2, Impact: 1, IsSelected: true},
		{UniverseID: int64Ptr(vendors), Likelihood: 1, Impact: 1},
	}})
	require.NoError(t, err)

	views, err := uc.ListAssessments(ctx, f.auditor(), f.auditID)
	require.NoError(t, err)
	var payrollRA int64
	for _, v := range views {
		if v.UniverseID == payroll {
			payrollRA = v.ID
		}
	}
	_, err = f.procedures().SaveProcedure(ctx, f.auditor(), f.auditID, payrollRA, domain.ProcedureFields{RecordOfWork: "walkthrough"}, nil)
	require.NoError(t, err)

	resp, err := uc.SaveAssessments(ctx, f.auditor(), f.auditID, SaveAssessmentsRequest{Items: []domain.AssessmentItem{
		{UniverseID: int64Ptr(cash), Likelihood: 3, Impact: 4, IsSelected: true},
		{Likelihood: 5, Impact: 5},
	}})
	require.NoError(t, err)
	assert.Equal(t, &SaveAssessmentsResponse{Upserted: 1, Deleted: 1, Retained: 1, Skipped: 1}, resp)

	views, err = uc.ListAssessments(ctx, f.auditor(), f.auditID)
	require.NoError(t, err)
	kept := map[int64]bool{}
	for _, v := range views {
		kept[v.UniverseID] = true
	}
	assert.True(t, kept[cash])
	assert.True(t, kept[payroll], "referenced assessment must survive")
	assert.False(t, kept[vendors])
}

func TestSaveAssessments_SkipsUnscoredItemsAndKeepsTheRest(t *testing.T) {
	f := newFixture()
	uc := f.riskAssessments()
	ctx := context.Background()
	cash := f.addUniverse("Cash Handling")
	payroll := f.addUniverse("Payroll")
	vendors := f.addUniverse("Vendors")

	resp, err := uc.SaveAssessments(ctx, f.auditor(), f.auditID, SaveAssessmentsRequest{Items: []domain.AssessmentItem{
		{UniverseID: int64Ptr(cash), Likelihood: 4, Impact: 5, IsSelected: true},
		{UniverseID: int64Ptr(payroll)},
		{UniverseID: int64Ptr(vendors), Likelihood: 6, Impact: 1},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Upserted)
	assert.Equal(t, 2, resp.Skipped)

	views, err := uc.ListAssessments(ctx, f.auditor(), f.auditID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, cash, views[0].UniverseID)
	assert.Equal(t, 20, views[0].Rating)
}

func TestSaveAssessments_StorageFailureRollsBackWholeBatch(t *testing.T) {
	f := newFixture()
	uc := f.riskAssessments()
	ctx := context.Background()
	cash := f.addUniverse("Cash Handling")
	payroll := f.addUniverse("Payroll")

	_, err := uc.SaveAssessments(ctx, f.auditor(), f.auditID, SaveAssessmentsRequest{Items: []domain.AssessmentItem{
		{UniverseID: int64Ptr(cash), Likelihood: 1, Impact: 1},
	}})
	require.NoError(t, err)
	before := f.store.assessments[firstAssessmentID(f)]

	f.store.fail["assessments.upsert"] = true
	_, err = uc.SaveAssessments(ctx, f.auditor(), f.auditID, SaveAssessmentsRequest{Items: []domain.AssessmentItem{
		{UniverseID: int64Ptr(cash), Likelihood: 5, Impact: 5},
		{UniverseID: int64Ptr(payroll), Likelihood: 5, Impact: 5},
	}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransactionFailure))
	assert.Len(t, f.store.assessments, 1)
	assert.Equal(t, before, f.store.assessments[firstAssessmentID(f)])
}

func firstAssessmentID(f *fixture) int64 {
	var id int64
	for k := range f.store.assessments {
		if id == 0 || k < id {
			id = k
		}
	}
	return id
}

func TestSaveAssessments_OtherOrganizationAuditIsNotFound(t *testing.T) {
	f := newFixture()
	rc := f.auditor()
	rc.Principal.OrganizationID = f.otherOrgID

	_, err := f.riskAssessments().SaveAssessments(context.Background(), rc, f.auditID, SaveAssessmentsRequest{})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSaveAssessments_PublishesEvent(t *testing.T) {
	f := newFixture()
	cash := f.addUniverse("Cash Handling")

	_, err := f.riskAssessments().SaveAssessments(context.Background(), f.auditor(), f.auditID, SaveAssessmentsRequest{Items: []domain.AssessmentItem{
		{UniverseID: int64Ptr(cash), Likelihood: 1, Impact: 1},
	}})
	require.NoError(t, err)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, ports.EventTypeRiskAssessmentsSaved, f.publisher.events[0].Type)
	assert.Equal(t, f.orgID, f.publisher.events[0].OrganizationID)
}
