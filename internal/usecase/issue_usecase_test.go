package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

func (f *fixture) procedure(t *testing.T, raID int64) *domain.AuditProcedure {
	t.Helper()
	p, err := f.procedures().SaveProcedure(context.Background(), f.auditor(), f.auditID, raID, domain.ProcedureFields{
		RecordOfWork:    "Reviewed approvals",
		Result:          domain.ResultFail,
		Likelihood:      intPtr(3),
		Impact:          intPtr(3),
		IncludeInReport: true,
	}, nil)
	require.NoError(t, err)
	return p
}

func TestIssue_ApproveFromDraftIsInvalidTransition(t *testing.T) {
	f := newFixture()
	f.addAssessment(7, "Cash Handling", 4, 5, true)
	p := f.procedure(t, 7)
	uc := f.issues()
	ctx := context.Background()

	draft, err := uc.SaveDraft(ctx, f.auditor(), f.auditID, p.ID, IssueRequest{Title: "Unapproved payments"})
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStatusDraft, draft.Status)

	_, err = uc.Approve(ctx, f.manager(), draft.ID)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	stored, err := memIssues{f.store}.FindByID(ctx, f.orgID, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStatusDraft, stored.Status)
}

func TestIssue_DraftSubmitApproveStampsMonotonicTimes(t *testing.T) {
	f := newFixture()
	f.addAssessment(7, "Cash Handling", 4, 5, true)
	p := f.procedure(t, 7)
	uc := f.issues()
	ctx := context.Background()

	t0 := f.now
	draft, err := uc.SaveDraft(ctx, f.at(f.auditor(), t0), f.auditID, p.ID, IssueRequest{Title: "Unapproved payments"})
	require.NoError(t, err)

	t1 := t0.Add(time.Hour)
	submitted, err := uc.SubmitForVerification(ctx, f.at(f.auditor(), t1), f.auditID, p.ID, IssueRequest{Title: "Unapproved payments", Criteria: "Policy 4.2"})
	require.NoError(t, err)
	assert.Equal(t, draft.ID, submitted.ID, "submission updates the draft in place")
	assert.Equal(t, domain.IssueStatusSentForVerify, submitted.Status)
	require.NotNil(t, submitted.SubmittedBy)
	assert.Equal(t, f.auditorID, *submitted.SubmittedBy)

	t2 := t1.Add(time.Hour)
	approved, err := uc.Approve(ctx, f.at(f.manager(), t2), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStatusApproved, approved.Status)
	require.NotNil(t, approved.SubmittedAt)
	require.NotNil(t, approved.VerifiedAt)
	assert.True(t, approved.CreatedAt.Before(*approved.SubmittedAt))
	assert.True(t, approved.SubmittedAt.Before(*approved.VerifiedAt))
	assert.Equal(t, f.managerID, *approved.VerifiedBy)

	assert.Equal(t, []transition{
		{"", domain.IssueStatusDraft},
		{domain.IssueStatusDraft, domain.IssueStatusSentForVerify},
		{domain.IssueStatusSentForVerify, domain.IssueStatusApproved},
	}, f.metrics.transitions)
	assert.Contains(t, f.publisher.types(), ports.EventTypeIssueApproved)
}

func TestIssue_OnlyReviewersVerify(t *testing.T) {
	f := newFixture()
	f.addAssessment(7, "Cash Handling", 4, 5, true)
	p := f.procedure(t, 7)
	uc := f.issues()
	ctx := context.Background()
	issue, err := uc.SubmitForVerification(ctx, f.auditor(), f.auditID, p.ID, IssueRequest{Title: "Unapproved payments"})
	require.NoError(t, err)

	_, err = uc.Approve(ctx, f.auditor(), issue.ID)
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	_, err = uc.Remove(ctx, f.head(), issue.ID)
	require.NoError(t, err)
}

func TestIssue_DraftBlockedWhileSubmitted(t *testing.T) {
	f := newFixture()
	f.addAssessment(7, "Cash Handling", 4, 5, true)
	p := f.procedure(t, 7)
	uc := f.issues()
	ctx := context.Background()
	_, err := uc.SubmitForVerification(ctx, f.auditor(), f.auditID, p.ID, IssueRequest{Title: "Unapproved payments"})
	require.NoError(t, err)

	_, err = uc.SaveDraft(ctx, f.auditor(), f.auditID, p.ID, IssueRequest{Title: "Changed"})
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestIssue_AmendmentReturnsToAuthorAndNewDraftAfterApproval(t *testing.T) {
	f := newFixture()
	f.addAssessment(7, "Cash Handling", 4, 5, true)
	p := f.procedure(t, 7)
	uc := f.issues()
	ctx := context.Background()

	issue, err := uc.SubmitForVerification(ctx, f.auditor(), f.auditID, p.ID, IssueRequest{Title: "First"})
	require.NoError(t, err)
	_, err = uc.SendForAmendment(ctx, f.manager(), issue.ID)
	require.NoError(t, err)

	draft, err := uc.GetDraft(ctx, f.auditor(), f.auditID, p.ID)
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, domain.IssueStatusSentForAmendment, draft.Status)

	resubmitted, err := uc.SubmitForVerification(ctx, f.auditor(), f.auditID, p.ID, IssueRequest{Title: "First, amended"})
	require.NoError(t, err)
	assert.Equal(t, issue.ID, resubmitted.ID)
	_, err = uc.Approve(ctx, f.manager(), issue.ID)
	require.NoError(t, err)

	second, err := uc.SaveDraft(ctx, f.auditor(), f.auditID, p.ID, IssueRequest{Title: "Second finding"})
	require.NoError(t, err)
	assert.NotEqual(t, issue.ID, second.ID)
}

func TestIssue_SubmitRequiresTitleAndRollsBack(t *testing.T) {
	f := newFixture()
	f.addAssessment(7, "Cash Handling", 4, 5, true)
	p := f.procedure(t, 7)

	_, err := f.issues().SubmitForVerification(context.Background(), f.auditor(), f.auditID, p.ID, IssueRequest{Title: "  "})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Empty(t, f.store.issues)
}

func TestIssue_ViewReadsSeverityFromProcedure(t *testing.T) {
	f := newFixture()
	f.addAssessment(7, "Cash Handling", 4, 5, true)
	p := f.procedure(t, 7)
	uc := f.issues()
	ctx := context.Background()
	issue, err := uc.SaveDraft(ctx, f.auditor(), f.auditID, p.ID, IssueRequest{Title: "Unapproved payments"})
	require.NoError(t, err)

	view, err := uc.GetIssue(ctx, f.auditor(), issue.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Rating)
	assert.Equal(t, 9, *view.Rating)
	assert.Equal(t, domain.BandMedium, *view.Band)
	assert.Equal(t, "Cash Handling", view.AuditArea)
}

func TestListForVerification_Filters(t *testing.T) {
	f := newFixture()
	f.addAssessment(7, "Cash Handling", 4, 5, true)
	f.addAssessment(9, "Payroll", 2, 2, true)
	uc := f.issues()
	ctx := context.Background()
	approved := f.approvedIssue(7, "Approved one")
	p := f.procedure(t, 9)
	pending, err := uc.SubmitForVerification(ctx, f.auditor(), f.auditID, p.ID, IssueRequest{Title: "Pending one"})
	require.NoError(t, err)

	list, err := uc.ListForVerification(ctx, f.manager(), VerificationPending, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pending.ID, list[0].ID)

	list, err = uc.ListForVerification(ctx, f.manager(), VerificationApproved, &f.auditID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, approved.ID, list[0].ID)

	_, err = uc.ListForVerification(ctx, f.manager(), "bogus", nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestReportProcedures_ExcludesFinishedIssues(t *testing.T) {
	f := newFixture()
	f.addAssessment(7, "Cash Handling", 4, 5, true)
	f.addAssessment(9, "Payroll", 2, 2, true)
	f.addAssessment(11, "Vendors", 2, 2, true)
	uc := f.issues()
	ctx := context.Background()
	f.approvedIssue(7, "Approved one")
	withDraft := f.procedure(t, 9)
	_, err := uc.SaveDraft(ctx, f.auditor(), f.auditID, withDraft.ID, IssueRequest{Title: "Drafting"})
	require.NoError(t, err)
	noIssue := f.procedure(t, 11)

	list, err := uc.ReportProcedures(ctx, f.auditor(), f.auditID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, withDraft.ID, list[0].Procedure.ID)
	require.NotNil(t, list[0].Issue)
	assert.Equal(t, noIssue.ID, list[1].Procedure.ID)
	assert.Nil(t, list[1].Issue)
}

func TestReviewComments(t *testing.T) {
	f := newFixture()
	f.addAssessment(7, "Cash Handling", 4, 5, true)
	p := f.procedure(t, 7)
	uc := f.issues()
	ctx := context.Background()
	issue, err := uc.SubmitForVerification(ctx, f.auditor(), f.auditID, p.ID, IssueRequest{Title: "Unapproved payments"})
	require.NoError(t, err)

	_, err = uc.AddReviewComment(ctx, f.auditor(), issue.ID, ReviewCommentRequest{Comment: "self review"})
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	_, err = uc.AddReviewComment(ctx, f.manager(), issue.ID, ReviewCommentRequest{Comment: "Quote the policy", FieldName: "criteria", SelectedText: "Policy"})
	require.NoError(t, err)
	_, err = uc.AddReviewComment(ctx, f.manager(), issue.ID, ReviewCommentRequest{Comment: "?", FieldName: "owner"})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	comments, err := uc.ListReviewComments(ctx, f.auditor(), issue.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "criteria", comments[0].FieldName)
}

func TestSetIncludeInReport_RemovedIssueIsFrozen(t *testing.T) {
	f := newFixture()
	f.addAssessment(7, "Cash Handling", 4, 5, true)
	p := f.procedure(t, 7)
	uc := f.issues()
	ctx := context.Background()
	issue, err := uc.SubmitForVerification(ctx, f.auditor(), f.auditID, p.ID, IssueRequest{Title: "Unapproved payments"})
	require.NoError(t, err)

	updated, err := uc.SetIncludeInReport(ctx, f.auditor(), issue.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IncludeInReport)

	_, err = uc.Remove(ctx, f.manager(), issue.ID)
	require.NoError(t, err)
	_, err = uc.SetCorrectiveDate(ctx, f.auditor(), issue.ID, "2025-06-30")
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestEndToEnd_CommentCycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	admin := f.admin(plainPasswords{})
	auditee, err := admin.CreateAuditee(ctx, f.head(), CreateAuditeeRequest{
		Name:        "Treasury",
		Email:       "treasury@example.com",
		Departments: []string{"Cash office"},
		Password:    "treasury123",
	})
	require.NoError(t, err)
	require.NotNil(t, auditee.UserID)

	audit, err := f.audits().CreateAudit(ctx, f.head(), CreateAuditRequest{
		AuditeeID: auditee.ID,
		Name:      "Treasury review",
		StartDate: "2025-03-01",
		EndDate:   "2025-03-31",
		Team:      []domain.TeamMember{{UserID: f.auditorID, Role: "lead"}},
	})
	require.NoError(t, err)

	item, err := f.universeUC().Create(ctx, f.head(), UniverseItemRequest{AuditeeID: auditee.ID, AuditArea: "Cash Handling", Process: "Daily cash count"})
	require.NoError(t, err)

	_, err = f.riskAssessments().SaveAssessments(ctx, f.auditor(), audit.ID, SaveAssessmentsRequest{Items: []domain.AssessmentItem{
		{UniverseID: &item.ID, Likelihood: 4, Impact: 5, IsSelected: true},
	}})
	require.NoError(t, err)
	views, err := f.riskAssessments().ListAssessments(ctx, f.auditor(), audit.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 20, views[0].Rating)
	assert.Equal(t, domain.BandHigh, views[0].Band)

	proc, err := f.procedures().SaveProcedure(ctx, f.auditor(), audit.ID, views[0].ID, domain.ProcedureFields{
		RecordOfWork: "Counted the safe",
		Result:       domain.ResultFail,
		Likelihood:   intPtr(3),
		Impact:       intPtr(3),
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, proc.Rating)
	assert.Equal(t, 9, *proc.Rating)
	assert.Equal(t, domain.BandMedium, *proc.Band)

	issue, err := f.issues().SaveDraft(ctx, f.auditor(), audit.ID, proc.ID, IssueRequest{Title: "Cash shortage"})
	require.NoError(t, err)
	_, err = f.issues().SubmitForVerification(ctx, f.auditor(), audit.ID, proc.ID, IssueRequest{Title: "Cash shortage", Condition: "Safe short by 200"})
	require.NoError(t, err)
	_, err = f.issues().Approve(ctx, f.manager(), issue.ID)
	require.NoError(t, err)

	due := f.now.AddDate(0, 0, 5).Format(domain.DateLayout)
	sent, err := f.comments().SendForCommenting(ctx, f.auditor(), issue.ID, due)
	require.NoError(t, err)
	assert.Empty(t, sent.NotificationError)
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "treasury@example.com", f.mailer.sent[0].To)

	auditeeRC := f.at(f.rc(*auditee.UserID, domain.RoleAuditee), f.now.AddDate(0, 0, 2))
	_, err = f.comments().SubmitComment(ctx, auditeeRC, issue.ID, "We will reconcile daily.", nil)
	require.NoError(t, err)

	thread, err := f.comments().Thread(ctx, f.auditor(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, thread.Stats.RecentCommentCount)
	assert.True(t, thread.Stats.HasResponded)
}

func TestEndToEnd_FollowupCycle(t *testing.T) {
	f := newFixture()
	f.addAssessment(7, "Cash Handling", 4, 5, true)
	issue := f.approvedIssue(7, "Cash shortage")
	uc := f.followups()
	ctx := context.Background()

	yesterday := f.now.AddDate(0, 0, -1).Format(domain.DateLayout)
	_, err := uc.SendForFollowup(ctx, f.auditor(), issue.ID, yesterday)
	require.NoError(t, err)

	_, err = uc.SubmitFollowup(ctx, f.auditee(), issue.ID, "Reconciliations now daily", nil)
	assert.True(t, errors.Is(err, domain.ErrExpiredWindow))

	_, err = uc.ResendFollowup(ctx, f.auditor(), issue.ID, f.now.AddDate(0, 0, 3).Format(domain.DateLayout))
	require.NoError(t, err)
	_, err = uc.SubmitFollowup(ctx, f.auditee(), issue.ID, "Reconciliations now daily", nil)
	require.NoError(t, err)

	stored, err := memIssues{f.store}.FindByID(ctx, f.orgID, issue.ID)
	require.NoError(t, err)
	assert.True(t, stored.FollowupResponded)
	assert.Equal(t, "Reconciliations now daily", stored.FollowupResponse)
}
