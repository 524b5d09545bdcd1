package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/internal/domain"
)

func TestDaysRemaining(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	due := time.Date(2025, 3, 15, 0, 0, 0, 0, jakarta)

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"same day", time.Date(2025, 3, 15, 1, 0, 0, 0, jakarta), 0},
		{"five days out", time.Date(2025, 3, 10, 23, 0, 0, 0, jakarta), 5},
		{"past due", time.Date(2025, 3, 17, 8, 0, 0, 0, jakarta), -2},
		{"utc instant already next day locally", time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysRemaining(due, tt.now, jakarta))
		})
	}
}

func TestAuditeeDashboard_GroupsIssues(t *testing.T) {
	f := newFixture()
	f.addAssessment(7, "Payroll", 4, 5, true)
	f.addAssessment(9, "Cash Handling", 3, 3, true)
	f.addAssessment(11, "Accounts Payable", 2, 2, true)
	pending := f.approvedIssue(7, "Overtime")
	overdue := f.approvedIssue(9, "Cash count")
	followup := f.approvedIssue(11, "Vendors")
	ctx := context.Background()

	comments := f.comments()
	_, err := comments.SendForCommenting(ctx, f.auditor(), pending.ID, "2025-03-20")
	require.NoError(t, err)
	_, err = comments.SendForCommenting(ctx, f.auditor(), overdue.ID, "2025-03-11")
	require.NoError(t, err)
	_, err = f.followups().SendForFollowup(ctx, f.auditor(), followup.ID, "2025-03-31")
	require.NoError(t, err)

	dash, err := f.dashboard().Auditee(ctx, f.at(f.auditee(), time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	require.Len(t, dash.PendingComments, 1)
	assert.Equal(t, pending.ID, dash.PendingComments[0].ID)
	assert.Equal(t, 8, dash.PendingComments[0].DaysRemaining)
	require.Len(t, dash.OverdueComments, 1)
	assert.Equal(t, -1, dash.OverdueComments[0].DaysRemaining)
	assert.Empty(t, dash.Commented)
	require.Len(t, dash.PendingFollowups, 1)
	assert.Equal(t, followup.ID, dash.PendingFollowups[0].ID)

	other, err := f.dashboard().Auditee(ctx, f.rc(f.strangerID, domain.RoleAuditee))
	require.NoError(t, err)
	assert.Empty(t, other.PendingComments, "issues of another auditee are not shown")

	_, err = f.dashboard().Auditee(ctx, f.auditor())
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}
