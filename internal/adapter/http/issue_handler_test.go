package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/usecase"
)

type MockIssueUseCase struct {
	mock.Mock
}

func (m *MockIssueUseCase) SaveDraft(ctx context.Context, rc domain.RequestContext, auditID, procedureID int64, req usecase.IssueRequest) (*domain.AuditIssue, error) {
	args := m.Called(ctx, rc, auditID, procedureID, req)
	res, _ := args.Get(0).(*domain.AuditIssue)
	return res, args.Error(1)
}

func (m *MockIssueUseCase) SubmitForVerification(ctx context.Context, rc domain.RequestContext, auditID, procedureID int64, req usecase.IssueRequest) (*domain.AuditIssue, error) {
	args := m.Called(ctx, rc, auditID, procedureID, req)
	res, _ := args.Get(0).(*domain.AuditIssue)
	return res, args.Error(1)
}

func (m *MockIssueUseCase) GetDraft(ctx context.Context, rc domain.RequestContext, auditID, procedureID int64) (*domain.AuditIssue, error) {
	args := m.Called(ctx, rc, auditID, procedureID)
	res, _ := args.Get(0).(*domain.AuditIssue)
	return res, args.Error(1)
}

func (m *MockIssueUseCase) Approve(ctx context.Context, rc domain.RequestContext, issueID int64) (*domain.AuditIssue, error) {
	args := m.Called(ctx, rc, issueID)
	res, _ := args.Get(0).(*domain.AuditIssue)
	return res, args.Error(1)
}

func (m *MockIssueUseCase) SendForAmendment(ctx context.Context, rc domain.RequestContext, issueID int64) (*domain.AuditIssue, error) {
	args := m.Called(ctx, rc, issueID)
	res, _ := args.Get(0).(*domain.AuditIssue)
	return res, args.Error(1)
}

func (m *MockIssueUseCase) Remove(ctx context.Context, rc domain.RequestContext, issueID int64) (*domain.AuditIssue, error) {
	args := m.Called(ctx, rc, issueID)
	res, _ := args.Get(0).(*domain.AuditIssue)
	return res, args.Error(1)
}

func (m *MockIssueUseCase) ListForVerification(ctx context.Context, rc domain.RequestContext, filter string, auditID *int64) ([]*domain.IssueView, error) {
	args := m.Called(ctx, rc, filter, auditID)
	res, _ := args.Get(0).([]*domain.IssueView)
	return res, args.Error(1)
}

func (m *MockIssueUseCase) GetIssue(ctx context.Context, rc domain.RequestContext, issueID int64) (*domain.IssueView, error) {
	args := m.Called(ctx, rc, issueID)
	res, _ := args.Get(0).(*domain.IssueView)
	return res, args.Error(1)
}

func (m *MockIssueUseCase) ReportProcedures(ctx context.Context, rc domain.RequestContext, auditID int64) ([]usecase.ReportProcedure, error) {
	args := m.Called(ctx, rc, auditID)
	res, _ := args.Get(0).([]usecase.ReportProcedure)
	return res, args.Error(1)
}

func (m *MockIssueUseCase) SetIncludeInReport(ctx context.Context, rc domain.RequestContext, issueID int64, include bool) (*domain.AuditIssue, error) {
	args := m.Called(ctx, rc, issueID, include)
	res, _ := args.Get(0).(*domain.AuditIssue)
	return res, args.Error(1)
}

func (m *MockIssueUseCase) SetCorrectiveDate(ctx context.Context, rc domain.RequestContext, issueID int64, date string) (*domain.AuditIssue, error) {
	args := m.Called(ctx, rc, issueID, date)
	res, _ := args.Get(0).(*domain.AuditIssue)
	return res, args.Error(1)
}

func (m *MockIssueUseCase) AddReviewComment(ctx context.Context, rc domain.RequestContext, issueID int64, req usecase.ReviewCommentRequest) (*domain.IssueReviewComment, error) {
	args := m.Called(ctx, rc, issueID, req)
	res, _ := args.Get(0).(*domain.IssueReviewComment)
	return res, args.Error(1)
}

func (m *MockIssueUseCase) ListReviewComments(ctx context.Context, rc domain.RequestContext, issueID int64) ([]*domain.IssueReviewComment, error) {
	args := m.Called(ctx, rc, issueID)
	res, _ := args.Get(0).([]*domain.IssueReviewComment)
	return res, args.Error(1)
}

type MockReportUseCase struct {
	mock.Mock
}

func (m *MockReportUseCase) FinalizeList(ctx context.Context, rc domain.RequestContext, auditID int64) ([]*domain.IssueView, error) {
	args := m.Called(ctx, rc, auditID)
	res, _ := args.Get(0).([]*domain.IssueView)
	return res, args.Error(1)
}

func (m *MockReportUseCase) Export(ctx context.Context, rc domain.RequestContext, auditID int64) (*usecase.ExportedReport, error) {
	args := m.Called(ctx, rc, auditID)
	res, _ := args.Get(0).(*usecase.ExportedReport)
	return res, args.Error(1)
}

func (m *MockReportUseCase) Register(ctx context.Context, rc domain.RequestContext) ([]usecase.RegisterEntry, error) {
	args := m.Called(ctx, rc)
	res, _ := args.Get(0).([]usecase.RegisterEntry)
	return res, args.Error(1)
}

var managerUser = domain.Principal{UserID: 20, Role: domain.RoleManager, OrganizationID: 1}

func newIssueRouter(i *MockIssueUseCase, r *MockReportUseCase) *mux.Router {
	router := mux.NewRouter()
	NewIssueHandler(i, r, fixedClock{testNow}, nil).RegisterRoutes(router)
	return router
}

func TestIssueHandler_Transitions(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		method         string
		mockError      error
		expectedStatus int
	}{
		{"approve", "/issues/7/approve", "Approve", nil, http.StatusOK},
		{"approve a draft", "/issues/7/approve", "Approve", domain.NewInvalidTransition("issue must be sent for verification"), http.StatusConflict},
		{"amend by auditor", "/issues/7/amend", "SendForAmendment", domain.NewForbidden("reviewer role required"), http.StatusForbidden},
		{"remove", "/issues/7/remove", "Remove", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := &MockIssueUseCase{}
			router := newIssueRouter(i, &MockReportUseCase{})

			var issue *domain.AuditIssue
			if tt.mockError == nil {
				issue = &domain.AuditIssue{ID: 7}
			}
			i.On(tt.method, mock.Anything, domain.NewRequestContext(managerUser, testNow), int64(7)).Return(issue, tt.mockError)

			rec := serveAs(router, &managerUser, httptest.NewRequest(http.MethodPost, tt.path, nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			i.AssertExpectations(t)
		})
	}
}

func TestIssueHandler_SubmitForVerification(t *testing.T) {
	i := &MockIssueUseCase{}
	router := newIssueRouter(i, &MockReportUseCase{})

	want := usecase.IssueRequest{Title: "Missing approvals", Criteria: "Policy 4.1", Condition: "3 of 20 invoices unsigned"}
	i.On("SubmitForVerification", mock.Anything, mock.Anything, int64(3), int64(11), want).
		Return(&domain.AuditIssue{ID: 7, Status: domain.IssueStatusSentForVerify}, nil)

	body := `{"issue_title":"Missing approvals","criteria":"Policy 4.1","condition":"3 of 20 invoices unsigned"}`
	rec := serveAs(router, &auditorUser, httptest.NewRequest(http.MethodPost, "/audits/3/procedures/11/issue/submit", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"sent_for_verify"`)
	i.AssertExpectations(t)
}

func TestIssueHandler_ListForVerificationPassesFilters(t *testing.T) {
	i := &MockIssueUseCase{}
	router := newIssueRouter(i, &MockReportUseCase{})

	auditID := int64(3)
	i.On("ListForVerification", mock.Anything, mock.Anything, "pending", &auditID).Return([]*domain.IssueView{}, nil)

	rec := serveAs(router, &managerUser, httptest.NewRequest(http.MethodGet, "/issues?filter=pending&audit_id=3", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serveAs(router, &managerUser, httptest.NewRequest(http.MethodGet, "/issues?audit_id=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	i.AssertExpectations(t)
}

func TestIssueHandler_SetIncludeInReportRequiresFlag(t *testing.T) {
	i := &MockIssueUseCase{}
	router := newIssueRouter(i, &MockReportUseCase{})

	rec := serveAs(router, &auditorUser, httptest.NewRequest(http.MethodPatch, "/issues/7/include-in-report", bytes.NewBufferString(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	i.On("SetIncludeInReport", mock.Anything, mock.Anything, int64(7), false).Return(&domain.AuditIssue{ID: 7}, nil)
	rec = serveAs(router, &auditorUser, httptest.NewRequest(http.MethodPatch, "/issues/7/include-in-report", bytes.NewBufferString(`{"include_in_report":false}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	i.AssertExpectations(t)
}

func TestIssueHandler_ExportReportDownload(t *testing.T) {
	r := &MockReportUseCase{}
	router := newIssueRouter(&MockIssueUseCase{}, r)

	r.On("Export", mock.Anything, mock.Anything, int64(3)).Return(&usecase.ExportedReport{
		Filename:    "Audit_Report_Payables_2025-03-10.docx",
		ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Content:     []byte("PK\x03\x04"),
	}, nil)

	rec := serveAs(router, &managerUser, httptest.NewRequest(http.MethodGet, "/audits/3/report/export", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="Audit_Report_Payables_2025-03-10.docx"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "4", rec.Header().Get("Content-Length"))
	assert.Equal(t, []byte("PK\x03\x04"), rec.Body.Bytes())
}

func TestIssueHandler_ExportUnknownAudit(t *testing.T) {
	r := &MockReportUseCase{}
	router := newIssueRouter(&MockIssueUseCase{}, r)

	r.On("Export", mock.Anything, mock.Anything, int64(99)).Return(nil, domain.NewNotFound("audit"))

	rec := serveAs(router, &managerUser, httptest.NewRequest(http.MethodGet, "/audits/99/report/export", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}
