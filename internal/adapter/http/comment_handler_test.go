package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/infrastructure/http/middleware"
	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/usecase"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// MockCommentUseCase is a mock implementation of CommentUseCase
type MockCommentUseCase struct {
	mock.Mock
}

func (m *MockCommentUseCase) SendForCommenting(ctx context.Context, rc domain.RequestContext, issueID int64, dueDate string) (*usecase.NotifyResult, error) {
	args := m.Called(ctx, rc, issueID, dueDate)
	res, _ := args.Get(0).(*usecase.NotifyResult)
	return res, args.Error(1)
}

func (m *MockCommentUseCase) ResendForComment(ctx context.Context, rc domain.RequestContext, issueID int64, dueDate, note string) (*usecase.NotifyResult, error) {
	args := m.Called(ctx, rc, issueID, dueDate, note)
	res, _ := args.Get(0).(*usecase.NotifyResult)
	return res, args.Error(1)
}

func (m *MockCommentUseCase) SendEmailNotification(ctx context.Context, rc domain.RequestContext, issueID int64) (*usecase.NotifyResult, error) {
	args := m.Called(ctx, rc, issueID)
	res, _ := args.Get(0).(*usecase.NotifyResult)
	return res, args.Error(1)
}

func (m *MockCommentUseCase) SubmitComment(ctx context.Context, rc domain.RequestContext, issueID int64, text string, attachment *usecase.Upload) (*domain.ManagementComment, error) {
	args := m.Called(ctx, rc, issueID, text, attachment)
	res, _ := args.Get(0).(*domain.ManagementComment)
	return res, args.Error(1)
}

func (m *MockCommentUseCase) Thread(ctx context.Context, rc domain.RequestContext, issueID int64) (*usecase.CommentThread, error) {
	args := m.Called(ctx, rc, issueID)
	res, _ := args.Get(0).(*usecase.CommentThread)
	return res, args.Error(1)
}

func (m *MockCommentUseCase) Overview(ctx context.Context, rc domain.RequestContext, auditID int64) ([]usecase.CommentOverview, error) {
	args := m.Called(ctx, rc, auditID)
	res, _ := args.Get(0).([]usecase.CommentOverview)
	return res, args.Error(1)
}

type MockFollowupUseCase struct {
	mock.Mock
}

func (m *MockFollowupUseCase) SendForFollowup(ctx context.Context, rc domain.RequestContext, issueID int64, dueDate string) (*domain.AuditIssue, error) {
	args := m.Called(ctx, rc, issueID, dueDate)
	res, _ := args.Get(0).(*domain.AuditIssue)
	return res, args.Error(1)
}

func (m *MockFollowupUseCase) SubmitFollowup(ctx context.Context, rc domain.RequestContext, issueID int64, response string, evidence *usecase.Upload) (*domain.FollowupResponse, error) {
	args := m.Called(ctx, rc, issueID, response, evidence)
	res, _ := args.Get(0).(*domain.FollowupResponse)
	return res, args.Error(1)
}

func (m *MockFollowupUseCase) ResendFollowup(ctx context.Context, rc domain.RequestContext, issueID int64, dueDate string) (*domain.AuditIssue, error) {
	args := m.Called(ctx, rc, issueID, dueDate)
	res, _ := args.Get(0).(*domain.AuditIssue)
	return res, args.Error(1)
}

func (m *MockFollowupUseCase) ResolveFollowup(ctx context.Context, rc domain.RequestContext, issueID int64) (*domain.AuditIssue, error) {
	args := m.Called(ctx, rc, issueID)
	res, _ := args.Get(0).(*domain.AuditIssue)
	return res, args.Error(1)
}

func (m *MockFollowupUseCase) History(ctx context.Context, rc domain.RequestContext, issueID int64) (*usecase.FollowupHistory, error) {
	args := m.Called(ctx, rc, issueID)
	res, _ := args.Get(0).(*usecase.FollowupHistory)
	return res, args.Error(1)
}

func (m *MockFollowupUseCase) ListFollowups(ctx context.Context, rc domain.RequestContext, auditID int64) ([]*domain.IssueView, error) {
	args := m.Called(ctx, rc, auditID)
	res, _ := args.Get(0).([]*domain.IssueView)
	return res, args.Error(1)
}

type MockDashboardUseCase struct {
	mock.Mock
}

func (m *MockDashboardUseCase) Auditee(ctx context.Context, rc domain.RequestContext) (*usecase.AuditeeDashboard, error) {
	args := m.Called(ctx, rc)
	res, _ := args.Get(0).(*usecase.AuditeeDashboard)
	return res, args.Error(1)
}

var auditeeUser = domain.Principal{UserID: 40, Role: domain.RoleAuditee, OrganizationID: 1}
var auditorUser = domain.Principal{UserID: 30, Role: domain.RoleAuditor, OrganizationID: 1}

func noLimit(next http.Handler) http.Handler { return next }

func newCommentRouter(c *MockCommentUseCase, f *MockFollowupUseCase, d *MockDashboardUseCase, maxUpload int64) *mux.Router {
	handler := NewCommentHandler(c, f, d, fixedClock{testNow}, nil, maxUpload)
	router := mux.NewRouter()
	handler.RegisterRoutes(router, noLimit)
	return router
}

func serveAs(router http.Handler, p *domain.Principal, req *http.Request) *httptest.ResponseRecorder {
	if p != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCommentHandler_SubmitComment(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		mockError      error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "successful submission",
			body:           `{"comment_text":"We agree and will fix it"}`,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "window expired",
			body:           `{"comment_text":"late"}`,
			mockError:      domain.NewExpiredWindow("Comment period has expired. Contact auditor to resend."),
			expectedStatus: http.StatusGone,
			expectedCode:   "EXPIRED_WINDOW",
		},
		{
			name:           "not sent for comment",
			body:           `{"comment_text":"hello"}`,
			mockError:      domain.NewInvalidTransition("issue is not awaiting comments"),
			expectedStatus: http.StatusConflict,
			expectedCode:   "INVALID_TRANSITION",
		},
		{
			name:           "another auditee's issue",
			body:           `{"comment_text":"hello"}`,
			mockError:      domain.NewNotFound("issue"),
			expectedStatus: http.StatusNotFound,
			expectedCode:   "NOT_FOUND",
		},
		{
			name:           "invalid request body",
			body:           `{"comment_text": }`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &MockCommentUseCase{}
			router := newCommentRouter(c, &MockFollowupUseCase{}, &MockDashboardUseCase{}, 0)

			var stored *domain.ManagementComment
			if tt.mockError == nil {
				stored = &domain.ManagementComment{ID: 5, IssueID: 12, UserID: auditeeUser.UserID, Comment: "We agree and will fix it"}
			}
			if tt.expectedStatus != http.StatusBadRequest {
				c.On("SubmitComment", mock.Anything, domain.NewRequestContext(auditeeUser, testNow), int64(12), mock.AnythingOfType("string"), (*usecase.Upload)(nil)).
					Return(stored, tt.mockError)
			}

			req := httptest.NewRequest(http.MethodPost, "/issues/12/comments", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := serveAs(router, &auditeeUser, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			body := decodeEnvelope(t, rec)
			if tt.expectedCode != "" {
				assert.Equal(t, false, body["status"])
				assert.Equal(t, tt.expectedCode, body["code"])
			} else {
				assert.Equal(t, true, body["status"])
			}
			c.AssertExpectations(t)
		})
	}
}

func multipartBody(t *testing.T, fields map[string]string, fileField, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestCommentHandler_SubmitCommentWithAttachment(t *testing.T) {
	c := &MockCommentUseCase{}
	router := newCommentRouter(c, &MockFollowupUseCase{}, &MockDashboardUseCase{}, 0)

	var received []byte
	c.On("SubmitComment", mock.Anything, mock.Anything, int64(12), "See attached plan", mock.AnythingOfType("*usecase.Upload")).
		Run(func(args mock.Arguments) {
			upload := args.Get(4).(*usecase.Upload)
			assert.Equal(t, "plan.pdf", upload.Filename)
			received, _ = io.ReadAll(upload.Content)
		}).
		Return(&domain.ManagementComment{ID: 9}, nil)

	body, contentType := multipartBody(t, map[string]string{"comment_text": "See attached plan"}, "attachment", "plan.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/issues/12/comments", body)
	req.Header.Set("Content-Type", contentType)
	rec := serveAs(router, &auditeeUser, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []byte("%PDF-1.4"), received)
	c.AssertExpectations(t)
}

func TestCommentHandler_UploadTooLarge(t *testing.T) {
	c := &MockCommentUseCase{}
	router := newCommentRouter(c, &MockFollowupUseCase{}, &MockDashboardUseCase{}, 16)

	body, contentType := multipartBody(t, map[string]string{"comment_text": "big"}, "attachment", "big.bin", bytes.Repeat([]byte("x"), 64))
	req := httptest.NewRequest(http.MethodPost, "/issues/12/comments", body)
	req.Header.Set("Content-Type", contentType)
	rec := serveAs(router, &auditeeUser, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	c.AssertNotCalled(t, "SubmitComment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCommentHandler_SendForCommentingReportsMailFailure(t *testing.T) {
	c := &MockCommentUseCase{}
	router := newCommentRouter(c, &MockFollowupUseCase{}, &MockDashboardUseCase{}, 0)

	issue := &domain.AuditIssue{ID: 12, Status: domain.IssueStatusApproved}
	c.On("SendForCommenting", mock.Anything, domain.NewRequestContext(auditorUser, testNow), int64(12), "2025-03-20").
		Return(&usecase.NotifyResult{Issue: issue, NotificationError: "smtp unavailable"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/issues/12/send-for-comment", bytes.NewBufferString(`{"due_date":"2025-03-20"}`))
	rec := serveAs(router, &auditorUser, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeEnvelope(t, rec)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "smtp unavailable", data["notification_error"])
	c.AssertExpectations(t)
}

func TestCommentHandler_ResendPassesNote(t *testing.T) {
	c := &MockCommentUseCase{}
	router := newCommentRouter(c, &MockFollowupUseCase{}, &MockDashboardUseCase{}, 0)

	c.On("ResendForComment", mock.Anything, mock.Anything, int64(12), "2025-03-25", "Please clarify the owner").
		Return(&usecase.NotifyResult{Issue: &domain.AuditIssue{ID: 12}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/issues/12/resend-for-comment",
		bytes.NewBufferString(`{"due_date":"2025-03-25","note":"Please clarify the owner"}`))
	rec := serveAs(router, &auditorUser, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	c.AssertExpectations(t)
}

func TestCommentHandler_SubmitFollowup(t *testing.T) {
	f := &MockFollowupUseCase{}
	router := newCommentRouter(&MockCommentUseCase{}, f, &MockDashboardUseCase{}, 0)

	f.On("SubmitFollowup", mock.Anything, mock.Anything, int64(12), "Implemented the control", (*usecase.Upload)(nil)).
		Return(&domain.FollowupResponse{ID: 1, IssueID: 12}, nil)

	req := httptest.NewRequest(http.MethodPost, "/issues/12/followups", bytes.NewBufferString(`{"response":"Implemented the control"}`))
	rec := serveAs(router, &auditeeUser, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	f.AssertExpectations(t)
}

func TestCommentHandler_InvalidIssueID(t *testing.T) {
	router := newCommentRouter(&MockCommentUseCase{}, &MockFollowupUseCase{}, &MockDashboardUseCase{}, 0)

	req := httptest.NewRequest(http.MethodGet, "/issues/abc/comments", nil)
	rec := serveAs(router, &auditorUser, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommentHandler_RequiresPrincipal(t *testing.T) {
	router := newCommentRouter(&MockCommentUseCase{}, &MockFollowupUseCase{}, &MockDashboardUseCase{}, 0)

	rec := serveAs(router, nil, httptest.NewRequest(http.MethodGet, "/auditee/dashboard", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCommentHandler_TransactionFailureIsGeneric(t *testing.T) {
	d := &MockDashboardUseCase{}
	router := newCommentRouter(&MockCommentUseCase{}, &MockFollowupUseCase{}, d, 0)

	d.On("Auditee", mock.Anything, mock.Anything).
		Return(nil, domain.NewTransactionFailure(assert.AnError))

	rec := serveAs(router, &auditeeUser, httptest.NewRequest(http.MethodGet, "/auditee/dashboard", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}
