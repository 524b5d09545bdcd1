package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/auditflow/auditflow/infrastructure/service/logger"
	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

var errStorageDown = errors.New("connection reset by peer")

type rowKey struct {
	auditID, raID, wpID int64
}

// memData holds every table of the in-memory store by value so a snapshot is a plain copy
type memData struct {
	nextID      int64
	orgs        map[int64]domain.Organization
	users       map[int64]domain.User
	auditees    map[int64]domain.Auditee
	universe    map[int64]domain.AuditUniverseItem
	audits      map[int64]domain.Audit
	assessments map[int64]domain.RiskAssessment
	attachments []domain.Attachment
	rows        map[rowKey][]json.RawMessage
	templates   map[int64]domain.WorkingPaperTemplate
	procedures  map[int64]domain.AuditProcedure
	issues      map[int64]domain.AuditIssue
	reviews     []domain.IssueReviewComment
	comments    []domain.ManagementComment
	followups   []domain.FollowupResponse
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d memData) clone() memData {
	c := d
	c.orgs = copyMap(d.orgs)
	c.users = copyMap(d.users)
	c.auditees = copyMap(d.auditees)
	c.universe = copyMap(d.universe)
	c.audits = copyMap(d.audits)
	c.assessments = copyMap(d.assessments)
	c.attachments = append([]domain.Attachment(nil), d.attachments...)
	c.rows = copyMap(d.rows)
	c.templates = copyMap(d.templates)
	c.procedures = copyMap(d.procedures)
	c.issues = copyMap(d.issues)
	c.reviews = append([]domain.IssueReviewComment(nil), d.reviews...)
	c.comments = append([]domain.ManagementComment(nil), d.comments...)
	c.followups = append([]domain.FollowupResponse(nil), d.followups...)
	return c
}

type memStore struct {
	memData
	// fail makes the named repository operation return errStorageDown
	fail    map[string]bool
	txCount int
}

func newMemStore() *memStore {
	return &memStore{
		memData: memData{
			orgs:        map[int64]domain.Organization{},
			users:       map[int64]domain.User{},
			auditees:    map[int64]domain.Auditee{},
			universe:    map[int64]domain.AuditUniverseItem{},
			audits:      map[int64]domain.Audit{},
			assessments: map[int64]domain.RiskAssessment{},
			rows:        map[rowKey][]json.RawMessage{},
			templates:   map[int64]domain.WorkingPaperTemplate{},
			procedures:  map[int64]domain.AuditProcedure{},
			issues:      map[int64]domain.AuditIssue{},
		},
		fail: map[string]bool{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) check(op string) error {
	if s.fail[op] {
		return errStorageDown
	}
	return nil
}

func (s *memStore) auditInOrg(orgID, auditID int64) bool {
	a, ok := s.audits[auditID]
	return ok && a.OrganizationID == orgID
}

func (s *memStore) issueInOrg(orgID, issueID int64) bool {
	i, ok := s.issues[issueID]
	return ok && s.auditInOrg(orgID, i.AuditID)
}

// WithinTx restores the snapshot taken on entry when fn fails
func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txCount++
	snapshot := s.memData.clone()
	if err := fn(ctx); err != nil {
		s.memData = snapshot
		return err
	}
	return nil
}

type memOrgs struct{ s *memStore }

func (r memOrgs) Create(ctx context.Context, org *domain.Organization) error {
	org.ID = r.s.id()
	r.s.orgs[org.ID] = *org
	return nil
}

func (r memOrgs) FindByID(ctx context.Context, id int64) (*domain.Organization, error) {
	o, ok := r.s.orgs[id]
	if !ok {
		return nil, domain.NewNotFound("organization")
	}
	return &o, nil
}

func (r memOrgs) List(ctx context.Context) ([]*domain.Organization, error) {
	var out []*domain.Organization
	for _, o := range r.s.orgs {
		o := o
		out = append(out, &o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memUsers struct{ s *memStore }

func (r memUsers) Create(ctx context.Context, u *domain.User) error {
	if err := r.s.check("users.create"); err != nil {
		return err
	}
	u.ID = r.s.id()
	r.s.users[u.ID] = *u
	return nil
}

func (r memUsers) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.NewNotFound("user")
	}
	return &u, nil
}

func (r memUsers) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, domain.NewNotFound("user")
}

func (r memUsers) ListByOrganization(ctx context.Context, orgID int64) ([]*domain.User, error) {
	var out []*domain.User
	for _, u := range r.s.users {
		if u.OrganizationID != nil && *u.OrganizationID == orgID {
			u := u
			out = append(out, &u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.FindByEmail(ctx, email)
	return err == nil, nil
}

func (r memUsers) UpdateMFA(ctx context.Context, userID int64, secret string, enabled bool) error {
	u, ok := r.s.users[userID]
	if !ok {
		return domain.NewNotFound("user")
	}
	u.MFASecret = secret
	u.MFAEnabled = enabled
	r.s.users[userID] = u
	return nil
}

func (r memUsers) SetActive(ctx context.Context, userID int64, active bool) error {
	if err := r.s.check("users.set_active"); err != nil {
		return err
	}
	u, ok := r.s.users[userID]
	if !ok {
		return domain.NewNotFound("user")
	}
	u.IsActive = active
	r.s.users[userID] = u
	return nil
}

type memAuditees struct{ s *memStore }

func (r memAuditees) Create(ctx context.Context, a *domain.Auditee) error {
	a.ID = r.s.id()
	r.s.auditees[a.ID] = *a
	return nil
}

func (r memAuditees) FindByID(ctx context.Context, orgID, id int64) (*domain.Auditee, error) {
	a, ok := r.s.auditees[id]
	if !ok || a.OrganizationID != orgID {
		return nil, domain.NewNotFound("auditee")
	}
	return &a, nil
}

func (r memAuditees) List(ctx context.Context, orgID int64) ([]*domain.Auditee, error) {
	var out []*domain.Auditee
	for _, a := range r.s.auditees {
		if a.OrganizationID == orgID {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memAuditees) Update(ctx context.Context, a *domain.Auditee) error {
	if _, ok := r.s.auditees[a.ID]; !ok {
		return domain.NewNotFound("auditee")
	}
	r.s.auditees[a.ID] = *a
	return nil
}

func (r memAuditees) IsReferenced(ctx context.Context, orgID, id int64) (bool, error) {
	for _, a := range r.s.audits {
		if a.AuditeeID == id {
			return true, nil
		}
	}
	for _, u := range r.s.universe {
		if u.AuditeeID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r memAuditees) Delete(ctx context.Context, orgID, id int64) error {
	if err := r.s.check("auditees.delete"); err != nil {
		return err
	}
	delete(r.s.auditees, id)
	return nil
}

type memUniverse struct{ s *memStore }

func (r memUniverse) Create(ctx context.Context, item *domain.AuditUniverseItem) error {
	item.ID = r.s.id()
	r.s.universe[item.ID] = *item
	return nil
}

func (r memUniverse) Update(ctx context.Context, item *domain.AuditUniverseItem) error {
	r.s.universe[item.ID] = *item
	return nil
}

func (r memUniverse) FindByID(ctx context.Context, orgID, id int64) (*domain.AuditUniverseItem, error) {
	u, ok := r.s.universe[id]
	if !ok || u.OrganizationID != orgID {
		return nil, domain.NewNotFound("audit universe item")
	}
	return &u, nil
}

func (r memUniverse) ListByAuditee(ctx context.Context, orgID, auditeeID int64) ([]*domain.AuditUniverseItem, error) {
	var out []*domain.AuditUniverseItem
	for _, u := range r.s.universe {
		if u.OrganizationID == orgID && u.AuditeeID == auditeeID {
			u := u
			out = append(out, &u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memUniverse) IsReferenced(ctx context.Context, orgID, id int64) (bool, error) {
	for _, ra := range r.s.assessments {
		if ra.UniverseID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r memUniverse) Delete(ctx context.Context, orgID, id int64) error {
	delete(r.s.universe, id)
	return nil
}

type memAudits struct{ s *memStore }

func (r memAudits) Create(ctx context.Context, a *domain.Audit) error {
	if err := r.s.check("audits.create"); err != nil {
		return err
	}
	a.ID = r.s.id()
	r.s.audits[a.ID] = *a
	return nil
}

func (r memAudits) FindByID(ctx context.Context, orgID, id int64) (*domain.Audit, error) {
	a, ok := r.s.audits[id]
	if !ok || a.OrganizationID != orgID {
		return nil, domain.NewNotFound("audit")
	}
	return &a, nil
}

func (r memAudits) List(ctx context.Context, orgID int64) ([]*domain.Audit, error) {
	var out []*domain.Audit
	for _, a := range r.s.audits {
		if a.OrganizationID == orgID {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r memAudits) Update(ctx context.Context, a *domain.Audit) error {
	if err := r.s.check("audits.update"); err != nil {
		return err
	}
	if !r.s.auditInOrg(a.OrganizationID, a.ID) {
		return domain.NewNotFound("audit")
	}
	r.s.audits[a.ID] = *a
	return nil
}

func (r memAudits) HasFieldWork(ctx context.Context, orgID, id int64) (bool, error) {
	for _, ra := range r.s.assessments {
		if ra.AuditID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r memAudits) Delete(ctx context.Context, orgID, id int64) error {
	delete(r.s.audits, id)
	return nil
}

type memAssessments struct{ s *memStore }

func (r memAssessments) ListByAudit(ctx context.Context, orgID, auditID int64) ([]*domain.RiskAssessment, error) {
	var out []*domain.RiskAssessment
	if !r.s.auditInOrg(orgID, auditID) {
		return out, nil
	}
	for _, ra := range r.s.assessments {
		if ra.AuditID == auditID {
			ra := ra
			out = append(out, &ra)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memAssessments) Upsert(ctx context.Context, orgID, auditID int64, item domain.AssessmentItem, now time.Time) error {
	if err := r.s.check("assessments.upsert"); err != nil {
		return err
	}
	for id, ra := range r.s.assessments {
		if ra.AuditID == auditID && ra.UniverseID == *item.UniverseID {
			ra.Likelihood = item.Likelihood
			ra.Impact = item.Impact
			ra.IsSelected = item.IsSelected
			ra.AssignedAuditorID = item.AssignedAuditorID
			ra.UpdatedAt = now
			r.s.assessments[id] = ra
			return nil
		}
	}
	u := r.s.universe[*item.UniverseID]
	ra := domain.RiskAssessment{
		ID:                r.s.id(),
		AuditID:           auditID,
		UniverseID:        *item.UniverseID,
		Likelihood:        item.Likelihood,
		Impact:            item.Impact,
		IsSelected:        item.IsSelected,
		AssignedAuditorID: item.AssignedAuditorID,
		UpdatedAt:         now,
		AuditArea:         u.AuditArea,
		Process:           u.Process,
	}
	r.s.assessments[ra.ID] = ra
	return nil
}

func (r memAssessments) DeleteUnreferenced(ctx context.Context, orgID, auditID, universeID int64) (bool, error) {
	for id, ra := range r.s.assessments {
		if ra.AuditID != auditID || ra.UniverseID != universeID {
			continue
		}
		for _, p := range r.s.procedures {
			if p.RiskAssessmentID == id {
				return false, nil
			}
		}
		delete(r.s.assessments, id)
		return true, nil
	}
	return false, nil
}

func (r memAssessments) FindByID(ctx context.Context, orgID, auditID, id int64) (*domain.RiskAssessment, error) {
	ra, ok := r.s.assessments[id]
	if !ok || ra.AuditID != auditID || !r.s.auditInOrg(orgID, auditID) {
		return nil, domain.NewNotFound("risk assessment")
	}
	return &ra, nil
}

type memFolders struct{ s *memStore }

func (r memFolders) Attach(ctx context.Context, orgID int64, a domain.Attachment) error {
	for _, existing := range r.s.attachments {
		if existing.AuditID == a.AuditID && existing.RiskAssessmentID == a.RiskAssessmentID && existing.WorkingPaperID == a.WorkingPaperID {
			return nil
		}
	}
	r.s.attachments = append(r.s.attachments, a)
	return nil
}

func (r memFolders) Detach(ctx context.Context, orgID, auditID, raID, wpID int64) error {
	kept := r.s.attachments[:0:0]
	for _, a := range r.s.attachments {
		if a.AuditID == auditID && a.RiskAssessmentID == raID && a.WorkingPaperID == wpID {
			continue
		}
		kept = append(kept, a)
	}
	r.s.attachments = kept
	delete(r.s.rows, rowKey{auditID, raID, wpID})
	return nil
}

func (r memFolders) ListAttachments(ctx context.Context, orgID, auditID int64) ([]domain.Attachment, error) {
	var out []domain.Attachment
	for _, a := range r.s.attachments {
		if a.AuditID == auditID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r memFolders) ReplaceRows(ctx context.Context, orgID, auditID, raID, wpID int64, rows []json.RawMessage) error {
	if err := r.s.check("rows.replace"); err != nil {
		return err
	}
	r.s.rows[rowKey{auditID, raID, wpID}] = append([]json.RawMessage(nil), rows...)
	return nil
}

func (r memFolders) ListRows(ctx context.Context, orgID, auditID, raID, wpID int64) ([]domain.DataRow, error) {
	var out []domain.DataRow
	for i, raw := range r.s.rows[rowKey{auditID, raID, wpID}] {
		out = append(out, domain.DataRow{RowOrder: i, Data: raw})
	}
	return out, nil
}

type memTemplates struct{ s *memStore }

func (r memTemplates) Create(ctx context.Context, t *domain.WorkingPaperTemplate) error {
	t.ID = r.s.id()
	r.s.templates[t.ID] = *t
	return nil
}

func (r memTemplates) Update(ctx context.Context, t *domain.WorkingPaperTemplate) error {
	r.s.templates[t.ID] = *t
	return nil
}

func (r memTemplates) FindByID(ctx context.Context, orgID, id int64) (*domain.WorkingPaperTemplate, error) {
	t, ok := r.s.templates[id]
	if !ok || t.OrganizationID != orgID {
		return nil, domain.NewNotFound("working paper")
	}
	return &t, nil
}

func (r memTemplates) List(ctx context.Context, orgID int64) ([]*domain.WorkingPaperTemplate, error) {
	var out []*domain.WorkingPaperTemplate
	for _, t := range r.s.templates {
		if t.OrganizationID == orgID {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memTemplates) InUse(ctx context.Context, orgID, id int64) (bool, error) {
	for _, a := range r.s.attachments {
		if a.WorkingPaperID == id {
			return true, nil
		}
	}
	for _, p := range r.s.procedures {
		if p.WorkingPaperID != nil && *p.WorkingPaperID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r memTemplates) Delete(ctx context.Context, orgID, id int64) error {
	delete(r.s.templates, id)
	return nil
}

type memProcedures struct{ s *memStore }

func (r memProcedures) Upsert(ctx context.Context, orgID int64, p *domain.AuditProcedure) error {
	if err := r.s.check("procedures.upsert"); err != nil {
		return err
	}
	for id, existing := range r.s.procedures {
		if existing.AuditID == p.AuditID && existing.RiskAssessmentID == p.RiskAssessmentID {
			p.ID = id
		}
	}
	if p.ID == 0 {
		p.ID = r.s.id()
	}
	r.s.procedures[p.ID] = *p
	return nil
}

func (r memProcedures) FindByID(ctx context.Context, orgID, auditID, id int64) (*domain.AuditProcedure, error) {
	p, ok := r.s.procedures[id]
	if !ok || p.AuditID != auditID || !r.s.auditInOrg(orgID, auditID) {
		return nil, domain.NewNotFound("audit procedure")
	}
	return &p, nil
}

func (r memProcedures) FindByRiskAssessment(ctx context.Context, orgID, auditID, raID int64) (*domain.AuditProcedure, error) {
	for _, p := range r.s.procedures {
		if p.AuditID == auditID && p.RiskAssessmentID == raID {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (r memProcedures) ListByAudit(ctx context.Context, orgID, auditID int64) ([]*domain.AuditProcedure, error) {
	var out []*domain.AuditProcedure
	for _, p := range r.s.procedures {
		if p.AuditID == auditID && r.s.auditInOrg(orgID, auditID) {
			p := p
			p.AuditArea = r.s.assessments[p.RiskAssessmentID].AuditArea
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memProcedures) SetWorkingPaper(ctx context.Context, orgID, auditID, procedureID int64, wpID *int64) error {
	p := r.s.procedures[procedureID]
	p.WorkingPaperID = wpID
	r.s.procedures[procedureID] = p
	return nil
}

type memIssues struct{ s *memStore }

func (r memIssues) Create(ctx context.Context, i *domain.AuditIssue) error {
	if err := r.s.check("issues.create"); err != nil {
		return err
	}
	i.ID = r.s.id()
	r.s.issues[i.ID] = *i
	return nil
}

func (r memIssues) Update(ctx context.Context, i *domain.AuditIssue) error {
	if err := r.s.check("issues.update"); err != nil {
		return err
	}
	r.s.issues[i.ID] = *i
	return nil
}

func (r memIssues) FindByID(ctx context.Context, orgID, id int64) (*domain.AuditIssue, error) {
	if !r.s.issueInOrg(orgID, id) {
		return nil, domain.NewNotFound("issue")
	}
	i := r.s.issues[id]
	return &i, nil
}

func (r memIssues) FindActiveByProcedure(ctx context.Context, orgID, procedureID int64) (*domain.AuditIssue, error) {
	for _, i := range r.s.issues {
		if i.AuditProcedureID == procedureID && i.Status.IsActive() {
			i := i
			return &i, nil
		}
	}
	return nil, nil
}

func (r memIssues) view(i domain.AuditIssue) *domain.IssueView {
	p := r.s.procedures[i.AuditProcedureID]
	v := &domain.IssueView{
		AuditIssue: i,
		Rating:     p.Rating,
		Band:       p.Band,
		AuditArea:  r.s.assessments[p.RiskAssessmentID].AuditArea,
		AuditName:  r.s.audits[i.AuditID].Name,
	}
	v.AuditeeName = r.s.auditees[r.s.audits[i.AuditID].AuditeeID].Name
	return v
}

func (r memIssues) FindView(ctx context.Context, orgID, id int64) (*domain.IssueView, error) {
	if !r.s.issueInOrg(orgID, id) {
		return nil, domain.NewNotFound("issue")
	}
	return r.view(r.s.issues[id]), nil
}

func (r memIssues) ListViews(ctx context.Context, orgID int64, q ports.IssueQuery) ([]*domain.IssueView, error) {
	var out []*domain.IssueView
	for id, i := range r.s.issues {
		if !r.s.issueInOrg(orgID, id) {
			continue
		}
		if q.AuditID != nil && i.AuditID != *q.AuditID {
			continue
		}
		if len(q.Statuses) > 0 {
			match := false
			for _, st := range q.Statuses {
				match = match || st == i.Status
			}
			if !match {
				continue
			}
		}
		if q.AuditeeUserID != nil {
			owner := r.s.auditees[r.s.audits[i.AuditID].AuditeeID].UserID
			if owner == nil || *owner != *q.AuditeeUserID {
				continue
			}
		}
		if q.SentForCommenting != nil && i.SentForCommenting != *q.SentForCommenting {
			continue
		}
		if q.SentForFollowup != nil && i.SentForFollowup != *q.SentForFollowup {
			continue
		}
		out = append(out, r.view(i))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

type memReviews struct{ s *memStore }

func (r memReviews) Create(ctx context.Context, c *domain.IssueReviewComment) error {
	c.ID = r.s.id()
	r.s.reviews = append(r.s.reviews, *c)
	return nil
}

func (r memReviews) ListByIssue(ctx context.Context, orgID, issueID int64) ([]*domain.IssueReviewComment, error) {
	var out []*domain.IssueReviewComment
	for _, c := range r.s.reviews {
		if c.IssueID == issueID {
			c := c
			out = append(out, &c)
		}
	}
	return out, nil
}

type memComments struct{ s *memStore }

func (r memComments) Create(ctx context.Context, c *domain.ManagementComment) error {
	if err := r.s.check("comments.create"); err != nil {
		return err
	}
	c.ID = r.s.id()
	r.s.comments = append(r.s.comments, *c)
	return nil
}

func (r memComments) ListByIssue(ctx context.Context, orgID, issueID int64) ([]*domain.ManagementComment, error) {
	var out []*domain.ManagementComment
	for _, c := range r.s.comments {
		if c.IssueID == issueID && r.s.issueInOrg(orgID, issueID) {
			c := c
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r memComments) ListByAudit(ctx context.Context, orgID, auditID int64) ([]*domain.ManagementComment, error) {
	var out []*domain.ManagementComment
	for _, c := range r.s.comments {
		if r.s.issues[c.IssueID].AuditID == auditID && r.s.issueInOrg(orgID, c.IssueID) {
			c := c
			out = append(out, &c)
		}
	}
	return out, nil
}

type memFollowups struct{ s *memStore }

func (r memFollowups) Create(ctx context.Context, f *domain.FollowupResponse) error {
	if err := r.s.check("followups.create"); err != nil {
		return err
	}
	f.ID = r.s.id()
	r.s.followups = append(r.s.followups, *f)
	return nil
}

func (r memFollowups) ListByIssue(ctx context.Context, orgID, issueID int64) ([]*domain.FollowupResponse, error) {
	var out []*domain.FollowupResponse
	for _, f := range r.s.followups {
		if f.IssueID == issueID {
			f := f
			out = append(out, &f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memFollowups) IncrementResendCount(ctx context.Context, issueID int64) error {
	for i := range r.s.followups {
		if r.s.followups[i].IssueID == issueID {
			r.s.followups[i].ResendCount++
		}
	}
	return nil
}

type memFileStorage struct {
	saved []string
}

func (m *memFileStorage) Save(ctx context.Context, category, filename string, content io.Reader) (string, error) {
	if _, err := io.ReadAll(content); err != nil {
		return "", err
	}
	path := fmt.Sprintf("%s/%d-%s", category, len(m.saved)+1, filename)
	m.saved = append(m.saved, path)
	return path, nil
}

type recordingMailer struct {
	sent []ports.Mail
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, mail ports.Mail) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, mail)
	return nil
}

type recordingPublisher struct {
	events []ports.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e ports.Event) error {
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type transition struct{ from, to domain.IssueStatus }

type recordingMetrics struct {
	transitions []transition
}

func (m *recordingMetrics) IssueTransition(from, to domain.IssueStatus) {
	m.transitions = append(m.transitions, transition{from, to})
}

// fixture is an organization with staff, an auditee with a login and one audit
type fixture struct {
	store     *memStore
	publisher *recordingPublisher
	metrics   *recordingMetrics
	mailer    *recordingMailer
	files     *memFileStorage
	loc       *time.Location
	now       time.Time

	orgID       int64
	otherOrgID  int64
	headID      int64
	managerID   int64
	auditorID   int64
	auditeeUser int64
	strangerID  int64
	auditeeID   int64
	auditID     int64
}

func newFixture() *fixture {
	s := newMemStore()
	f := &fixture{
		store:     s,
		publisher: &recordingPublisher{},
		metrics:   &recordingMetrics{},
		mailer:    &recordingMailer{},
		files:     &memFileStorage{},
		loc:       time.UTC,
		now:       time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	ctx := context.Background()

	org := &domain.Organization{Name: "Acme Holdings"}
	_ = memOrgs{s}.Create(ctx, org)
	other := &domain.Organization{Name: "Globex"}
	_ = memOrgs{s}.Create(ctx, other)
	f.orgID, f.otherOrgID = org.ID, other.ID

	addUser := func(name string, role domain.Role, orgID int64) int64 {
		u := &domain.User{OrganizationID: &orgID, Name: name, Email: strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com", Role: role, IsActive: true}
		_ = memUsers{s}.Create(ctx, u)
		return u.ID
	}
	f.headID = addUser("Hana Head", domain.RoleHeadOfAudit, f.orgID)
	f.managerID = addUser("Mark Manager", domain.RoleManager, f.orgID)
	f.auditorID = addUser("Ada Auditor", domain.RoleAuditor, f.orgID)
	f.auditeeUser = addUser("Finance Lead", domain.RoleAuditee, f.orgID)
	f.strangerID = addUser("Other Auditee", domain.RoleAuditee, f.orgID)

	auditee := &domain.Auditee{OrganizationID: f.orgID, UserID: &f.auditeeUser, Name: "Finance", Email: "finance@example.com", Departments: []string{"Payables"}}
	_ = memAuditees{s}.Create(ctx, auditee)
	f.auditeeID = auditee.ID

	audit := &domain.Audit{
		OrganizationID: f.orgID,
		AuditeeID:      f.auditeeID,
		Name:           "FY25 Finance Review",
		StartDate:      time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC),
		Status:         domain.AuditStatusInProgress,
		CreatedBy:      f.headID,
	}
	_ = memAudits{s}.Create(ctx, audit)
	f.auditID = audit.ID
	return f
}

func (f *fixture) rc(userID int64, role domain.Role) domain.RequestContext {
	return domain.NewRequestContext(domain.Principal{UserID: userID, Role: role, OrganizationID: f.orgID}, f.now)
}

func (f *fixture) head() domain.RequestContext    { return f.rc(f.headID, domain.RoleHeadOfAudit) }
func (f *fixture) manager() domain.RequestContext { return f.rc(f.managerID, domain.RoleManager) }
func (f *fixture) auditor() domain.RequestContext { return f.rc(f.auditorID, domain.RoleAuditor) }
func (f *fixture) auditee() domain.RequestContext { return f.rc(f.auditeeUser, domain.RoleAuditee) }

func (f *fixture) at(rc domain.RequestContext, t time.Time) domain.RequestContext {
	rc.Now = t
	return rc
}

func (f *fixture) addUniverse(area string) int64 {
	u := &domain.AuditUniverseItem{OrganizationID: f.orgID, AuditeeID: f.auditeeID, AuditArea: area, Process: area + " process"}
	_ = memUniverse{f.store}.Create(context.Background(), u)
	return u.ID
}

// addAssessment stores a selected assessment with an explicit id so folder keys are predictable
func (f *fixture) addAssessment(id int64, area string, likelihood, impact int, selected bool) {
	f.store.assessments[id] = domain.RiskAssessment{
		ID:         id,
		AuditID:    f.auditID,
		UniverseID: f.addUniverse(area),
		Likelihood: likelihood,
		Impact:     impact,
		IsSelected: selected,
		AuditArea:  area,
	}
	if id > f.store.nextID {
		f.store.nextID = id
	}
}

func (f *fixture) addTemplate(allowInsert bool, cols ...domain.Column) *domain.WorkingPaperTemplate {
	for i := range cols {
		cols[i].Order = i
	}
	t := &domain.WorkingPaperTemplate{OrganizationID: f.orgID, Name: "Sample test", AllowRowInsert: allowInsert, Columns: cols, CreatedBy: f.headID}
	_ = memTemplates{f.store}.Create(context.Background(), t)
	return t
}

func (f *fixture) riskAssessments() *RiskAssessmentUseCase {
	return NewRiskAssessmentUseCase(f.store, memAudits{f.store}, memAssessments{f.store}, f.publisher)
}

func (f *fixture) folders() *FolderUseCase {
	return NewFolderUseCase(f.store, memAudits{f.store}, memAssessments{f.store}, memFolders{f.store}, memTemplates{f.store}, nil, f.publisher)
}

func (f *fixture) workingPapers() *WorkingPaperUseCase {
	return NewWorkingPaperUseCase(f.store, memTemplates{f.store}, nil)
}

func (f *fixture) procedures() *ProcedureUseCase {
	return NewProcedureUseCase(f.store, memAudits{f.store}, memAssessments{f.store}, memProcedures{f.store}, memFolders{f.store}, memTemplates{f.store}, f.files)
}

func (f *fixture) issues() *IssueUseCase {
	return NewIssueUseCase(f.store, memAudits{f.store}, memAssessments{f.store}, memProcedures{f.store}, memIssues{f.store}, memReviews{f.store}, f.publisher, f.metrics)
}

func (f *fixture) settings() WorkflowSettings {
	return WorkflowSettings{Location: f.loc, PortalURL: "https://audit.example.com/auditee"}
}

func (f *fixture) comments() *CommentUseCase {
	return NewCommentUseCase(f.store, memAudits{f.store}, memAuditees{f.store}, memIssues{f.store}, memComments{f.store}, f.files, f.mailer, f.publisher, f.settings())
}

func (f *fixture) followups() *FollowupUseCase {
	return NewFollowupUseCase(f.store, memAudits{f.store}, memAuditees{f.store}, memIssues{f.store}, memFollowups{f.store}, f.files, f.publisher, f.settings())
}

func (f *fixture) reports(exporter ports.DocumentExporter) *ReportUseCase {
	return NewReportUseCase(memAudits{f.store}, memIssues{f.store}, memComments{f.store}, exporter, f.settings())
}

func (f *fixture) dashboard() *DashboardUseCase {
	return NewDashboardUseCase(memIssues{f.store}, memComments{f.store}, f.settings())
}

func (f *fixture) universeUC() *UniverseUseCase {
	return NewUniverseUseCase(memUniverse{f.store}, memAuditees{f.store})
}

func (f *fixture) audits() *AuditUseCase {
	return NewAuditUseCase(f.store, memAudits{f.store}, memAuditees{f.store}, memUsers{f.store})
}

func (f *fixture) admin(pw ports.PasswordService) *AdminUseCase {
	return NewAdminUseCase(f.store, memOrgs{f.store}, memUsers{f.store}, memAuditees{f.store}, pw, f.mailer, f.settings())
}

func (f *fixture) auth(pw ports.PasswordService, tokens ports.TokenService, otp ports.OTPService, limiter ports.AttemptLimiter) *AuthUseCase {
	return NewAuthUseCase(memUsers{f.store}, pw, tokens, otp, limiter, LoginLimits{Attempts: 3, Window: time.Minute, BlockDuration: time.Hour}, logger.NewNopLogger())
}

func intPtr(v int) *int { return &v }

// approvedIssue takes a procedure through draft, submission and approval
func (f *fixture) approvedIssue(raID int64, title string) *domain.AuditIssue {
	ctx := context.Background()
	p, err := f.procedures().SaveProcedure(ctx, f.auditor(), f.auditID, raID, domain.ProcedureFields{
		RecordOfWork:    "Sampled 25 invoices",
		Result:          domain.ResultFail,
		Likelihood:      intPtr(4),
		Impact:          intPtr(4),
		IncludeInReport: true,
	}, nil)
	if err != nil {
		panic(err)
	}
	issue, err := f.issues().SubmitForVerification(ctx, f.auditor(), f.auditID, p.ID, IssueRequest{Title: title, Criteria: "Policy 4.2", Condition: "Missing approvals"})
	if err != nil {
		panic(err)
	}
	approved, err := f.issues().Approve(ctx, f.manager(), issue.ID)
	if err != nil {
		panic(err)
	}
	return approved
}
