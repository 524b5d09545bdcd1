package persistence

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/internal/domain"
)

func invoiceTemplate(now time.Time) *domain.WorkingPaperTemplate {
	return &domain.WorkingPaperTemplate{
		OrganizationID: 1,
		Name:           "Invoice testing",
		AllowRowInsert: true,
		CreatedBy:      4,
		CreatedAt:      now,
		UpdatedAt:      now,
		Columns: []domain.Column{
			{Name: "Invoice", Type: domain.ColumnText, Order: 0},
			{Name: "Status", Type: domain.ColumnSelect, Order: 1, Options: []string{"Open", "Paid"}},
		},
	}
}

func TestWorkingPaperCreate_StoresColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO working_papers`).
		WithArgs(int64(1), "Invoice testing", true, int64(4), now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery(`INSERT INTO working_paper_columns`).
		WithArgs(int64(3), "Invoice", "text", 0, "{}", "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(30)))
	mock.ExpectQuery(`INSERT INTO working_paper_columns`).
		WithArgs(int64(3), "Status", "select", 1, `{"Open","Paid"}`, "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(31)))

	tmpl := invoiceTemplate(now)
	require.NoError(t, NewPostgresWorkingPaperRepository(db).Create(context.Background(), tmpl))
	assert.Equal(t, int64(3), tmpl.ID)
	assert.Equal(t, int64(31), tmpl.Columns[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkingPaperCreate_DuplicateColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO working_papers`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery(`INSERT INTO working_paper_columns`).
		WillReturnError(&pq.Error{Code: "23505"})

	err = NewPostgresWorkingPaperRepository(db).Create(context.Background(), invoiceTemplate(time.Now()))
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestWorkingPaperFindByID_LoadsOrderedColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM working_papers`).
		WithArgs(int64(3), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "name", "allow_row_insert", "created_by", "created_at", "updated_at"}).
			AddRow(int64(3), int64(1), "Invoice testing", false, int64(4), now, now))
	mock.ExpectQuery(`ORDER BY column_order`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "column_name", "column_type", "column_order", "options", "formula"}).
			AddRow(int64(30), "Invoice", "text", int64(0), []byte("{}"), "").
			AddRow(int64(31), "Status", "select", int64(1), []byte("{Open,Paid}"), ""))

	tmpl, err := NewPostgresWorkingPaperRepository(db).FindByID(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.False(t, tmpl.AllowRowInsert)
	require.Len(t, tmpl.Columns, 2)
	assert.Nil(t, tmpl.Columns[0].Options)
	assert.Equal(t, []string{"Open", "Paid"}, tmpl.Columns[1].Options)
	assert.Equal(t, domain.ColumnSelect, tmpl.Columns[1].Type)
}

func TestWorkingPaperDelete_StillReferenced(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM working_papers WHERE id = $1 AND organization_id = $2`)).
		WithArgs(int64(3), int64(1)).
		WillReturnError(&pq.Error{Code: "23503"})

	err = NewPostgresWorkingPaperRepository(db).Delete(context.Background(), 1, 3)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}
