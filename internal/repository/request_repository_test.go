package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-erp-api/internal/models"
)

func newRequestRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func requestRows(requests ...*models.Request) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "from_user_id", "from_user_name", "from_user_role", "to_user_id", "to_user_name", "to_user_role",
		"request_type", "category", "subject", "description", "status", "priority", "department", "tags",
		"auto_forwarded", "escalation_level", "max_response_time", "approved_at", "approved_by", "approved_by_name",
		"version", "created_at", "updated_at",
	})
	for _, r := range requests {
		rows.AddRow(r.ID, r.FromUserID, r.FromUserName, r.FromUserRole, r.ToUserID, r.ToUserName, r.ToUserRole,
			r.RequestType, r.Category, r.Subject, r.Description, r.Status, r.Priority, nil, "{}",
			r.AutoForwarded, r.EscalationLevel, nil, nil, nil, nil,
			r.Version, r.CreatedAt, r.UpdatedAt)
	}
	return rows
}

func sampleRequest() *models.Request {
	now := time.Now().UTC()
	return &models.Request{
		ID:           "req-1",
		FromUserID:   "user-1",
		FromUserName: "Asha Clerk",
		FromUserRole: models.RoleClerk,
		ToUserID:     "user-2",
		ToUserName:   "Ravi Registrar",
		ToUserRole:   models.RoleRegistrar,
		RequestType:  "certificate",
		Category:     "administrative",
		Subject:      "Bonafide certificate",
		Description:  "Needed for bank loan",
		Status:       models.RequestStatusPending,
		Priority:     models.PriorityMedium,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestRequestRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	request := sampleRequest()
	request.ID = ""
	request.Version = 0
	require.NoError(t, repo.Create(context.Background(), request))
	require.NotEmpty(t, request.ID)
	require.EqualValues(t, 1, request.Version)
	require.Equal(t, models.RequestStatusPending, request.Status)

	stored := sampleRequest()
	stored.ID = request.ID
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, from_user_id")).
		WithArgs(request.ID).
		WillReturnRows(requestRows(stored))

	found, err := repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, request.ID, found.ID)
	require.Equal(t, models.RoleClerk, found.FromUserRole)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, from_user_id")).
		WithArgs("user-2", "pending", "forwarded").
		WillReturnRows(requestRows(sampleRequest()))

	list, err := repo.List(context.Background(), models.RequestFilter{
		RecipientID: "user-2",
		Status:      []models.RequestStatus{models.RequestStatusPending, models.RequestStatusForwarded},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "req-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryUpdateCAS(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	request := sampleRequest()
	request.Status = models.RequestStatusForwarded

	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateCAS(context.Background(), request))
	require.EqualValues(t, 2, request.Version)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateCAS(context.Background(), request)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryAddComment(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_comments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET updated_at")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	comment := &models.RequestComment{
		RequestID:  "req-1",
		AuthorID:   "user-2",
		AuthorName: "Ravi Registrar",
		AuthorRole: models.RoleRegistrar,
		Body:       "Certificate ready for pickup",
	}
	require.NoError(t, repo.AddComment(context.Background(), comment))
	require.NotEmpty(t, comment.ID)
	require.False(t, comment.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListOpenWithDeadline(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, from_user_id")).
		WithArgs("pending", "forwarded").
		WillReturnRows(requestRows(sampleRequest()))

	list, err := repo.ListOpenWithDeadline(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
