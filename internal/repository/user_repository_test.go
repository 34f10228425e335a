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

func newUserRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func userRows(users ...models.User) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "full_name", "role", "department", "active", "last_login", "created_at", "updated_at"})
	for _, u := range users {
		rows.AddRow(u.ID, u.Email, u.PasswordHash, u.FullName, u.Role, nil, u.Active, nil, time.Now(), time.Now())
	}
	return rows
}

func TestUserRepositoryFindFirstByRole(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email")).
		WithArgs("principal").
		WillReturnRows(userRows(models.User{ID: "user-9", Email: "principal@campus.edu", FullName: "P Sharma", Role: models.RolePrincipal, Active: true}))

	user, err := repo.FindFirstByRole(context.Background(), models.RolePrincipal)
	require.NoError(t, err)
	require.Equal(t, "user-9", user.ID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email")).
		WithArgs("plumber").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.FindFirstByRole(context.Background(), models.RolePlumber)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryListByRoles(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email")).
		WithArgs("registrar", "admin").
		WillReturnRows(userRows(
			models.User{ID: "user-3", Email: "registrar@campus.edu", FullName: "R Iyer", Role: models.RoleRegistrar, Active: true},
			models.User{ID: "user-4", Email: "admin@campus.edu", FullName: "S Rao", Role: models.RoleAdmin, Active: true},
		))

	users, err := repo.ListByRoles(context.Background(), []models.Role{models.RoleRegistrar, models.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, users, 2)

	empty, err := repo.ListByRoles(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, empty)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateAuditLog(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	log := &models.AuditLog{Action: models.AuditActionRequestCreate, Resource: "request"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), log))
	require.NotEmpty(t, log.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
