package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"tasksync/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgres(sqlx.NewDb(db, "postgres")), mock
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", sql.ErrNoRows, ErrNotFound},
		{"unique", &pq.Error{Code: "23505", Constraint: "users_email_key"}, ErrConflict},
		{"foreign key", &pq.Error{Code: "23503", Constraint: "tasks_assignee_id_fkey"}, ErrInvalidReference},
		{"check", &pq.Error{Code: "23514", Constraint: "friendships_check"}, ErrInvalidReference},
		{"wrapped unique", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.in), tt.want)
		})
	}

	other := errors.New("connection reset")
	assert.Equal(t, other, mapError(other))
	assert.NoError(t, mapError(nil))
}

func TestPostgresCreateUser(t *testing.T) {
	p, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("Budi", "budi@example.com", nil, models.ProviderCredentials, models.RoleUser, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))

	u := &models.User{Name: "Budi", Email: "  Budi@Example.com ", Provider: models.ProviderCredentials, Role: models.RoleUser}
	require.NoError(t, p.CreateUser(context.Background(), u))
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, "budi@example.com", u.Email)
}

func TestPostgresCreateUserDuplicateEmail(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	err := p.CreateUser(context.Background(), &models.User{Name: "Budi", Email: "budi@example.com"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPostgresGetUserNotFound(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := p.GetUserByID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresMissingUsers(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users WHERE id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(3))

	missing, err := p.MissingUsers(context.Background(), []int64{1, 2, 3, 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, missing)

	// no query for an empty list
	missing, err = p.MissingUsers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestPostgresAddMemberExisting(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (project_id, user_id) DO NOTHING")).
		WithArgs(int64(1), int64(2), models.MemberMember).
		WillReturnRows(sqlmock.NewRows([]string{"id", "joined_at"}))

	added, err := p.AddMember(context.Background(), &models.ProjectMember{ProjectID: 1, UserID: 2, Role: models.MemberMember})
	require.NoError(t, err)
	assert.False(t, added)
}

func TestPostgresDeleteProjectNotFound(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM projects WHERE id = $1")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, p.DeleteProject(context.Background(), 5), ErrNotFound)
}

func TestPostgresWithTxCommit(t *testing.T) {
	p, mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO projects")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(11, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO project_members")).
		WithArgs(int64(11), int64(3), models.MemberManager).
		WillReturnRows(sqlmock.NewRows([]string{"id", "joined_at"}).AddRow(1, now))
	mock.ExpectCommit()

	project := &models.Project{Name: "Website Revamp", Deadline: now, CreatorID: 3}
	err := p.WithTx(context.Background(), func(tx Store) error {
		if err := tx.CreateProject(context.Background(), project); err != nil {
			return err
		}
		_, err := tx.AddMember(context.Background(), &models.ProjectMember{ProjectID: project.ID, UserID: 3, Role: models.MemberManager})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), project.ID)
}

func TestPostgresWithTxRollsBack(t *testing.T) {
	p, mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO projects")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(12, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tasks")).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "tasks_assignee_id_fkey"})
	mock.ExpectRollback()

	err := p.WithTx(context.Background(), func(tx Store) error {
		project := &models.Project{Name: "Broken", Deadline: now, CreatorID: 3}
		if err := tx.CreateProject(context.Background(), project); err != nil {
			return err
		}
		return tx.CreateTask(context.Background(), &models.Task{ProjectID: project.ID, AssigneeID: 99, Title: "x", Deadline: now, Status: models.TaskPending})
	})
	assert.ErrorIs(t, err, ErrInvalidReference)
}
