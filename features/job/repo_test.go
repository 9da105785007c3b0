package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepo(db)
	now := time.Now()
	j := &Job{TaskID: "t1", Handler: HandlerAnalysis, Payload: json.RawMessage(`{"job_id":"t1"}`), Error: "boom"}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO failed_jobs (task_id, handler, payload, error, retries)")).
		WithArgs("t1", HandlerAnalysis, []byte(`{"job_id":"t1"}`), "boom", 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("uuid-1", now))

	require.NoError(t, repo.Save(context.Background(), j))
	assert.Equal(t, "uuid-1", j.ID)
	assert.Equal(t, now, j.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepo(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "task_id", "handler", "payload", "error", "retries", "created_at"}).
		AddRow("2", "t2", HandlerAnalysis, []byte(`{}`), "e2", 1, now).
		AddRow("1", "t1", HandlerAnalysis, []byte(`{}`), "e1", 0, now.Add(-time.Minute))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, task_id, handler, payload, error, retries, created_at FROM failed_jobs ORDER BY created_at DESC")).
		WillReturnRows(rows)

	jobs, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "2", jobs[0].ID)
	assert.Equal(t, 1, jobs[0].Retries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM failed_jobs WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = NewPostgresRepo(db).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestPostgresRepo_DeleteAndCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepo(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM failed_jobs WHERE id = $1")).
		WithArgs("1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM failed_jobs")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	require.NoError(t, repo.Delete(context.Background(), "1"))
	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
