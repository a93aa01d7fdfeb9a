package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lealta/internal/models"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func jobRows(job *models.Job) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "campaign_id", "target", "name", "position", "status", "attempts",
		"last_error", "available_at", "claimed_at", "completed_at", "failed_at",
		"created_at", "updated_at",
	}).AddRow(
		job.ID, job.CampaignID, job.Target, job.Name, job.Position, job.Status, job.Attempts,
		job.LastError, job.AvailableAt, job.ClaimedAt, job.CompletedAt, job.FailedAt,
		job.CreatedAt, job.UpdatedAt,
	)
}

func TestClaimNextPendingReturnsJob(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	now := time.Now().UTC()
	claimed := &models.Job{
		ID:          "job-1",
		CampaignID:  "camp-1",
		Target:      "+254700000001",
		Name:        "John",
		Position:    0,
		Status:      models.JobStatusProcessing,
		Attempts:    1,
		AvailableAt: now,
		ClaimedAt:   &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	mock.ExpectQuery("UPDATE jobs").
		WithArgs("camp-1").
		WillReturnRows(jobRows(claimed))

	repo := NewJobRepository(db)
	job, err := repo.ClaimNextPending(context.Background(), "camp-1")
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, models.JobStatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextPendingNoneAvailable(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectQuery("UPDATE jobs").
		WithArgs("camp-1").
		WillReturnError(sql.ErrNoRows)

	repo := NewJobRepository(db)
	job, err := repo.ClaimNextPending(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Nil(t, job)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCompletedRequiresProcessing(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	// Zero rows affected: the job was not in processing.
	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewJobRepository(db)
	err := repo.MarkCompleted(context.Background(), "job-1")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailedRecordsError(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", "network timeout").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewJobRepository(db)
	require.NoError(t, repo.MarkFailed(context.Background(), "job-1", "network timeout"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequeueWithBackoff(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	availableAt := time.Now().UTC().Add(4 * time.Second)
	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", availableAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewJobRepository(db)
	require.NoError(t, repo.RequeueWithBackoff(context.Background(), "job-1", availableAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelPendingReturnsCount(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectExec("UPDATE jobs").
		WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(0, 7))

	repo := NewJobRepository(db)
	n, err := repo.CancelPending(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountsByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("pending", 3).
		AddRow("completed", 20).
		AddRow("failed", 2)

	mock.ExpectQuery("SELECT status, COUNT").
		WithArgs("camp-1").
		WillReturnRows(rows)

	repo := NewJobRepository(db)
	counts, err := repo.CountsByStatus(context.Background(), "camp-1")
	require.NoError(t, err)

	assert.Equal(t, 25, counts.Total)
	assert.Equal(t, 3, counts.Pending)
	assert.Equal(t, 20, counts.Completed)
	assert.Equal(t, 2, counts.Failed)
	assert.Equal(t, 22, counts.Done())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileStaleProcessing(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectExec("UPDATE jobs").
		WithArgs("camp-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	repo := NewJobRepository(db)
	n, err := repo.ReconcileStaleProcessing(context.Background(), "camp-1", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
