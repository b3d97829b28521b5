package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/psychometric-api/internal/models"
)

var studentAssessmentRowColumns = []string{"id", "student_id", "assessment_id", "status", "started_at", "completed_at", "created_at", "updated_at"}

func TestSubmitCompletesAndUpsertsResponses(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO student_assessments .* WHERE student_assessments.status <> 'EXPIRED'`).
		WithArgs(sqlmock.AnyArg(), "s1", "a1", now).
		WillReturnRows(sqlmock.NewRows(studentAssessmentRowColumns).
			AddRow("sa1", "s1", "a1", "COMPLETED", now, now, now, now))
	mock.ExpectExec(`INSERT INTO responses .* ON CONFLICT \(student_id, assessment_id, question_id\)`).
		WithArgs(sqlmock.AnyArg(), "s1", "a1", "q1", sqlmock.AnyArg(), now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO responses`).
		WithArgs(sqlmock.AnyArg(), "s1", "a1", "q2", sqlmock.AnyArg(), now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	record, err := repo.Submit(context.Background(), "s1", "a1", []models.Response{
		{QuestionID: "q1", Value: models.JSONValue(`5`)},
		{QuestionID: "q2", Value: models.JSONValue(`"B"`)},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, models.StudentAssessmentCompleted, record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitRollsBackWhenAResponseFails(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO student_assessments`).
		WillReturnRows(sqlmock.NewRows(studentAssessmentRowColumns).
			AddRow("sa1", "s1", "a1", "COMPLETED", now, now, now, now))
	mock.ExpectExec(`INSERT INTO responses`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO responses`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.Submit(context.Background(), "s1", "a1", []models.Response{
		{QuestionID: "q1", Value: models.JSONValue(`5`)},
		{QuestionID: "q2", Value: models.JSONValue(`4`)},
	}, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "q2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitExpiredAssignment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO student_assessments`).
		WillReturnRows(sqlmock.NewRows(studentAssessmentRowColumns))
	mock.ExpectRollback()

	_, err := repo.Submit(context.Background(), "s1", "a1", []models.Response{{QuestionID: "q1", Value: models.JSONValue(`1`)}}, time.Now())
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartReturnsNoRowsForFinishedAssignment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectQuery(`INSERT INTO student_assessments .* WHERE student_assessments.status IN \('PENDING', 'IN_PROGRESS'\)`).
		WillReturnRows(sqlmock.NewRows(studentAssessmentRowColumns))

	_, err := repo.Start(context.Background(), "s1", "a1", time.Now())
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireStale(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)
	cutoff := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	now := cutoff.Add(72 * time.Hour)

	mock.ExpectExec(`UPDATE student_assessments SET status = 'EXPIRED'`).
		WithArgs(cutoff, now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.ExpireStale(context.Background(), cutoff, now)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
