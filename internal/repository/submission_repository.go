package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/psychometric-api/internal/models"
)

const studentAssessmentColumns = `id, student_id, assessment_id, status, started_at, completed_at, created_at, updated_at`

// SubmissionRepository persists assignment progress and responses.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs a SubmissionRepository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// FindStudentAssessment returns the assignment record for the pair.
func (r *SubmissionRepository) FindStudentAssessment(ctx context.Context, studentID, assessmentID string) (*models.StudentAssessment, error) {
	query := `SELECT ` + studentAssessmentColumns + ` FROM student_assessments WHERE student_id = $1 AND assessment_id = $2`
	var sa models.StudentAssessment
	if err := r.db.GetContext(ctx, &sa, query, studentID, assessmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student assessment: %w", err)
	}
	return &sa, nil
}

// Start marks the pair IN_PROGRESS, creating the record when absent.
// It returns sql.ErrNoRows when the existing record is already COMPLETED or EXPIRED.
func (r *SubmissionRepository) Start(ctx context.Context, studentID, assessmentID string, now time.Time) (*models.StudentAssessment, error) {
	query := `INSERT INTO student_assessments (id, student_id, assessment_id, status, started_at, created_at, updated_at)
VALUES ($1, $2, $3, 'IN_PROGRESS', $4, $4, $4)
ON CONFLICT (student_id, assessment_id) DO UPDATE
SET status = 'IN_PROGRESS',
    started_at = COALESCE(student_assessments.started_at, EXCLUDED.started_at),
    updated_at = EXCLUDED.updated_at
WHERE student_assessments.status IN ('PENDING', 'IN_PROGRESS')
RETURNING ` + studentAssessmentColumns
	var sa models.StudentAssessment
	if err := r.db.GetContext(ctx, &sa, query, uuid.NewString(), studentID, assessmentID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("start student assessment: %w", err)
	}
	return &sa, nil
}

// Submit completes the assignment and upserts every response as one unit of work.
// Responses are keyed by (student, assessment, question) so a resubmission replaces earlier answers.
// It returns sql.ErrNoRows when the assignment has EXPIRED.
func (r *SubmissionRepository) Submit(ctx context.Context, studentID, assessmentID string, responses []models.Response, now time.Time) (*models.StudentAssessment, error) {
	var sa models.StudentAssessment
	err := withTx(ctx, r.db, "submit assessment", func(tx *sqlx.Tx) error {
		completeQuery := `INSERT INTO student_assessments (id, student_id, assessment_id, status, started_at, completed_at, created_at, updated_at)
VALUES ($1, $2, $3, 'COMPLETED', $4, $4, $4, $4)
ON CONFLICT (student_id, assessment_id) DO UPDATE
SET status = 'COMPLETED',
    started_at = COALESCE(student_assessments.started_at, EXCLUDED.started_at),
    completed_at = EXCLUDED.completed_at,
    updated_at = EXCLUDED.updated_at
WHERE student_assessments.status <> 'EXPIRED'
RETURNING ` + studentAssessmentColumns
		if err := tx.GetContext(ctx, &sa, completeQuery, uuid.NewString(), studentID, assessmentID, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("complete student assessment: %w", err)
		}

		const upsertResponse = `INSERT INTO responses (id, student_id, assessment_id, question_id, value, created_at, updated_at)
VALUES (:id, :student_id, :assessment_id, :question_id, :value, :created_at, :updated_at)
ON CONFLICT (student_id, assessment_id, question_id)
DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
		for i := range responses {
			resp := &responses[i]
			if resp.ID == "" {
				resp.ID = uuid.NewString()
			}
			resp.StudentID = studentID
			resp.AssessmentID = assessmentID
			resp.CreatedAt = now
			resp.UpdatedAt = now
			if _, err := tx.NamedExecContext(ctx, upsertResponse, resp); err != nil {
				return fmt.Errorf("upsert response %s: %w", resp.QuestionID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sa, nil
}

// ListResponses returns the stored answers for the pair in question order.
func (r *SubmissionRepository) ListResponses(ctx context.Context, studentID, assessmentID string) ([]models.Response, error) {
	const query = `SELECT r.id, r.student_id, r.assessment_id, r.question_id, r.value, r.created_at, r.updated_at
FROM responses r
JOIN questions q ON q.id = r.question_id
WHERE r.student_id = $1 AND r.assessment_id = $2
ORDER BY q.order_index`
	var responses []models.Response
	if err := r.db.SelectContext(ctx, &responses, query, studentID, assessmentID); err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return responses, nil
}

// ExpireStale moves PENDING and IN_PROGRESS assignments started before cutoff to EXPIRED.
func (r *SubmissionRepository) ExpireStale(ctx context.Context, cutoff, now time.Time) (int64, error) {
	const query = `UPDATE student_assessments SET status = 'EXPIRED', updated_at = $2
WHERE status IN ('PENDING', 'IN_PROGRESS') AND COALESCE(started_at, created_at) < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("expire stale assessments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire stale assessments rows: %w", err)
	}
	return affected, nil
}
