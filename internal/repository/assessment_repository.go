package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/psychometric-api/internal/models"
)

const assessmentColumns = `a.id, a.title, a.description, a.type, a.status, a.grade_levels, COALESCE(a.created_by::text, '') AS created_by, a.created_at, a.updated_at`

// AssessmentRepository stores the assessment catalog.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository constructs an AssessmentRepository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// FindByID returns an assessment with its questions ordered by order index.
func (r *AssessmentRepository) FindByID(ctx context.Context, id string) (*models.Assessment, error) {
	var assessment models.Assessment
	query := `SELECT ` + assessmentColumns + ` FROM assessments a WHERE a.id = $1`
	if err := r.db.GetContext(ctx, &assessment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find assessment: %w", err)
	}
	questions, err := r.ListQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	assessment.Questions = questions
	return &assessment, nil
}

// ListQuestions returns the questions of an assessment in order.
func (r *AssessmentRepository) ListQuestions(ctx context.Context, assessmentID string) ([]models.Question, error) {
	const query = `SELECT id, assessment_id, text, type, order_index, options FROM questions WHERE assessment_id = $1 ORDER BY order_index`
	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, query, assessmentID); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

// ListForStudent returns published assessments applicable to the grade with the student's progress.
func (r *AssessmentRepository) ListForStudent(ctx context.Context, studentID string, grade int) ([]models.AssessmentListing, error) {
	query := `SELECT ` + assessmentColumns + `,
       (SELECT COUNT(*) FROM questions q WHERE q.assessment_id = a.id) AS question_count,
       COALESCE(sa.status, 'PENDING') AS progress_status
FROM assessments a
LEFT JOIN student_assessments sa ON sa.assessment_id = a.id AND sa.student_id = $1
WHERE a.status = 'PUBLISHED' AND $2 = ANY(a.grade_levels)
ORDER BY a.created_at DESC`
	var listings []models.AssessmentListing
	if err := r.db.SelectContext(ctx, &listings, query, studentID, grade); err != nil {
		return nil, fmt.Errorf("list assessments for student: %w", err)
	}
	return listings, nil
}

// List returns catalog entries matching the filter with the total count.
func (r *AssessmentRepository) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, int, error) {
	baseQuery := `FROM assessments a WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("a.type = $%d", len(args)+1))
		args = append(args, *filter.Type)
	}
	if filter.Grade != nil {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(a.grade_levels)", len(args)+1))
		args = append(args, *filter.Grade)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY a.created_at DESC LIMIT %d OFFSET %d", assessmentColumns, baseQuery, pageSize, offset)
	var assessments []models.Assessment
	if err := r.db.SelectContext(ctx, &assessments, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list assessments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assessments: %w", err)
	}
	return assessments, total, nil
}

// Create inserts the assessment and all of its questions in one transaction.
func (r *AssessmentRepository) Create(ctx context.Context, assessment *models.Assessment) error {
	if assessment.ID == "" {
		assessment.ID = uuid.NewString()
	}
	if assessment.Status == "" {
		assessment.Status = models.AssessmentStatusDraft
	}
	now := time.Now().UTC()
	assessment.CreatedAt = now
	assessment.UpdatedAt = now

	return withTx(ctx, r.db, "create assessment", func(tx *sqlx.Tx) error {
		const insertAssessment = `INSERT INTO assessments (id, title, description, type, status, grade_levels, created_by, created_at, updated_at) VALUES (:id, :title, :description, :type, :status, :grade_levels, CAST(NULLIF(:created_by, '') AS uuid), :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insertAssessment, assessment); err != nil {
			return fmt.Errorf("create assessment: %w", err)
		}

		const insertQuestion = `INSERT INTO questions (id, assessment_id, text, type, order_index, options) VALUES (:id, :assessment_id, :text, :type, :order_index, :options)`
		for i := range assessment.Questions {
			q := &assessment.Questions[i]
			if q.ID == "" {
				q.ID = uuid.NewString()
			}
			q.AssessmentID = assessment.ID
			if _, err := tx.NamedExecContext(ctx, insertQuestion, q); err != nil {
				return translateWriteErr("create question", err)
			}
		}
		return nil
	})
}

// UpdateStatus moves an assessment from one status to the next. It reports false when the row was not in the expected status.
func (r *AssessmentRepository) UpdateStatus(ctx context.Context, id string, from, to models.AssessmentStatus) (bool, error) {
	const query = `UPDATE assessments SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update assessment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update assessment status rows: %w", err)
	}
	return affected > 0, nil
}
