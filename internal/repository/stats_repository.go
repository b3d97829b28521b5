package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/psychometric-api/internal/models"
)

// StatsRepository runs the read-side aggregation queries behind dashboards.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository constructs a StatsRepository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// StudentStatusCounts groups the published assessments of a grade by the student's progress.
// Assessments without an assignment record count as PENDING.
func (r *StatsRepository) StudentStatusCounts(ctx context.Context, studentID string, grade int) ([]models.StatusCount, error) {
	const query = `SELECT COALESCE(sa.status, 'PENDING') AS status, COUNT(*) AS count
FROM assessments a
LEFT JOIN student_assessments sa ON sa.assessment_id = a.id AND sa.student_id = $1
WHERE a.status = 'PUBLISHED' AND $2 = ANY(a.grade_levels)
GROUP BY COALESCE(sa.status, 'PENDING')`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query, studentID, grade); err != nil {
		return nil, fmt.Errorf("student status counts: %w", err)
	}
	return counts, nil
}

// LatestReportSummary returns the newest report summary of the student, or nil when none exists.
func (r *StatsRepository) LatestReportSummary(ctx context.Context, studentID string) (*models.ReportSummary, error) {
	const query = `SELECT rp.id, rp.student_id, rp.assessment_id, a.title AS assessment_title, rp.created_at
FROM reports rp
JOIN assessments a ON a.id = rp.assessment_id
WHERE rp.student_id = $1
ORDER BY rp.created_at DESC
LIMIT 1`
	var summary models.ReportSummary
	if err := r.db.GetContext(ctx, &summary, query, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest report summary: %w", err)
	}
	return &summary, nil
}

// AssessmentProgress returns, per published assessment of the grade, total and distinct answered questions.
func (r *StatsRepository) AssessmentProgress(ctx context.Context, studentID string, grade int) ([]models.AssessmentProgress, error) {
	const query = `SELECT a.id AS assessment_id, a.title,
       (SELECT COUNT(*) FROM questions q WHERE q.assessment_id = a.id) AS total_questions,
       (SELECT COUNT(DISTINCT r.question_id) FROM responses r WHERE r.assessment_id = a.id AND r.student_id = $1) AS answered
FROM assessments a
WHERE a.status = 'PUBLISHED' AND $2 = ANY(a.grade_levels)
ORDER BY a.title`
	var rows []models.AssessmentProgress
	if err := r.db.SelectContext(ctx, &rows, query, studentID, grade); err != nil {
		return nil, fmt.Errorf("assessment progress: %w", err)
	}
	return rows, nil
}

// PlatformCounts returns the total number of schools, students, parents and assessments.
func (r *StatsRepository) PlatformCounts(ctx context.Context) (models.SchoolStats, error) {
	const query = `SELECT
       (SELECT COUNT(*) FROM schools) AS schools,
       (SELECT COUNT(*) FROM students) AS students,
       (SELECT COUNT(*) FROM parents) AS parents,
       (SELECT COUNT(*) FROM assessments) AS assessments`
	var row struct {
		Schools     int `db:"schools"`
		Students    int `db:"students"`
		Parents     int `db:"parents"`
		Assessments int `db:"assessments"`
	}
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return models.SchoolStats{}, fmt.Errorf("platform counts: %w", err)
	}
	return models.SchoolStats{
		Schools:     row.Schools,
		Students:    row.Students,
		Parents:     row.Parents,
		Assessments: row.Assessments,
	}, nil
}

// SchoolsByState returns the schools-by-state histogram.
func (r *StatsRepository) SchoolsByState(ctx context.Context) ([]models.StateCount, error) {
	const query = `SELECT state, COUNT(*) AS count FROM schools GROUP BY state ORDER BY count DESC, state`
	var rows []models.StateCount
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("schools by state: %w", err)
	}
	return rows, nil
}

// SchoolAdminCounts summarises one school.
func (r *StatsRepository) SchoolAdminCounts(ctx context.Context, schoolID string) (models.SchoolAdminStats, error) {
	const countsQuery = `SELECT
       (SELECT COUNT(*) FROM students s WHERE s.school_id = $1) AS students,
       (SELECT COUNT(*) FROM student_assessments sa JOIN students s ON s.id = sa.student_id WHERE s.school_id = $1 AND sa.status = 'COMPLETED') AS completed,
       (SELECT COUNT(*) FROM reports rp JOIN students s ON s.id = rp.student_id WHERE s.school_id = $1) AS reports`
	var row struct {
		Students  int `db:"students"`
		Completed int `db:"completed"`
		Reports   int `db:"reports"`
	}
	if err := r.db.GetContext(ctx, &row, countsQuery, schoolID); err != nil {
		return models.SchoolAdminStats{}, fmt.Errorf("school admin counts: %w", err)
	}

	const gradeQuery = `SELECT grade, COUNT(*) AS count FROM students WHERE school_id = $1 GROUP BY grade ORDER BY grade`
	var grades []models.GradeCount
	if err := r.db.SelectContext(ctx, &grades, gradeQuery, schoolID); err != nil {
		return models.SchoolAdminStats{}, fmt.Errorf("students by grade: %w", err)
	}

	return models.SchoolAdminStats{
		SchoolID:             schoolID,
		Students:             row.Students,
		StudentsByGrade:      grades,
		CompletedSubmissions: row.Completed,
		ReportsGenerated:     row.Reports,
	}, nil
}
