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

const reportColumns = `id, student_id, assessment_id, payload, pdf_object_key, created_at`

// ReportRepository persists append-only generated reports.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs a ReportRepository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create appends a report.
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO reports (id, student_id, assessment_id, payload, pdf_object_key, created_at) VALUES (:id, :student_id, :assessment_id, :payload, :pdf_object_key, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// FindByID fetches a report by id.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	var report models.Report
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find report: %w", err)
	}
	return &report, nil
}

// Latest returns the most recent report of the student.
func (r *ReportRepository) Latest(ctx context.Context, studentID string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE student_id = $1 ORDER BY created_at DESC LIMIT 1`
	var report models.Report
	if err := r.db.GetContext(ctx, &report, query, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find latest report: %w", err)
	}
	return &report, nil
}

// ListByStudent returns report summaries newest first.
func (r *ReportRepository) ListByStudent(ctx context.Context, studentID string) ([]models.ReportSummary, error) {
	const query = `SELECT rp.id, rp.student_id, rp.assessment_id, a.title AS assessment_title, rp.created_at
FROM reports rp
JOIN assessments a ON a.id = rp.assessment_id
WHERE rp.student_id = $1
ORDER BY rp.created_at DESC`
	var summaries []models.ReportSummary
	if err := r.db.SelectContext(ctx, &summaries, query, studentID); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return summaries, nil
}

// SetPDFObjectKey records where the rendered PDF was archived.
func (r *ReportRepository) SetPDFObjectKey(ctx context.Context, id, key string) error {
	const query = `UPDATE reports SET pdf_object_key = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, key); err != nil {
		return fmt.Errorf("set report pdf key: %w", err)
	}
	return nil
}
