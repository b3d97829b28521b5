package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/psychometric-api/internal/models"
)

const studentColumns = `s.id, s.user_id, s.school_id, s.full_name, s.grade, s.age, s.gender, s.created_at, s.updated_at`

// StudentRepository handles persistence for student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByUserID resolves the student profile of a STUDENT user.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	return r.findOne(ctx, "find student by user", `SELECT `+studentColumns+` FROM students s WHERE s.user_id = $1`, userID)
}

// FindByID returns a student by identifier.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	return r.findOne(ctx, "find student by id", `SELECT `+studentColumns+` FROM students s WHERE s.id = $1`, id)
}

// FindByEmail resolves a student through the owning user's email.
func (r *StudentRepository) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students s JOIN users u ON u.id = s.user_id WHERE LOWER(u.email) = LOWER($1)`
	return r.findOne(ctx, "find student by email", query, email)
}

// ListRoster returns the students of a school with completion and report counts.
func (r *StudentRepository) ListRoster(ctx context.Context, schoolID string) ([]models.RosterEntry, error) {
	query := `SELECT ` + studentColumns + `, u.email,
       (SELECT COUNT(*) FROM student_assessments sa WHERE sa.student_id = s.id AND sa.status = 'COMPLETED') AS completed,
       (SELECT COUNT(*) FROM reports rp WHERE rp.student_id = s.id) AS reports
FROM students s
JOIN users u ON u.id = s.user_id
WHERE s.school_id = $1
ORDER BY s.grade, s.full_name`
	var entries []models.RosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, schoolID); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return entries, nil
}

func (r *StudentRepository) findOne(ctx context.Context, op, query string, arg interface{}) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &student, nil
}
