package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/psychometric-api/internal/models"
)

const linkParentQuery = `INSERT INTO parent_students (parent_id, student_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (parent_id, student_id) DO NOTHING`

// ParentRepository handles parent profiles and their many-to-many child links.
type ParentRepository struct {
	db *sqlx.DB
}

// NewParentRepository constructs a ParentRepository.
func NewParentRepository(db *sqlx.DB) *ParentRepository {
	return &ParentRepository{db: db}
}

// FindByUserID resolves the parent profile of a PARENT user.
func (r *ParentRepository) FindByUserID(ctx context.Context, userID string) (*models.Parent, error) {
	const query = `SELECT id, user_id, full_name, phone, created_at, updated_at FROM parents WHERE user_id = $1`
	var parent models.Parent
	if err := r.db.GetContext(ctx, &parent, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find parent by user: %w", err)
	}
	return &parent, nil
}

// FindByEmail resolves a parent through the owning user's email.
func (r *ParentRepository) FindByEmail(ctx context.Context, email string) (*models.Parent, error) {
	const query = `SELECT p.id, p.user_id, p.full_name, p.phone, p.created_at, p.updated_at FROM parents p JOIN users u ON u.id = p.user_id WHERE LOWER(u.email) = LOWER($1)`
	var parent models.Parent
	if err := r.db.GetContext(ctx, &parent, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find parent by email: %w", err)
	}
	return &parent, nil
}

// LinkStudent links a child to the parent. It reports false when the link already existed.
func (r *ParentRepository) LinkStudent(ctx context.Context, parentID, studentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, linkParentQuery, parentID, studentID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("link student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link student rows: %w", err)
	}
	return affected > 0, nil
}

// HasChild reports whether the student is linked to the parent.
func (r *ParentRepository) HasChild(ctx context.Context, parentID, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM parent_students WHERE parent_id = $1 AND student_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, parentID, studentID); err != nil {
		return false, fmt.Errorf("check parent child: %w", err)
	}
	return exists, nil
}

// ListChildren returns every student linked to the parent.
func (r *ParentRepository) ListChildren(ctx context.Context, parentID string) ([]models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students s JOIN parent_students ps ON ps.student_id = s.id WHERE ps.parent_id = $1 ORDER BY s.full_name`
	var children []models.Student
	if err := r.db.SelectContext(ctx, &children, query, parentID); err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return children, nil
}

// ListContactsForStudent returns the email contacts of every parent linked to the student.
func (r *ParentRepository) ListContactsForStudent(ctx context.Context, studentID string) ([]models.ParentContact, error) {
	const query = `SELECT p.id AS parent_id, p.full_name, u.email
FROM parents p
JOIN parent_students ps ON ps.parent_id = p.id
JOIN users u ON u.id = p.user_id
WHERE ps.student_id = $1 AND u.active = TRUE`
	var contacts []models.ParentContact
	if err := r.db.SelectContext(ctx, &contacts, query, studentID); err != nil {
		return nil, fmt.Errorf("list parent contacts: %w", err)
	}
	return contacts, nil
}
