package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/psychometric-api/internal/models"
)

const schoolColumns = `id, user_id, name, address, city, state, phone, status, activated_at, created_at, updated_at`

// SchoolRepository reads tenant schools.
type SchoolRepository struct {
	db *sqlx.DB
}

// NewSchoolRepository constructs a SchoolRepository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

// FindByUserID returns the school administered by the user.
func (r *SchoolRepository) FindByUserID(ctx context.Context, userID string) (*models.School, error) {
	var school models.School
	query := `SELECT ` + schoolColumns + ` FROM schools WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &school, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find school by user: %w", err)
	}
	return &school, nil
}

// FindByID returns a school by identifier.
func (r *SchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	var school models.School
	query := `SELECT ` + schoolColumns + ` FROM schools WHERE id = $1`
	if err := r.db.GetContext(ctx, &school, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find school by id: %w", err)
	}
	return &school, nil
}
