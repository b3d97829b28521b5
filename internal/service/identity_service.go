package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
)

type studentLookup interface {
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type parentLookup interface {
	FindByUserID(ctx context.Context, userID string) (*models.Parent, error)
}

type schoolLookup interface {
	FindByUserID(ctx context.Context, userID string) (*models.School, error)
}

// IdentityService maps an authenticated principal to its domain entity.
type IdentityService struct {
	students studentLookup
	parents  parentLookup
	schools  schoolLookup
	logger   *zap.Logger
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(students studentLookup, parents parentLookup, schools schoolLookup, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{students: students, parents: parents, schools: schools, logger: logger}
}

// ResolveStudent returns the student profile of a STUDENT principal.
func (s *IdentityService) ResolveStudent(ctx context.Context, claims *models.JWTClaims) (*models.Student, error) {
	if err := requireRole(claims, models.RoleStudent); err != nil {
		return nil, err
	}
	student, err := s.students.FindByUserID(ctx, claims.UserID)
	if err != nil {
		return nil, lookupError(err, "student profile not found", "failed to load student profile")
	}
	return student, nil
}

// ResolveParent returns the parent profile of a PARENT principal.
func (s *IdentityService) ResolveParent(ctx context.Context, claims *models.JWTClaims) (*models.Parent, error) {
	if err := requireRole(claims, models.RoleParent); err != nil {
		return nil, err
	}
	parent, err := s.parents.FindByUserID(ctx, claims.UserID)
	if err != nil {
		return nil, lookupError(err, "parent profile not found", "failed to load parent profile")
	}
	return parent, nil
}

// ResolveSchoolAdmin returns the school owned by a SCHOOL_ADMIN principal.
func (s *IdentityService) ResolveSchoolAdmin(ctx context.Context, claims *models.JWTClaims) (*models.School, error) {
	if err := requireRole(claims, models.RoleSchoolAdmin); err != nil {
		return nil, err
	}
	school, err := s.schools.FindByUserID(ctx, claims.UserID)
	if err != nil {
		return nil, lookupError(err, "school not found", "failed to load school")
	}
	return school, nil
}

func requireRole(claims *models.JWTClaims, role models.UserRole) error {
	if claims == nil || claims.UserID == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if claims.Role != role {
		return appErrors.Clone(appErrors.ErrUnauthorized, "principal is not a "+string(role))
	}
	return nil
}

// lookupError maps sql.ErrNoRows to NotFound and anything else to an internal error.
func lookupError(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Internal(err, internal)
}
