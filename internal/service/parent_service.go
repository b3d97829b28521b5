package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
)

type parentLinkStore interface {
	LinkStudent(ctx context.Context, parentID, studentID string) (bool, error)
	ListChildren(ctx context.Context, parentID string) ([]models.Student, error)
}

type studentByEmail interface {
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
}

type parentResolver interface {
	ResolveParent(ctx context.Context, claims *models.JWTClaims) (*models.Parent, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, patterns ...string) error
}

// ParentService manages the parent to child links.
type ParentService struct {
	links     parentLinkStore
	students  studentByEmail
	identity  parentResolver
	audit     auditWriter
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewParentService constructs a ParentService.
func NewParentService(links parentLinkStore, students studentByEmail, identity parentResolver, audit auditWriter, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *ParentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ParentService{links: links, students: students, identity: identity, audit: audit, cache: cache, validator: validate, logger: logger}
}

// LinkChild attaches the student with the given email to the calling parent.
func (s *ParentService) LinkChild(ctx context.Context, claims *models.JWTClaims, req dto.LinkChildRequest) (*models.Student, error) {
	parent, err := s.identity.ResolveParent(ctx, claims)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid link payload")
	}
	student, err := s.students.FindByEmail(ctx, req.StudentEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to look up student")
	}
	linked, err := s.links.LinkStudent(ctx, parent.ID, student.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to link student")
	}
	if !linked {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already linked")
	}

	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, parentStatsKey(parent.ID)+"*")
	}
	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &claims.UserID,
			Action:     models.AuditActionParentChildLinked,
			Resource:   "student",
			ResourceID: &student.ID,
		}); err != nil {
			s.logger.Warn("failed to record parent link audit log", zap.Error(err))
		}
	}
	return student, nil
}

// ListChildren returns the calling parent's linked students.
func (s *ParentService) ListChildren(ctx context.Context, claims *models.JWTClaims) ([]models.Student, error) {
	parent, err := s.identity.ResolveParent(ctx, claims)
	if err != nil {
		return nil, err
	}
	children, err := s.links.ListChildren(ctx, parent.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list children")
	}
	if children == nil {
		children = []models.Student{}
	}
	return children, nil
}
