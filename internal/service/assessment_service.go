package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	"github.com/noah-isme/psychometric-api/internal/repository"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
)

type assessmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
	ListForStudent(ctx context.Context, studentID string, grade int) ([]models.AssessmentListing, error)
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, int, error)
	Create(ctx context.Context, assessment *models.Assessment) error
	UpdateStatus(ctx context.Context, id string, from, to models.AssessmentStatus) (bool, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AssessmentService owns the catalog and the eligibility guard used by every student entry point.
type AssessmentService struct {
	repo      assessmentStore
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssessmentService constructs an AssessmentService.
func NewAssessmentService(repo assessmentStore, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *AssessmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AssessmentService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// EnsureEligible loads the assessment and checks that the student may take it.
func (s *AssessmentService) EnsureEligible(ctx context.Context, student *models.Student, assessmentID string) (*models.Assessment, error) {
	if student == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "student identity required")
	}
	assessment, err := s.repo.FindByID(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Internal(err, "failed to load assessment")
	}
	if assessment.Status != models.AssessmentStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "assessment is not available")
	}
	if !assessment.HasGrade(student.Grade) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "assessment is not available for your grade")
	}
	return assessment, nil
}

// Get returns an assessment definition for a student after the eligibility guard.
func (s *AssessmentService) Get(ctx context.Context, student *models.Student, assessmentID string) (*models.Assessment, error) {
	return s.EnsureEligible(ctx, student, assessmentID)
}

// ListForStudent returns the published catalog for the student's grade.
func (s *AssessmentService) ListForStudent(ctx context.Context, student *models.Student) ([]models.AssessmentListing, error) {
	listings, err := s.repo.ListForStudent(ctx, student.ID, student.Grade)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list assessments")
	}
	if listings == nil {
		listings = []models.AssessmentListing{}
	}
	return listings, nil
}

// List returns the paginated catalog for administrators.
func (s *AssessmentService) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	assessments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list assessments")
	}
	if assessments == nil {
		assessments = []models.Assessment{}
	}
	return assessments, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Create stores a DRAFT assessment with its questions.
func (s *AssessmentService) Create(ctx context.Context, req dto.CreateAssessmentRequest, actorID string) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid assessment payload")
	}
	if err := validateQuestions(req.Questions); err != nil {
		return nil, err
	}

	assessment := &models.Assessment{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Type:        req.Type,
		Status:      models.AssessmentStatusDraft,
		GradeLevels: uniqueGrades(req.GradeLevels),
		CreatedBy:   actorID,
	}
	for _, q := range req.Questions {
		assessment.Questions = append(assessment.Questions, models.Question{
			Text:       q.Text,
			Type:       q.Type,
			OrderIndex: q.OrderIndex,
			Options:    models.QuestionOptions(q.Options),
		})
	}

	if err := s.repo.Create(ctx, assessment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "question order index must be unique")
		}
		return nil, appErrors.Internal(err, "failed to create assessment")
	}
	s.recordAudit(ctx, actorID, models.AuditActionAssessmentCreate, assessment.ID, fmt.Sprintf(`{"status":%q}`, assessment.Status))
	return assessment, nil
}

// Transition moves an assessment forward along DRAFT -> PUBLISHED -> ARCHIVED.
func (s *AssessmentService) Transition(ctx context.Context, id string, next models.AssessmentStatus, actorID string) (*models.Assessment, error) {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Internal(err, "failed to load assessment")
	}
	if !current.Status.CanTransitionTo(next) {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot move assessment from %s to %s", current.Status, next))
	}
	if next == models.AssessmentStatusPublished && len(current.Questions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assessment has no questions")
	}
	updated, err := s.repo.UpdateStatus(ctx, id, current.Status, next)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to update assessment status")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrConflict, "assessment status changed concurrently")
	}
	previous := current.Status
	current.Status = next
	s.recordAudit(ctx, actorID, models.AuditActionAssessmentStatus, id, fmt.Sprintf(`{"from":%q,"to":%q}`, previous, next))
	return current, nil
}

func (s *AssessmentService) recordAudit(ctx context.Context, actorID, action, resourceID, values string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{Action: action, Resource: "assessment", ResourceID: &resourceID, NewValues: []byte(values)}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record assessment audit log", zap.String("assessment_id", resourceID), zap.Error(err))
	}
}

func validateQuestions(questions []dto.CreateQuestionRequest) error {
	seen := make(map[int]struct{}, len(questions))
	for i, q := range questions {
		if _, dup := seen[q.OrderIndex]; dup {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d: duplicate order index %d", i+1, q.OrderIndex))
		}
		seen[q.OrderIndex] = struct{}{}

		if q.Type != models.QuestionTypeMultipleChoice {
			continue
		}
		if len(q.Options) < 2 {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d: multiple choice needs at least two options", i+1))
		}
		ids := make(map[string]struct{}, len(q.Options))
		for _, opt := range q.Options {
			if strings.TrimSpace(opt.ID) == "" || strings.TrimSpace(opt.Text) == "" {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d: options need an id and text", i+1))
			}
			if _, dup := ids[opt.ID]; dup {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d: duplicate option id %q", i+1, opt.ID))
			}
			ids[opt.ID] = struct{}{}
		}
	}
	return nil
}

func uniqueGrades(grades []int64) []int64 {
	seen := make(map[int64]struct{}, len(grades))
	out := make([]int64, 0, len(grades))
	for _, g := range grades {
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}
