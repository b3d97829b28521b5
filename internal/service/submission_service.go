package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
)

type submissionStore interface {
	Start(ctx context.Context, studentID, assessmentID string, now time.Time) (*models.StudentAssessment, error)
	Submit(ctx context.Context, studentID, assessmentID string, responses []models.Response, now time.Time) (*models.StudentAssessment, error)
	ExpireStale(ctx context.Context, cutoff, now time.Time) (int64, error)
}

type studentResolver interface {
	ResolveStudent(ctx context.Context, claims *models.JWTClaims) (*models.Student, error)
}

type eligibilityGuard interface {
	EnsureEligible(ctx context.Context, student *models.Student, assessmentID string) (*models.Assessment, error)
}

type statsInvalidator interface {
	InvalidateForStudent(ctx context.Context, student *models.Student)
}

type submissionReporter interface {
	GenerateForSubmission(ctx context.Context, student *models.Student, assessment *models.Assessment) (*models.Report, error)
}

// SubmissionConfig controls assignment expiry.
type SubmissionConfig struct {
	ExpiryTTL     time.Duration
	SweepInterval time.Duration
}

// SubmissionService collects answers and moves student assignments through their lifecycle.
type SubmissionService struct {
	repo      submissionStore
	identity  studentResolver
	guard     eligibilityGuard
	stats     statsInvalidator
	reports   submissionReporter
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       SubmissionConfig
	now       func() time.Time
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(repo submissionStore, identity studentResolver, guard eligibilityGuard, stats statsInvalidator, reports submissionReporter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg SubmissionConfig) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 15 * time.Minute
	}
	return &SubmissionService{
		repo:      repo,
		identity:  identity,
		guard:     guard,
		stats:     stats,
		reports:   reports,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit stores every answer and completes the assignment in one transaction, then generates the report.
// When generation fails the submission stays committed and the GENERATION_FAILED error is returned.
func (s *SubmissionService) Submit(ctx context.Context, claims *models.JWTClaims, req dto.SubmitAssessmentRequest) (*dto.SubmitAssessmentResponse, error) {
	student, err := s.identity.ResolveStudent(ctx, claims)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid submission payload")
	}
	assessment, err := s.guard.EnsureEligible(ctx, student, req.AssessmentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	responses, err := buildResponses(student.ID, assessment, req.Responses, now)
	if err != nil {
		return nil, err
	}

	record, err := s.repo.Submit(ctx, student.ID, assessment.ID, responses, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "assessment has expired for this student")
		}
		s.logger.Error("submission transaction failed",
			zap.String("student_id", student.ID),
			zap.String("assessment_id", assessment.ID),
			zap.Error(err))
		return nil, appErrors.Internal(err, "failed to save submission")
	}
	s.metrics.RecordSubmission()
	if s.stats != nil {
		s.stats.InvalidateForStudent(ctx, student)
	}

	result := &dto.SubmitAssessmentResponse{
		Submission: dto.SubmissionResult{StudentAssessment: *record, ResponseCount: len(responses)},
	}
	if s.reports == nil {
		return result, nil
	}
	report, err := s.reports.GenerateForSubmission(ctx, student, assessment)
	if err != nil {
		return result, err
	}
	result.ReportID = report.ID
	return result, nil
}

// Start marks the assignment IN_PROGRESS. Starting an in-progress assignment is a no-op.
func (s *SubmissionService) Start(ctx context.Context, claims *models.JWTClaims, assessmentID string) (*models.StudentAssessment, error) {
	student, err := s.identity.ResolveStudent(ctx, claims)
	if err != nil {
		return nil, err
	}
	assessment, err := s.guard.EnsureEligible(ctx, student, assessmentID)
	if err != nil {
		return nil, err
	}
	record, err := s.repo.Start(ctx, student.ID, assessment.ID, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "assessment already completed or expired")
		}
		return nil, appErrors.Internal(err, "failed to start assessment")
	}
	if s.stats != nil {
		s.stats.InvalidateForStudent(ctx, student)
	}
	return record, nil
}

// ExpireStale marks PENDING and IN_PROGRESS assignments older than the TTL as EXPIRED.
func (s *SubmissionService) ExpireStale(ctx context.Context) (int64, error) {
	if s.cfg.ExpiryTTL <= 0 {
		return 0, nil
	}
	now := s.now()
	n, err := s.repo.ExpireStale(ctx, now.Add(-s.cfg.ExpiryTTL), now)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordExpired(n)
	return n, nil
}

// StartExpirySweep runs ExpireStale on a ticker until ctx is cancelled.
func (s *SubmissionService) StartExpirySweep(ctx context.Context) {
	if s.cfg.ExpiryTTL <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.ExpireStale(ctx)
				if err != nil {
					s.logger.Warn("assessment expiry sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					s.logger.Info("expired stale assessments", zap.Int64("count", n))
				}
			}
		}
	}()
}

func buildResponses(studentID string, assessment *models.Assessment, answers []dto.SubmitAnswer, now time.Time) ([]models.Response, error) {
	seen := make(map[string]struct{}, len(answers))
	responses := make([]models.Response, 0, len(answers))
	for i, answer := range answers {
		question, ok := assessment.QuestionByID(answer.QuestionID)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("response %d: question %s does not belong to this assessment", i+1, answer.QuestionID))
		}
		if _, dup := seen[answer.QuestionID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("response %d: question %s answered twice", i+1, answer.QuestionID))
		}
		seen[answer.QuestionID] = struct{}{}
		if err := validateAnswerShape(question.Type, answer.Value); err != nil {
			return nil, appErrors.Validation(err, fmt.Sprintf("response %d: invalid answer for question %s", i+1, answer.QuestionID))
		}
		responses = append(responses, models.Response{
			StudentID:    studentID,
			AssessmentID: assessment.ID,
			QuestionID:   question.ID,
			Value:        compactJSON(answer.Value),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return responses, nil
}

// validateAnswerShape checks that a raw answer matches the question type.
func validateAnswerShape(qType models.QuestionType, raw models.JSONValue) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return errors.New("answer is required")
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("answer is not valid JSON: %w", err)
	}

	switch qType {
	case models.QuestionTypeMultipleChoice:
		switch v := value.(type) {
		case string, float64:
			return nil
		case []interface{}:
			if len(v) == 0 {
				return errors.New("select at least one option")
			}
			for _, item := range v {
				switch item.(type) {
				case string, float64:
				default:
					return errors.New("options must be referenced by id or value")
				}
			}
			return nil
		default:
			return errors.New("options must be referenced by id or value")
		}
	case models.QuestionTypeLikertScale:
		if _, ok := value.(float64); !ok {
			return errors.New("scale answers must be numeric")
		}
		return nil
	case models.QuestionTypeOpenEnded:
		if _, ok := value.(string); !ok {
			return errors.New("open ended answers must be text")
		}
		return nil
	default:
		return fmt.Errorf("unsupported question type %s", qType)
	}
}

func compactJSON(raw models.JSONValue) models.JSONValue {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return models.JSONValue(buf.Bytes())
}
