package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
	"github.com/noah-isme/psychometric-api/pkg/jobs"
)

type reportStore interface {
	Create(ctx context.Context, report *models.Report) error
	FindByID(ctx context.Context, id string) (*models.Report, error)
	Latest(ctx context.Context, studentID string) (*models.Report, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.ReportSummary, error)
}

type storedResponses interface {
	FindStudentAssessment(ctx context.Context, studentID, assessmentID string) (*models.StudentAssessment, error)
	ListResponses(ctx context.Context, studentID, assessmentID string) ([]models.Response, error)
}

type reportViewerResolver interface {
	ResolveStudent(ctx context.Context, claims *models.JWTClaims) (*models.Student, error)
	ResolveParent(ctx context.Context, claims *models.JWTClaims) (*models.Parent, error)
	ResolveSchoolAdmin(ctx context.Context, claims *models.JWTClaims) (*models.School, error)
}

type reportStudentStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type childChecker interface {
	HasChild(ctx context.Context, parentID, studentID string) (bool, error)
}

type payloadGenerator interface {
	Generate(ctx context.Context, student *models.Student, assessment *models.Assessment, responses []models.Response) (*models.ReportPayload, error)
}

type jobDispatcher interface {
	TryEnqueue(job jobs.Job) error
}

type pdfArchive interface {
	EnsurePDF(ctx context.Context, report *models.Report) (string, error)
	DownloadURL(ctx context.Context, key string) (string, time.Time, error)
}

type downloadResolver interface {
	ResolveToken(token string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ReportService persists generated reports and serves them to their owners.
type ReportService struct {
	repo      reportStore
	responses storedResponses
	identity  reportViewerResolver
	students  reportStudentStore
	children  childChecker
	guard     eligibilityGuard
	generator payloadGenerator
	queue     jobDispatcher
	archive   pdfArchive
	downloads downloadResolver
	audit     auditWriter
	metrics   *MetricsService
	logger    *zap.Logger
}

// ReportServiceDeps groups the collaborators of ReportService.
type ReportServiceDeps struct {
	Reports   reportStore
	Responses storedResponses
	Identity  reportViewerResolver
	Students  reportStudentStore
	Children  childChecker
	Guard     eligibilityGuard
	Generator payloadGenerator
	Queue     jobDispatcher
	Archive   pdfArchive
	Downloads downloadResolver
	Audit     auditWriter
	Metrics   *MetricsService
	Logger    *zap.Logger
}

// ReportDownload is an opened local PDF.
type ReportDownload struct {
	Body     io.ReadCloser
	Filename string
}

// NewReportService constructs the report service.
func NewReportService(deps ReportServiceDeps) *ReportService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		repo:      deps.Reports,
		responses: deps.Responses,
		identity:  deps.Identity,
		students:  deps.Students,
		children:  deps.Children,
		guard:     deps.Guard,
		generator: deps.Generator,
		queue:     deps.Queue,
		archive:   deps.Archive,
		downloads: deps.Downloads,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// GenerateForSubmission generates and stores a report from the student's stored answers, then schedules delivery.
func (s *ReportService) GenerateForSubmission(ctx context.Context, student *models.Student, assessment *models.Assessment) (*models.Report, error) {
	responses, err := s.responses.ListResponses(ctx, student.ID, assessment.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load responses")
	}
	payload, err := s.generator.Generate(ctx, student, assessment, responses)
	if err != nil {
		s.metrics.RecordReportGeneration(GenerationOutcomeFailed)
		return nil, err
	}
	s.metrics.RecordReportGeneration(GenerationOutcomeSuccess)

	report := &models.Report{
		StudentID:    student.ID,
		AssessmentID: assessment.ID,
		Payload:      *payload,
	}
	if err := s.repo.Create(ctx, report); err != nil {
		return nil, appErrors.Internal(err, "failed to save report")
	}
	s.scheduleDelivery(report)
	return report, nil
}

// Regenerate reruns generation for a completed assessment from its stored answers.
func (s *ReportService) Regenerate(ctx context.Context, claims *models.JWTClaims, assessmentID string) (*models.Report, error) {
	student, err := s.identity.ResolveStudent(ctx, claims)
	if err != nil {
		return nil, err
	}
	assessment, err := s.guard.EnsureEligible(ctx, student, assessmentID)
	if err != nil {
		return nil, err
	}
	record, err := s.responses.FindStudentAssessment(ctx, student.ID, assessment.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "assessment has not been submitted")
		}
		return nil, appErrors.Internal(err, "failed to load assessment progress")
	}
	if record.Status != models.StudentAssessmentCompleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "assessment has not been submitted")
	}
	report, err := s.GenerateForSubmission(ctx, student, assessment)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &claims.UserID,
			Action:     models.AuditActionReportRegenerate,
			Resource:   "report",
			ResourceID: &report.ID,
			NewValues:  []byte(fmt.Sprintf(`{"assessment_id":%q}`, assessment.ID)),
		}); err != nil {
			s.logger.Warn("failed to record regenerate audit log", zap.Error(err))
		}
	}
	return report, nil
}

// Latest returns the caller's most recent report.
func (s *ReportService) Latest(ctx context.Context, claims *models.JWTClaims) (*models.Report, error) {
	student, err := s.identity.ResolveStudent(ctx, claims)
	if err != nil {
		return nil, err
	}
	report, err := s.repo.Latest(ctx, student.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no report generated yet")
		}
		return nil, appErrors.Internal(err, "failed to load report")
	}
	return report, nil
}

// ListMine returns the caller's report summaries.
func (s *ReportService) ListMine(ctx context.Context, claims *models.JWTClaims) ([]models.ReportSummary, error) {
	student, err := s.identity.ResolveStudent(ctx, claims)
	if err != nil {
		return nil, err
	}
	return s.listForStudent(ctx, student.ID)
}

// ListForChild returns report summaries of a child linked to the calling parent.
func (s *ReportService) ListForChild(ctx context.Context, claims *models.JWTClaims, studentID string) ([]models.ReportSummary, error) {
	parent, err := s.identity.ResolveParent(ctx, claims)
	if err != nil {
		return nil, err
	}
	linked, err := s.children.HasChild(ctx, parent.ID, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check parent link")
	}
	if !linked {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return s.listForStudent(ctx, studentID)
}

// Get returns a report visible to the caller. Reports the caller may not see are reported as not found.
func (s *ReportService) Get(ctx context.Context, claims *models.JWTClaims, reportID string) (*models.Report, error) {
	report, err := s.repo.FindByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Internal(err, "failed to load report")
	}
	allowed, err := s.canView(ctx, claims, report)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
	}
	return report, nil
}

// DownloadLink returns a time-limited PDF link for a report visible to the caller.
func (s *ReportService) DownloadLink(ctx context.Context, claims *models.JWTClaims, reportID string) (*dto.ReportDownloadResponse, error) {
	report, err := s.Get(ctx, claims, reportID)
	if err != nil {
		return nil, err
	}
	if s.archive == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report downloads are disabled")
	}
	key, err := s.archive.EnsurePDF(ctx, report)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to prepare report pdf")
	}
	if key == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report downloads are disabled")
	}
	url, expiresAt, err := s.archive.DownloadURL(ctx, key)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign download link")
	}
	return &dto.ReportDownloadResponse{ReportID: report.ID, URL: url, ExpiresAt: expiresAt}, nil
}

// ResolveDownload validates a signed local download token and opens the stored PDF.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	if s.downloads == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "local downloads are disabled")
	}
	key, err := s.downloads.ResolveToken(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	body, err := s.downloads.Open(ctx, key)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report file not found")
	}
	return &ReportDownload{Body: body, Filename: path.Base(key)}, nil
}

func (s *ReportService) listForStudent(ctx context.Context, studentID string) ([]models.ReportSummary, error) {
	summaries, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list reports")
	}
	if summaries == nil {
		summaries = []models.ReportSummary{}
	}
	return summaries, nil
}

func (s *ReportService) canView(ctx context.Context, claims *models.JWTClaims, report *models.Report) (bool, error) {
	if claims == nil {
		return false, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	switch claims.Role {
	case models.RoleAdmin:
		return true, nil
	case models.RoleStudent:
		student, err := s.identity.ResolveStudent(ctx, claims)
		if err != nil {
			return false, err
		}
		return student.ID == report.StudentID, nil
	case models.RoleParent:
		parent, err := s.identity.ResolveParent(ctx, claims)
		if err != nil {
			return false, err
		}
		linked, err := s.children.HasChild(ctx, parent.ID, report.StudentID)
		if err != nil {
			return false, appErrors.Internal(err, "failed to check parent link")
		}
		return linked, nil
	case models.RoleSchoolAdmin:
		school, err := s.identity.ResolveSchoolAdmin(ctx, claims)
		if err != nil {
			return false, err
		}
		student, err := s.students.FindByID(ctx, report.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, nil
			}
			return false, appErrors.Internal(err, "failed to load student")
		}
		return student.SchoolID != nil && *student.SchoolID == school.ID, nil
	default:
		return false, nil
	}
}

func (s *ReportService) scheduleDelivery(report *models.Report) {
	if s.queue == nil {
		return
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: report.ID, Type: DeliveryJobType}); err != nil {
		s.logger.Warn("failed to enqueue report delivery", zap.String("report_id", report.ID), zap.Error(err))
	}
}
