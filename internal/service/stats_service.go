package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
)

type statsStore interface {
	StudentStatusCounts(ctx context.Context, studentID string, grade int) ([]models.StatusCount, error)
	LatestReportSummary(ctx context.Context, studentID string) (*models.ReportSummary, error)
	AssessmentProgress(ctx context.Context, studentID string, grade int) ([]models.AssessmentProgress, error)
	PlatformCounts(ctx context.Context) (models.SchoolStats, error)
	SchoolsByState(ctx context.Context) ([]models.StateCount, error)
	SchoolAdminCounts(ctx context.Context, schoolID string) (models.SchoolAdminStats, error)
}

type childLister interface {
	ListChildren(ctx context.Context, parentID string) ([]models.Student, error)
}

// StatsServiceConfig tunes projection caching.
type StatsServiceConfig struct {
	CacheTTL time.Duration
}

// StatsService composes the read-only dashboard projections.
type StatsService struct {
	repo     statsStore
	children childLister
	cache    *CacheService
	logger   *zap.Logger
	cfg      StatsServiceConfig
}

// NewStatsService constructs a StatsService.
func NewStatsService(repo statsStore, children childLister, cache *CacheService, logger *zap.Logger, cfg StatsServiceConfig) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &StatsService{repo: repo, children: children, cache: cache, logger: logger, cfg: cfg}
}

func studentStatsKey(studentID string) string { return fmt.Sprintf("stats:student:%s", studentID) }
func parentStatsKey(parentID string) string   { return fmt.Sprintf("stats:parent:%s", parentID) }
func schoolStatsKey(schoolID string) string   { return fmt.Sprintf("stats:school:%s", schoolID) }

const platformStatsKey = "stats:platform"

// StudentStats counts the student's eligible assessments by status. It reports whether the cache served the result.
func (s *StatsService) StudentStats(ctx context.Context, student *models.Student) (*models.StudentStats, bool, error) {
	key := studentStatsKey(student.ID)
	var cached models.StudentStats
	if s.cache.Lookup(ctx, key, &cached) {
		return &cached, true, nil
	}

	counts, err := s.repo.StudentStatusCounts(ctx, student.ID, student.Grade)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to load student stats")
	}
	stats := &models.StudentStats{}
	for _, c := range counts {
		stats.Total += c.Count
		switch c.Status {
		case models.StudentAssessmentPending:
			stats.Pending += c.Count
		case models.StudentAssessmentInProgress:
			stats.InProgress += c.Count
		case models.StudentAssessmentCompleted:
			stats.Completed += c.Count
		case models.StudentAssessmentExpired:
			stats.Expired += c.Count
		}
	}
	latest, err := s.repo.LatestReportSummary(ctx, student.ID)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to load latest report")
	}
	stats.LatestReport = latest

	s.cache.Store(ctx, key, stats, s.cfg.CacheTTL)
	return stats, false, nil
}

// ParentStats aggregates assessment progress for every child linked to the parent.
func (s *StatsService) ParentStats(ctx context.Context, parent *models.Parent) (*models.ParentStats, bool, error) {
	key := parentStatsKey(parent.ID)
	var cached models.ParentStats
	if s.cache.Lookup(ctx, key, &cached) {
		return &cached, true, nil
	}

	children, err := s.children.ListChildren(ctx, parent.ID)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to list children")
	}
	stats := &models.ParentStats{ParentID: parent.ID, Children: make([]models.ChildStats, 0, len(children))}
	for _, child := range children {
		rows, err := s.repo.AssessmentProgress(ctx, child.ID, child.Grade)
		if err != nil {
			return nil, false, appErrors.Internal(err, "failed to load child progress")
		}
		cs := models.ChildStats{
			StudentID:   child.ID,
			FullName:    child.FullName,
			Grade:       child.Grade,
			Assessments: make([]models.AssessmentProgress, 0, len(rows)),
		}
		for _, row := range rows {
			row.Progress = ProgressPercentage(row.Answered, row.TotalQuestions)
			row.Completed = row.Progress == 100
			if row.Completed {
				cs.Completed++
			}
			cs.Assessments = append(cs.Assessments, row)
		}
		cs.Total = len(rows)
		cs.Pending = cs.Total - cs.Completed
		stats.Children = append(stats.Children, cs)
	}

	s.cache.Store(ctx, key, stats, s.cfg.CacheTTL)
	return stats, false, nil
}

// SchoolStats returns platform-wide counts for administrators.
func (s *StatsService) SchoolStats(ctx context.Context) (*models.SchoolStats, bool, error) {
	var cached models.SchoolStats
	if s.cache.Lookup(ctx, platformStatsKey, &cached) {
		return &cached, true, nil
	}

	stats, err := s.repo.PlatformCounts(ctx)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to load platform stats")
	}
	byState, err := s.repo.SchoolsByState(ctx)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to load schools by state")
	}
	if byState == nil {
		byState = []models.StateCount{}
	}
	stats.SchoolsByState = byState

	s.cache.Store(ctx, platformStatsKey, stats, s.cfg.CacheTTL)
	return &stats, false, nil
}

// SchoolAdminStats summarises one school.
func (s *StatsService) SchoolAdminStats(ctx context.Context, school *models.School) (*models.SchoolAdminStats, bool, error) {
	key := schoolStatsKey(school.ID)
	var cached models.SchoolAdminStats
	if s.cache.Lookup(ctx, key, &cached) {
		return &cached, true, nil
	}

	stats, err := s.repo.SchoolAdminCounts(ctx, school.ID)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to load school stats")
	}
	if stats.StudentsByGrade == nil {
		stats.StudentsByGrade = []models.GradeCount{}
	}

	s.cache.Store(ctx, key, stats, s.cfg.CacheTTL)
	return &stats, false, nil
}

// InvalidateForStudent drops every projection that includes the student's progress.
func (s *StatsService) InvalidateForStudent(ctx context.Context, student *models.Student) {
	if student == nil {
		return
	}
	patterns := []string{studentStatsKey(student.ID) + "*", "stats:parent:*"}
	if student.SchoolID != nil {
		patterns = append(patterns, schoolStatsKey(*student.SchoolID)+"*")
	}
	if err := s.cache.Invalidate(ctx, patterns...); err != nil {
		s.logger.Warn("stale stats may be served until ttl", zap.String("student_id", student.ID), zap.Duration("ttl", s.cfg.CacheTTL))
	}
}

// InvalidatePlatform drops platform and school projections after roster or registration changes.
func (s *StatsService) InvalidatePlatform(ctx context.Context, schoolID string) {
	patterns := []string{platformStatsKey}
	if schoolID != "" {
		patterns = append(patterns, schoolStatsKey(schoolID)+"*")
	}
	if err := s.cache.Invalidate(ctx, patterns...); err != nil {
		s.logger.Warn("stale stats may be served until ttl", zap.String("school_id", schoolID), zap.Duration("ttl", s.cfg.CacheTTL))
	}
}

// ProgressPercentage is the rounded share of answered questions, 0 when the assessment has no questions.
func ProgressPercentage(answered, total int) int {
	if total <= 0 {
		return 0
	}
	if answered > total {
		answered = total
	}
	return int(math.Round(float64(answered) / float64(total) * 100))
}
