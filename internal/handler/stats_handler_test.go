package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/psychometric-api/internal/middleware"
	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
)

type fakeStats struct {
	hit         bool
	err         error
	lastStudent *models.Student
}

func (f *fakeStats) StudentStats(_ context.Context, student *models.Student) (*models.StudentStats, bool, error) {
	f.lastStudent = student
	return &models.StudentStats{Total: 3, Completed: 1}, f.hit, f.err
}

func (f *fakeStats) ParentStats(context.Context, *models.Parent) (*models.ParentStats, bool, error) {
	return &models.ParentStats{}, f.hit, f.err
}

func (f *fakeStats) SchoolStats(context.Context) (*models.SchoolStats, bool, error) {
	return &models.SchoolStats{}, f.hit, f.err
}

func (f *fakeStats) SchoolAdminStats(context.Context, *models.School) (*models.SchoolAdminStats, bool, error) {
	return &models.SchoolAdminStats{}, f.hit, f.err
}

func TestStatsHandlerStudentCacheMeta(t *testing.T) {
	stats := &fakeStats{hit: true}
	h := NewStatsHandler(stats, &fakeIdentity{student: &models.Student{ID: "s1", Grade: 9}})
	c, rec := newTestContext(http.MethodGet, "/student/stats", "")
	middleware.WithResponseMeta()(c)
	withClaims(c, "u1", models.RoleStudent)

	h.Student(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Contains(t, envelope.Meta, "processing_time_ms")
	assert.Equal(t, float64(3), envelope.Data["total"])
	assert.Equal(t, "s1", stats.lastStudent.ID)
}

func TestStatsHandlerSchoolUnresolvedAdmin(t *testing.T) {
	h := NewStatsHandler(&fakeStats{}, &fakeIdentity{err: appErrors.Clone(appErrors.ErrNotFound, "school not found")})
	c, rec := newTestContext(http.MethodGet, "/school/stats", "")
	withClaims(c, "u1", models.RoleSchoolAdmin)

	h.School(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsHandlerPlatformError(t *testing.T) {
	h := NewStatsHandler(&fakeStats{err: appErrors.ErrInternal}, &fakeIdentity{})
	c, rec := newTestContext(http.MethodGet, "/admin/stats", "")
	withClaims(c, "admin", models.RoleAdmin)

	h.Platform(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatsHandlerParentRequiresClaims(t *testing.T) {
	h := NewStatsHandler(&fakeStats{}, &fakeIdentity{})
	c, rec := newTestContext(http.MethodGet, "/parent/stats", "")

	h.Parent(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
