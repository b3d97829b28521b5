package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
	"github.com/noah-isme/psychometric-api/pkg/response"
)

type statsProvider interface {
	StudentStats(ctx context.Context, student *models.Student) (*models.StudentStats, bool, error)
	ParentStats(ctx context.Context, parent *models.Parent) (*models.ParentStats, bool, error)
	SchoolStats(ctx context.Context) (*models.SchoolStats, bool, error)
	SchoolAdminStats(ctx context.Context, school *models.School) (*models.SchoolAdminStats, bool, error)
}

type identityResolver interface {
	ResolveStudent(ctx context.Context, claims *models.JWTClaims) (*models.Student, error)
	ResolveParent(ctx context.Context, claims *models.JWTClaims) (*models.Parent, error)
	ResolveSchoolAdmin(ctx context.Context, claims *models.JWTClaims) (*models.School, error)
}

// StatsHandler serves dashboard projections for every role.
type StatsHandler struct {
	stats    statsProvider
	identity identityResolver
}

// NewStatsHandler constructs the handler.
func NewStatsHandler(stats statsProvider, identity identityResolver) *StatsHandler {
	return &StatsHandler{stats: stats, identity: identity}
}

// Student godoc
// @Summary Student dashboard stats
// @Tags Stats
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /student/stats [get]
func (h *StatsHandler) Student(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	student, err := h.identity.ResolveStudent(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, hit, err := h.stats.StudentStats(c.Request.Context(), student)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, stats, hit)
}

// Parent godoc
// @Summary Parent dashboard stats
// @Tags Stats
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /parent/stats [get]
func (h *StatsHandler) Parent(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	parent, err := h.identity.ResolveParent(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, hit, err := h.stats.ParentStats(c.Request.Context(), parent)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, stats, hit)
}

// School godoc
// @Summary School admin roster stats
// @Tags Stats
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /school/stats [get]
func (h *StatsHandler) School(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	school, err := h.identity.ResolveSchoolAdmin(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, hit, err := h.stats.SchoolAdminStats(c.Request.Context(), school)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, stats, hit)
}

// Platform godoc
// @Summary Platform-wide stats
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/stats [get]
func (h *StatsHandler) Platform(c *gin.Context) {
	stats, hit, err := h.stats.SchoolStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, stats, hit)
}
