package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
	"github.com/noah-isme/psychometric-api/pkg/response"
)

type assessmentCatalog interface {
	ListForStudent(ctx context.Context, student *models.Student) ([]models.AssessmentListing, error)
	Get(ctx context.Context, student *models.Student, assessmentID string) (*models.Assessment, error)
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, *models.Pagination, error)
	Create(ctx context.Context, req dto.CreateAssessmentRequest, actorID string) (*models.Assessment, error)
	Transition(ctx context.Context, id string, next models.AssessmentStatus, actorID string) (*models.Assessment, error)
}

type submissionWorkflow interface {
	Start(ctx context.Context, claims *models.JWTClaims, assessmentID string) (*models.StudentAssessment, error)
	Submit(ctx context.Context, claims *models.JWTClaims, req dto.SubmitAssessmentRequest) (*dto.SubmitAssessmentResponse, error)
}

type reportRegenerator interface {
	Regenerate(ctx context.Context, claims *models.JWTClaims, assessmentID string) (*models.Report, error)
}

type studentResolver interface {
	ResolveStudent(ctx context.Context, claims *models.JWTClaims) (*models.Student, error)
}

// AssessmentHandler serves the assessment catalog and the student lifecycle.
type AssessmentHandler struct {
	catalog     assessmentCatalog
	submissions submissionWorkflow
	reports     reportRegenerator
	identity    studentResolver
}

// NewAssessmentHandler constructs the handler.
func NewAssessmentHandler(catalog assessmentCatalog, submissions submissionWorkflow, reports reportRegenerator, identity studentResolver) *AssessmentHandler {
	return &AssessmentHandler{catalog: catalog, submissions: submissions, reports: reports, identity: identity}
}

// ListForStudent godoc
// @Summary List assessments available to the student
// @Tags Assessments
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /assessments [get]
func (h *AssessmentHandler) ListForStudent(c *gin.Context) {
	student, ok := h.resolveStudent(c)
	if !ok {
		return
	}
	items, err := h.catalog.ListForStudent(c.Request.Context(), student)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get an assessment with its questions
// @Tags Assessments
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assessments/{id} [get]
func (h *AssessmentHandler) Get(c *gin.Context) {
	student, ok := h.resolveStudent(c)
	if !ok {
		return
	}
	assessment, err := h.catalog.Get(c.Request.Context(), student, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}

// Start godoc
// @Summary Start an assessment
// @Tags Assessments
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assessments/{id}/start [post]
func (h *AssessmentHandler) Start(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	sa, err := h.submissions.Start(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.StartAssessmentResponse{StudentAssessment: *sa}, nil)
}

// Submit godoc
// @Summary Submit answers and generate the profile report
// @Tags Assessments
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body dto.SubmitAssessmentRequest true "Responses"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /assessments/{id}/submit [post]
func (h *AssessmentHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid submission payload"))
		return
	}
	req.AssessmentID = c.Param("id")

	res, err := h.submissions.Submit(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Regenerate godoc
// @Summary Regenerate the report from stored responses
// @Tags Assessments
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /assessments/{id}/report [post]
func (h *AssessmentHandler) Regenerate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	report, err := h.reports.Regenerate(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// AdminList godoc
// @Summary List the assessment catalog
// @Tags Admin
// @Produce json
// @Param status query string false "DRAFT, PUBLISHED or ARCHIVED"
// @Param type query string false "Assessment type"
// @Param grade query int false "Grade level"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/assessments [get]
func (h *AssessmentHandler) AdminList(c *gin.Context) {
	filter := models.AssessmentFilter{}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.AssessmentStatus(strings.ToUpper(raw))
		filter.Status = &status
	}
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		typ := models.AssessmentType(strings.ToUpper(raw))
		filter.Type = &typ
	}
	if raw := strings.TrimSpace(c.Query("grade")); raw != "" {
		grade, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "grade must be a number"))
			return
		}
		filter.Grade = &grade
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	items, pagination, err := h.catalog.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Create godoc
// @Summary Create a draft assessment
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.CreateAssessmentRequest true "Assessment definition"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/assessments [post]
func (h *AssessmentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid assessment payload"))
		return
	}
	assessment, err := h.catalog.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assessment)
}

// UpdateStatus godoc
// @Summary Move an assessment along its lifecycle
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body dto.UpdateAssessmentStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/assessments/{id}/status [patch]
func (h *AssessmentHandler) UpdateStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateAssessmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid status payload"))
		return
	}
	assessment, err := h.catalog.Transition(c.Request.Context(), c.Param("id"), req.Status, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}

func (h *AssessmentHandler) resolveStudent(c *gin.Context) (*models.Student, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	student, err := h.identity.ResolveStudent(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return student, true
}
