package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
	"github.com/noah-isme/psychometric-api/pkg/response"
)

type parentPortal interface {
	LinkChild(ctx context.Context, claims *models.JWTClaims, req dto.LinkChildRequest) (*models.Student, error)
	ListChildren(ctx context.Context, claims *models.JWTClaims) ([]models.Student, error)
}

// ParentHandler manages parent to child links.
type ParentHandler struct {
	service parentPortal
}

// NewParentHandler constructs the handler.
func NewParentHandler(svc parentPortal) *ParentHandler {
	return &ParentHandler{service: svc}
}

// ListChildren godoc
// @Summary List linked children
// @Tags Parents
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /parent/children [get]
func (h *ParentHandler) ListChildren(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	children, err := h.service.ListChildren(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, children, nil)
}

// LinkChild godoc
// @Summary Link a child by student email
// @Tags Parents
// @Accept json
// @Produce json
// @Param payload body dto.LinkChildRequest true "Student email"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /parent/children [post]
func (h *ParentHandler) LinkChild(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.LinkChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid link payload"))
		return
	}
	student, err := h.service.LinkChild(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}
