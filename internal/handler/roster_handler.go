package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
	"github.com/noah-isme/psychometric-api/pkg/response"
)

type rosterService interface {
	Import(ctx context.Context, claims *models.JWTClaims, r io.Reader) (*dto.RosterImportResult, error)
	Export(ctx context.Context, claims *models.JWTClaims, w io.Writer) error
}

// RosterHandler handles school roster CSV import and export.
type RosterHandler struct {
	service rosterService
}

// NewRosterHandler constructs the handler.
func NewRosterHandler(svc rosterService) *RosterHandler {
	return &RosterHandler{service: svc}
}

// Import godoc
// @Summary Import students from CSV
// @Description Accepts a multipart "file" field or a raw text/csv body
// @Tags School
// @Accept multipart/form-data
// @Produce json
// @Param file formData file false "Roster CSV"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Router /school/roster/import [post]
func (h *RosterHandler) Import(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var body io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file field is required"))
			return
		}
		file, err := header.Open()
		if err != nil {
			response.Error(c, appErrors.Validation(err, "unable to read upload"))
			return
		}
		defer file.Close()
		body = file
	}

	result, err := h.service.Import(c.Request.Context(), claims, body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export the school roster as CSV
// @Tags School
// @Produce text/csv
// @Success 200 {file} file
// @Router /school/roster/export [get]
func (h *RosterHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var buf strings.Builder
	if err := h.service.Export(c.Request.Context(), claims, &buf); err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("roster-%s.csv", time.Now().UTC().Format("20060102"))
	response.Attachment(c, "text/csv; charset=utf-8", filename, strings.NewReader(buf.String()))
}
