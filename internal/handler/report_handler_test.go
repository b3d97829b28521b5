package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	"github.com/noah-isme/psychometric-api/internal/service"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
)

type fakeReports struct {
	report    *models.Report
	summaries []models.ReportSummary
	err       error
	lastChild string
}

func (f *fakeReports) Latest(context.Context, *models.JWTClaims) (*models.Report, error) {
	return f.report, f.err
}

func (f *fakeReports) ListMine(context.Context, *models.JWTClaims) ([]models.ReportSummary, error) {
	return f.summaries, f.err
}

func (f *fakeReports) ListForChild(_ context.Context, _ *models.JWTClaims, studentID string) ([]models.ReportSummary, error) {
	f.lastChild = studentID
	return f.summaries, f.err
}

func (f *fakeReports) Get(context.Context, *models.JWTClaims, string) (*models.Report, error) {
	return f.report, f.err
}

func (f *fakeReports) DownloadLink(_ context.Context, _ *models.JWTClaims, reportID string) (*dto.ReportDownloadResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ReportDownloadResponse{ReportID: reportID, URL: "/api/v1/downloads/tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeReports) ResolveDownload(_ context.Context, token string) (*service.ReportDownload, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	return &service.ReportDownload{Body: io.NopCloser(strings.NewReader("%PDF-1.3")), Filename: "r1.pdf"}, nil
}

func TestReportHandlerGetForbidden(t *testing.T) {
	h := NewReportHandler(&fakeReports{err: appErrors.ErrForbidden})
	c, rec := newTestContext(http.MethodGet, "/reports/r1", "")
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	withClaims(c, "u2", models.RoleParent)

	h.Get(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReportHandlerLatest(t *testing.T) {
	h := NewReportHandler(&fakeReports{report: &models.Report{ID: "r1", StudentID: "s1"}})
	c, rec := newTestContext(http.MethodGet, "/student/reports/latest", "")
	withClaims(c, "u1", models.RoleStudent)

	h.Latest(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r1", decodeEnvelope(t, rec).Data["id"])
}

func TestReportHandlerListForChildPassesStudent(t *testing.T) {
	reports := &fakeReports{summaries: []models.ReportSummary{{ID: "r1"}}}
	h := NewReportHandler(reports)
	c, rec := newTestContext(http.MethodGet, "/parent/children/s9/reports", "")
	c.Params = gin.Params{{Key: "studentId", Value: "s9"}}
	withClaims(c, "p1", models.RoleParent)

	h.ListForChild(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s9", reports.lastChild)
}

func TestReportHandlerPDFLink(t *testing.T) {
	h := NewReportHandler(&fakeReports{})
	c, rec := newTestContext(http.MethodGet, "/reports/r1/pdf", "")
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	withClaims(c, "u1", models.RoleStudent)

	h.PDF(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/api/v1/downloads/tok", decodeEnvelope(t, rec).Data["url"])
}

func TestReportHandlerDownloadStreamsPDF(t *testing.T) {
	h := NewReportHandler(&fakeReports{})
	c, rec := newTestContext(http.MethodGet, "/downloads/good", "")
	c.Params = gin.Params{{Key: "token", Value: "good"}}

	h.Download(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="r1.pdf"`)
	assert.Equal(t, "%PDF-1.3", rec.Body.String())
}

func TestReportHandlerDownloadRejectsForgedToken(t *testing.T) {
	h := NewReportHandler(&fakeReports{})
	c, rec := newTestContext(http.MethodGet, "/downloads/forged", "")
	c.Params = gin.Params{{Key: "token", Value: "forged"}}

	h.Download(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
