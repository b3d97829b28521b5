package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
)

type fakeRoster struct {
	received string
	result   *dto.RosterImportResult
	err      error
}

func (f *fakeRoster) Import(_ context.Context, _ *models.JWTClaims, r io.Reader) (*dto.RosterImportResult, error) {
	data, _ := io.ReadAll(r)
	f.received = string(data)
	return f.result, f.err
}

func (f *fakeRoster) Export(_ context.Context, _ *models.JWTClaims, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, "name,email\nBudi,budi@school.id\n")
	return err
}

const rosterCSV = "name,email,grade,age,gender,parent_email\nBudi,budi@school.id,9,14,MALE,\n"

func TestRosterHandlerImportRawBody(t *testing.T) {
	roster := &fakeRoster{result: &dto.RosterImportResult{Imported: 1, Errors: []dto.RosterRowError{}}}
	h := NewRosterHandler(roster)
	c, rec := newTestContext(http.MethodPost, "/school/roster/import", "")
	c.Request = httptest.NewRequest(http.MethodPost, "/school/roster/import", bytes.NewBufferString(rosterCSV))
	c.Request.Header.Set("Content-Type", "text/csv")
	withClaims(c, "admin", models.RoleSchoolAdmin)

	h.Import(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, rosterCSV, roster.received)
	assert.Equal(t, float64(1), decodeEnvelope(t, rec).Data["imported"])
}

func TestRosterHandlerImportMultipart(t *testing.T) {
	roster := &fakeRoster{result: &dto.RosterImportResult{Imported: 1}}
	h := NewRosterHandler(roster)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "roster.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte(rosterCSV))
	require.NoError(t, writer.Close())

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/school/roster/import", &body)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())
	withClaims(c, "admin", models.RoleSchoolAdmin)

	h.Import(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, rosterCSV, roster.received)
}

func TestRosterHandlerImportMultipartMissingFile(t *testing.T) {
	h := NewRosterHandler(&fakeRoster{})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("other", "x"))
	require.NoError(t, writer.Close())

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/school/roster/import", &body)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())
	withClaims(c, "admin", models.RoleSchoolAdmin)

	h.Import(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRosterHandlerImportAllRowsFailed(t *testing.T) {
	rowErrors := []dto.RosterRowError{{Row: 2, Message: "invalid email"}}
	roster := &fakeRoster{
		result: &dto.RosterImportResult{Failed: 1, Errors: rowErrors},
		err:    appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "no roster rows could be imported"), rowErrors),
	}
	h := NewRosterHandler(roster)
	c, rec := newTestContext(http.MethodPost, "/school/roster/import", "")
	c.Request = httptest.NewRequest(http.MethodPost, "/school/roster/import", bytes.NewBufferString(rosterCSV))
	c.Request.Header.Set("Content-Type", "text/csv")
	withClaims(c, "admin", models.RoleSchoolAdmin)

	h.Import(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeEnvelope(t, rec)
	require.NotNil(t, envelope.Error)
	assert.NotNil(t, envelope.Error.Details)
}

func TestRosterHandlerImportInactiveSchool(t *testing.T) {
	h := NewRosterHandler(&fakeRoster{err: appErrors.ErrPaymentRequired})
	c, rec := newTestContext(http.MethodPost, "/school/roster/import", rosterCSV)
	withClaims(c, "admin", models.RoleSchoolAdmin)

	h.Import(c)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestRosterHandlerExport(t *testing.T) {
	h := NewRosterHandler(&fakeRoster{})
	c, rec := newTestContext(http.MethodGet, "/school/roster/export", "")
	withClaims(c, "admin", models.RoleSchoolAdmin)

	h.Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "roster-")
	assert.Equal(t, "name,email\nBudi,budi@school.id\n", rec.Body.String())
}
