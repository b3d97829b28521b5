package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
)

type fakeSubmissionStore struct {
	submitted    []models.Response
	submitErr    error
	startErr     error
	expireCutoff time.Time
	expired      int64
}

func (f *fakeSubmissionStore) Start(ctx context.Context, studentID, assessmentID string, now time.Time) (*models.StudentAssessment, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &models.StudentAssessment{ID: "sa1", StudentID: studentID, AssessmentID: assessmentID, Status: models.StudentAssessmentInProgress, StartedAt: &now}, nil
}

func (f *fakeSubmissionStore) Submit(ctx context.Context, studentID, assessmentID string, responses []models.Response, now time.Time) (*models.StudentAssessment, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = responses
	return &models.StudentAssessment{ID: "sa1", StudentID: studentID, AssessmentID: assessmentID, Status: models.StudentAssessmentCompleted, CompletedAt: &now}, nil
}

func (f *fakeSubmissionStore) ExpireStale(ctx context.Context, cutoff, now time.Time) (int64, error) {
	f.expireCutoff = cutoff
	return f.expired, nil
}

type fixedStudentResolver struct {
	student *models.Student
}

func (f fixedStudentResolver) ResolveStudent(ctx context.Context, claims *models.JWTClaims) (*models.Student, error) {
	if f.student == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
	}
	return f.student, nil
}

type recordingInvalidator struct {
	students []string
}

func (r *recordingInvalidator) InvalidateForStudent(ctx context.Context, student *models.Student) {
	r.students = append(r.students, student.ID)
}

type fakeSubmissionReporter struct {
	calls int
	err   error
}

func (f *fakeSubmissionReporter) GenerateForSubmission(ctx context.Context, student *models.Student, assessment *models.Assessment) (*models.Report, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.Report{ID: "r1", StudentID: student.ID, AssessmentID: assessment.ID}, nil
}

type submissionFixture struct {
	svc      *SubmissionService
	store    *fakeSubmissionStore
	stats    *recordingInvalidator
	reporter *fakeSubmissionReporter
}

func newSubmissionFixture(cfg SubmissionConfig) *submissionFixture {
	store := &fakeSubmissionStore{}
	stats := &recordingInvalidator{}
	reporter := &fakeSubmissionReporter{}
	guard := NewAssessmentService(&fakeAssessmentStore{byID: map[string]*models.Assessment{"a1": likertAssessment()}}, nil, nil, nil)
	identity := fixedStudentResolver{student: &models.Student{ID: "s1", UserID: "u1", Grade: 9}}
	svc := NewSubmissionService(store, identity, guard, stats, reporter, nil, nil, nil, cfg)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }
	return &submissionFixture{svc: svc, store: store, stats: stats, reporter: reporter}
}

func submitRequest(answers ...dto.SubmitAnswer) dto.SubmitAssessmentRequest {
	return dto.SubmitAssessmentRequest{AssessmentID: "a1", Responses: answers}
}

func TestSubmitPersistsAndGeneratesReport(t *testing.T) {
	f := newSubmissionFixture(SubmissionConfig{})

	result, err := f.svc.Submit(context.Background(), studentClaims("u1"), submitRequest(
		dto.SubmitAnswer{QuestionID: "q1", Value: models.JSONValue(`5`)},
		dto.SubmitAnswer{QuestionID: "q2", Value: models.JSONValue(` 3 `)},
	))
	require.NoError(t, err)
	assert.Equal(t, "r1", result.ReportID)
	assert.Equal(t, 2, result.Submission.ResponseCount)
	assert.Equal(t, models.StudentAssessmentCompleted, result.Submission.StudentAssessment.Status)
	require.Len(t, f.store.submitted, 2)
	assert.Equal(t, models.JSONValue(`3`), f.store.submitted[1].Value)
	assert.Equal(t, []string{"s1"}, f.stats.students)
	assert.Equal(t, 1, f.reporter.calls)
}

func TestSubmitKeepsSubmissionWhenGenerationFails(t *testing.T) {
	f := newSubmissionFixture(SubmissionConfig{})
	f.reporter.err = appErrors.Generation(errors.New("bad json"), "report generation failed")

	result, err := f.svc.Submit(context.Background(), studentClaims("u1"), submitRequest(
		dto.SubmitAnswer{QuestionID: "q1", Value: models.JSONValue(`4`)},
	))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrGenerationFailed))
	require.NotNil(t, result)
	assert.Empty(t, result.ReportID)
	assert.Len(t, f.store.submitted, 1)
}

func TestSubmitRejectsInvalidAnswers(t *testing.T) {
	cases := map[string][]dto.SubmitAnswer{
		"unknown question":  {{QuestionID: "q9", Value: models.JSONValue(`1`)}},
		"duplicate answer":  {{QuestionID: "q1", Value: models.JSONValue(`1`)}, {QuestionID: "q1", Value: models.JSONValue(`2`)}},
		"text on likert":    {{QuestionID: "q1", Value: models.JSONValue(`"agree"`)}},
		"missing value":     {{QuestionID: "q1"}},
		"malformed json":    {{QuestionID: "q1", Value: models.JSONValue(`{`)}},
		"no answers at all": {},
	}
	for name, answers := range cases {
		t.Run(name, func(t *testing.T) {
			f := newSubmissionFixture(SubmissionConfig{})
			_, err := f.svc.Submit(context.Background(), studentClaims("u1"), submitRequest(answers...))
			assert.True(t, errors.Is(err, appErrors.ErrValidation))
			assert.Nil(t, f.store.submitted)
			assert.Zero(t, f.reporter.calls)
		})
	}
}

func TestSubmitExpiredAssignmentConflicts(t *testing.T) {
	f := newSubmissionFixture(SubmissionConfig{})
	f.store.submitErr = sql.ErrNoRows

	_, err := f.svc.Submit(context.Background(), studentClaims("u1"), submitRequest(
		dto.SubmitAnswer{QuestionID: "q1", Value: models.JSONValue(`4`)},
	))
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.Empty(t, f.stats.students)
}

func TestSubmitStoreFailureIsInternal(t *testing.T) {
	f := newSubmissionFixture(SubmissionConfig{})
	f.store.submitErr = errors.New("connection reset")

	_, err := f.svc.Submit(context.Background(), studentClaims("u1"), submitRequest(
		dto.SubmitAnswer{QuestionID: "q1", Value: models.JSONValue(`4`)},
	))
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.Zero(t, f.reporter.calls)
}

func TestValidateAnswerShape(t *testing.T) {
	assert.NoError(t, validateAnswerShape(models.QuestionTypeMultipleChoice, models.JSONValue(`"A"`)))
	assert.NoError(t, validateAnswerShape(models.QuestionTypeMultipleChoice, models.JSONValue(`2`)))
	assert.NoError(t, validateAnswerShape(models.QuestionTypeMultipleChoice, models.JSONValue(`["A", 2]`)))
	assert.Error(t, validateAnswerShape(models.QuestionTypeMultipleChoice, models.JSONValue(`[]`)))
	assert.Error(t, validateAnswerShape(models.QuestionTypeMultipleChoice, models.JSONValue(`{"id":"A"}`)))
	assert.NoError(t, validateAnswerShape(models.QuestionTypeLikertScale, models.JSONValue(`4`)))
	assert.Error(t, validateAnswerShape(models.QuestionTypeLikertScale, models.JSONValue(`true`)))
	assert.NoError(t, validateAnswerShape(models.QuestionTypeOpenEnded, models.JSONValue(`"I like maths"`)))
	assert.Error(t, validateAnswerShape(models.QuestionTypeOpenEnded, models.JSONValue(`12`)))
}

func TestStartAssessment(t *testing.T) {
	f := newSubmissionFixture(SubmissionConfig{})

	record, err := f.svc.Start(context.Background(), studentClaims("u1"), "a1")
	require.NoError(t, err)
	assert.Equal(t, models.StudentAssessmentInProgress, record.Status)
	assert.Equal(t, []string{"s1"}, f.stats.students)

	f.store.startErr = sql.ErrNoRows
	_, err = f.svc.Start(context.Background(), studentClaims("u1"), "a1")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestStartRunsEligibilityGuard(t *testing.T) {
	f := newSubmissionFixture(SubmissionConfig{})

	_, err := f.svc.Start(context.Background(), studentClaims("u1"), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestExpireStaleUsesTTL(t *testing.T) {
	f := newSubmissionFixture(SubmissionConfig{ExpiryTTL: 48 * time.Hour})
	f.store.expired = 3

	n, err := f.svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, time.Date(2024, 4, 29, 8, 0, 0, 0, time.UTC), f.store.expireCutoff)
}

func TestExpireStaleDisabledWithoutTTL(t *testing.T) {
	f := newSubmissionFixture(SubmissionConfig{})

	n, err := f.svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, f.store.expireCutoff.IsZero())
}
