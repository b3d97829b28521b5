package dto

import "github.com/noah-isme/psychometric-api/internal/models"

// SubmitAnswer is one answer within a submission.
type SubmitAnswer struct {
	QuestionID string           `json:"questionId" validate:"required"`
	Value      models.JSONValue `json:"value"`
}

// SubmitAssessmentRequest is the body of POST /assessments/:id/submit.
type SubmitAssessmentRequest struct {
	AssessmentID string         `json:"assessmentId"`
	Responses    []SubmitAnswer `json:"responses" validate:"required,min=1,dive"`
}

// SubmissionResult reports what the submission persisted.
type SubmissionResult struct {
	StudentAssessment models.StudentAssessment `json:"studentAssessment"`
	ResponseCount     int                      `json:"responseCount"`
}

// SubmitAssessmentResponse is returned once submission and report generation finish.
type SubmitAssessmentResponse struct {
	Submission SubmissionResult `json:"submission"`
	ReportID   string           `json:"reportId"`
}
