package dto

import "github.com/noah-isme/psychometric-api/internal/models"

// CreateAssessmentRequest defines an assessment with its questions.
type CreateAssessmentRequest struct {
	Title       string                  `json:"title" validate:"required,max=200"`
	Description string                  `json:"description"`
	Type        models.AssessmentType   `json:"type" validate:"required,oneof=PERSONALITY APTITUDE INTEREST LEARNING_STYLE"`
	GradeLevels []int64                 `json:"gradeLevels" validate:"required,min=1,dive,min=1,max=12"`
	Questions   []CreateQuestionRequest `json:"questions" validate:"required,min=1,dive"`
}

// CreateQuestionRequest is one question of a new assessment.
type CreateQuestionRequest struct {
	Text       string                  `json:"text" validate:"required"`
	Type       models.QuestionType     `json:"type" validate:"required,oneof=MULTIPLE_CHOICE LIKERT_SCALE OPEN_ENDED"`
	OrderIndex int                     `json:"orderIndex" validate:"min=0"`
	Options    []models.QuestionOption `json:"options"`
}

// UpdateAssessmentStatusRequest moves an assessment along its lifecycle.
type UpdateAssessmentStatusRequest struct {
	Status models.AssessmentStatus `json:"status" validate:"required,oneof=DRAFT PUBLISHED ARCHIVED"`
}

// StartAssessmentResponse returns the in-progress record.
type StartAssessmentResponse struct {
	StudentAssessment models.StudentAssessment `json:"studentAssessment"`
}
