package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// AssessmentType enumerates the supported questionnaire families.
type AssessmentType string

const (
	AssessmentTypePersonality   AssessmentType = "PERSONALITY"
	AssessmentTypeAptitude      AssessmentType = "APTITUDE"
	AssessmentTypeInterest      AssessmentType = "INTEREST"
	AssessmentTypeLearningStyle AssessmentType = "LEARNING_STYLE"
)

// AssessmentStatus is the catalog lifecycle of an assessment.
type AssessmentStatus string

const (
	AssessmentStatusDraft     AssessmentStatus = "DRAFT"
	AssessmentStatusPublished AssessmentStatus = "PUBLISHED"
	AssessmentStatusArchived  AssessmentStatus = "ARCHIVED"
)

// CanTransitionTo reports whether the lifecycle only moves forward.
func (s AssessmentStatus) CanTransitionTo(next AssessmentStatus) bool {
	switch s {
	case AssessmentStatusDraft:
		return next == AssessmentStatusPublished || next == AssessmentStatusArchived
	case AssessmentStatusPublished:
		return next == AssessmentStatusArchived
	default:
		return false
	}
}

// QuestionType determines the shape of an answer.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeLikertScale    QuestionType = "LIKERT_SCALE"
	QuestionTypeOpenEnded      QuestionType = "OPEN_ENDED"
)

// Assessment is a typed questionnaire assignable by grade level.
type Assessment struct {
	ID          string           `db:"id" json:"id"`
	Title       string           `db:"title" json:"title"`
	Description string           `db:"description" json:"description"`
	Type        AssessmentType   `db:"type" json:"type"`
	Status      AssessmentStatus `db:"status" json:"status"`
	GradeLevels pq.Int64Array    `db:"grade_levels" json:"grade_levels"`
	CreatedBy   string           `db:"created_by" json:"created_by"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
	Questions   []Question       `db:"-" json:"questions,omitempty"`
}

// HasGrade reports whether the grade belongs to the applicable grade set.
func (a *Assessment) HasGrade(grade int) bool {
	for _, g := range a.GradeLevels {
		if int(g) == grade {
			return true
		}
	}
	return false
}

// QuestionByID finds a question within the loaded definition.
func (a *Assessment) QuestionByID(id string) (*Question, bool) {
	for i := range a.Questions {
		if a.Questions[i].ID == id {
			return &a.Questions[i], true
		}
	}
	return nil, false
}

// AssessmentFilter narrows catalog listings.
type AssessmentFilter struct {
	Status   *AssessmentStatus
	Type     *AssessmentType
	Grade    *int
	Page     int
	PageSize int
}

// Question belongs to exactly one assessment.
type Question struct {
	ID           string          `db:"id" json:"id"`
	AssessmentID string          `db:"assessment_id" json:"assessment_id"`
	Text         string          `db:"text" json:"text"`
	Type         QuestionType    `db:"type" json:"type"`
	OrderIndex   int             `db:"order_index" json:"order_index"`
	Options      QuestionOptions `db:"options" json:"options,omitempty"`
}

// QuestionOption is one selectable choice of a choice-based question.
type QuestionOption struct {
	ID    string          `json:"id"`
	Text  string          `json:"text"`
	Value json.RawMessage `json:"value,omitempty"`
}

// QuestionOptions is persisted as a JSONB array.
type QuestionOptions []QuestionOption

// Value marshals options to JSON for persistence.
func (o QuestionOptions) Value() (driver.Value, error) {
	if o == nil {
		o = QuestionOptions{}
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal question options: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB array into options.
func (o *QuestionOptions) Scan(value interface{}) error {
	if value == nil {
		*o = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for QuestionOptions", value)
	}
	if len(data) == 0 {
		*o = nil
		return nil
	}
	if err := json.Unmarshal(data, o); err != nil {
		return fmt.Errorf("unmarshal question options: %w", err)
	}
	return nil
}
