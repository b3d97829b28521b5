package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Recommendation icons and career fields accepted in generated reports.
var (
	RecommendationIcons = []string{"Book", "Brain", "Users", "Target"}
	CareerFields        = []string{"STEM", "Arts", "Business", "Technology", "Education", "Engineering"}
)

// ReportPayloadKeys lists the top-level keys every generated report must carry.
var ReportPayloadKeys = []string{
	"studentInfo",
	"cognitiveProfile",
	"learningStyle",
	"strengths",
	"developmentAreas",
	"recommendations",
	"bestCareer",
	"suggestedCareers",
}

// CognitiveDimensionKeys lists the six scores cognitiveProfile must carry.
var CognitiveDimensionKeys = []string{
	"analyticalThinking",
	"creativeReasoning",
	"problemSolving",
	"memoryRecall",
	"spatialVisualization",
	"verbalComprehension",
}

// StrengthKeys lists the fields every strength entry must carry.
var StrengthKeys = []string{"title", "score"}

// Report is an append-only generated analysis for one student and assessment.
type Report struct {
	ID           string        `db:"id" json:"id"`
	StudentID    string        `db:"student_id" json:"student_id"`
	AssessmentID string        `db:"assessment_id" json:"assessment_id"`
	Payload      ReportPayload `db:"payload" json:"payload"`
	PDFObjectKey *string       `db:"pdf_object_key" json:"pdf_object_key,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// ReportSummary is the lightweight listing view of a report.
type ReportSummary struct {
	ID              string    `db:"id" json:"id"`
	StudentID       string    `db:"student_id" json:"student_id"`
	AssessmentID    string    `db:"assessment_id" json:"assessment_id"`
	AssessmentTitle string    `db:"assessment_title" json:"assessment_title"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// ReportPayload is the persisted report document. JSON keys are part of the external contract.
type ReportPayload struct {
	StudentInfo      StudentInfo      `json:"studentInfo"`
	CognitiveProfile CognitiveProfile `json:"cognitiveProfile"`
	LearningStyle    LearningStyle    `json:"learningStyle"`
	Strengths        []Strength       `json:"strengths" validate:"min=1,dive"`
	DevelopmentAreas []string         `json:"developmentAreas" validate:"min=2,max=3,dive,required"`
	Recommendations  []Recommendation `json:"recommendations" validate:"min=3,max=4,dive"`
	BestCareer       Career           `json:"bestCareer"`
	SuggestedCareers []Career         `json:"suggestedCareers" validate:"min=2,dive"`
}

// StudentInfo identifies the learner the report was generated for.
type StudentInfo struct {
	Name              string    `json:"name" validate:"required"`
	Grade             int       `json:"grade" validate:"min=0"`
	Age               int       `json:"age" validate:"min=0"`
	PersonalityType   string    `json:"personalityType" validate:"required"`
	AssessmentDate    time.Time `json:"assessmentDate"`
	OverallPercentile int       `json:"overallPercentile" validate:"min=0,max=100"`
}

// CognitiveProfile holds the six scored dimensions.
type CognitiveProfile struct {
	AnalyticalThinking   int `json:"analyticalThinking" validate:"min=0,max=100"`
	CreativeReasoning    int `json:"creativeReasoning" validate:"min=0,max=100"`
	ProblemSolving       int `json:"problemSolving" validate:"min=0,max=100"`
	MemoryRecall         int `json:"memoryRecall" validate:"min=0,max=100"`
	SpatialVisualization int `json:"spatialVisualization" validate:"min=0,max=100"`
	VerbalComprehension  int `json:"verbalComprehension" validate:"min=0,max=100"`
}

// Scores returns the six dimensions in declaration order.
func (p CognitiveProfile) Scores() []int {
	return []int{
		p.AnalyticalThinking,
		p.CreativeReasoning,
		p.ProblemSolving,
		p.MemoryRecall,
		p.SpatialVisualization,
		p.VerbalComprehension,
	}
}

// LearningStyle captures the dominant learning modalities.
type LearningStyle struct {
	Primary         string   `json:"primary" validate:"required"`
	Secondary       string   `json:"secondary" validate:"required"`
	Characteristics []string `json:"characteristics" validate:"min=4,max=5,dive,required"`
}

// Strength is a scored personal strength.
type Strength struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Score       int    `json:"score" validate:"min=0,max=100"`
}

// Recommendation is an actionable suggestion tagged with a display icon.
type Recommendation struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Icon        string `json:"icon" validate:"oneof=Book Brain Users Target"`
}

// Career is a career recommendation tagged with a field.
type Career struct {
	Title  string `json:"title" validate:"required"`
	Reason string `json:"reason"`
	Field  string `json:"field" validate:"oneof=STEM Arts Business Technology Education Engineering"`
}

// Value marshals the payload to JSON for persistence.
func (p ReportPayload) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal report payload: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSONB payloads into the report document.
func (p *ReportPayload) Scan(value interface{}) error {
	if value == nil {
		*p = ReportPayload{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ReportPayload", value)
	}
	if len(data) == 0 {
		*p = ReportPayload{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal report payload: %w", err)
	}
	return nil
}
