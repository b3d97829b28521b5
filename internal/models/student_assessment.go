package models

import "time"

// StudentAssessmentStatus is the per-student progress state.
type StudentAssessmentStatus string

const (
	StudentAssessmentPending    StudentAssessmentStatus = "PENDING"
	StudentAssessmentInProgress StudentAssessmentStatus = "IN_PROGRESS"
	StudentAssessmentCompleted  StudentAssessmentStatus = "COMPLETED"
	StudentAssessmentExpired    StudentAssessmentStatus = "EXPIRED"
)

// Terminal reports whether no further transition is allowed except resubmission of a completed record.
func (s StudentAssessmentStatus) Terminal() bool {
	return s == StudentAssessmentCompleted || s == StudentAssessmentExpired
}

// StudentAssessment is the unique (student, assessment) assignment record.
type StudentAssessment struct {
	ID           string                  `db:"id" json:"id"`
	StudentID    string                  `db:"student_id" json:"student_id"`
	AssessmentID string                  `db:"assessment_id" json:"assessment_id"`
	Status       StudentAssessmentStatus `db:"status" json:"status"`
	StartedAt    *time.Time              `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time              `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time               `db:"updated_at" json:"updated_at"`
}

// AssessmentListing pairs a catalog entry with the caller's progress.
type AssessmentListing struct {
	Assessment
	QuestionCount int                     `db:"question_count" json:"question_count"`
	Progress      StudentAssessmentStatus `db:"progress_status" json:"progress_status"`
}
