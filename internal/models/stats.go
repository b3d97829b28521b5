package models

// StudentStats counts a student's eligible assessments by progress status.
type StudentStats struct {
	Total        int            `json:"total"`
	Pending      int            `json:"pending"`
	InProgress   int            `json:"inProgress"`
	Completed    int            `json:"completed"`
	Expired      int            `json:"expired"`
	LatestReport *ReportSummary `json:"latestReport,omitempty"`
}

// StatusCount is one grouped status row.
type StatusCount struct {
	Status StudentAssessmentStatus `db:"status"`
	Count  int                     `db:"count"`
}

// ParentStats aggregates progress for every linked child.
type ParentStats struct {
	ParentID string       `json:"parentId"`
	Children []ChildStats `json:"children"`
}

// ChildStats is the per-child section of ParentStats.
type ChildStats struct {
	StudentID   string               `json:"studentId"`
	FullName    string               `json:"fullName"`
	Grade       int                  `json:"grade"`
	Total       int                  `json:"total"`
	Completed   int                  `json:"completed"`
	Pending     int                  `json:"pending"`
	Assessments []AssessmentProgress `json:"assessments"`
}

// AssessmentProgress is the answered share of one assessment for one child.
type AssessmentProgress struct {
	AssessmentID   string `db:"assessment_id" json:"assessmentId"`
	Title          string `db:"title" json:"title"`
	TotalQuestions int    `db:"total_questions" json:"totalQuestions"`
	Answered       int    `db:"answered" json:"answered"`
	Progress       int    `db:"-" json:"progress"`
	Completed      bool   `db:"-" json:"completed"`
}

// SchoolStats is the platform-wide aggregate for administrators.
type SchoolStats struct {
	Schools        int          `json:"schools"`
	Students       int          `json:"students"`
	Parents        int          `json:"parents"`
	Assessments    int          `json:"assessments"`
	SchoolsByState []StateCount `json:"schoolsByState"`
}

// StateCount is one bucket of the schools-by-state histogram.
type StateCount struct {
	State string `db:"state" json:"state"`
	Count int    `db:"count" json:"count"`
}

// SchoolAdminStats summarises one school for its administrator.
type SchoolAdminStats struct {
	SchoolID             string       `json:"schoolId"`
	Students             int          `json:"students"`
	StudentsByGrade      []GradeCount `json:"studentsByGrade"`
	CompletedSubmissions int          `json:"completedSubmissions"`
	ReportsGenerated     int          `json:"reportsGenerated"`
}

// GradeCount is one bucket of the students-by-grade histogram.
type GradeCount struct {
	Grade int `db:"grade" json:"grade"`
	Count int `db:"count" json:"count"`
}
