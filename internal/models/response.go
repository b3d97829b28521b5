package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// JSONValue is an opaque JSON document stored in a JSONB column.
type JSONValue []byte

// Value returns the raw JSON text.
func (v JSONValue) Value() (driver.Value, error) {
	if len(v) == 0 {
		return []byte("null"), nil
	}
	return []byte(v), nil
}

// Scan copies the JSONB payload.
func (v *JSONValue) Scan(value interface{}) error {
	switch src := value.(type) {
	case nil:
		*v = nil
	case []byte:
		*v = append((*v)[0:0], src...)
	case string:
		*v = JSONValue(src)
	default:
		return fmt.Errorf("unsupported type %T for JSONValue", value)
	}
	return nil
}

// MarshalJSON emits the stored document verbatim.
func (v JSONValue) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte("null"), nil
	}
	return v, nil
}

// UnmarshalJSON keeps the raw document.
func (v *JSONValue) UnmarshalJSON(data []byte) error {
	if v == nil {
		return fmt.Errorf("JSONValue: UnmarshalJSON on nil pointer")
	}
	*v = append((*v)[0:0], data...)
	return nil
}

// Response is one student's answer to one question, unique per (student, assessment, question).
type Response struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	AssessmentID string    `db:"assessment_id" json:"assessment_id"`
	QuestionID   string    `db:"question_id" json:"question_id"`
	Value        JSONValue `db:"value" json:"value"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
