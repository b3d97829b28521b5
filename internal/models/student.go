package models

import "time"

// Student represents a learner linked 1:1 to a STUDENT user.
type Student struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	SchoolID  *string   `db:"school_id" json:"school_id,omitempty"`
	FullName  string    `db:"full_name" json:"full_name"`
	Grade     int       `db:"grade" json:"grade"`
	Age       int       `db:"age" json:"age"`
	Gender    string    `db:"gender" json:"gender"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RosterEntry is a student row enriched for school roster views.
type RosterEntry struct {
	Student
	Email     string `db:"email" json:"email"`
	Completed int    `db:"completed" json:"completed"`
	Reports   int    `db:"reports" json:"reports"`
}
