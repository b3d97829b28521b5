package models

import "time"

// SchoolStatus tracks activation of a tenant school.
type SchoolStatus string

const (
	SchoolStatusPendingPayment SchoolStatus = "PENDING_PAYMENT"
	SchoolStatusActive         SchoolStatus = "ACTIVE"
	SchoolStatusSuspended      SchoolStatus = "SUSPENDED"
)

// School is the tenant entity owned by a SCHOOL_ADMIN user.
type School struct {
	ID          string       `db:"id" json:"id"`
	UserID      string       `db:"user_id" json:"user_id"`
	Name        string       `db:"name" json:"name"`
	Address     string       `db:"address" json:"address"`
	City        string       `db:"city" json:"city"`
	State       string       `db:"state" json:"state"`
	Phone       string       `db:"phone" json:"phone"`
	Status      SchoolStatus `db:"status" json:"status"`
	ActivatedAt *time.Time   `db:"activated_at" json:"activated_at,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// Active reports whether the school has completed activation.
func (s *School) Active() bool {
	return s != nil && s.Status == SchoolStatusActive
}
