package models

import "time"

// PaymentStatus tracks a school activation order.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
	PaymentStatusExpired PaymentStatus = "EXPIRED"
)

// Payment is a gateway order that activates a school once paid.
type Payment struct {
	ID               string        `db:"id" json:"id"`
	SchoolID         string        `db:"school_id" json:"school_id"`
	OrderID          string        `db:"order_id" json:"order_id"`
	Amount           int64         `db:"amount" json:"amount"`
	Status           PaymentStatus `db:"status" json:"status"`
	GatewayToken     *string       `db:"gateway_token" json:"gateway_token,omitempty"`
	RedirectURL      *string       `db:"redirect_url" json:"redirect_url,omitempty"`
	GatewayReference *string       `db:"gateway_reference" json:"gateway_reference,omitempty"`
	PaidAt           *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}
