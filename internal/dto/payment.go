package dto

import "github.com/noah-isme/psychometric-api/internal/models"

// ActivationOrderResponse is returned after a Snap transaction is created.
type ActivationOrderResponse struct {
	Payment     models.Payment `json:"payment"`
	Token       string         `json:"token"`
	RedirectURL string         `json:"redirectUrl"`
}

// MidtransNotification is the subset of the gateway webhook body that is consumed.
type MidtransNotification struct {
	OrderID           string `json:"order_id" validate:"required"`
	StatusCode        string `json:"status_code" validate:"required"`
	GrossAmount       string `json:"gross_amount" validate:"required"`
	SignatureKey      string `json:"signature_key" validate:"required"`
	TransactionStatus string `json:"transaction_status" validate:"required"`
	TransactionID     string `json:"transaction_id"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
}

// NotificationResult tells the gateway what happened to its notification.
type NotificationResult struct {
	OrderID string               `json:"orderId"`
	Status  models.PaymentStatus `json:"status,omitempty"`
	Ignored bool                 `json:"ignored"`
}
