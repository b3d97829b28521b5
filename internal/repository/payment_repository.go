package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/psychometric-api/internal/models"
)

const paymentColumns = `id, school_id, order_id, amount, status, gateway_token, redirect_url, gateway_reference, paid_at, created_at, updated_at`

// PaymentRepository stores activation orders.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a PENDING payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	const query = `INSERT INTO payments (id, school_id, order_id, amount, status, gateway_token, redirect_url, gateway_reference, paid_at, created_at, updated_at) VALUES (:id, :school_id, :order_id, :amount, :status, :gateway_token, :redirect_url, :gateway_reference, :paid_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return translateWriteErr("create payment", err)
	}
	return nil
}

// SetCheckout stores the gateway token and redirect URL of an order.
func (r *PaymentRepository) SetCheckout(ctx context.Context, id, token, redirectURL string) error {
	const query = `UPDATE payments SET gateway_token = $2, redirect_url = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, token, redirectURL, time.Now().UTC()); err != nil {
		return fmt.Errorf("set payment checkout: %w", err)
	}
	return nil
}

// FindByOrderID returns a payment by the gateway order id.
func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find payment by order: %w", err)
	}
	return &payment, nil
}

// ApplyStatus records a gateway outcome. A PAID outcome also activates the school in the same transaction.
// Already-settled payments are left untouched.
func (r *PaymentRepository) ApplyStatus(ctx context.Context, payment *models.Payment, status models.PaymentStatus, reference string, now time.Time) error {
	return withTx(ctx, r.db, "apply payment status", func(tx *sqlx.Tx) error {
		var paidAt *time.Time
		if status == models.PaymentStatusPaid {
			paidAt = &now
		}
		const updatePayment = `UPDATE payments SET status = $2, gateway_reference = NULLIF($3, ''), paid_at = $4, updated_at = $5 WHERE id = $1 AND status = 'PENDING'`
		res, err := tx.ExecContext(ctx, updatePayment, payment.ID, status, reference, paidAt, now)
		if err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update payment status rows: %w", err)
		}
		if affected == 0 || status != models.PaymentStatusPaid {
			return nil
		}

		const activateSchool = `UPDATE schools SET status = 'ACTIVE', activated_at = $2, updated_at = $2 WHERE id = $1 AND status <> 'ACTIVE'`
		if _, err := tx.ExecContext(ctx, activateSchool, payment.SchoolID, now); err != nil {
			return fmt.Errorf("activate school: %w", err)
		}
		return nil
	})
}
