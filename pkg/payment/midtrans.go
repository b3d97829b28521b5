package payment

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
)

// ErrNotConfigured is returned when no server key is set.
var ErrNotConfigured = errors.New("payment gateway not configured")

// Customer identifies the payer shown on the gateway checkout page.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Order is a single-item checkout request.
type Order struct {
	OrderID  string
	Amount   int64
	ItemName string
	Customer Customer
}

// Checkout is what the client needs to open the hosted payment page.
type Checkout struct {
	Token       string
	RedirectURL string
}

// Outcome is the normalised result of a gateway notification.
type Outcome string

const (
	OutcomePending Outcome = "PENDING"
	OutcomePaid    Outcome = "PAID"
	OutcomeFailed  Outcome = "FAILED"
	OutcomeExpired Outcome = "EXPIRED"
	OutcomeUnknown Outcome = "UNKNOWN"
)

// MidtransGateway creates Snap transactions and verifies webhook signatures.
type MidtransGateway struct {
	client    snap.Client
	serverKey string
}

// NewMidtransGateway builds a Snap client for sandbox or production.
func NewMidtransGateway(serverKey string, production bool) *MidtransGateway {
	g := &MidtransGateway{serverKey: serverKey}
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	g.client.New(serverKey, env)
	return g
}

// CreateTransaction opens a Snap checkout for the order.
func (g *MidtransGateway) CreateTransaction(_ context.Context, order Order) (Checkout, error) {
	if g.serverKey == "" {
		return Checkout{}, ErrNotConfigured
	}
	if order.Amount <= 0 {
		return Checkout{}, fmt.Errorf("invalid order amount %d", order.Amount)
	}

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  order.OrderID,
			GrossAmt: order.Amount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: order.Customer.Name,
			Email: order.Customer.Email,
			Phone: order.Customer.Phone,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    order.OrderID,
				Price: order.Amount,
				Qty:   1,
				Name:  truncate(order.ItemName, 50),
			},
		},
	}

	resp, mErr := g.client.CreateTransaction(req)
	if mErr != nil {
		return Checkout{}, fmt.Errorf("create snap transaction: %w", mErr)
	}
	return Checkout{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// VerifySignature checks signature_key = SHA512(order_id + status_code + gross_amount + server_key).
func (g *MidtransGateway) VerifySignature(orderID, statusCode, grossAmount, signature string) bool {
	if g.serverKey == "" {
		return false
	}
	expected := Signature(orderID, statusCode, grossAmount, g.serverKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// Signature computes the lowercase hex notification signature.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// AmountMatches reports whether a notification gross_amount such as "500000.00"
// equals amount. IDR has no minor unit, so any non-zero fraction is a mismatch.
func AmountMatches(grossAmount string, amount int64) bool {
	whole, frac, _ := strings.Cut(strings.TrimSpace(grossAmount), ".")
	if strings.Trim(frac, "0") != "" {
		return false
	}
	n, err := strconv.ParseInt(whole, 10, 64)
	return err == nil && n == amount
}

// MapStatus converts Midtrans transaction and fraud statuses into an Outcome.
func MapStatus(transactionStatus, fraudStatus string) Outcome {
	switch transactionStatus {
	case "capture":
		if fraudStatus == "challenge" {
			return OutcomePending
		}
		return OutcomePaid
	case "settlement":
		return OutcomePaid
	case "deny", "cancel", "failure":
		return OutcomeFailed
	case "expire":
		return OutcomeExpired
	case "pending":
		return OutcomePending
	default:
		return OutcomeUnknown
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
