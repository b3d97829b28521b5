package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
)

type fakePayments struct {
	last dto.MidtransNotification
	err  error
}

func (f *fakePayments) CreateActivationOrder(context.Context, *models.JWTClaims) (*dto.ActivationOrderResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ActivationOrderResponse{Token: "snap-token", RedirectURL: "https://app.sandbox.midtrans.com/snap/v2/vtweb/snap-token"}, nil
}

func (f *fakePayments) HandleNotification(_ context.Context, n dto.MidtransNotification) (*dto.NotificationResult, error) {
	f.last = n
	if f.err != nil {
		return nil, f.err
	}
	return &dto.NotificationResult{OrderID: n.OrderID, Status: models.PaymentStatusPaid}, nil
}

func TestPaymentHandlerCreateOrder(t *testing.T) {
	h := NewPaymentHandler(&fakePayments{})
	c, rec := newTestContext(http.MethodPost, "/school/payments", "")
	withClaims(c, "admin", models.RoleSchoolAdmin)

	h.CreateOrder(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "snap-token", decodeEnvelope(t, rec).Data["token"])
}

func TestPaymentHandlerCreateOrderAlreadyActive(t *testing.T) {
	h := NewPaymentHandler(&fakePayments{err: appErrors.Clone(appErrors.ErrConflict, "school already active")})
	c, rec := newTestContext(http.MethodPost, "/school/payments", "")
	withClaims(c, "admin", models.RoleSchoolAdmin)

	h.CreateOrder(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPaymentHandlerNotification(t *testing.T) {
	payments := &fakePayments{}
	h := NewPaymentHandler(payments)
	c, rec := newTestContext(http.MethodPost, "/payments/midtrans/notification",
		`{"order_id":"ACT-1","status_code":"200","gross_amount":"500000.00","signature_key":"sig","transaction_status":"settlement"}`)

	h.Notification(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ACT-1", payments.last.OrderID)
	assert.Equal(t, "settlement", payments.last.TransactionStatus)
}

func TestPaymentHandlerNotificationBadSignature(t *testing.T) {
	h := NewPaymentHandler(&fakePayments{err: appErrors.Clone(appErrors.ErrForbidden, "invalid notification signature")})
	c, rec := newTestContext(http.MethodPost, "/payments/midtrans/notification", `{"order_id":"ACT-1"}`)

	h.Notification(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
