package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
	"github.com/noah-isme/psychometric-api/pkg/payment"
)

type fakePaymentStore struct {
	created  *models.Payment
	checkout string
	byOrder  map[string]*models.Payment
	applied  []models.PaymentStatus
}

func (f *fakePaymentStore) Create(ctx context.Context, p *models.Payment) error {
	p.ID = "pay-1"
	f.created = p
	return nil
}

func (f *fakePaymentStore) SetCheckout(ctx context.Context, id, token, redirectURL string) error {
	f.checkout = token
	return nil
}

func (f *fakePaymentStore) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	p, ok := f.byOrder[orderID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakePaymentStore) ApplyStatus(ctx context.Context, p *models.Payment, status models.PaymentStatus, reference string, now time.Time) error {
	f.applied = append(f.applied, status)
	return nil
}

type fakeGateway struct {
	order payment.Order
	err   error
	valid bool
}

func (f *fakeGateway) CreateTransaction(ctx context.Context, order payment.Order) (payment.Checkout, error) {
	f.order = order
	if f.err != nil {
		return payment.Checkout{}, f.err
	}
	return payment.Checkout{Token: "snap-token", RedirectURL: "https://app.sandbox.midtrans.com/snap/v2/vtweb/snap-token"}, nil
}

func (f *fakeGateway) VerifySignature(orderID, statusCode, grossAmount, signature string) bool {
	return f.valid
}

func newPaymentFixture(status models.SchoolStatus, gateway *fakeGateway) (*PaymentService, *fakePaymentStore, *recordingPlatformInvalidator) {
	store := &fakePaymentStore{byOrder: map[string]*models.Payment{
		"ACT-PENDING": {ID: "pay-1", SchoolID: "sch1", OrderID: "ACT-PENDING", Amount: 500000, Status: models.PaymentStatusPending},
		"ACT-PAID":    {ID: "pay-2", SchoolID: "sch1", OrderID: "ACT-PAID", Amount: 500000, Status: models.PaymentStatusPaid},
	}}
	stats := &recordingPlatformInvalidator{}
	school := &models.School{ID: "sch1", Name: "SMA 1", Phone: "0812", Status: status}
	svc := NewPaymentService(store, gateway, fixedSchoolResolver{school: school}, &fakeAudit{}, stats, nil, nil, PaymentServiceConfig{})
	return svc, store, stats
}

func notification(orderID, status string) dto.MidtransNotification {
	return dto.MidtransNotification{
		OrderID:           orderID,
		StatusCode:        "200",
		GrossAmount:       "500000.00",
		SignatureKey:      "sig",
		TransactionStatus: status,
		TransactionID:     "trx-1",
	}
}

func TestCreateActivationOrder(t *testing.T) {
	gateway := &fakeGateway{}
	svc, store, _ := newPaymentFixture(models.SchoolStatusPendingPayment, gateway)

	resp, err := svc.CreateActivationOrder(context.Background(), &models.JWTClaims{UserID: "admin", Email: "admin@sma1.id", FullName: "Admin", Role: models.RoleSchoolAdmin})
	require.NoError(t, err)
	assert.Equal(t, "snap-token", resp.Token)
	assert.Equal(t, "snap-token", store.checkout)
	assert.EqualValues(t, 500000, store.created.Amount)
	assert.True(t, strings.HasPrefix(store.created.OrderID, "ACT-"))
	assert.Len(t, store.created.OrderID, 24)
	assert.Equal(t, store.created.OrderID, gateway.order.OrderID)
	assert.Equal(t, "admin@sma1.id", gateway.order.Customer.Email)
}

func TestCreateActivationOrderForActiveSchoolConflicts(t *testing.T) {
	svc, store, _ := newPaymentFixture(models.SchoolStatusActive, &fakeGateway{})

	_, err := svc.CreateActivationOrder(context.Background(), adminClaims())
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.Nil(t, store.created)
}

func TestCreateActivationOrderGatewayFailure(t *testing.T) {
	svc, _, _ := newPaymentFixture(models.SchoolStatusPendingPayment, &fakeGateway{err: errors.New("503 from snap")})

	_, err := svc.CreateActivationOrder(context.Background(), adminClaims())
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "PAYMENT_GATEWAY_ERROR", appErr.Code)
}

func TestHandleNotificationRejectsBadSignature(t *testing.T) {
	svc, store, _ := newPaymentFixture(models.SchoolStatusPendingPayment, &fakeGateway{valid: false})

	_, err := svc.HandleNotification(context.Background(), notification("ACT-PENDING", "settlement"))
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
	assert.Empty(t, store.applied)
}

func TestHandleNotificationSettlementActivates(t *testing.T) {
	svc, store, stats := newPaymentFixture(models.SchoolStatusPendingPayment, &fakeGateway{valid: true})

	result, err := svc.HandleNotification(context.Background(), notification("ACT-PENDING", "settlement"))
	require.NoError(t, err)
	assert.False(t, result.Ignored)
	assert.Equal(t, models.PaymentStatusPaid, result.Status)
	assert.Equal(t, []models.PaymentStatus{models.PaymentStatusPaid}, store.applied)
	assert.Equal(t, []string{"sch1"}, stats.schools)
}

func TestHandleNotificationIgnoredCases(t *testing.T) {
	cases := map[string]dto.MidtransNotification{
		"unknown order":    notification("ACT-UNKNOWN", "settlement"),
		"still pending":    notification("ACT-PENDING", "pending"),
		"already paid":     notification("ACT-PAID", "expire"),
		"fraud challenge":  {OrderID: "ACT-PENDING", StatusCode: "201", GrossAmount: "1", SignatureKey: "s", TransactionStatus: "capture", FraudStatus: "challenge"},
		"unrecognised msg": notification("ACT-PENDING", "refund"),
	}
	for name, n := range cases {
		t.Run(name, func(t *testing.T) {
			svc, store, stats := newPaymentFixture(models.SchoolStatusPendingPayment, &fakeGateway{valid: true})
			result, err := svc.HandleNotification(context.Background(), n)
			require.NoError(t, err)
			assert.True(t, result.Ignored)
			assert.Empty(t, store.applied)
			assert.Empty(t, stats.schools)
		})
	}
}

func TestHandleNotificationAmountMismatchIgnored(t *testing.T) {
	svc, store, stats := newPaymentFixture(models.SchoolStatusPendingPayment, &fakeGateway{valid: true})
	n := notification("ACT-PENDING", "settlement")
	n.GrossAmount = "1000.00"

	result, err := svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	assert.True(t, result.Ignored)
	assert.Equal(t, models.PaymentStatusPending, result.Status)
	assert.Empty(t, store.applied)
	assert.Empty(t, stats.schools)
}

func TestHandleNotificationExpiryDoesNotActivate(t *testing.T) {
	svc, store, stats := newPaymentFixture(models.SchoolStatusPendingPayment, &fakeGateway{valid: true})

	result, err := svc.HandleNotification(context.Background(), notification("ACT-PENDING", "expire"))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusExpired, result.Status)
	assert.Equal(t, []models.PaymentStatus{models.PaymentStatusExpired}, store.applied)
	assert.Empty(t, stats.schools)
}

func TestHandleNotificationValidatesPayload(t *testing.T) {
	svc, _, _ := newPaymentFixture(models.SchoolStatusPendingPayment, &fakeGateway{valid: true})

	_, err := svc.HandleNotification(context.Background(), dto.MidtransNotification{OrderID: "ACT-PENDING"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
