package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
	"github.com/noah-isme/psychometric-api/pkg/payment"
)

type paymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	SetCheckout(ctx context.Context, id, token, redirectURL string) error
	FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	ApplyStatus(ctx context.Context, p *models.Payment, status models.PaymentStatus, reference string, now time.Time) error
}

type paymentGateway interface {
	CreateTransaction(ctx context.Context, order payment.Order) (payment.Checkout, error)
	VerifySignature(orderID, statusCode, grossAmount, signature string) bool
}

// PaymentServiceConfig holds the activation fee.
type PaymentServiceConfig struct {
	ActivationFee int64
}

// PaymentService gates school activation behind a paid gateway order.
type PaymentService struct {
	repo      paymentStore
	gateway   paymentGateway
	identity  schoolAdminResolver
	audit     auditWriter
	stats     platformInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	cfg       PaymentServiceConfig
	now       func() time.Time
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(repo paymentStore, gateway paymentGateway, identity schoolAdminResolver, audit auditWriter, stats platformInvalidator, validate *validator.Validate, logger *zap.Logger, cfg PaymentServiceConfig) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ActivationFee <= 0 {
		cfg.ActivationFee = 500000
	}
	return &PaymentService{
		repo:      repo,
		gateway:   gateway,
		identity:  identity,
		audit:     audit,
		stats:     stats,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateActivationOrder opens a checkout for the calling admin's school.
func (s *PaymentService) CreateActivationOrder(ctx context.Context, claims *models.JWTClaims) (*dto.ActivationOrderResponse, error) {
	school, err := s.identity.ResolveSchoolAdmin(ctx, claims)
	if err != nil {
		return nil, err
	}
	if school.Active() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "school is already active")
	}

	p := &models.Payment{
		SchoolID: school.ID,
		OrderID:  "ACT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:20]),
		Amount:   s.cfg.ActivationFee,
		Status:   models.PaymentStatusPending,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, appErrors.Internal(err, "failed to create payment")
	}

	checkout, err := s.gateway.CreateTransaction(ctx, payment.Order{
		OrderID:  p.OrderID,
		Amount:   p.Amount,
		ItemName: "School activation: " + school.Name,
		Customer: payment.Customer{Name: claims.FullName, Email: claims.Email, Phone: school.Phone},
	})
	if err != nil {
		s.logger.Error("payment gateway rejected order", zap.String("order_id", p.OrderID), zap.Error(err))
		if errors.Is(err, payment.ErrNotConfigured) {
			return nil, appErrors.Internal(err, "payments are not configured")
		}
		return nil, appErrors.Wrap(err, "PAYMENT_GATEWAY_ERROR", http.StatusBadGateway, "failed to create checkout")
	}
	if err := s.repo.SetCheckout(ctx, p.ID, checkout.Token, checkout.RedirectURL); err != nil {
		return nil, appErrors.Internal(err, "failed to save checkout")
	}
	p.GatewayToken = &checkout.Token
	p.RedirectURL = &checkout.RedirectURL

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &claims.UserID,
			Action:     models.AuditActionPaymentCreate,
			Resource:   "payment",
			ResourceID: &p.ID,
			NewValues:  []byte(fmt.Sprintf(`{"order_id":%q,"amount":%d}`, p.OrderID, p.Amount)),
		}); err != nil {
			s.logger.Warn("failed to record payment audit log", zap.Error(err))
		}
	}

	return &dto.ActivationOrderResponse{Payment: *p, Token: checkout.Token, RedirectURL: checkout.RedirectURL}, nil
}

// HandleNotification applies a verified gateway notification. Unknown orders are acknowledged and ignored.
func (s *PaymentService) HandleNotification(ctx context.Context, n dto.MidtransNotification) (*dto.NotificationResult, error) {
	if err := s.validator.Struct(n); err != nil {
		return nil, appErrors.Validation(err, "invalid notification payload")
	}
	if !s.gateway.VerifySignature(n.OrderID, n.StatusCode, n.GrossAmount, n.SignatureKey) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid notification signature")
	}

	p, err := s.repo.FindByOrderID(ctx, n.OrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("notification for unknown order", zap.String("order_id", n.OrderID))
			return &dto.NotificationResult{OrderID: n.OrderID, Ignored: true}, nil
		}
		return nil, appErrors.Internal(err, "failed to load payment")
	}
	if !payment.AmountMatches(n.GrossAmount, p.Amount) {
		s.logger.Warn("notification amount does not match order",
			zap.String("order_id", n.OrderID),
			zap.String("gross_amount", n.GrossAmount),
			zap.Int64("expected", p.Amount))
		return &dto.NotificationResult{OrderID: n.OrderID, Status: p.Status, Ignored: true}, nil
	}

	var status models.PaymentStatus
	switch payment.MapStatus(n.TransactionStatus, n.FraudStatus) {
	case payment.OutcomePaid:
		status = models.PaymentStatusPaid
	case payment.OutcomeFailed:
		status = models.PaymentStatusFailed
	case payment.OutcomeExpired:
		status = models.PaymentStatusExpired
	default:
		return &dto.NotificationResult{OrderID: n.OrderID, Status: p.Status, Ignored: true}, nil
	}

	if p.Status != models.PaymentStatusPending {
		return &dto.NotificationResult{OrderID: n.OrderID, Status: p.Status, Ignored: true}, nil
	}
	if err := s.repo.ApplyStatus(ctx, p, status, n.TransactionID, s.now()); err != nil {
		return nil, appErrors.Internal(err, "failed to apply payment status")
	}
	s.logger.Info("payment status updated",
		zap.String("order_id", n.OrderID),
		zap.String("school_id", p.SchoolID),
		zap.String("status", string(status)))
	if status == models.PaymentStatusPaid && s.stats != nil {
		s.stats.InvalidatePlatform(ctx, p.SchoolID)
	}
	return &dto.NotificationResult{OrderID: n.OrderID, Status: status}, nil
}
