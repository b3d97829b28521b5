package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/psychometric-api/internal/dto"
	"github.com/noah-isme/psychometric-api/internal/models"
	appErrors "github.com/noah-isme/psychometric-api/pkg/errors"
	"github.com/noah-isme/psychometric-api/pkg/response"
)

type paymentService interface {
	CreateActivationOrder(ctx context.Context, claims *models.JWTClaims) (*dto.ActivationOrderResponse, error)
	HandleNotification(ctx context.Context, n dto.MidtransNotification) (*dto.NotificationResult, error)
}

// PaymentHandler covers school activation payments.
type PaymentHandler struct {
	service paymentService
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(svc paymentService) *PaymentHandler {
	return &PaymentHandler{service: svc}
}

// CreateOrder godoc
// @Summary Create a school activation order
// @Tags School
// @Produce json
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /school/payments [post]
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	order, err := h.service.CreateActivationOrder(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// Notification godoc
// @Summary Midtrans payment notification webhook
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body dto.MidtransNotification true "Gateway notification"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /payments/midtrans/notification [post]
func (h *PaymentHandler) Notification(c *gin.Context) {
	var n dto.MidtransNotification
	if err := c.ShouldBindJSON(&n); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid notification payload"))
		return
	}
	result, err := h.service.HandleNotification(c.Request.Context(), n)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
