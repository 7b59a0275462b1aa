package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// maxWebhookBodyBytes ограничивает тело уведомления провайдера.
const maxWebhookBodyBytes = 64 << 10

// StripeSignatureHeader содержит подпись уведомления.
const StripeSignatureHeader = "Stripe-Signature"

const basketProblemMessage = "Problem with your basket!"

// IntentSyncer создаёт или обновляет payment intent корзины.
type IntentSyncer interface {
	Synchronize(ctx context.Context, basketID string) (domain.Basket, error)
}

// WebhookHandler проверяет и применяет уведомление провайдера.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// ApiResponse повторяет формат ошибок публичного API.
type ApiResponse struct {
	StatusCode int      `json:"status_code"`
	Message    string   `json:"message"`
	Errors     []string `json:"errors,omitempty"`
}

// PaymentsHandler обслуживает HTTP-границу платежей.
type PaymentsHandler struct {
	syncer   IntentSyncer
	webhooks WebhookHandler
	logger   *log.Entry
}

// NewPaymentsHandler создаёт обработчик.
func NewPaymentsHandler(syncer IntentSyncer, webhooks WebhookHandler, logger *log.Entry) *PaymentsHandler {
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}
	return &PaymentsHandler{syncer: syncer, webhooks: webhooks, logger: logger}
}

// CreateOrUpdateIntent обрабатывает POST /payments/:basketId.
func (h *PaymentsHandler) CreateOrUpdateIntent(c *gin.Context) {
	basketID := c.Param("basketId")
	logger := h.logger.WithFields(buyerFields(c)).WithField("basket_id", basketID)

	basket, err := h.syncer.Synchronize(c.Request.Context(), basketID)
	if err != nil {
		status, body := intentErrorResponse(err)
		failed := logger.WithError(err).WithField("status", status)
		if status >= http.StatusInternalServerError {
			failed.Error("create or update payment intent failed")
		} else {
			failed.Info("create or update payment intent rejected")
		}
		c.JSON(status, body)
		return
	}

	logger.WithField("payment_intent_id", basket.PaymentIntentID).Info("payment intent returned to buyer")
	c.JSON(http.StatusOK, basket)
}

// Webhook обрабатывает POST /payments/webhook. Тело читается целиком, без разбора,
// так как подпись считается по исходным байтам.
func (h *PaymentsHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		h.logger.WithError(err).Warn("read webhook body failed")
		c.JSON(http.StatusBadRequest, ApiResponse{StatusCode: http.StatusBadRequest, Message: "Invalid webhook payload"})
		return
	}

	err = h.webhooks.HandleWebhook(c.Request.Context(), payload, c.GetHeader(StripeSignatureHeader))
	switch {
	case err == nil:
		c.Status(http.StatusOK)
	case errors.Is(err, domain.ErrWebhookVerification):
		c.JSON(http.StatusBadRequest, ApiResponse{StatusCode: http.StatusBadRequest, Message: "Invalid webhook signature"})
	default:
		// 5xx заставляет провайдера повторить доставку.
		c.JSON(http.StatusInternalServerError, ApiResponse{StatusCode: http.StatusInternalServerError, Message: "Webhook processing failed"})
	}
}

func intentErrorResponse(err error) (int, ApiResponse) {
	switch {
	case domain.IsNotFound(err):
		return http.StatusBadRequest, ApiResponse{StatusCode: http.StatusBadRequest, Message: basketProblemMessage}
	case errors.Is(err, domain.ErrBasketIDRequired),
		errors.Is(err, domain.ErrItemQtyInvalid),
		errors.Is(err, domain.ErrItemPriceInvalid):
		return http.StatusBadRequest, ApiResponse{
			StatusCode: http.StatusBadRequest,
			Message:    basketProblemMessage,
			Errors:     validationMessages(err),
		}
	case domain.IsVersionConflict(err):
		return http.StatusConflict, ApiResponse{StatusCode: http.StatusConflict, Message: "Basket was modified concurrently, please retry"}
	case errors.Is(err, domain.ErrPaymentProvider):
		return http.StatusBadGateway, ApiResponse{StatusCode: http.StatusBadGateway, Message: "Payment provider is unavailable"}
	default:
		return http.StatusInternalServerError, ApiResponse{StatusCode: http.StatusInternalServerError, Message: "Internal server error"}
	}
}

func validationMessages(err error) []string {
	var messages []string
	for _, target := range []error{domain.ErrBasketIDRequired, domain.ErrItemQtyInvalid, domain.ErrItemPriceInvalid} {
		if errors.Is(err, target) {
			messages = append(messages, target.Error())
		}
	}
	return messages
}
