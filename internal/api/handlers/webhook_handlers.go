package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloudvend/topup-bot/internal/domain/entities"
	"github.com/cloudvend/topup-bot/internal/domain/services/reconcile"
	"github.com/cloudvend/topup-bot/pkg/logger"
)

// Reconciler processes one gateway notification end to end. The raw
// bytes are the wire payload, persisted verbatim for audit.
type Reconciler interface {
	Process(ctx context.Context, notification *entities.MidtransNotification, raw json.RawMessage) *reconcile.Outcome
}

// WebhookHandlers handles payment gateway notifications
type WebhookHandlers struct {
	reconciler Reconciler
	logger     *logger.Logger
}

// NewWebhookHandlers creates new webhook handlers
func NewWebhookHandlers(reconciler Reconciler, logger *logger.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		reconciler: reconciler,
		logger:     logger,
	}
}

// HandleMidtransNotification receives a payment notification, reconciles
// it, and maps the disposition onto an HTTP status. The body is read
// raw before decoding so the audit record keeps gateway fields the
// typed struct does not model. Duplicates are acknowledged with 200 so
// the gateway stops redelivering; only internal failures return 500 and
// invite a retry.
func (h *WebhookHandlers) HandleMidtransNotification(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.logger.Warn("failed to read webhook body", "error", err)
		SendBadRequest(c, ErrCodeInvalidRequest, MsgInvalidRequest)
		return
	}

	var notification entities.MidtransNotification
	if err := json.Unmarshal(raw, &notification); err != nil {
		h.logger.Warn("malformed webhook payload", "error", err)
		SendBadRequest(c, ErrCodeInvalidRequest, MsgInvalidRequest)
		return
	}

	outcome := h.reconciler.Process(c.Request.Context(), &notification, raw)

	switch outcome.Disposition {
	case reconcile.DispositionProcessed:
		SendSuccess(c, gin.H{
			"status":   "success",
			"order_id": outcome.OrderID,
		})

	case reconcile.DispositionAlreadyProcessed:
		SendSuccess(c, gin.H{
			"status":   "success",
			"order_id": outcome.OrderID,
			"note":     "already processed",
		})

	case reconcile.DispositionNotFound:
		SendNotFound(c, ErrCodeOrderNotFound, "order not found")

	case reconcile.DispositionRejected:
		code := ErrCodeValidationError
		if outcome.Reason == "invalid signature" {
			code = ErrCodeInvalidSignature
		}
		SendBadRequest(c, code, outcome.Reason)

	default:
		SendInternalError(c, ErrCodeWebhookFailed, MsgInternalError)
	}
}

// HandleNotFound answers unknown routes with a JSON 404
func HandleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, entities.ErrorResponse{
		Code:    ErrCodeNotFound,
		Message: "route not found",
	})
}
