package webhook

import (
	"context"
	"encoding/json"
	"net/http"

	"whatsapp-admin/internal/config"
	"whatsapp-admin/internal/models"
	pkgmodels "whatsapp-admin/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// MessageProcessor is the slice of the messaging service the webhook handler
// needs: one call per inbound message, one per status update, and the
// best-effort read receipt.
type MessageProcessor interface {
	RecordInboundMessage(msg *pkgmodels.InboundMessage) (*models.Message, error)
	ApplyStatusUpdate(providerID, status string) error
	MarkAsRead(ctx context.Context, providerID string)
}

// ItemOutcome records how one message or status within a webhook delivery
// was handled. Per-item failures never fail the delivery as a whole.
type ItemOutcome struct {
	Kind       string // "message" or "status"
	ProviderID string
	Err        error
}

// BatchResult is the outcome of processing every sub-event in one delivery.
type BatchResult []ItemOutcome

func (r BatchResult) Failed() int {
	n := 0
	for _, item := range r {
		if item.Err != nil {
			n++
		}
	}
	return n
}

type Handler struct {
	cfg       *config.Config
	processor MessageProcessor
	log       *logrus.Logger
}

func NewHandler(cfg *config.Config, processor MessageProcessor, log *logrus.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		processor: processor,
		log:       log,
	}
}

// Verify answers the provider's subscription handshake (GET). The challenge
// is echoed back as plain text when the mode and token match; anything else
// is forbidden. No side effects.
func (h *Handler) Verify(c *gin.Context) {
	mode := c.Query("hub_mode")
	token := c.Query("hub_verify_token")
	challenge := c.Query("hub_challenge")

	if mode == "subscribe" && token == h.cfg.VerifyToken {
		h.log.Info("Webhook verified successfully")
		c.String(http.StatusOK, challenge)
		return
	}

	h.log.WithFields(logrus.Fields{
		"mode":  mode,
		"token": token,
	}).Warn("Webhook verification failed")
	c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
}

// Handle processes a webhook delivery (POST). Once the signature checks out
// the provider always gets a 200 back, regardless of per-item failures:
// anything else triggers a retry storm. Individual messages and statuses are
// handled best-effort, logged on failure, and never abort their siblings.
func (h *Handler) Handle(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.log.WithError(err).Error("Failed to read webhook body")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if h.cfg.AppSecret != "" {
		signature := c.GetHeader("X-Hub-Signature-256")
		if !VerifySignature(body, signature, h.cfg.AppSecret) {
			h.log.Warn("Webhook signature validation failed")
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid signature"})
			return
		}
	}

	var payload pkgmodels.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.log.WithError(err).Error("Failed to decode webhook payload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	result := h.process(c.Request.Context(), &payload)
	if failed := result.Failed(); failed > 0 {
		h.log.WithFields(logrus.Fields{
			"items":  len(result),
			"failed": failed,
		}).Warn("Webhook processed with item failures")
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) process(ctx context.Context, payload *pkgmodels.WebhookPayload) BatchResult {
	var result BatchResult

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			result = append(result, h.processChange(ctx, change.Value)...)
		}
	}

	return result
}

func (h *Handler) processChange(ctx context.Context, value pkgmodels.ChangeValue) BatchResult {
	var result BatchResult

	for i := range value.Messages {
		msg := &value.Messages[i]
		if len(value.Contacts) > 0 {
			msg.ProfileName = value.Contacts[0].Profile.Name
		}

		record, err := h.processor.RecordInboundMessage(msg)
		if err != nil {
			h.log.WithError(err).WithFields(logrus.Fields{
				"wa_message_id": msg.ID,
				"from":          msg.From,
				"type":          msg.Type,
			}).Error("Failed to process inbound message")
		} else if record != nil {
			h.processor.MarkAsRead(ctx, msg.ID)
		}

		result = append(result, ItemOutcome{Kind: "message", ProviderID: msg.ID, Err: err})
	}

	for _, status := range value.Statuses {
		err := h.processor.ApplyStatusUpdate(status.ID, status.Status)
		if err != nil {
			h.log.WithError(err).WithFields(logrus.Fields{
				"wa_message_id": status.ID,
				"status":        status.Status,
			}).Error("Failed to apply status update")
		}
		result = append(result, ItemOutcome{Kind: "status", ProviderID: status.ID, Err: err})
	}

	return result
}
