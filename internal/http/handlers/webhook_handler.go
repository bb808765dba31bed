package handlers

import (
	"github.com/chatsuite/backend/internal/config"
	"github.com/chatsuite/backend/internal/events"
	"github.com/chatsuite/backend/internal/models"
	"github.com/chatsuite/backend/internal/repositories"
	"github.com/chatsuite/backend/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WebhookHandler receives delivery receipts from the WhatsApp Cloud API.
// The tenant is carried in the callback path, one callback URL per tenant.
type WebhookHandler struct {
	resolver  *tenant.Resolver
	pool      *tenant.Pool
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewWebhookHandler(resolver *tenant.Resolver, pool *tenant.Pool, publisher events.Publisher, cfg *config.Config, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{resolver: resolver, pool: pool, publisher: publisher, cfg: cfg, log: log}
}

// Verify answers the provider's subscription handshake.
func (h *WebhookHandler) Verify(c *fiber.Ctx) error {
	if c.Query("hub.mode") == "subscribe" && c.Query("hub.verify_token") == h.cfg.WebhookVerifyToken {
		return c.SendString(c.Query("hub.challenge"))
	}
	return c.SendStatus(fiber.StatusForbidden)
}

// webhookPayload is the subset of the Cloud API notification we act on.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Statuses []struct {
					ID     string `json:"id"`
					Status string `json:"status"` // sent / delivered / read / failed
				} `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Receive applies status callbacks to the tenant's message ledger. Always
// answers 200 so the provider does not retry on our internal errors.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	tenantID, err := uuid.Parse(c.Params("tenantID"))
	if err != nil {
		return c.SendStatus(fiber.StatusNotFound)
	}

	tc, err := h.resolver.Resolve(c.Context(), tenantID)
	if err != nil {
		h.log.Warn("webhook for unknown tenant", zap.String("tenant_id", tenantID.String()))
		return c.SendStatus(fiber.StatusNotFound)
	}

	var payload webhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.SendStatus(fiber.StatusOK)
	}

	client, err := h.pool.GetOrCreate(c.Context(), tc.TenantID, tc.Descriptor)
	if err != nil {
		h.log.Error("webhook tenant client failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		return c.SendStatus(fiber.StatusOK)
	}
	msgRepo := repositories.NewMessageRepo(client)

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				if !validCallbackStatus(st.Status) {
					continue
				}
				campaignID, err := msgRepo.UpdateStatusByProviderID(c.Context(), st.ID, st.Status)
				if err != nil {
					h.log.Error("status callback update failed",
						zap.String("tenant_id", tenantID.String()),
						zap.String("provider_message_id", st.ID),
						zap.Error(err),
					)
					continue
				}
				if campaignID == uuid.Nil {
					// Callback for a message a later rerun has replaced.
					continue
				}
				h.publish(c, tenantID, campaignID, st.ID, st.Status)
			}
		}
	}

	return c.SendStatus(fiber.StatusOK)
}

func validCallbackStatus(s string) bool {
	switch s {
	case models.MessageStatusSent, models.MessageStatusDelivered, models.MessageStatusRead, models.MessageStatusFailed:
		return true
	}
	return false
}

func (h *WebhookHandler) publish(c *fiber.Ctx, tenantID, campaignID uuid.UUID, messageID, status string) {
	err := h.publisher.Publish(c.Context(), events.TenantStream(tenantID), events.Event{
		Type: events.EventMessageStatusChanged,
		Payload: map[string]any{
			"tenant_id":           tenantID.String(),
			"campaign_id":         campaignID.String(),
			"provider_message_id": messageID,
			"status":              status,
		},
	})
	if err != nil {
		h.log.Warn("failed to publish status event", zap.Error(err))
	}
}
