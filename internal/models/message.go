package models

import (
	"time"

	"github.com/google/uuid"
)

// Message statuses. A row is written once per run with sent/failed; delivery
// callbacks from the provider move sent rows forward out-of-band.
const (
	MessageStatusSent      = "sent"
	MessageStatusFailed    = "failed"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
)

// CampaignMessage is the per-run, per-recipient outcome ledger. Each run
// fully replaces the ledger for its campaign.
type CampaignMessage struct {
	ID         uuid.UUID `json:"id"`
	CampaignID uuid.UUID `json:"campaign_id"`
	Phone      string    `json:"phone"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Error      *string   `json:"error,omitempty"`
	MessageID  *string   `json:"message_id,omitempty"` // provider message id
	CreatedAt  time.Time `json:"created_at"`
}
