package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Event types
const (
	EventRunStarted           = "campaign_run_started"
	EventRunFinished          = "campaign_run_finished"
	EventMessageStatusChanged = "message_status_changed"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// TenantStream names the per-tenant event stream. Events never cross tenant
// boundaries.
func TenantStream(tenantID uuid.UUID) string {
	return fmt.Sprintf("events:tenant:%s", tenantID)
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
