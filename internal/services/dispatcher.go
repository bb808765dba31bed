package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/chatsuite/backend/internal/apperrors"
	"github.com/chatsuite/backend/internal/events"
	"github.com/chatsuite/backend/internal/models"
	"github.com/chatsuite/backend/internal/phone"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Gateway is the outbound messaging provider as the dispatcher sees it.
type Gateway interface {
	SendTemplate(ctx context.Context, to, template, languageCode string, components []TemplateComponent) (*SendResult, error)
}

// CampaignStore is the slice of campaign persistence a run needs.
type CampaignStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	BeginRun(ctx context.Context, id uuid.UUID) error
	FinishRun(ctx context.Context, id uuid.UUID, success, failed int, status string) error
	ListContacts(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignContact, error)
}

// MessageStore is the per-run outcome ledger.
type MessageStore interface {
	DeleteByCampaign(ctx context.Context, campaignID uuid.UUID) error
	Insert(ctx context.Context, m *models.CampaignMessage) error
}

// Dispatcher executes one campaign run end to end: status flip, fresh
// ledger, bounded per-contact sends, one aggregate counter write.
type Dispatcher struct {
	gateway         Gateway
	publisher       events.Publisher
	countryCode     string
	concurrency     int
	providerTimeout time.Duration
	maxRun          time.Duration
	log             *zap.Logger
}

func NewDispatcher(gateway Gateway, publisher events.Publisher, countryCode string, concurrency int, providerTimeout, maxRun time.Duration, log *zap.Logger) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	if maxRun <= 0 {
		maxRun = 30 * time.Minute
	}
	return &Dispatcher{
		gateway:         gateway,
		publisher:       publisher,
		countryCode:     countryCode,
		concurrency:     concurrency,
		providerTimeout: providerTimeout,
		maxRun:          maxRun,
		log:             log,
	}
}

// Run drives one campaign through running -> completed|failed. The run
// executes on a context detached from the caller's, so a scheduler tick
// deadline or a dropped HTTP request can never strand a campaign in running;
// maxRun bounds the send window instead. Per-contact failures are recorded
// in the ledger and never abort the run; only a failure before the contact
// loop marks the run failed. The returned error is nil for a completed run
// regardless of how many contacts failed.
func (d *Dispatcher) Run(ctx context.Context, campaigns CampaignStore, messages MessageStore, tenantID, campaignID uuid.UUID) error {
	// Once the status flips to running the terminal FinishRun write must
	// always land, whatever happens to the caller's context.
	runCtx := context.WithoutCancel(ctx)

	if err := campaigns.BeginRun(runCtx, campaignID); err != nil {
		// Conflict means another runner owns the campaign; nothing to undo.
		return err
	}

	c, err := campaigns.GetByID(runCtx, campaignID)
	if err != nil {
		return d.failRun(runCtx, campaigns, campaignID, err)
	}

	// Each run fully replaces the ledger.
	if err := messages.DeleteByCampaign(runCtx, campaignID); err != nil {
		return d.failRun(runCtx, campaigns, campaignID, err)
	}

	contacts, err := campaigns.ListContacts(runCtx, campaignID)
	if err != nil {
		return d.failRun(runCtx, campaigns, campaignID, err)
	}

	d.publish(runCtx, tenantID, events.Event{
		Type: events.EventRunStarted,
		Payload: map[string]any{
			"tenant_id":   tenantID.String(),
			"campaign_id": campaignID.String(),
			"total_count": len(contacts),
		},
	})

	var success, failed atomic.Int64

	sendCtx, cancelSends := context.WithTimeout(runCtx, d.maxRun)
	defer cancelSends()

	g, gctx := errgroup.WithContext(sendCtx)
	g.SetLimit(d.concurrency)
	for _, contact := range contacts {
		contact := contact
		g.Go(func() error {
			outcome := d.sendOne(gctx, c, contact)
			// Ledger writes use the detached context so the row lands even
			// after the send window closes.
			if err := messages.Insert(runCtx, outcome); err != nil {
				d.log.Error("failed to record message outcome",
					zap.String("campaign_id", campaignID.String()),
					zap.Error(err),
				)
				// A contact without a ledger row is not a success.
				failed.Add(1)
				return nil
			}
			if outcome.Status == models.MessageStatusSent {
				success.Add(1)
			} else {
				failed.Add(1)
			}
			// Per-contact failures are data, not errors; never cancel the group.
			return nil
		})
	}
	_ = g.Wait()

	if err := campaigns.FinishRun(runCtx, campaignID, int(success.Load()), int(failed.Load()), models.CampaignStatusCompleted); err != nil {
		d.log.Error("failed to finalize run", zap.String("campaign_id", campaignID.String()), zap.Error(err))
		return err
	}

	d.publish(runCtx, tenantID, events.Event{
		Type: events.EventRunFinished,
		Payload: map[string]any{
			"tenant_id":     tenantID.String(),
			"campaign_id":   campaignID.String(),
			"status":        models.CampaignStatusCompleted,
			"total_count":   len(contacts),
			"success_count": success.Load(),
			"failed_count":  failed.Load(),
		},
	})

	d.log.Info("campaign run finished",
		zap.String("tenant_id", tenantID.String()),
		zap.String("campaign_id", campaignID.String()),
		zap.Int64("success", success.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}

// sendOne validates, normalizes and dispatches a single contact, returning
// the ledger row to record. It never returns an error.
func (d *Dispatcher) sendOne(ctx context.Context, c *models.Campaign, contact models.CampaignContact) *models.CampaignMessage {
	msg := &models.CampaignMessage{
		CampaignID: c.ID,
		Phone:      contact.Phone,
		Name:       contact.Name,
	}

	to, err := phone.Normalize(contact.Phone, d.countryCode)
	if err != nil {
		reason := failureReason(err)
		msg.Status = models.MessageStatusFailed
		msg.Error = &reason
		return msg
	}
	msg.Phone = to

	sendCtx, cancel := context.WithTimeout(ctx, d.providerTimeout)
	defer cancel()

	res, err := d.gateway.SendTemplate(sendCtx, to, c.TemplateName, c.TemplateLang, nil)
	if err != nil {
		reason := failureReason(err)
		msg.Status = models.MessageStatusFailed
		msg.Error = &reason
		return msg
	}

	msg.Status = models.MessageStatusSent
	msg.MessageID = &res.MessageID
	return msg
}

// failRun is the dispatch-fatal path: the loop never started, the whole run
// is failed.
func (d *Dispatcher) failRun(ctx context.Context, campaigns CampaignStore, campaignID uuid.UUID, cause error) error {
	if err := campaigns.FinishRun(ctx, campaignID, 0, 0, models.CampaignStatusFailed); err != nil {
		d.log.Error("failed to mark run failed", zap.String("campaign_id", campaignID.String()), zap.Error(err))
	}
	return apperrors.NewDispatchFatal(cause)
}

func (d *Dispatcher) publish(ctx context.Context, tenantID uuid.UUID, event events.Event) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, events.TenantStream(tenantID), event); err != nil {
		d.log.Warn("failed to publish event", zap.String("type", event.Type), zap.Error(err))
	}
}

// failureReason maps any per-contact error to a stable ledger reason.
func failureReason(err error) string {
	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	var pe *apperrors.ProviderError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.ReasonProviderTimeout
	}
	return apperrors.ReasonProviderDown
}
