package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chatsuite/backend/internal/apperrors"
	"github.com/chatsuite/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fakeCampaignStore struct {
	mu       sync.Mutex
	campaign *models.Campaign
	contacts []models.CampaignContact

	beginErr    error
	contactsErr error

	beginCalls  int
	finishCalls int
	finSuccess  int
	finFailed   int
	finStatus   string
}

// The fakes surface context errors the way a database driver would, so the
// tests can prove writes land regardless of what the caller's context does.

func (f *fakeCampaignStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.campaign == nil {
		return nil, apperrors.ErrCampaignNotFound
	}
	c := *f.campaign
	return &c, nil
}

func (f *fakeCampaignStore) BeginRun(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beginCalls++
	if f.beginErr != nil {
		return f.beginErr
	}
	f.campaign.Status = models.CampaignStatusRunning
	f.campaign.SuccessCount = 0
	f.campaign.FailedCount = 0
	return nil
}

func (f *fakeCampaignStore) FinishRun(ctx context.Context, id uuid.UUID, success, failed int, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishCalls++
	f.finSuccess, f.finFailed, f.finStatus = success, failed, status
	f.campaign.Status = status
	f.campaign.SuccessCount = success
	f.campaign.FailedCount = failed
	return nil
}

func (f *fakeCampaignStore) ListContacts(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignContact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contactsErr != nil {
		return nil, f.contactsErr
	}
	return f.contacts, nil
}

type fakeMessageStore struct {
	mu         sync.Mutex
	rows       []models.CampaignMessage
	deletes    int
	insertFail map[string]error // keyed by normalized phone
}

func (f *fakeMessageStore) DeleteByCampaign(ctx context.Context, campaignID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	f.rows = nil
	return nil
}

func (f *fakeMessageStore) Insert(ctx context.Context, m *models.CampaignMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.insertFail[m.Phone]; ok {
		return err
	}
	f.rows = append(f.rows, *m)
	return nil
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []string // normalized recipients, in call order
	fail  map[string]error
	delay time.Duration
}

func (f *fakeGateway) SendTemplate(ctx context.Context, to, template, languageCode string, components []TemplateComponent) (*SendResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, to)
	err, failed := f.fail[to]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failed {
		return nil, err
	}
	return &SendResult{MessageID: "wamid." + to}, nil
}

func newTestDispatcher(gw Gateway) *Dispatcher {
	return NewDispatcher(gw, nil, "91", 2, time.Second, 5*time.Second, zap.NewNop())
}

func testCampaign(contacts ...models.CampaignContact) (*fakeCampaignStore, *fakeMessageStore) {
	return &fakeCampaignStore{
		campaign: &models.Campaign{
			ID:           uuid.New(),
			Name:         "promo",
			TemplateName: "promo_offer",
			TemplateLang: "en",
			Status:       models.CampaignStatusDraft,
			TotalCount:   len(contacts),
		},
		contacts: contacts,
	}, &fakeMessageStore{}
}

func TestRunMixedOutcomes(t *testing.T) {
	campaigns, messages := testCampaign(
		models.CampaignContact{Name: "A", Phone: "9876500000"},
		models.CampaignContact{Name: "B", Phone: "1111111111"},
	)
	gw := &fakeGateway{}
	d := newTestDispatcher(gw)

	err := d.Run(context.Background(), campaigns, messages, uuid.New(), campaigns.campaign.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if campaigns.finStatus != models.CampaignStatusCompleted {
		t.Errorf("status = %q, want completed", campaigns.finStatus)
	}
	if campaigns.finSuccess != 1 || campaigns.finFailed != 1 {
		t.Errorf("counts = %d/%d, want 1/1", campaigns.finSuccess, campaigns.finFailed)
	}
	if got := campaigns.finSuccess + campaigns.finFailed; got != campaigns.campaign.TotalCount {
		t.Errorf("success+failed = %d, want total %d", got, campaigns.campaign.TotalCount)
	}
	if len(messages.rows) != 2 {
		t.Fatalf("ledger has %d rows, want 2", len(messages.rows))
	}

	// The placeholder number never reaches the provider.
	if len(gw.calls) != 1 {
		t.Fatalf("provider called %d times, want 1", len(gw.calls))
	}
	if gw.calls[0] != "919876500000" {
		t.Errorf("provider got %q, want normalized 919876500000", gw.calls[0])
	}

	for _, row := range messages.rows {
		switch row.Name {
		case "A":
			if row.Status != models.MessageStatusSent || row.MessageID == nil {
				t.Errorf("contact A row = %+v, want sent with message id", row)
			}
		case "B":
			if row.Status != models.MessageStatusFailed || row.Error == nil {
				t.Errorf("contact B row = %+v, want failed with reason", row)
			} else if *row.Error != apperrors.ReasonPlaceholder {
				t.Errorf("contact B reason = %q, want %q", *row.Error, apperrors.ReasonPlaceholder)
			}
		default:
			t.Errorf("unexpected row %+v", row)
		}
	}
}

func TestRunReplacesLedger(t *testing.T) {
	campaigns, messages := testCampaign(
		models.CampaignContact{Name: "A", Phone: "9876500000"},
		models.CampaignContact{Name: "B", Phone: "9876500001"},
		models.CampaignContact{Name: "C", Phone: "9876500002"},
	)
	// Leftovers from a previous run.
	messages.rows = []models.CampaignMessage{{Status: models.MessageStatusSent}, {Status: models.MessageStatusFailed}}

	d := newTestDispatcher(&fakeGateway{})
	if err := d.Run(context.Background(), campaigns, messages, uuid.New(), campaigns.campaign.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if messages.deletes != 1 {
		t.Errorf("ledger deleted %d times, want 1", messages.deletes)
	}
	if len(messages.rows) != 3 {
		t.Errorf("ledger has %d rows after rerun, want exactly 3", len(messages.rows))
	}
	if campaigns.finSuccess != 3 || campaigns.finFailed != 0 {
		t.Errorf("counts = %d/%d, want 3/0", campaigns.finSuccess, campaigns.finFailed)
	}
}

func TestRunProviderFailureIsData(t *testing.T) {
	campaigns, messages := testCampaign(
		models.CampaignContact{Name: "A", Phone: "9876500000"},
		models.CampaignContact{Name: "B", Phone: "9876500001"},
	)
	gw := &fakeGateway{fail: map[string]error{
		"919876500001": &apperrors.ProviderError{Code: 131026, Reason: apperrors.ReasonProviderRejected},
	}}
	d := newTestDispatcher(gw)

	if err := d.Run(context.Background(), campaigns, messages, uuid.New(), campaigns.campaign.ID); err != nil {
		t.Fatalf("Run should complete despite provider failures: %v", err)
	}

	if campaigns.finStatus != models.CampaignStatusCompleted {
		t.Errorf("status = %q, want completed (provider failure is data)", campaigns.finStatus)
	}
	if campaigns.finSuccess != 1 || campaigns.finFailed != 1 {
		t.Errorf("counts = %d/%d, want 1/1", campaigns.finSuccess, campaigns.finFailed)
	}
}

func TestRunFatalBeforeLoop(t *testing.T) {
	campaigns, messages := testCampaign(
		models.CampaignContact{Name: "A", Phone: "9876500000"},
	)
	campaigns.contactsErr = errors.New("tenant database unreachable")

	d := newTestDispatcher(&fakeGateway{})
	err := d.Run(context.Background(), campaigns, messages, uuid.New(), campaigns.campaign.ID)
	if !apperrors.IsDispatchFatal(err) {
		t.Fatalf("Run = %v, want dispatch-fatal error", err)
	}
	if campaigns.finStatus != models.CampaignStatusFailed {
		t.Errorf("status = %q, want failed", campaigns.finStatus)
	}
	if len(messages.rows) != 0 {
		t.Errorf("ledger has %d rows, want 0", len(messages.rows))
	}
}

func TestRunCompletesAfterCallerCancellation(t *testing.T) {
	campaigns, messages := testCampaign(
		models.CampaignContact{Name: "A", Phone: "9876500000"},
		models.CampaignContact{Name: "B", Phone: "9876500001"},
	)
	d := newTestDispatcher(&fakeGateway{})

	// A scheduler tick deadline or dropped HTTP request shows up here as an
	// already-dead caller context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Run(ctx, campaigns, messages, uuid.New(), campaigns.campaign.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if campaigns.finishCalls != 1 {
		t.Fatalf("FinishRun called %d times, want 1", campaigns.finishCalls)
	}
	if campaigns.finStatus != models.CampaignStatusCompleted {
		t.Errorf("status = %q, want completed", campaigns.finStatus)
	}
	if campaigns.finSuccess != 2 || campaigns.finFailed != 0 {
		t.Errorf("counts = %d/%d, want 2/0", campaigns.finSuccess, campaigns.finFailed)
	}
	if len(messages.rows) != 2 {
		t.Errorf("ledger has %d rows, want 2", len(messages.rows))
	}
}

func TestRunWindowExpiryStillFinishes(t *testing.T) {
	campaigns, messages := testCampaign(
		models.CampaignContact{Name: "A", Phone: "9876500000"},
		models.CampaignContact{Name: "B", Phone: "9876500001"},
		models.CampaignContact{Name: "C", Phone: "9876500002"},
	)
	gw := &fakeGateway{delay: 10 * time.Second}
	d := NewDispatcher(gw, nil, "91", 2, time.Second, 50*time.Millisecond, zap.NewNop())

	if err := d.Run(context.Background(), campaigns, messages, uuid.New(), campaigns.campaign.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if campaigns.finishCalls != 1 {
		t.Fatalf("FinishRun called %d times, want 1", campaigns.finishCalls)
	}
	if campaigns.finStatus != models.CampaignStatusCompleted {
		t.Errorf("status = %q, want completed (campaign never stuck in running)", campaigns.finStatus)
	}
	if campaigns.finSuccess != 0 || campaigns.finFailed != 3 {
		t.Errorf("counts = %d/%d, want 0/3", campaigns.finSuccess, campaigns.finFailed)
	}
	if len(messages.rows) != 3 {
		t.Fatalf("ledger has %d rows, want 3", len(messages.rows))
	}
	for _, row := range messages.rows {
		if row.Status != models.MessageStatusFailed || row.Error == nil {
			t.Errorf("row %q = %+v, want failed with reason", row.Name, row)
		} else if *row.Error != apperrors.ReasonProviderTimeout {
			t.Errorf("row %q reason = %q, want %q", row.Name, *row.Error, apperrors.ReasonProviderTimeout)
		}
	}
}

func TestRunLedgerWriteFailureCountsAsFailed(t *testing.T) {
	campaigns, messages := testCampaign(
		models.CampaignContact{Name: "A", Phone: "9876500000"},
		models.CampaignContact{Name: "B", Phone: "9876500001"},
	)
	messages.insertFail = map[string]error{
		"919876500001": errors.New("tenant database write failed"),
	}
	d := newTestDispatcher(&fakeGateway{})

	if err := d.Run(context.Background(), campaigns, messages, uuid.New(), campaigns.campaign.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if campaigns.finSuccess != 1 || campaigns.finFailed != 1 {
		t.Errorf("counts = %d/%d, want 1/1 (unrecorded send is not a success)", campaigns.finSuccess, campaigns.finFailed)
	}
	if got := campaigns.finSuccess + campaigns.finFailed; got != campaigns.campaign.TotalCount {
		t.Errorf("success+failed = %d, want total %d", got, campaigns.campaign.TotalCount)
	}
}

func TestRunConflictDoesNotFinish(t *testing.T) {
	campaigns, messages := testCampaign()
	campaigns.beginErr = apperrors.ErrCampaignConflict

	d := newTestDispatcher(&fakeGateway{})
	err := d.Run(context.Background(), campaigns, messages, uuid.New(), campaigns.campaign.ID)
	if !errors.Is(err, apperrors.ErrCampaignConflict) {
		t.Fatalf("Run = %v, want ErrCampaignConflict", err)
	}
	if campaigns.finishCalls != 0 {
		t.Errorf("FinishRun called %d times for a conflicted run, want 0", campaigns.finishCalls)
	}
}
