package services

import (
	"context"
	"fmt"
	"time"

	"github.com/chatsuite/backend/internal/apperrors"
	"github.com/chatsuite/backend/internal/models"
	"github.com/chatsuite/backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var weekdays = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

// CampaignService orchestrates campaign CRUD and run triggers. Stores are
// built per call around the caller's pooled tenant client.
type CampaignService struct {
	dispatcher *Dispatcher
	log        *zap.Logger
}

func NewCampaignService(dispatcher *Dispatcher, log *zap.Logger) *CampaignService {
	return &CampaignService{dispatcher: dispatcher, log: log}
}

type CampaignInput struct {
	Name          string
	TemplateName  string
	TemplateLang  string
	ScheduleType  string
	ScheduledDays []string
	ScheduledTime *string
	Contacts      []models.CampaignContact
}

func (in *CampaignInput) validate() error {
	if in.Name == "" || in.TemplateName == "" {
		return fmt.Errorf("name and template_name are required")
	}
	if in.TemplateLang == "" {
		in.TemplateLang = "en"
	}
	switch in.ScheduleType {
	case "", models.ScheduleTypeOneTime:
		in.ScheduleType = models.ScheduleTypeOneTime
	case models.ScheduleTypeTimeBased:
		if len(in.ScheduledDays) == 0 || in.ScheduledTime == nil {
			return fmt.Errorf("time_based campaigns require scheduled_days and scheduled_time")
		}
		for _, d := range in.ScheduledDays {
			if !weekdays[d] {
				return fmt.Errorf("invalid weekday %q", d)
			}
		}
		if _, err := time.Parse("15:04", *in.ScheduledTime); err != nil {
			return fmt.Errorf("scheduled_time must be HH:MM")
		}
	default:
		return fmt.Errorf("invalid schedule_type %q", in.ScheduleType)
	}
	return nil
}

func (s *CampaignService) Create(ctx context.Context, pool *pgxpool.Pool, in CampaignInput) (*models.Campaign, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	c := &models.Campaign{
		Name:          in.Name,
		TemplateName:  in.TemplateName,
		TemplateLang:  in.TemplateLang,
		ScheduleType:  in.ScheduleType,
		ScheduledDays: in.ScheduledDays,
		ScheduledTime: in.ScheduledTime,
		Status:        models.CampaignStatusDraft,
	}
	if in.ScheduleType == models.ScheduleTypeTimeBased {
		c.Status = models.CampaignStatusScheduled
	}

	if err := repositories.NewCampaignRepo(pool).Create(ctx, c, in.Contacts); err != nil {
		return nil, err
	}

	s.audit(ctx, pool, "user", "campaign_created", c.ID)
	return c, nil
}

func (s *CampaignService) GetByID(ctx context.Context, pool *pgxpool.Pool, id uuid.UUID) (*models.Campaign, error) {
	return repositories.NewCampaignRepo(pool).GetByID(ctx, id)
}

func (s *CampaignService) List(ctx context.Context, pool *pgxpool.Pool, f repositories.CampaignFilter) ([]models.Campaign, error) {
	return repositories.NewCampaignRepo(pool).List(ctx, f)
}

func (s *CampaignService) Messages(ctx context.Context, pool *pgxpool.Pool, id uuid.UUID) (*models.Campaign, []models.CampaignMessage, error) {
	c, err := repositories.NewCampaignRepo(pool).GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := repositories.NewMessageRepo(pool).ListByCampaign(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return c, msgs, nil
}

// Update replaces the campaign fields and, when a contact list is supplied,
// the whole recipient list. Rejected while the campaign is running.
func (s *CampaignService) Update(ctx context.Context, pool *pgxpool.Pool, id uuid.UUID, in CampaignInput) (*models.Campaign, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	repo := repositories.NewCampaignRepo(pool)
	existing, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status == models.CampaignStatusRunning {
		return nil, apperrors.ErrCampaignConflict
	}

	existing.Name = in.Name
	existing.TemplateName = in.TemplateName
	existing.TemplateLang = in.TemplateLang
	existing.ScheduleType = in.ScheduleType
	existing.ScheduledDays = in.ScheduledDays
	existing.ScheduledTime = in.ScheduledTime
	if in.ScheduleType == models.ScheduleTypeTimeBased && existing.Status == models.CampaignStatusDraft {
		existing.Status = models.CampaignStatusScheduled
	}

	if err := repo.Update(ctx, existing); err != nil {
		return nil, err
	}

	if in.Contacts != nil {
		if err := repo.ReplaceContacts(ctx, id, in.Contacts); err != nil {
			return nil, err
		}
		existing.TotalCount = len(in.Contacts)
	}

	s.audit(ctx, pool, "user", "campaign_updated", id)
	return existing, nil
}

func (s *CampaignService) Delete(ctx context.Context, pool *pgxpool.Pool, id uuid.UUID) error {
	if err := repositories.NewCampaignRepo(pool).Delete(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, pool, "user", "campaign_deleted", id)
	return nil
}

// Run triggers a campaign run in the background and returns immediately.
// The dispatcher owns all state transitions from here.
func (s *CampaignService) Run(ctx context.Context, pool *pgxpool.Pool, tenantID, id uuid.UUID) error {
	repo := repositories.NewCampaignRepo(pool)
	c, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == models.CampaignStatusRunning {
		return apperrors.ErrCampaignConflict
	}

	s.audit(ctx, pool, "user", "campaign_run_triggered", id)

	go func() {
		// The run outlives the HTTP request; the dispatcher bounds its duration.
		msgRepo := repositories.NewMessageRepo(pool)
		if err := s.dispatcher.Run(context.Background(), repo, msgRepo, tenantID, id); err != nil {
			s.log.Error("manual campaign run failed",
				zap.String("tenant_id", tenantID.String()),
				zap.String("campaign_id", id.String()),
				zap.Error(err),
			)
		}
	}()
	return nil
}

func (s *CampaignService) audit(ctx context.Context, pool *pgxpool.Pool, actor, action string, id uuid.UUID) {
	err := repositories.NewAuditRepo(pool).Log(ctx, models.AuditLog{
		ActorType:  actor,
		Action:     action,
		EntityType: "campaign",
		EntityID:   &id,
	})
	if err != nil {
		s.log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}
