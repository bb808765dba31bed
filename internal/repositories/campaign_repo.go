package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatsuite/backend/internal/apperrors"
	"github.com/chatsuite/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CampaignRepo works against one tenant's database. It is a cheap struct
// constructed per request/run around the pooled client.
type CampaignRepo struct {
	pool *pgxpool.Pool
}

func NewCampaignRepo(pool *pgxpool.Pool) *CampaignRepo {
	return &CampaignRepo{pool: pool}
}

const campaignColumns = `id, name, template_name, template_lang, status, schedule_type,
	scheduled_days, scheduled_time, total_count, success_count, failed_count, created_at, updated_at`

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	err := row.Scan(&c.ID, &c.Name, &c.TemplateName, &c.TemplateLang, &c.Status,
		&c.ScheduleType, &c.ScheduledDays, &c.ScheduledTime,
		&c.TotalCount, &c.SuccessCount, &c.FailedCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrCampaignNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Create inserts the campaign and its full contact list in one transaction.
func (r *CampaignRepo) Create(ctx context.Context, c *models.Campaign, contacts []models.CampaignContact) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if c.Status == "" {
		c.Status = models.CampaignStatusDraft
	}
	c.TotalCount = len(contacts)

	err = tx.QueryRow(ctx, `
		INSERT INTO campaigns (name, template_name, template_lang, status, schedule_type,
			scheduled_days, scheduled_time, total_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, c.Name, c.TemplateName, c.TemplateLang, c.Status, c.ScheduleType,
		c.ScheduledDays, c.ScheduledTime, c.TotalCount,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return err
	}

	if err := insertContacts(ctx, tx, c.ID, contacts); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertContacts(ctx context.Context, tx pgx.Tx, campaignID uuid.UUID, contacts []models.CampaignContact) error {
	for i := range contacts {
		contacts[i].CampaignID = campaignID
		err := tx.QueryRow(ctx, `
			INSERT INTO campaign_contacts (campaign_id, name, phone)
			VALUES ($1, $2, $3) RETURNING id
		`, campaignID, contacts[i].Name, contacts[i].Phone).Scan(&contacts[i].ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *CampaignRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	return scanCampaign(r.pool.QueryRow(ctx, `
		SELECT `+campaignColumns+` FROM campaigns WHERE id = $1
	`, id))
}

type CampaignFilter struct {
	Status *string
	Limit  int
	Offset int
}

func (r *CampaignRepo) List(ctx context.Context, f CampaignFilter) ([]models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	args := []any{}
	argIdx := 1

	if f.Status != nil {
		query += fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, *f.Status)
		argIdx++
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		var c models.Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.TemplateName, &c.TemplateLang, &c.Status,
			&c.ScheduleType, &c.ScheduledDays, &c.ScheduledTime,
			&c.TotalCount, &c.SuccessCount, &c.FailedCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// ListDue returns scheduled time-based campaigns matching the current
// weekday and HH:MM exactly.
func (r *CampaignRepo) ListDue(ctx context.Context, weekday, hhmm string) ([]models.Campaign, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE status = $1 AND schedule_type = $2
		  AND $3 = ANY(scheduled_days) AND scheduled_time = $4
	`, models.CampaignStatusScheduled, models.ScheduleTypeTimeBased, weekday, hhmm)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		var c models.Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.TemplateName, &c.TemplateLang, &c.Status,
			&c.ScheduleType, &c.ScheduledDays, &c.ScheduledTime,
			&c.TotalCount, &c.SuccessCount, &c.FailedCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// BeginRun atomically flips the campaign to running and resets the counters.
// The status guard makes concurrent run attempts (scheduler overlap, manual
// trigger racing the scheduler) lose cleanly with ErrCampaignConflict.
func (r *CampaignRepo) BeginRun(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaigns
		SET status = $1, success_count = 0, failed_count = 0, updated_at = now()
		WHERE id = $2 AND status = ANY($3)
	`, models.CampaignStatusRunning, id, models.RunnableStatuses)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return apperrors.ErrCampaignConflict
	}
	return nil
}

// FinishRun writes the aggregate counters once and moves the campaign out of
// running. The single writer is the dispatcher that owns the run.
func (r *CampaignRepo) FinishRun(ctx context.Context, id uuid.UUID, success, failed int, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE campaigns
		SET status = $1, success_count = $2, failed_count = $3, updated_at = now()
		WHERE id = $4 AND status = $5
	`, status, success, failed, id, models.CampaignStatusRunning)
	return err
}

// Update changes the campaign's own fields; the contact list goes through
// ReplaceContacts. Rejected while a run is in progress.
func (r *CampaignRepo) Update(ctx context.Context, c *models.Campaign) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaigns
		SET name = $1, template_name = $2, template_lang = $3, status = $4,
		    schedule_type = $5, scheduled_days = $6, scheduled_time = $7, updated_at = now()
		WHERE id = $8 AND status <> $9
	`, c.Name, c.TemplateName, c.TemplateLang, c.Status,
		c.ScheduleType, c.ScheduledDays, c.ScheduledTime, c.ID, models.CampaignStatusRunning)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, c.ID); err != nil {
			return err
		}
		return apperrors.ErrCampaignConflict
	}
	return nil
}

// ReplaceContacts swaps the whole recipient list and recomputes total_count.
// Wholesale delete-then-recreate, not a diff.
func (r *CampaignRepo) ReplaceContacts(ctx context.Context, campaignID uuid.UUID, contacts []models.CampaignContact) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE campaigns SET total_count = $1, updated_at = now()
		WHERE id = $2 AND status <> $3
	`, len(contacts), campaignID, models.CampaignStatusRunning)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, campaignID); err != nil {
			return err
		}
		return apperrors.ErrCampaignConflict
	}

	if _, err := tx.Exec(ctx, `DELETE FROM campaign_contacts WHERE campaign_id = $1`, campaignID); err != nil {
		return err
	}
	if err := insertContacts(ctx, tx, campaignID, contacts); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *CampaignRepo) ListContacts(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignContact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, campaign_id, name, phone FROM campaign_contacts
		WHERE campaign_id = $1 ORDER BY id
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []models.CampaignContact
	for rows.Next() {
		var c models.CampaignContact
		if err := rows.Scan(&c.ID, &c.CampaignID, &c.Name, &c.Phone); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// Delete removes a campaign and its dependents. Deleting a running campaign
// is rejected rather than racing the dispatcher; the status guard closes the
// check-then-act window at the storage layer.
func (r *CampaignRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM campaigns WHERE id = $1 AND status <> $2
	`, id, models.CampaignStatusRunning)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return apperrors.ErrCampaignConflict
	}
	return nil
}
