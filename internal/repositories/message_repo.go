package repositories

import (
	"context"
	"errors"

	"github.com/chatsuite/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepo owns the per-run outcome ledger in one tenant's database.
type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// DeleteByCampaign clears the previous run's ledger. Every run starts from
// an empty ledger; rows never accumulate across reruns.
func (r *MessageRepo) DeleteByCampaign(ctx context.Context, campaignID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM campaign_messages WHERE campaign_id = $1`, campaignID)
	return err
}

func (r *MessageRepo) Insert(ctx context.Context, m *models.CampaignMessage) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO campaign_messages (campaign_id, phone, name, status, error, message_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, m.CampaignID, m.Phone, m.Name, m.Status, m.Error, m.MessageID,
	).Scan(&m.ID, &m.CreatedAt)
}

func (r *MessageRepo) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.CampaignMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, campaign_id, phone, name, status, error, message_id, created_at
		FROM campaign_messages WHERE campaign_id = $1 ORDER BY created_at, id
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.CampaignMessage
	for rows.Next() {
		var m models.CampaignMessage
		if err := rows.Scan(&m.ID, &m.CampaignID, &m.Phone, &m.Name, &m.Status,
			&m.Error, &m.MessageID, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// UpdateStatusByProviderID applies an asynchronous delivery callback. Returns
// the affected campaign id, or uuid.Nil when no row matches (stale callback).
func (r *MessageRepo) UpdateStatusByProviderID(ctx context.Context, providerMessageID, status string) (uuid.UUID, error) {
	var campaignID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		UPDATE campaign_messages SET status = $1
		WHERE message_id = $2
		RETURNING campaign_id
	`, status, providerMessageID).Scan(&campaignID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, nil
		}
		return uuid.Nil, err
	}
	return campaignID, nil
}
