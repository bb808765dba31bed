package repositories

import (
	"context"
	"errors"

	"github.com/chatsuite/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TenantRepo reads the tenant registry in the master database.
type TenantRepo struct {
	pool *pgxpool.Pool
}

func NewTenantRepo(pool *pgxpool.Pool) *TenantRepo {
	return &TenantRepo{pool: pool}
}

const tenantColumns = `id, name, db_host, db_port, db_user, db_password, db_name, api_key, active, created_at, updated_at`

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.DBHost, &t.DBPort, &t.DBUser, &t.DBPassword,
		&t.DBName, &t.APIKey, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// GetByID returns nil, nil when the tenant does not exist.
func (r *TenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx, `
		SELECT `+tenantColumns+` FROM tenants WHERE id = $1
	`, id))
}

func (r *TenantRepo) GetByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx, `
		SELECT `+tenantColumns+` FROM tenants WHERE api_key = $1
	`, apiKey))
}

func (r *TenantRepo) ListActive(ctx context.Context) ([]models.Tenant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+tenantColumns+` FROM tenants WHERE active ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.DBHost, &t.DBPort, &t.DBUser, &t.DBPassword,
			&t.DBName, &t.APIKey, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// Create registers a tenant. Used by the seed/admin path, not by request flow.
func (r *TenantRepo) Create(ctx context.Context, t *models.Tenant) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO tenants (name, db_host, db_port, db_user, db_password, db_name, api_key, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, t.Name, t.DBHost, t.DBPort, t.DBUser, t.DBPassword, t.DBName, t.APIKey, t.Active,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}
