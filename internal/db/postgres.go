package db

import (
	"context"
	"time"

	"github.com/chatsuite/backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// NewMasterPool connects to the master database holding the tenant registry.
func NewMasterPool(ctx context.Context, dsn string, log *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("master pool created", zap.Int32("max_conns", cfg.MaxConns))
	return pool, nil
}

// NewTenantPool connects to one tenant's isolated database. Tenant pools are
// kept small; their cardinality equals the number of live tenants.
func NewTenantPool(ctx context.Context, desc models.Descriptor, log *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(desc.DSN())
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 5
	cfg.MinConns = 0
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("tenant pool created", zap.String("db", desc.String()))
	return pool, nil
}
