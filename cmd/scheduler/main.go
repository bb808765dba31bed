package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatsuite/backend/internal/config"
	"github.com/chatsuite/backend/internal/db"
	"github.com/chatsuite/backend/internal/events"
	"github.com/chatsuite/backend/internal/models"
	"github.com/chatsuite/backend/internal/repositories"
	"github.com/chatsuite/backend/internal/services"
	"github.com/chatsuite/backend/internal/tenant"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	masterPool, err := db.NewMasterPool(ctx, cfg.MasterPostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to master postgres", zap.Error(err))
	}
	defer masterPool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	loc, err := time.LoadLocation(cfg.BusinessTimezone)
	if err != nil {
		log.Fatal("invalid business timezone", zap.String("timezone", cfg.BusinessTimezone), zap.Error(err))
	}

	tenantRepo := repositories.NewTenantRepo(masterPool)
	resolver := tenant.NewResolver(tenantRepo, cfg.TenantCacheTTL, log)
	clientPool := tenant.NewPool(func(fctx context.Context, desc models.Descriptor) (*pgxpool.Pool, error) {
		p, err := db.NewTenantPool(fctx, desc, log)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(fctx, p, "migrations/tenant", log); err != nil {
			p.Close()
			return nil, err
		}
		return p, nil
	}, log)
	defer clientPool.Close()

	publisher := events.NewRedisPublisher(rdb, log)
	gateway := services.NewWhatsAppClient(cfg.WhatsAppBaseURL, cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID, cfg.ProviderTimeout, log)
	dispatcher := services.NewDispatcher(gateway, publisher, cfg.DefaultCountryCode, cfg.SendConcurrency, cfg.ProviderTimeout, cfg.MaxRunDuration, log)

	stores := func(sctx context.Context, t models.Tenant) (*services.TenantStores, error) {
		tc, err := resolver.Resolve(sctx, t.ID)
		if err != nil {
			return nil, err
		}
		client, err := clientPool.GetOrCreate(sctx, tc.TenantID, tc.Descriptor)
		if err != nil {
			return nil, err
		}
		campaignRepo := repositories.NewCampaignRepo(client)
		return &services.TenantStores{
			Campaigns: campaignRepo,
			Due:       campaignRepo,
			Messages:  repositories.NewMessageRepo(client),
		}, nil
	}

	scheduler := services.NewScheduler(tenantRepo, stores, dispatcher, loc, cfg.TickInterval, cfg.MaxTickDuration, cfg.TenantFanOut, log)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down scheduler")
		cancel()
	}()

	scheduler.Start(ctx)
}
