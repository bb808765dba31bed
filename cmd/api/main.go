package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chatsuite/backend/internal/config"
	"github.com/chatsuite/backend/internal/db"
	"github.com/chatsuite/backend/internal/events"
	apphttp "github.com/chatsuite/backend/internal/http"
	"github.com/chatsuite/backend/internal/http/dto"
	"github.com/chatsuite/backend/internal/http/handlers"
	"github.com/chatsuite/backend/internal/middleware"
	"github.com/chatsuite/backend/internal/models"
	"github.com/chatsuite/backend/internal/repositories"
	"github.com/chatsuite/backend/internal/services"
	"github.com/chatsuite/backend/internal/tenant"
	"github.com/gofiber/fiber/v2"
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

	// Master database (tenant registry)
	masterPool, err := db.NewMasterPool(ctx, cfg.MasterPostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to master postgres", zap.Error(err))
	}
	defer masterPool.Close()

	if err := db.RunMigrations(ctx, masterPool, "migrations/master", log); err != nil {
		log.Fatal("failed to run master migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Tenancy
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

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	gateway := services.NewWhatsAppClient(cfg.WhatsAppBaseURL, cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID, cfg.ProviderTimeout, log)
	dispatcher := services.NewDispatcher(gateway, publisher, cfg.DefaultCountryCode, cfg.SendConcurrency, cfg.ProviderTimeout, cfg.MaxRunDuration, log)
	campaignService := services.NewCampaignService(dispatcher, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(tenantRepo, cfg, log)
	campaignHandler := handlers.NewCampaignHandler(campaignService, log)
	webhookHandler := handlers.NewWebhookHandler(resolver, clientPool, publisher, cfg, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(dto.ErrorResponse{
				Error:     err.Error(),
				RequestID: middleware.GetRequestID(c),
			})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, resolver, clientPool, authHandler, campaignHandler, webhookHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
