package http

import (
	"time"

	"github.com/chatsuite/backend/internal/config"
	"github.com/chatsuite/backend/internal/http/handlers"
	"github.com/chatsuite/backend/internal/middleware"
	"github.com/chatsuite/backend/internal/tenant"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	resolver *tenant.Resolver,
	clientPool *tenant.Pool,
	authHandler *handlers.AuthHandler,
	campaignHandler *handlers.CampaignHandler,
	webhookHandler *handlers.WebhookHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Public endpoints, rate limited per caller IP
	publicLimit := middleware.RateLimitMiddleware(rdb, 100, time.Minute)

	// Auth
	api.Post("/auth/token", publicLimit, authHandler.Exchange)

	// Provider callbacks (tenant carried in the path)
	api.Get("/webhooks/whatsapp/:tenantID", publicLimit, webhookHandler.Verify)
	api.Post("/webhooks/whatsapp/:tenantID", publicLimit, webhookHandler.Receive)

	// Tenant-scoped endpoints: token check first so the rate limit keys by
	// tenant, then tenant resolution and the pooled database client.
	protected := api.Group("",
		middleware.AuthMiddleware(cfg, log),
		middleware.RateLimitMiddleware(rdb, 100, time.Minute),
		middleware.TenantContextMiddleware(resolver, clientPool, log),
	)

	// Campaigns
	protected.Post("/campaigns", campaignHandler.CreateCampaign)
	protected.Get("/campaigns", campaignHandler.ListCampaigns)
	protected.Get("/campaigns/:id", campaignHandler.GetCampaign)
	protected.Put("/campaigns/:id", campaignHandler.UpdateCampaign)
	protected.Delete("/campaigns/:id", campaignHandler.DeleteCampaign)
	protected.Post("/campaigns/:id/run", campaignHandler.RunCampaign)
	protected.Get("/campaigns/:id/messages", campaignHandler.GetCampaignMessages)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
