package middleware

import (
	"strings"

	"github.com/chatsuite/backend/internal/auth"
	"github.com/chatsuite/backend/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const CtxTenantID = "tenant_id"

// AuthMiddleware validates the bearer token and stores the tenant id for the
// rest of the chain. Tenant resolution happens later, in TenantContextMiddleware.
func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals(CtxTenantID, claims.TenantID)
		return c.Next()
	}
}

func GetTenantID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(CtxTenantID).(uuid.UUID)
	return id
}
