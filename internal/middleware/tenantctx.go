package middleware

import (
	"errors"

	"github.com/chatsuite/backend/internal/apperrors"
	"github.com/chatsuite/backend/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	CtxTenant     = "tenant"
	CtxTenantPool = "tenant_pool"
)

// TenantContextMiddleware resolves the authenticated tenant and attaches its
// pooled database client. Runs after AuthMiddleware.
func TenantContextMiddleware(resolver *tenant.Resolver, pool *tenant.Pool, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID := GetTenantID(c)

		tc, err := resolver.Resolve(c.Context(), tenantID)
		if err != nil {
			if errors.Is(err, apperrors.ErrUnauthenticated) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthenticated"})
			}
			log.Warn("tenant resolution failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "tenant unavailable"})
		}

		client, err := pool.GetOrCreate(c.Context(), tc.TenantID, tc.Descriptor)
		if err != nil {
			log.Error("tenant client creation failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "tenant unavailable"})
		}

		c.Locals(CtxTenant, tc)
		c.Locals(CtxTenantPool, client)
		return c.Next()
	}
}

func GetTenant(c *fiber.Ctx) *tenant.Context {
	tc, _ := c.Locals(CtxTenant).(*tenant.Context)
	return tc
}

func GetTenantPool(c *fiber.Ctx) *pgxpool.Pool {
	p, _ := c.Locals(CtxTenantPool).(*pgxpool.Pool)
	return p
}
