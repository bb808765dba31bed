package handlers

import (
	"github.com/chatsuite/backend/internal/auth"
	"github.com/chatsuite/backend/internal/config"
	"github.com/chatsuite/backend/internal/http/dto"
	"github.com/chatsuite/backend/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AuthHandler struct {
	tenantRepo *repositories.TenantRepo
	cfg        *config.Config
	log        *zap.Logger
}

func NewAuthHandler(tenantRepo *repositories.TenantRepo, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{tenantRepo: tenantRepo, cfg: cfg, log: log}
}

// Exchange trades a tenant API key for a short-lived JWT.
func (h *AuthHandler) Exchange(c *fiber.Ctx) error {
	var req dto.AuthRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.APIKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "api_key is required"})
	}

	tenant, err := h.tenantRepo.GetByAPIKey(c.Context(), req.APIKey)
	if err != nil {
		h.log.Error("tenant lookup failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	if tenant == nil || !tenant.Active {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid api key"})
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, tenant.ID, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.JSON(dto.AuthResponse{
		Token:  token,
		Tenant: fiber.Map{"id": tenant.ID, "name": tenant.Name},
	})
}
