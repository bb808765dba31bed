package handlers

import (
	"errors"
	"strconv"

	"github.com/chatsuite/backend/internal/apperrors"
	"github.com/chatsuite/backend/internal/http/dto"
	"github.com/chatsuite/backend/internal/middleware"
	"github.com/chatsuite/backend/internal/models"
	"github.com/chatsuite/backend/internal/repositories"
	"github.com/chatsuite/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CampaignHandler struct {
	campaignService *services.CampaignService
	log             *zap.Logger
}

func NewCampaignHandler(campaignService *services.CampaignService, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{campaignService: campaignService, log: log}
}

func campaignInput(name, templateName, templateLang, scheduleType string, days []string, at *string, contacts []dto.ContactInput) services.CampaignInput {
	in := services.CampaignInput{
		Name:          name,
		TemplateName:  templateName,
		TemplateLang:  templateLang,
		ScheduleType:  scheduleType,
		ScheduledDays: days,
		ScheduledTime: at,
	}
	if contacts != nil {
		in.Contacts = make([]models.CampaignContact, 0, len(contacts))
		for _, ct := range contacts {
			in.Contacts = append(in.Contacts, models.CampaignContact{Name: ct.Name, Phone: ct.Phone})
		}
	}
	return in
}

func campaignError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrCampaignNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "campaign not found"})
	case errors.Is(err, apperrors.ErrCampaignConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "campaign is running"})
	default:
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
}

func (h *CampaignHandler) CreateCampaign(c *fiber.Ctx) error {
	var req dto.CreateCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	in := campaignInput(req.Name, req.TemplateName, req.TemplateLang, req.ScheduleType, req.ScheduledDays, req.ScheduledTime, req.Contacts)
	campaign, err := h.campaignService.Create(c.Context(), middleware.GetTenantPool(c), in)
	if err != nil {
		return campaignError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

func (h *CampaignHandler) GetCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid campaign id"})
	}

	campaign, err := h.campaignService.GetByID(c.Context(), middleware.GetTenantPool(c), id)
	if err != nil {
		return campaignError(c, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

func (h *CampaignHandler) ListCampaigns(c *fiber.Ctx) error {
	filter := repositories.CampaignFilter{
		Limit:  20,
		Offset: 0,
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	campaigns, err := h.campaignService.List(c.Context(), middleware.GetTenantPool(c), filter)
	if err != nil {
		h.log.Error("list campaigns failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: campaigns})
}

func (h *CampaignHandler) UpdateCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid campaign id"})
	}

	var req dto.UpdateCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	in := campaignInput(req.Name, req.TemplateName, req.TemplateLang, req.ScheduleType, req.ScheduledDays, req.ScheduledTime, req.Contacts)
	campaign, err := h.campaignService.Update(c.Context(), middleware.GetTenantPool(c), id, in)
	if err != nil {
		return campaignError(c, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: campaign})
}

func (h *CampaignHandler) DeleteCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid campaign id"})
	}

	if err := h.campaignService.Delete(c.Context(), middleware.GetTenantPool(c), id); err != nil {
		return campaignError(c, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

// RunCampaign triggers a run and returns 202 immediately; progress is
// observable via the campaign status and the websocket event stream.
func (h *CampaignHandler) RunCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid campaign id"})
	}

	tenantID := middleware.GetTenantID(c)
	if err := h.campaignService.Run(c.Context(), middleware.GetTenantPool(c), tenantID, id); err != nil {
		return campaignError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.SuccessResponse{OK: true})
}

func (h *CampaignHandler) GetCampaignMessages(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid campaign id"})
	}

	campaign, msgs, err := h.campaignService.Messages(c.Context(), middleware.GetTenantPool(c), id)
	if err != nil {
		return campaignError(c, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.CampaignMessagesResponse{
		Campaign: campaign,
		Messages: msgs,
	}})
}
