package controller

import (
	"log"
	"time"

	"reachly/models"
	"reachly/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CampaignController struct {
	DB     *gorm.DB
	Logger *log.Logger
	Store  *models.Store
}

func NewCampaignController(db *gorm.DB, logger *log.Logger, store *models.Store) *CampaignController {
	return &CampaignController{
		DB:     db,
		Logger: logger,
		Store:  store,
	}
}

// CreateCampaign creates a campaign with its channel policy. The policy is
// immutable once leads are deployed; the planner reads it on every tick.
func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)

	var input struct {
		Name                   string `json:"name" validate:"required,min=2,max=120"`
		Description            string `json:"description"`
		BrandID                uint   `json:"brand_id"`
		Mode                   string `json:"mode" validate:"required,oneof=email_only linkedin_only multi_channel"`
		LinkedInFirst          bool   `json:"linkedin_first"`
		WaitForConnection      bool   `json:"wait_for_connection"`
		ConnectionTimeoutHours int    `json:"connection_timeout_hours"`
		EmailHeadStartHours    int    `json:"email_head_start_hours"`
		StepIntervalHours      int    `json:"step_interval_hours"`
		EmailCount             int    `json:"email_count"`
		LinkedInCount          int    `json:"linkedin_count"`
		PauseOnReply           *bool  `json:"pause_on_reply"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	campaign := models.Campaign{
		TenantID:               tenantID,
		BrandID:                input.BrandID,
		Name:                   input.Name,
		Description:            input.Description,
		Mode:                   input.Mode,
		LinkedInFirst:          input.LinkedInFirst,
		WaitForConnection:      input.WaitForConnection,
		ConnectionTimeoutHours: input.ConnectionTimeoutHours,
		EmailHeadStartHours:    input.EmailHeadStartHours,
		StepIntervalHours:      input.StepIntervalHours,
		EmailCount:             input.EmailCount,
		LinkedInCount:          input.LinkedInCount,
		PauseOnReply:           true,
		Status:                 "active",
		StartedAt:              utils.Pointer(time.Now()),
	}
	if input.PauseOnReply != nil {
		campaign.PauseOnReply = *input.PauseOnReply
	}
	if campaign.ConnectionTimeoutHours <= 0 {
		campaign.ConnectionTimeoutHours = 72
	}
	if campaign.StepIntervalHours <= 0 {
		campaign.StepIntervalHours = 24
	}

	if err := cc.DB.Create(&campaign).Error; err != nil {
		cc.Logger.Printf("failed to create campaign: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create campaign", nil)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(campaign))
}

// GetCampaigns returns all campaigns for the tenant
func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)

	var campaigns []models.Campaign
	if err := cc.DB.Where("tenant_id = ?", tenantID).Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaigns", nil)
	}
	return c.JSON(utils.SuccessResponse(campaigns))
}

// GetCampaign returns one campaign with its derived counters
func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND tenant_id = ?", campaignID, tenantID).First(&campaign).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
	}
	return c.JSON(utils.SuccessResponse(campaign))
}

// GetCampaignStats returns delivery-level statistics across the campaign's
// sequences
func (cc *CampaignController) GetCampaignStats(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND tenant_id = ?", campaignID, tenantID).First(&campaign).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
	}

	var byStatus []struct {
		Status string `json:"status"`
		Count  int64  `json:"count"`
	}
	if err := cc.DB.Model(&models.DeliveryState{}).
		Select("delivery_states.status, count(*) as count").
		Joins("JOIN sequences ON sequences.id = delivery_states.sequence_id").
		Where("sequences.campaign_id = ?", campaign.ID).
		Group("delivery_states.status").
		Scan(&byStatus).Error; err != nil {
		cc.Logger.Printf("failed to aggregate delivery states for campaign %d: %v", campaign.ID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to compute stats", nil)
	}

	var needsAttention int64
	cc.DB.Model(&models.DeliveryState{}).
		Joins("JOIN sequences ON sequences.id = delivery_states.sequence_id").
		Where("sequences.campaign_id = ? AND delivery_states.needs_attention = ?", campaign.ID, true).
		Count(&needsAttention)

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"total_leads":     campaign.TotalLeads,
		"leads_contacted": campaign.LeadsContacted,
		"leads_replied":   campaign.LeadsReplied,
		"leads_converted": campaign.LeadsConverted,
		"delivery_states": byStatus,
		"needs_attention": needsAttention,
	}))
}

// ArchiveCampaign archives a campaign; running sequences are untouched
func (cc *CampaignController) ArchiveCampaign(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	campaignID := c.Params("id")

	res := cc.DB.Model(&models.Campaign{}).
		Where("id = ? AND tenant_id = ?", campaignID, tenantID).
		Update("status", "archived")
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to archive campaign", nil)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Campaign archived"}))
}
