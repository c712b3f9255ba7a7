package controller

import (
	"log"

	"reachly/models"
	"reachly/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type LeadController struct {
	DB     *gorm.DB
	Logger *log.Logger
	Store  *models.Store
}

func NewLeadController(db *gorm.DB, logger *log.Logger, store *models.Store) *LeadController {
	return &LeadController{
		DB:     db,
		Logger: logger,
		Store:  store,
	}
}

// CreateLead adds a qualified lead to a campaign
func (lc *LeadController) CreateLead(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)

	var input struct {
		CampaignID  uint   `json:"campaign_id" validate:"required"`
		Email       string `json:"email" validate:"required,email"`
		FirstName   string `json:"first_name"`
		LastName    string `json:"last_name"`
		Company     string `json:"company"`
		JobTitle    string `json:"job_title"`
		LinkedInURL string `json:"linkedin_url"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var campaign models.Campaign
	if err := lc.DB.Where("id = ? AND tenant_id = ?", input.CampaignID, tenantID).First(&campaign).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
	}

	lead := models.Lead{
		TenantID:    tenantID,
		CampaignID:  campaign.ID,
		Email:       input.Email,
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		Company:     input.Company,
		JobTitle:    input.JobTitle,
		LinkedInURL: input.LinkedInURL,
		Status:      models.LeadStatusQualified,
	}

	if err := lc.DB.Create(&lead).Error; err != nil {
		lc.Logger.Printf("failed to create lead: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create lead", nil)
	}
	if err := lc.Store.BumpCampaignCounter(c.Context(), campaign.ID, "total_leads"); err != nil {
		lc.Logger.Printf("failed to bump total_leads for campaign %d: %v", campaign.ID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(lead))
}

// GetLeads returns leads for a campaign, optionally filtered by status
func (lc *LeadController) GetLeads(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	campaignID := c.Query("campaign_id")
	status := c.Query("status")

	query := lc.DB.Where("tenant_id = ?", tenantID)
	if campaignID != "" {
		query = query.Where("campaign_id = ?", campaignID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var leads []models.Lead
	if err := query.Order("created_at DESC").Limit(500).Find(&leads).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch leads", nil)
	}
	return c.JSON(utils.SuccessResponse(leads))
}

// GetLead returns one lead with its delivery state and memories
func (lc *LeadController) GetLead(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	leadID := utils.ParseUint(c.Params("id"))

	var lead models.Lead
	if err := lc.DB.Where("id = ? AND tenant_id = ?", leadID, tenantID).First(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	var delivery *models.DeliveryState
	if seq, err := lc.Store.GetActiveSequence(c.Context(), lead.ID); err == nil && seq != nil {
		delivery, _ = lc.Store.GetDeliveryState(c.Context(), seq.ID)
	}

	var memories []models.LeadMemory
	lc.DB.Where("lead_id = ?", lead.ID).Order("created_at DESC").Limit(50).Find(&memories)

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"lead":     lead,
		"delivery": delivery,
		"memories": memories,
	}))
}

// UpdateLeadStatus moves a lead through the qualification pipeline. Statuses
// owned by the orchestrator (deployed, replied, cancelled) are rejected here.
func (lc *LeadController) UpdateLeadStatus(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	leadID := utils.ParseUint(c.Params("id"))

	var input struct {
		Status string `json:"status" validate:"required,oneof=qualified researched sequence_ready holding"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var lead models.Lead
	if err := lc.DB.Where("id = ? AND tenant_id = ?", leadID, tenantID).First(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	if err := lc.Store.UpdateLeadStatus(c.Context(), lead.ID, input.Status); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update lead", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"lead_id": lead.ID,
		"status":  input.Status,
	}))
}

// VerifyLead vets a lead's email address before deployment
func (lc *LeadController) VerifyLead(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	leadID := utils.ParseUint(c.Params("id"))

	var lead models.Lead
	if err := lc.DB.Where("id = ? AND tenant_id = ?", leadID, tenantID).First(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	result := utils.VetLeadEmail(lead.Email)
	return c.JSON(utils.SuccessResponse(result))
}
