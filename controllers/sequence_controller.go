package controller

import (
	"errors"
	"log"

	"reachly/models"
	"reachly/orchestrator"
	"reachly/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SequenceController struct {
	DB      *gorm.DB
	Logger  *log.Logger
	Store   *models.Store
	Machine *orchestrator.Machine
	Control *orchestrator.Control
}

func NewSequenceController(db *gorm.DB, logger *log.Logger, store *models.Store, machine *orchestrator.Machine, control *orchestrator.Control) *SequenceController {
	return &SequenceController{
		DB:      db,
		Logger:  logger,
		Store:   store,
		Machine: machine,
		Control: control,
	}
}

// CreateSequence stores generated sequence content for a lead. At most one
// non-cancelled sequence may exist per lead; the store enforces that inside
// a transaction.
func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)

	var input struct {
		LeadID              uint                  `json:"lead_id" validate:"required"`
		CampaignID          uint                  `json:"campaign_id" validate:"required"`
		EmailThreads        []models.EmailThread  `json:"email_threads"`
		LinkedInSteps       []models.LinkedInStep `json:"linkedin_steps"`
		SmartleadCampaignID string                `json:"smartlead_campaign_id"`
		HeyReachCampaignID  string                `json:"heyreach_campaign_id"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	sequence := &models.Sequence{
		TenantID:            tenantID,
		CampaignID:          input.CampaignID,
		LeadID:              input.LeadID,
		Status:              models.SequenceStatusPending,
		ReviewStatus:        models.ReviewStatusPending,
		EmailThreads:        input.EmailThreads,
		LinkedInSteps:       input.LinkedInSteps,
		SmartleadCampaignID: input.SmartleadCampaignID,
		HeyReachCampaignID:  input.HeyReachCampaignID,
	}
	if err := sequence.ValidateContent(); err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Invalid sequence content", err)
	}

	if err := sc.Store.CreateSequenceIfNoneActive(c.Context(), sequence); err != nil {
		if errors.Is(err, models.ErrActiveSequenceExists) {
			return utils.ErrorResponse(c, fiber.StatusConflict, "Lead already has an active sequence", err)
		}
		sc.Logger.Printf("failed to create sequence for lead %d: %v", input.LeadID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create sequence", nil)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(sequence))
}

// ReviewSequence records the human approval decision for a sequence
func (sc *SequenceController) ReviewSequence(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	sequenceID := utils.ParseUint(c.Params("id"))

	var input struct {
		Decision string `json:"decision" validate:"required,oneof=approved rejected"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var sequence models.Sequence
	if err := sc.DB.Where("id = ? AND tenant_id = ?", sequenceID, tenantID).First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}
	if sequence.Status != models.SequenceStatusPending {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Sequence is no longer awaiting review", nil)
	}

	status := sequence.Status
	if input.Decision == models.ReviewStatusApproved {
		status = models.SequenceStatusApproved
	}
	if err := sc.Store.UpdateSequenceStatus(c.Context(), sequence.ID, status, input.Decision); err != nil {
		sc.Logger.Printf("failed to review sequence %d: %v", sequence.ID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record review", nil)
	}

	if err := sc.Store.AppendMemory(c.Context(), &models.LeadMemory{
		TenantID:   tenantID,
		LeadID:     sequence.LeadID,
		SequenceID: sequence.ID,
		Kind:       "review",
		Summary:    "sequence " + input.Decision,
	}); err != nil {
		sc.Logger.Printf("failed to record review memory: %v", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"sequence_id":   sequence.ID,
		"review_status": input.Decision,
	}))
}

// DeploySequence enters the delivery state machine for the lead's approved
// sequence and runs the first evaluation tick
func (sc *SequenceController) DeploySequence(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	leadID := utils.ParseUint(c.Params("leadId"))

	var lead models.Lead
	if err := sc.DB.Where("id = ? AND tenant_id = ?", leadID, tenantID).First(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	state, err := sc.Machine.Deploy(c.Context(), lead.ID)
	switch {
	case errors.Is(err, orchestrator.ErrNoActiveSequence):
		return utils.ErrorResponse(c, fiber.StatusConflict, "Lead has no active sequence", err)
	case errors.Is(err, orchestrator.ErrSequenceNotReady):
		return utils.ErrorResponse(c, fiber.StatusConflict, "Sequence is not approved for deployment", err)
	case errors.Is(err, orchestrator.ErrLeadNotContactable):
		return utils.ErrorResponse(c, fiber.StatusConflict, "Lead is not contactable", err)
	case err != nil:
		sc.Logger.Printf("deploy failed for lead %d: %v", lead.ID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Deployment failed", nil)
	}

	return c.JSON(utils.SuccessResponse(state))
}

// ControlSequence applies a master pause/resume/cancel action
func (sc *SequenceController) ControlSequence(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	sequenceID := utils.ParseUint(c.Params("id"))

	var input struct {
		Action string `json:"action" validate:"required,oneof=pause resume cancel"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var sequence models.Sequence
	if err := sc.DB.Where("id = ? AND tenant_id = ?", sequenceID, tenantID).First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	outcome, err := sc.Control.ApplyAction(c.Context(), sequence.ID, input.Action)
	switch {
	case errors.Is(err, orchestrator.ErrIllegalAction):
		return utils.ErrorResponse(c, fiber.StatusConflict, "Action not allowed in current status", err)
	case errors.Is(err, orchestrator.ErrSequenceBusy):
		return utils.ErrorResponse(c, fiber.StatusLocked, "Sequence is busy, retry shortly", err)
	case err != nil:
		sc.Logger.Printf("control %s failed for sequence %d: %v", input.Action, sequence.ID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Control action failed", nil)
	}

	return c.JSON(utils.SuccessResponse(outcome))
}

// GetSequenceStatus returns the authoritative delivery state plus the raw
// provider enrollments backing it
func (sc *SequenceController) GetSequenceStatus(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	sequenceID := utils.ParseUint(c.Params("id"))

	var sequence models.Sequence
	if err := sc.DB.Where("id = ? AND tenant_id = ?", sequenceID, tenantID).First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}

	state, err := sc.Store.GetDeliveryState(c.Context(), sequence.ID)
	if err != nil {
		sc.Logger.Printf("failed to load delivery state for sequence %d: %v", sequence.ID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load delivery state", nil)
	}

	enrollments, err := sc.Store.ListEnrollments(c.Context(), sequence.ID)
	if err != nil {
		sc.Logger.Printf("failed to list enrollments for sequence %d: %v", sequence.ID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load enrollments", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"sequence":    sequence,
		"delivery":    state,
		"enrollments": enrollments,
	}))
}

// GetSequence returns the sequence content for review
func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	sequenceID := utils.ParseUint(c.Params("id"))

	var sequence models.Sequence
	if err := sc.DB.Where("id = ? AND tenant_id = ?", sequenceID, tenantID).First(&sequence).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}
	return c.JSON(utils.SuccessResponse(sequence))
}
