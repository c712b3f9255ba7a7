package controller

import (
	"log"

	"reachly/models"
	"reachly/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CredentialController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewCredentialController(db *gorm.DB, logger *log.Logger) *CredentialController {
	return &CredentialController{DB: db, Logger: logger}
}

// UpsertCredential stores a provider API key for the tenant, encrypted at
// rest. One active credential per provider.
func (cc *CredentialController) UpsertCredential(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)

	var input struct {
		Provider string `json:"provider" validate:"required,oneof=smartlead nureply instantly heyreach"`
		APIKey   string `json:"api_key" validate:"required,min=8"`
		BaseURL  string `json:"base_url"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	encrypted, err := utils.Encrypt(input.APIKey)
	if err != nil {
		cc.Logger.Printf("failed to encrypt credential: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to store credential", nil)
	}

	var cred models.ProviderCredential
	err = cc.DB.Where("tenant_id = ? AND provider = ?", tenantID, input.Provider).First(&cred).Error
	if err != nil {
		cred = models.ProviderCredential{TenantID: tenantID, Provider: input.Provider}
	}
	cred.APIKeyEncrypted = encrypted
	cred.BaseURL = input.BaseURL
	cred.IsActive = true
	cred.LastError = ""

	if err := cc.DB.Save(&cred).Error; err != nil {
		cc.Logger.Printf("failed to save credential: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to store credential", nil)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"provider": cred.Provider,
		"base_url": cred.BaseURL,
	}))
}

// ListCredentials returns the tenant's configured providers, keys excluded
func (cc *CredentialController) ListCredentials(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)

	var creds []models.ProviderCredential
	if err := cc.DB.Where("tenant_id = ?", tenantID).Find(&creds).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch credentials", nil)
	}
	return c.JSON(utils.SuccessResponse(creds))
}

// DeactivateCredential disables a provider credential without deleting it
func (cc *CredentialController) DeactivateCredential(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	provider := c.Params("provider")

	res := cc.DB.Model(&models.ProviderCredential{}).
		Where("tenant_id = ? AND provider = ?", tenantID, provider).
		Update("is_active", false)
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to deactivate credential", nil)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Credential not found", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"provider": provider, "is_active": false}))
}
