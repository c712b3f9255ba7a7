package controller

import (
	"time"

	"reachly/config"
	"reachly/models"
	"reachly/utils"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// Register creates a tenant operator account. The first user of a tenant
// slug creates the tenant itself.
func Register(c *fiber.Ctx) error {
	var input struct {
		TenantName string `json:"tenant_name" validate:"required,min=2,max=80"`
		TenantSlug string `json:"tenant_slug" validate:"required,min=2,max=40"`
		Name       string `json:"name"`
		Email      string `json:"email" validate:"required,email"`
		Password   string `json:"password" validate:"required,min=8"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var tenant models.Tenant
	if err := config.DB.Where("slug = ?", input.TenantSlug).First(&tenant).Error; err != nil {
		tenant = models.Tenant{Name: input.TenantName, Slug: input.TenantSlug, IsActive: true}
		if err := config.DB.Create(&tenant).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create tenant", nil)
		}
	}

	var existing models.User
	if err := config.DB.Where("tenant_id = ? AND email = ?", tenant.ID, input.Email).First(&existing).Error; err == nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Account already exists", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create account", nil)
	}

	user := models.User{
		TenantID:     tenant.ID,
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := config.DB.Create(&user).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create account", nil)
	}

	access, refresh, err := utils.GenerateJWTToken(&user)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to issue tokens", nil)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"access_token":  access,
		"refresh_token": refresh,
		"user":          user,
	}))
}

// Login authenticates an operator and issues a token pair
func Login(c *fiber.Ctx) error {
	var input struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var user models.User
	if err := config.DB.Where("email = ?", input.Email).First(&user).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid credentials", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid credentials", nil)
	}
	if !user.IsActive {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Account is not active", nil)
	}

	now := time.Now()
	config.DB.Model(&user).Update("last_login_at", &now)

	access, refresh, err := utils.GenerateJWTToken(&user)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to issue tokens", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"access_token":  access,
		"refresh_token": refresh,
		"user":          user,
	}))
}

// RefreshToken exchanges a refresh token for a new pair
func RefreshToken(c *fiber.Ctx) error {
	var input struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	access, refresh, err := utils.RefreshTokens(input.RefreshToken)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid refresh token", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"access_token":  access,
		"refresh_token": refresh,
	}))
}

// GetCurrentUser returns the authenticated operator
func GetCurrentUser(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	return c.JSON(utils.SuccessResponse(user))
}
