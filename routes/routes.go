package routes

import (
	"log"
	"os"

	"reachly/config"
	controller "reachly/controllers"
	"reachly/middleware"
	"reachly/models"
	"reachly/orchestrator"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

// Deps carries the shared engine components constructed in main
type Deps struct {
	Store   *models.Store
	Machine *orchestrator.Machine
	Control *orchestrator.Control
}

func SetupAuthRoutes(app *fiber.App) {
	authLogger := log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile)

	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Public auth endpoints (no authentication required)
	auth.Post("/register", controller.Register)
	auth.Post("/login", controller.Login)
	auth.Post("/refresh", controller.RefreshToken)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Get("/me", controller.GetCurrentUser)

	authLogger.Println("Authentication routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, deps Deps) {
	sequenceController := controller.NewSequenceController(db,
		log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags), deps.Store, deps.Machine, deps.Control)
	engagementController := controller.NewEngagementController(db,
		log.New(os.Stdout, "ENGAGEMENT: ", log.LstdFlags), deps.Store, deps.Machine)
	campaignController := controller.NewCampaignController(db,
		log.New(os.Stdout, "CAMPAIGN: ", log.LstdFlags), deps.Store)
	leadController := controller.NewLeadController(db,
		log.New(os.Stdout, "LEAD: ", log.LstdFlags), deps.Store)
	credentialController := controller.NewCredentialController(db,
		log.New(os.Stdout, "CREDENTIAL: ", log.LstdFlags))

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Campaign routes
	campaign := api.Group("/campaigns")
	campaign.Post("/", campaignController.CreateCampaign)
	campaign.Get("/", campaignController.GetCampaigns)
	campaign.Get("/:id", campaignController.GetCampaign)
	campaign.Get("/:id/stats", campaignController.GetCampaignStats)
	campaign.Post("/:id/archive", campaignController.ArchiveCampaign)

	// Lead routes
	lead := api.Group("/leads")
	lead.Post("/", leadController.CreateLead)
	lead.Get("/", leadController.GetLeads)
	lead.Get("/:id", leadController.GetLead)
	lead.Put("/:id/status", leadController.UpdateLeadStatus)
	lead.Post("/:id/verify", leadController.VerifyLead)
	lead.Post("/:leadId/deploy", sequenceController.DeploySequence)
	lead.Get("/:leadId/events", engagementController.ListEvents)

	// Sequence routes
	sequence := api.Group("/sequences")
	sequence.Post("/", sequenceController.CreateSequence)
	sequence.Get("/:id", sequenceController.GetSequence)
	sequence.Post("/:id/review", sequenceController.ReviewSequence)
	sequence.Post("/:id/control", sequenceController.ControlSequence)
	sequence.Get("/:id/status", sequenceController.GetSequenceStatus)

	// Provider credential routes
	credential := api.Group("/credentials")
	credential.Post("/", credentialController.UpsertCredential)
	credential.Get("/", credentialController.ListCredentials)
	credential.Delete("/:provider", credentialController.DeactivateCredential)

	// Engagement webhook intake: shared-token auth plus rate limiting; the
	// event UID index makes replays harmless
	app.Post("/webhooks/engagement/:provider",
		middleware.WebhookAuth(config.AppConfig.WebhookToken),
		middleware.WebhookRateLimiter(300),
		engagementController.HandleWebhook)

	// WebSocket route for the live engagement feed
	app.Get("/api/v1/engagement/feed", middleware.Protected(), websocket.New(func(c *websocket.Conn) {
		engagementController.Feed.HandleFeed(c)
	}))

	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB, deps Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupAuthRoutes(app)
	SetupAPIRoutes(app, db, deps)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
