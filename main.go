package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"reachly/config"
	"reachly/middleware"
	"reachly/models"
	"reachly/orchestrator"
	"reachly/routes"
	"reachly/utils"
	"reachly/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "REACHLY: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Sentry when a DSN is configured
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := config.ConnectRedis(); err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Assemble the orchestration engine
	store := models.NewStore(config.DB)
	locker := orchestrator.NewRedisLocker(config.RDB)

	factory := orchestrator.NewCredentialAdapterFactory(store, utils.Decrypt)
	factory.BaseURLs = map[string]string{
		models.ProviderSmartlead: config.AppConfig.Providers.SmartleadBaseURL,
		models.ProviderNureply:   config.AppConfig.Providers.NureplyBaseURL,
		models.ProviderInstantly: config.AppConfig.Providers.InstantlyBaseURL,
		models.ProviderHeyReach:  config.AppConfig.Providers.HeyReachBaseURL,
	}
	factory.Timeout = time.Duration(config.AppConfig.Providers.TimeoutSeconds) * time.Second

	alertMailer := &utils.AlertMailer{
		Host:      config.AppConfig.SMTPHost,
		Port:      config.AppConfig.SMTPPort,
		Username:  config.AppConfig.SMTPUsername,
		Password:  config.AppConfig.SMTPPassword,
		FromEmail: config.AppConfig.FromEmail,
		AlertTo:   config.AppConfig.AlertEmail,
		Logger:    logger,
	}

	machine := orchestrator.NewMachine(store, factory, locker,
		log.New(os.Stdout, "ORCH: ", log.LstdFlags))
	machine.Alerts = alertMailer
	machine.VerifyEmail = utils.VerifyLeadEmail

	control := orchestrator.NewControl(store, factory, locker,
		log.New(os.Stdout, "CONTROL: ", log.LstdFlags))

	// Start background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tickWorker := worker.NewTickWorker(store, machine, factory,
		log.New(os.Stdout, "TICK: ", log.LstdFlags))
	tickWorker.SweepSpec = config.AppConfig.TickSweepSpec
	tickWorker.DriftSpec = config.AppConfig.DriftCheckSpec
	tickWorker.BatchSize = config.AppConfig.TickBatchSize
	go tickWorker.Start(ctx)

	replyWorker := worker.NewReplyWorker(store, machine, utils.Decrypt,
		log.New(os.Stdout, "REPLY: ", log.LstdFlags))
	replyWorker.PollInterval = time.Duration(config.AppConfig.ReplyPollSecs) * time.Second
	go replyWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, routes.Deps{
		Store:   store,
		Machine: machine,
		Control: control,
	})

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
