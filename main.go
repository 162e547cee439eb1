package main

import (
	"context"
	"log"
	"os"

	"calldeck/config"
	"calldeck/engine"
	"calldeck/middleware"
	"calldeck/models"
	"calldeck/routes"
	"calldeck/utils"
	"calldeck/worker"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
)

func main() {
	logger := log.New(os.Stdout, "CALLDECK: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Sentry, a blank DSN disables reporting
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         config.AppConfig.SentryDSN,
		Environment: config.AppConfig.Environment,
	}); err != nil {
		logger.Printf("Sentry initialization failed: %v", err)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Build the channel senders and the follow-up engine
	senderLogger := log.New(os.Stdout, "SENDER: ", log.LstdFlags)
	senders := map[string]engine.ActionSender{
		models.ActionTypeSMS:      utils.NewSMSSender(config.DB, senderLogger),
		models.ActionTypeEmail:    utils.NewEmailSender(config.DB, senderLogger),
		models.ActionTypeWhatsApp: utils.NewWhatsAppSender(config.DB, senderLogger),
		models.ActionTypeCallback: utils.NewCallbackSender(config.DB, senderLogger),
	}
	eng := engine.New(config.DB, nil, senders, log.New(os.Stdout, "ENGINE: ", log.LstdFlags))

	// Start the sequence worker
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sequenceWorker := worker.NewSequenceWorker(eng, log.New(os.Stdout, "WORKER: ", log.LstdFlags))
	go sequenceWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, eng)

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
