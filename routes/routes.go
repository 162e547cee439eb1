package routes

import (
	"log"
	"os"

	controller "calldeck/controllers"
	"calldeck/engine"
	"calldeck/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

func SetupAuthRoutes(app *fiber.App, db *gorm.DB) {
	authLogger := log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Auth routes group with logging middleware
	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	auth.Post("/login", controller.Login)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Get("/me", controller.GetCurrentUser)

	authLogger.Println("Authentication routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, eng *engine.Engine) {
	sequenceController := controller.NewSequenceController(db)
	executionController := controller.NewExecutionController(db, eng)
	contactController := controller.NewContactController(db, eng)

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Sequence routes
	sequence := api.Group("/sequences")
	sequence.Get("/catalog", sequenceController.GetCatalog)
	sequence.Post("/", sequenceController.CreateSequence)
	sequence.Get("/", sequenceController.GetSequences)
	sequence.Get("/:id", sequenceController.GetSequence)
	sequence.Put("/:id", sequenceController.UpdateSequence)
	sequence.Delete("/:id", sequenceController.DeleteSequence)
	sequence.Get("/:id/analytics", executionController.GetAnalytics)

	// Step routes
	sequence.Post("/:id/steps", sequenceController.AddStep)
	sequence.Put("/:id/steps/:stepId", sequenceController.UpdateStep)
	sequence.Delete("/:id/steps/:stepId", sequenceController.DeleteStep)
	sequence.Put("/:id/steps", sequenceController.ReorderSteps)

	// Execution routes, trigger is rate limited per team and contact
	execution := api.Group("/executions")
	execution.Post("/trigger", middleware.TriggerRateLimiter(), executionController.TriggerSequences)
	execution.Get("/", executionController.GetExecutions)
	execution.Get("/:id", executionController.GetExecution)
	execution.Post("/:id/cancel", executionController.CancelExecution)
	execution.Post("/process-due", executionController.ProcessDue)

	// WebSocket route for execution progress
	app.Get("/api/v1/executions/progress", websocket.New(func(c *websocket.Conn) {
		executionController.HandleExecutionProgressWS(c)
	}))

	// Contact routes
	contact := api.Group("/contacts")
	contact.Post("/", contactController.CreateContact)
	contact.Get("/", contactController.GetContacts)
	contact.Get("/:id", contactController.GetContact)
	contact.Put("/:id", contactController.UpdateContact)
	contact.Delete("/:id", contactController.DeleteContact)

	// Call ingestion and callback queue
	api.Post("/calls", contactController.RecordCall)
	api.Get("/callbacks", contactController.GetCallbacks)

	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB, eng *engine.Engine) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupAuthRoutes(app, db)
	SetupAPIRoutes(app, db, eng)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
