package controller

import (
	"errors"
	"log"
	"os"
	"time"

	"calldeck/config"
	"calldeck/engine"
	"calldeck/models"
	"calldeck/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

type ExecutionController struct {
	DB     *gorm.DB
	Engine *engine.Engine
	Logger *log.Logger
}

func NewExecutionController(db *gorm.DB, eng *engine.Engine) *ExecutionController {
	return &ExecutionController{
		DB:     db,
		Engine: eng,
		Logger: log.New(os.Stdout, "EXECUTION: ", log.LstdFlags),
	}
}

// TriggerSequences fires a business event for a contact and starts every
// matching sequence.
func (ec *ExecutionController) TriggerSequences(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Event      string `json:"event" validate:"required"`
		ContactID  uint   `json:"contact_id" validate:"required"`
		CallID     *uint  `json:"call_id"`
		CampaignID *uint  `json:"campaign_id"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if !models.IsValidTriggerEvent(input.Event) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown trigger event"})
	}

	var contact models.Contact
	if err := ec.DB.Where("id = ? AND team_id = ?", input.ContactID, user.TeamID).
		First(&contact).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Contact not found"})
	}

	started, err := ec.Engine.Trigger(input.Event, input.ContactID, input.CallID, input.CampaignID)
	if err != nil {
		if errors.Is(err, engine.ErrContactNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Contact not found"})
		}
		utils.LogError("sequence_trigger", err, map[string]interface{}{
			"event":      input.Event,
			"contact_id": input.ContactID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to trigger sequences",
		})
	}

	ec.Logger.Printf("Event %s for contact %d started %d execution(s)", input.Event, input.ContactID, len(started))
	return c.JSON(fiber.Map{
		"event":      input.Event,
		"contact_id": input.ContactID,
		"started":    len(started),
		"executions": started,
	})
}

// GetExecutions lists executions for the team, optionally filtered
func (ec *ExecutionController) GetExecutions(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query := ec.DB.Model(&models.SequenceExecution{}).
		Joins("JOIN follow_up_sequences ON follow_up_sequences.id = sequence_executions.sequence_id").
		Where("follow_up_sequences.team_id = ?", user.TeamID)
	if status := c.Query("status"); status != "" {
		query = query.Where("sequence_executions.status = ?", status)
	}
	if sequenceID, err := utils.ParseUint(c.Query("sequence_id")); err == nil && sequenceID > 0 {
		query = query.Where("sequence_executions.sequence_id = ?", sequenceID)
	}
	if contactID, err := utils.ParseUint(c.Query("contact_id")); err == nil && contactID > 0 {
		query = query.Where("sequence_executions.contact_id = ?", contactID)
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var total int64
	query.Count(&total)

	var executions []models.SequenceExecution
	if err := query.Order("sequence_executions.id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&executions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch executions",
		})
	}

	return c.JSON(utils.PaginatedResponse(executions, total, page, limit))
}

// GetExecution returns one execution with its step history
func (ec *ExecutionController) GetExecution(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	executionID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid execution ID"})
	}

	execution, steps, err := ec.loadExecution(executionID, user.TeamID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Execution not found"})
	}

	return c.JSON(fiber.Map{
		"execution": execution,
		"steps":     steps,
	})
}

// CancelExecution cancels a running execution
func (ec *ExecutionController) CancelExecution(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	executionID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid execution ID"})
	}

	if _, _, err := ec.loadExecution(executionID, user.TeamID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Execution not found"})
	}

	var input struct {
		Reason string `json:"reason"`
	}
	c.BodyParser(&input)
	if input.Reason == "" {
		input.Reason = "cancelled by user"
	}

	if err := ec.Engine.Cancel(executionID, input.Reason); err != nil {
		if errors.Is(err, engine.ErrExecutionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Execution not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to cancel execution",
		})
	}

	ec.Logger.Printf("Cancelled execution %d: %s", executionID, input.Reason)
	return c.JSON(fiber.Map{"message": "Execution cancelled"})
}

// ProcessDue runs one scheduler pass on demand. The cron worker does this
// every minute; this endpoint exists for ops and tests.
func (ec *ExecutionController) ProcessDue(c *fiber.Ctx) error {
	processed, err := ec.Engine.ProcessDue(time.Now(), config.AppConfig.WorkerBatchLimit)
	if err != nil {
		utils.LogError("process_due", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process due steps",
		})
	}
	return c.JSON(fiber.Map{"processed": processed})
}

// GetAnalytics returns per-sequence funnel stats
func (ec *ExecutionController) GetAnalytics(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	sequenceID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid sequence ID"})
	}

	var sequence models.FollowUpSequence
	if err := ec.DB.Where("id = ? AND team_id = ?", sequenceID, user.TeamID).
		First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Sequence not found"})
	}

	analytics, err := ec.Engine.Analytics(sequenceID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute analytics",
		})
	}

	return c.JSON(analytics)
}

func (ec *ExecutionController) loadExecution(executionID, teamID uint) (*models.SequenceExecution, []models.StepExecution, error) {
	var execution models.SequenceExecution
	err := ec.DB.
		Joins("JOIN follow_up_sequences ON follow_up_sequences.id = sequence_executions.sequence_id").
		Where("sequence_executions.id = ? AND follow_up_sequences.team_id = ?", executionID, teamID).
		First(&execution).Error
	if err != nil {
		return nil, nil, err
	}

	var steps []models.StepExecution
	ec.DB.Where("execution_id = ?", execution.ID).Order("id ASC").Find(&steps)
	return &execution, steps, nil
}

// HandleExecutionProgressWS streams execution status to the dashboard until
// the execution reaches a terminal state or the client disconnects.
func (ec *ExecutionController) HandleExecutionProgressWS(c *websocket.Conn) {
	defer c.Close()

	var input struct {
		ExecutionID uint `json:"execution_id"`
	}
	if err := c.ReadJSON(&input); err != nil {
		ec.Logger.Printf("WS read error: %v", err)
		return
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		var execution models.SequenceExecution
		if err := ec.DB.First(&execution, input.ExecutionID).Error; err != nil {
			c.WriteJSON(fiber.Map{"error": "execution not found"})
			return
		}

		var totalSteps, doneSteps int64
		ec.DB.Model(&models.FollowUpStep{}).
			Where("sequence_id = ? AND is_active = ?", execution.SequenceID, true).
			Count(&totalSteps)
		ec.DB.Model(&models.StepExecution{}).
			Where("execution_id = ? AND status <> ?", execution.ID, models.StepStatusScheduled).
			Count(&doneSteps)

		progress := struct {
			Status      string `json:"status"`
			CurrentStep int    `json:"current_step"`
			StepsDone   int64  `json:"steps_done"`
			StepsTotal  int64  `json:"steps_total"`
		}{
			Status:      execution.Status,
			CurrentStep: execution.CurrentStepOrder,
			StepsDone:   doneSteps,
			StepsTotal:  totalSteps,
		}

		if err := c.WriteJSON(progress); err != nil {
			ec.Logger.Printf("WS write error: %v", err)
			return
		}

		if execution.Status == models.ExecutionStatusCompleted ||
			execution.Status == models.ExecutionStatusCancelled {
			return
		}
	}
}
