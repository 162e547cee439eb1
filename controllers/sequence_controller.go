package controller

import (
	"fmt"
	"log"
	"os"
	"time"

	"calldeck/models"
	"calldeck/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SequenceController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSequenceController(db *gorm.DB) *SequenceController {
	return &SequenceController{
		DB:     db,
		Logger: log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags),
	}
}

type StepInput struct {
	StepOrder       int                    `json:"step_order" validate:"required,min=1"`
	ActionType      string                 `json:"action_type" validate:"required"`
	DelayType       string                 `json:"delay_type"`
	DelayMinutes    int                    `json:"delay_minutes" validate:"min=0"`
	SpecificTime    string                 `json:"specific_time"`
	Subject         string                 `json:"subject"`
	Content         string                 `json:"content"`
	Conditions      *models.StepConditions `json:"conditions"`
	SkipIfContacted bool                   `json:"skip_if_contacted"`
	IsActive        *bool                  `json:"is_active"`
}

type SequenceInput struct {
	Name          string      `json:"name" validate:"required,min=1,max=255"`
	Description   string      `json:"description"`
	CampaignID    *uint       `json:"campaign_id"`
	TriggerEvent  string      `json:"trigger_event" validate:"required"`
	IsActive      *bool       `json:"is_active"`
	Priority      int         `json:"priority"`
	MaxExecutions int         `json:"max_executions" validate:"min=0"`
	CooldownHours int         `json:"cooldown_hours" validate:"min=0"`
	Steps         []StepInput `json:"steps"`
}

// validateStepInput rejects step configs the scheduler could not act on.
func validateStepInput(in *StepInput) error {
	if !models.IsValidActionType(in.ActionType) {
		return fmt.Errorf("unknown action type %q", in.ActionType)
	}
	if in.DelayType != "" && !models.IsValidDelayType(in.DelayType) {
		return fmt.Errorf("unknown delay type %q", in.DelayType)
	}
	if in.DelayType == models.DelaySpecificTime {
		if _, err := time.Parse("15:04", in.SpecificTime); err != nil {
			return fmt.Errorf("specific_time must be HH:MM, got %q", in.SpecificTime)
		}
	}
	if in.Conditions != nil {
		for _, day := range in.Conditions.DaysOfWeek {
			if day < 0 || day > 6 {
				return fmt.Errorf("days_of_week entries must be 0-6, got %d", day)
			}
		}
		if in.Conditions.TimeFrom != "" {
			if _, err := time.Parse("15:04", in.Conditions.TimeFrom); err != nil {
				return fmt.Errorf("conditions.time_from must be HH:MM")
			}
		}
		if in.Conditions.TimeTo != "" {
			if _, err := time.Parse("15:04", in.Conditions.TimeTo); err != nil {
				return fmt.Errorf("conditions.time_to must be HH:MM")
			}
		}
	}
	return nil
}

func stepFromInput(sequenceID uint, in *StepInput) models.FollowUpStep {
	step := models.FollowUpStep{
		SequenceID:      sequenceID,
		StepOrder:       in.StepOrder,
		ActionType:      in.ActionType,
		DelayType:       in.DelayType,
		DelayMinutes:    in.DelayMinutes,
		SpecificTime:    in.SpecificTime,
		Subject:         in.Subject,
		Content:         in.Content,
		Conditions:      in.Conditions,
		SkipIfContacted: in.SkipIfContacted,
		IsActive:        true,
	}
	if step.DelayType == "" {
		step.DelayType = models.DelayAfterPrevious
	}
	if in.IsActive != nil {
		step.IsActive = *in.IsActive
	}
	return step
}

// CreateSequence creates a sequence together with its steps in one transaction
func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input SequenceInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if !models.IsValidTriggerEvent(input.TriggerEvent) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("unknown trigger event %q", input.TriggerEvent),
		})
	}
	seen := make(map[int]bool)
	for i := range input.Steps {
		if err := validateStepInput(&input.Steps[i]); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if seen[input.Steps[i].StepOrder] {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("duplicate step_order %d", input.Steps[i].StepOrder),
			})
		}
		seen[input.Steps[i].StepOrder] = true
	}

	sequence := models.FollowUpSequence{
		TeamID:        user.TeamID,
		CampaignID:    input.CampaignID,
		Name:          input.Name,
		Description:   input.Description,
		TriggerEvent:  input.TriggerEvent,
		IsActive:      true,
		Priority:      input.Priority,
		MaxExecutions: input.MaxExecutions,
		CooldownHours: input.CooldownHours,
	}
	if input.IsActive != nil {
		sequence.IsActive = *input.IsActive
	}
	if sequence.MaxExecutions == 0 {
		sequence.MaxExecutions = 1
	}
	if sequence.CooldownHours == 0 {
		sequence.CooldownHours = 24
	}

	err := sc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sequence).Error; err != nil {
			return err
		}
		for i := range input.Steps {
			step := stepFromInput(sequence.ID, &input.Steps[i])
			if err := tx.Create(&step).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		utils.LogError("sequence_create", err, map[string]interface{}{"team_id": user.TeamID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sequence",
		})
	}

	sc.DB.Preload("Steps").First(&sequence, sequence.ID)
	sc.Logger.Printf("Created sequence %d (%s) for team %d", sequence.ID, sequence.Name, user.TeamID)
	return c.Status(fiber.StatusCreated).JSON(sequence)
}

// GetSequences lists the team's sequences
func (sc *SequenceController) GetSequences(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query := sc.DB.Where("team_id = ?", user.TeamID)
	if event := c.Query("trigger_event"); event != "" {
		query = query.Where("trigger_event = ?", event)
	}
	if c.Query("active") == "true" {
		query = query.Where("is_active = ?", true)
	}

	var sequences []models.FollowUpSequence
	if err := query.Preload("Steps").Order("priority DESC, id ASC").Find(&sequences).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch sequences",
		})
	}

	return c.JSON(fiber.Map{
		"sequences": sequences,
		"count":     len(sequences),
	})
}

// GetSequence returns a single sequence with its steps
func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	sequenceID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid sequence ID"})
	}

	var sequence models.FollowUpSequence
	if err := sc.DB.Preload("Steps").
		Where("id = ? AND team_id = ?", sequenceID, user.TeamID).
		First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Sequence not found"})
	}

	return c.JSON(sequence)
}

// UpdateSequence updates sequence-level settings. Steps are managed separately.
func (sc *SequenceController) UpdateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	sequenceID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid sequence ID"})
	}

	var sequence models.FollowUpSequence
	if err := sc.DB.Where("id = ? AND team_id = ?", sequenceID, user.TeamID).
		First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Sequence not found"})
	}

	var input struct {
		Name          *string `json:"name"`
		Description   *string `json:"description"`
		CampaignID    *uint   `json:"campaign_id"`
		TriggerEvent  *string `json:"trigger_event"`
		IsActive      *bool   `json:"is_active"`
		Priority      *int    `json:"priority"`
		MaxExecutions *int    `json:"max_executions"`
		CooldownHours *int    `json:"cooldown_hours"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.CampaignID != nil {
		updates["campaign_id"] = *input.CampaignID
	}
	if input.TriggerEvent != nil {
		if !models.IsValidTriggerEvent(*input.TriggerEvent) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("unknown trigger event %q", *input.TriggerEvent),
			})
		}
		updates["trigger_event"] = *input.TriggerEvent
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if input.Priority != nil {
		updates["priority"] = *input.Priority
	}
	if input.MaxExecutions != nil {
		updates["max_executions"] = *input.MaxExecutions
	}
	if input.CooldownHours != nil {
		updates["cooldown_hours"] = *input.CooldownHours
	}

	if len(updates) > 0 {
		if err := sc.DB.Model(&sequence).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update sequence",
			})
		}
	}

	sc.DB.Preload("Steps").First(&sequence, sequence.ID)
	return c.JSON(sequence)
}

// DeleteSequence soft-deletes a sequence and deactivates it so the worker
// stops picking up its pending executions' future steps.
func (sc *SequenceController) DeleteSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	sequenceID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid sequence ID"})
	}

	var sequence models.FollowUpSequence
	if err := sc.DB.Where("id = ? AND team_id = ?", sequenceID, user.TeamID).
		First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Sequence not found"})
	}

	err = sc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&sequence).Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Delete(&sequence).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete sequence",
		})
	}

	sc.Logger.Printf("Deleted sequence %d for team %d", sequence.ID, user.TeamID)
	return c.JSON(fiber.Map{"message": "Sequence deleted"})
}

// AddStep appends or inserts a step into a sequence
func (sc *SequenceController) AddStep(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	sequenceID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid sequence ID"})
	}

	var sequence models.FollowUpSequence
	if err := sc.DB.Where("id = ? AND team_id = ?", sequenceID, user.TeamID).
		First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Sequence not found"})
	}

	var input StepInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := validateStepInput(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var count int64
	sc.DB.Model(&models.FollowUpStep{}).
		Where("sequence_id = ? AND step_order = ?", sequence.ID, input.StepOrder).
		Count(&count)
	if count > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": fmt.Sprintf("step_order %d already exists", input.StepOrder),
		})
	}

	step := stepFromInput(sequence.ID, &input)
	if err := sc.DB.Create(&step).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create step",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(step)
}

// UpdateStep updates one step of a sequence
func (sc *SequenceController) UpdateStep(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	sequenceID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid sequence ID"})
	}
	stepID, err := utils.ParseUint(c.Params("stepId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid step ID"})
	}

	var step models.FollowUpStep
	if err := sc.DB.
		Joins("JOIN follow_up_sequences ON follow_up_sequences.id = follow_up_steps.sequence_id").
		Where("follow_up_steps.id = ? AND follow_up_steps.sequence_id = ? AND follow_up_sequences.team_id = ?",
			stepID, sequenceID, user.TeamID).
		First(&step).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Step not found"})
	}

	var input StepInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if input.StepOrder == 0 {
		input.StepOrder = step.StepOrder
	}
	if input.ActionType == "" {
		input.ActionType = step.ActionType
	}
	if input.DelayType == "" {
		input.DelayType = step.DelayType
	}
	if err := validateStepInput(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	updated := stepFromInput(step.SequenceID, &input)
	updated.ID = step.ID
	updated.CreatedAt = step.CreatedAt
	if err := sc.DB.Save(&updated).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update step",
		})
	}

	return c.JSON(updated)
}

// DeleteStep removes a step from a sequence
func (sc *SequenceController) DeleteStep(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	sequenceID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid sequence ID"})
	}
	stepID, err := utils.ParseUint(c.Params("stepId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid step ID"})
	}

	var step models.FollowUpStep
	if err := sc.DB.
		Joins("JOIN follow_up_sequences ON follow_up_sequences.id = follow_up_steps.sequence_id").
		Where("follow_up_steps.id = ? AND follow_up_steps.sequence_id = ? AND follow_up_sequences.team_id = ?",
			stepID, sequenceID, user.TeamID).
		First(&step).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Step not found"})
	}

	if err := sc.DB.Delete(&step).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete step",
		})
	}

	return c.JSON(fiber.Map{"message": "Step deleted"})
}

// ReorderSteps rewrites the step order of a whole sequence in one transaction
func (sc *SequenceController) ReorderSteps(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	sequenceID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid sequence ID"})
	}

	var sequence models.FollowUpSequence
	if err := sc.DB.Preload("Steps").
		Where("id = ? AND team_id = ?", sequenceID, user.TeamID).
		First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Sequence not found"})
	}

	var input struct {
		StepIDs []uint `json:"step_ids" validate:"required,min=1"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if len(input.StepIDs) != len(sequence.Steps) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("expected %d step IDs, got %d", len(sequence.Steps), len(input.StepIDs)),
		})
	}
	known := make(map[uint]bool, len(sequence.Steps))
	for _, step := range sequence.Steps {
		known[step.ID] = true
	}
	for _, id := range input.StepIDs {
		if !known[id] {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("step %d does not belong to this sequence", id),
			})
		}
	}

	err = sc.DB.Transaction(func(tx *gorm.DB) error {
		// Two passes avoid unique collisions while orders shift.
		for i, id := range input.StepIDs {
			if err := tx.Model(&models.FollowUpStep{}).Where("id = ?", id).
				Update("step_order", -(i + 1)).Error; err != nil {
				return err
			}
		}
		for i, id := range input.StepIDs {
			if err := tx.Model(&models.FollowUpStep{}).Where("id = ?", id).
				Update("step_order", (i+1)*10).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to reorder steps",
		})
	}

	sc.DB.Preload("Steps").First(&sequence, sequence.ID)
	return c.JSON(sequence)
}

// GetCatalog returns the trigger events, action types and delay types the
// engine understands, for building sequence editors.
func (sc *SequenceController) GetCatalog(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"trigger_events": models.TriggerEvents,
		"action_types":   models.ActionTypes,
		"delay_types":    models.DelayTypes,
	})
}
