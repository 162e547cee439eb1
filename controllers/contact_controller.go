package controller

import (
	"log"
	"os"
	"time"

	"calldeck/engine"
	"calldeck/models"
	"calldeck/utils"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ContactController struct {
	DB     *gorm.DB
	Engine *engine.Engine
	Logger *log.Logger
}

func NewContactController(db *gorm.DB, eng *engine.Engine) *ContactController {
	return &ContactController{
		DB:     db,
		Engine: eng,
		Logger: log.New(os.Stdout, "CONTACT: ", log.LstdFlags),
	}
}

// callStatusEvents maps a finished call's status to the trigger event it fires
var callStatusEvents = map[string]string{
	"completed": "call_completed",
	"answered":  "call_completed",
	"missed":    "call_missed",
	"no_answer": "call_no_answer",
}

// CreateContact creates a contact for the team
func (cc *ContactController) CreateContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Name       string `json:"name" validate:"required"`
		Phone      string `json:"phone" validate:"required"`
		Email      string `json:"email"`
		Company    string `json:"company"`
		CampaignID *uint  `json:"campaign_id"`
		LeadTier   string `json:"lead_tier" validate:"omitempty,oneof=hot warm cold"`
		LeadScore  int    `json:"lead_score" validate:"min=0,max=100"`
		Source     string `json:"source"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if input.Email != "" {
		if err := checkmail.ValidateFormat(input.Email); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid email format"})
		}
	}

	contact := models.Contact{
		TeamID:     user.TeamID,
		CampaignID: input.CampaignID,
		Name:       input.Name,
		Phone:      input.Phone,
		Email:      input.Email,
		Company:    input.Company,
		LeadTier:   input.LeadTier,
		LeadScore:  input.LeadScore,
		Source:     input.Source,
	}
	if contact.LeadTier == "" {
		contact.LeadTier = "cold"
	}

	if err := cc.DB.Create(&contact).Error; err != nil {
		utils.LogError("contact_create", err, map[string]interface{}{"team_id": user.TeamID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create contact",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(contact)
}

// GetContacts lists the team's contacts with optional filters
func (cc *ContactController) GetContacts(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query := cc.DB.Where("team_id = ?", user.TeamID)
	if tier := c.Query("lead_tier"); tier != "" {
		query = query.Where("lead_tier = ?", tier)
	}
	if campaignID, err := utils.ParseUint(c.Query("campaign_id")); err == nil && campaignID > 0 {
		query = query.Where("campaign_id = ?", campaignID)
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("name LIKE ? OR phone LIKE ? OR email LIKE ?",
			"%"+search+"%", "%"+search+"%", "%"+search+"%")
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
	query.Model(&models.Contact{}).Count(&total)

	var contacts []models.Contact
	if err := query.Order("id DESC").Offset((page - 1) * limit).Limit(limit).
		Find(&contacts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch contacts",
		})
	}

	return c.JSON(utils.PaginatedResponse(contacts, total, page, limit))
}

// GetContact returns one contact
func (cc *ContactController) GetContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	contactID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid contact ID"})
	}

	var contact models.Contact
	if err := cc.DB.Where("id = ? AND team_id = ?", contactID, user.TeamID).
		First(&contact).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Contact not found"})
	}

	return c.JSON(contact)
}

// UpdateContact updates contact fields
func (cc *ContactController) UpdateContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	contactID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid contact ID"})
	}

	var contact models.Contact
	if err := cc.DB.Where("id = ? AND team_id = ?", contactID, user.TeamID).
		First(&contact).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Contact not found"})
	}

	var input struct {
		Name           *string `json:"name"`
		Phone          *string `json:"phone"`
		Email          *string `json:"email"`
		Company        *string `json:"company"`
		LeadTier       *string `json:"lead_tier"`
		LeadScore      *int    `json:"lead_score"`
		IsDoNotContact *bool   `json:"is_do_not_contact"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Phone != nil {
		updates["phone"] = *input.Phone
	}
	if input.Email != nil {
		if *input.Email != "" {
			if err := checkmail.ValidateFormat(*input.Email); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid email format"})
			}
		}
		updates["email"] = *input.Email
	}
	if input.Company != nil {
		updates["company"] = *input.Company
	}
	if input.LeadTier != nil {
		updates["lead_tier"] = *input.LeadTier
	}
	if input.LeadScore != nil {
		updates["lead_score"] = *input.LeadScore
	}
	if input.IsDoNotContact != nil {
		updates["is_do_not_contact"] = *input.IsDoNotContact
	}

	if len(updates) > 0 {
		if err := cc.DB.Model(&contact).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update contact",
			})
		}
	}

	return c.JSON(contact)
}

// DeleteContact soft-deletes a contact
func (cc *ContactController) DeleteContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	contactID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid contact ID"})
	}

	var contact models.Contact
	if err := cc.DB.Where("id = ? AND team_id = ?", contactID, user.TeamID).
		First(&contact).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Contact not found"})
	}

	if err := cc.DB.Delete(&contact).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete contact",
		})
	}

	return c.JSON(fiber.Map{"message": "Contact deleted"})
}

// RecordCall ingests a finished call, updates the contact's last-contact
// timestamp, and fires the matching trigger event so follow-up sequences
// start automatically.
func (cc *ContactController) RecordCall(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		ContactID       uint   `json:"contact_id" validate:"required"`
		AgentID         *uint  `json:"agent_id"`
		Direction       string `json:"direction" validate:"omitempty,oneof=inbound outbound"`
		Status          string `json:"status" validate:"required"`
		DurationSeconds int    `json:"duration_seconds" validate:"min=0"`
		Notes           string `json:"notes"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var contact models.Contact
	if err := cc.DB.Where("id = ? AND team_id = ?", input.ContactID, user.TeamID).
		First(&contact).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Contact not found"})
	}

	now := time.Now()
	call := models.Call{
		TeamID:          user.TeamID,
		ContactID:       contact.ID,
		AgentID:         input.AgentID,
		Direction:       input.Direction,
		Status:          input.Status,
		DurationSeconds: input.DurationSeconds,
		EndedAt:         &now,
		Notes:           input.Notes,
	}
	if call.Direction == "" {
		call.Direction = "outbound"
	}

	if err := cc.DB.Create(&call).Error; err != nil {
		utils.LogError("call_record", err, map[string]interface{}{"contact_id": contact.ID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record call",
		})
	}

	if input.Status == "completed" || input.Status == "answered" {
		cc.DB.Model(&contact).Update("last_contact_at", &now)
	}

	started := 0
	if event, ok := callStatusEvents[input.Status]; ok {
		executions, err := cc.Engine.Trigger(event, contact.ID, &call.ID, contact.CampaignID)
		if err != nil {
			// The call itself is recorded; trigger failures must not lose it.
			utils.LogError("call_trigger", err, map[string]interface{}{
				"call_id": call.ID,
				"event":   event,
			})
		} else {
			started = len(executions)
		}
	}

	cc.Logger.Printf("Recorded %s call %d for contact %d, started %d sequence(s)",
		call.Status, call.ID, contact.ID, started)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"call":              call,
		"sequences_started": started,
	})
}

// GetCallbacks lists callback requests queued by follow-up sequences
func (cc *ContactController) GetCallbacks(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query := cc.DB.Where("team_id = ?", user.TeamID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var callbacks []models.CallbackRequest
	if err := query.Order("CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END, id ASC").
		Find(&callbacks).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch callbacks",
		})
	}

	return c.JSON(fiber.Map{
		"callbacks": callbacks,
		"count":     len(callbacks),
	})
}
