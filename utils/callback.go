package utils

import (
	"log"
	"time"

	"calldeck/engine"
	"calldeck/models"

	"gorm.io/gorm"
)

// CallbackSender queues a callback request for the dialer instead of
// sending anything outbound. It implements engine.ActionSender for the
// callback action type.
type CallbackSender struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewCallbackSender(db *gorm.DB, logger *log.Logger) *CallbackSender {
	return &CallbackSender{DB: db, Logger: logger}
}

func (cs *CallbackSender) Send(contact *models.Contact, step *models.FollowUpStep, sequence *models.FollowUpSequence) engine.SendResult {
	campaign := lookupCampaign(cs.DB, contact, sequence)
	reason := engine.RenderTemplate(step.Content, contact, campaign)
	if reason == "" {
		reason = "Follow-up callback: " + sequence.Name
	}

	priority := "normal"
	if sequence.Priority >= 10 {
		priority = "high"
	}

	callback := models.CallbackRequest{
		TeamID:    sequence.TeamID,
		ContactID: contact.ID,
		Priority:  priority,
		Reason:    reason,
		DueAt:     Pointer(time.Now()),
		Status:    "pending",
	}

	if err := cs.DB.Create(&callback).Error; err != nil {
		cs.Logger.Printf("Failed to queue callback for contact %d: %v", contact.ID, err)
		return engine.SendResult{Success: false, Error: err.Error()}
	}

	return engine.SendResult{
		Success: true,
		Detail: map[string]interface{}{
			"channel":     "callback",
			"callback_id": callback.ID,
			"priority":    priority,
		},
	}
}
