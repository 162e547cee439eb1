package utils

import (
	"fmt"
	"log"

	"calldeck/config"
	"calldeck/engine"
	"calldeck/models"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// EmailSender delivers follow-up emails over SMTP. It implements
// engine.ActionSender for the email action type.
type EmailSender struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewEmailSender(db *gorm.DB, logger *log.Logger) *EmailSender {
	return &EmailSender{DB: db, Logger: logger}
}

func (es *EmailSender) Send(contact *models.Contact, step *models.FollowUpStep, sequence *models.FollowUpSequence) engine.SendResult {
	if contact.Email == "" {
		return engine.SendResult{Success: false, Error: "contact has no email address"}
	}
	if err := checkmail.ValidateFormat(contact.Email); err != nil {
		return engine.SendResult{Success: false, Error: fmt.Sprintf("invalid email address %q: %v", contact.Email, err)}
	}

	campaign := lookupCampaign(es.DB, contact, sequence)
	subject := engine.RenderTemplate(step.Subject, contact, campaign)
	body := engine.RenderTemplate(step.Content, contact, campaign)

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(config.AppConfig.FromEmail, config.AppConfig.FromName))
	m.SetHeader("To", contact.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	messageID := uuid.New().String()
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@calldeck>", messageID))

	d := gomail.NewDialer(
		config.AppConfig.SMTPHost,
		config.AppConfig.SMTPPort,
		config.AppConfig.SMTPUsername,
		config.AppConfig.SMTPPassword,
	)

	if err := d.DialAndSend(m); err != nil {
		es.Logger.Printf("Failed to send follow-up email to %s: %v", contact.Email, err)
		return engine.SendResult{Success: false, Error: err.Error()}
	}

	return engine.SendResult{
		Success: true,
		Detail: map[string]interface{}{
			"channel":    "email",
			"to":         contact.Email,
			"message_id": messageID,
		},
	}
}

// lookupCampaign resolves the campaign for template variables, preferring
// the sequence's campaign over the contact's. Nil when neither is set.
func lookupCampaign(db *gorm.DB, contact *models.Contact, sequence *models.FollowUpSequence) *models.Campaign {
	var campaignID *uint
	if sequence != nil && sequence.CampaignID != nil {
		campaignID = sequence.CampaignID
	} else if contact.CampaignID != nil {
		campaignID = contact.CampaignID
	}
	if campaignID == nil {
		return nil
	}

	var campaign models.Campaign
	if err := db.First(&campaign, *campaignID).Error; err != nil {
		return nil
	}
	return &campaign
}
