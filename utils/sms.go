package utils

import (
	"log"

	"calldeck/config"
	"calldeck/engine"
	"calldeck/models"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"gorm.io/gorm"
)

// SMSSender delivers follow-up SMS via Twilio. It implements
// engine.ActionSender for the sms action type.
type SMSSender struct {
	DB     *gorm.DB
	Client *twilio.RestClient
	Logger *log.Logger
}

func NewSMSSender(db *gorm.DB, logger *log.Logger) *SMSSender {
	return &SMSSender{
		DB:     db,
		Client: newTwilioClient(),
		Logger: logger,
	}
}

func (ss *SMSSender) Send(contact *models.Contact, step *models.FollowUpStep, sequence *models.FollowUpSequence) engine.SendResult {
	if contact.Phone == "" {
		return engine.SendResult{Success: false, Error: "contact has no phone number"}
	}

	campaign := lookupCampaign(ss.DB, contact, sequence)
	body := engine.RenderTemplate(step.Content, contact, campaign)

	params := &openapi.CreateMessageParams{}
	params.SetTo(contact.Phone)
	params.SetFrom(config.AppConfig.Twilio.FromPhone)
	params.SetBody(body)

	resp, err := ss.Client.Api.CreateMessage(params)
	if err != nil {
		ss.Logger.Printf("Failed to send SMS to %s: %v", contact.Phone, err)
		return engine.SendResult{Success: false, Error: err.Error()}
	}

	detail := map[string]interface{}{
		"channel": "sms",
		"to":      contact.Phone,
	}
	if resp.Sid != nil {
		detail["message_sid"] = *resp.Sid
	}
	return engine.SendResult{Success: true, Detail: detail}
}

// WhatsAppSender delivers follow-up WhatsApp messages via Twilio. It
// implements engine.ActionSender for the whatsapp action type.
type WhatsAppSender struct {
	DB     *gorm.DB
	Client *twilio.RestClient
	Logger *log.Logger
}

func NewWhatsAppSender(db *gorm.DB, logger *log.Logger) *WhatsAppSender {
	return &WhatsAppSender{
		DB:     db,
		Client: newTwilioClient(),
		Logger: logger,
	}
}

func (ws *WhatsAppSender) Send(contact *models.Contact, step *models.FollowUpStep, sequence *models.FollowUpSequence) engine.SendResult {
	if contact.Phone == "" {
		return engine.SendResult{Success: false, Error: "contact has no phone number"}
	}

	campaign := lookupCampaign(ws.DB, contact, sequence)
	body := engine.RenderTemplate(step.Content, contact, campaign)

	params := &openapi.CreateMessageParams{}
	params.SetTo("whatsapp:" + contact.Phone)
	params.SetFrom("whatsapp:" + config.AppConfig.Twilio.FromWhatsApp)
	params.SetBody(body)

	resp, err := ws.Client.Api.CreateMessage(params)
	if err != nil {
		ws.Logger.Printf("Failed to send WhatsApp message to %s: %v", contact.Phone, err)
		return engine.SendResult{Success: false, Error: err.Error()}
	}

	detail := map[string]interface{}{
		"channel": "whatsapp",
		"to":      contact.Phone,
	}
	if resp.Sid != nil {
		detail["message_sid"] = *resp.Sid
	}
	return engine.SendResult{Success: true, Detail: detail}
}

func newTwilioClient() *twilio.RestClient {
	return twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: config.AppConfig.Twilio.AccountSID,
		Password: config.AppConfig.Twilio.AuthToken,
	})
}
