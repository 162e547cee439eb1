package models

import (
	"time"

	"gorm.io/gorm"
)

// Contact represents a single customer/lead reachable by the follow-up engine
type Contact struct {
	gorm.Model
	TeamID     uint  `gorm:"not null;index" json:"team_id"`
	CampaignID *uint `gorm:"index" json:"campaign_id,omitempty"`

	Name    string `gorm:"not null" json:"name"`
	Phone   string `gorm:"index" json:"phone"`
	Email   string `gorm:"index" json:"email"`
	Company string `json:"company"`

	// Qualification
	LeadTier  string `gorm:"default:'cold'" json:"lead_tier"` // hot, warm, cold
	LeadScore int    `gorm:"default:0" json:"lead_score"`

	// Status
	IsDoNotContact bool       `gorm:"default:false" json:"is_do_not_contact"`
	LastContactAt  *time.Time `json:"last_contact_at"`

	// Metadata
	Source string `json:"source"` // inbound_call, import, api, etc.

	// Relations
	Calls    []Call    `gorm:"foreignKey:ContactID" json:"calls,omitempty"`
	Campaign *Campaign `json:"campaign,omitempty"`
}
