package models

import "gorm.io/gorm"

// Campaign represents a calling/ordering campaign that contacts and
// sequences can be scoped to
type Campaign struct {
	gorm.Model
	TeamID uint `gorm:"not null;index" json:"team_id"`

	Name        string `gorm:"not null" json:"name"`
	CompanyName string `json:"company_name"` // Rendered into message templates
	Description string `json:"description"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	// Relations
	Contacts  []Contact          `gorm:"foreignKey:CampaignID" json:"contacts,omitempty"`
	Sequences []FollowUpSequence `gorm:"foreignKey:CampaignID" json:"sequences,omitempty"`
}
