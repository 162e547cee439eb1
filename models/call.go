package models

import (
	"time"

	"gorm.io/gorm"
)

// Call represents one phone call with a contact. Completed/answered calls
// are what the skip-if-contacted check counts as a successful contact.
type Call struct {
	gorm.Model
	TeamID    uint  `gorm:"not null;index" json:"team_id"`
	ContactID uint  `gorm:"not null;index" json:"contact_id"`
	AgentID   *uint `gorm:"index" json:"agent_id,omitempty"`

	Direction       string     `gorm:"default:'outbound'" json:"direction"` // inbound, outbound
	Status          string     `gorm:"not null;index" json:"status"`        // completed, answered, missed, no_answer, busy, failed
	DurationSeconds int        `gorm:"default:0" json:"duration_seconds"`
	EndedAt         *time.Time `json:"ended_at"`
	Notes           string     `gorm:"type:text" json:"notes"`

	// Relations
	Contact Contact `json:"-"`
}

// CallbackRequest is a queued callback for the dialer, created by the
// callback action of a follow-up step
type CallbackRequest struct {
	gorm.Model
	TeamID    uint `gorm:"not null;index" json:"team_id"`
	ContactID uint `gorm:"not null;index" json:"contact_id"`

	Priority string     `gorm:"default:'normal'" json:"priority"` // low, normal, high
	Reason   string     `json:"reason"`
	DueAt    *time.Time `json:"due_at"`
	Status   string     `gorm:"default:'pending';index" json:"status"` // pending, assigned, done

	// Relations
	Contact Contact `json:"-"`
}
