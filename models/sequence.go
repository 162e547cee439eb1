package models

import (
	"time"

	"gorm.io/gorm"
)

// FollowUpSequence represents an automated follow-up drip campaign bound to
// one trigger event
type FollowUpSequence struct {
	gorm.Model
	TeamID     uint  `gorm:"not null;index" json:"team_id"`
	CampaignID *uint `gorm:"index" json:"campaign_id,omitempty"`

	Name         string `gorm:"not null" json:"name"`
	Description  string `json:"description"`
	TriggerEvent string `gorm:"not null;index" json:"trigger_event"` // call_completed, lead_interested, order_cancelled, ...
	IsActive     bool   `gorm:"default:true;index" json:"is_active"`

	// Settings
	Priority      int `gorm:"default:0" json:"priority"`        // Higher priority sequences are evaluated first
	MaxExecutions int `gorm:"default:1" json:"max_executions"`  // Per contact
	CooldownHours int `gorm:"default:24" json:"cooldown_hours"` // Between completed runs for the same contact

	// Relations
	Steps []FollowUpStep `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
}

// FollowUpStep represents one ordered action within a sequence
type FollowUpStep struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`

	StepOrder  int    `gorm:"not null" json:"step_order"`  // Unique and ascending within a sequence
	ActionType string `gorm:"not null" json:"action_type"` // sms, email, callback, whatsapp, wait

	// Scheduling
	DelayType    string `gorm:"not null;default:'after_previous'" json:"delay_type"` // after_previous, after_trigger, specific_time
	DelayMinutes int    `gorm:"default:0" json:"delay_minutes"`
	SpecificTime string `json:"specific_time"` // "HH:MM", used with delay_type=specific_time

	// Message template
	Subject string `json:"subject"`
	Content string `gorm:"type:text" json:"content"`

	// Gating
	Conditions      *StepConditions `gorm:"type:jsonb;serializer:json" json:"conditions,omitempty"`
	SkipIfContacted bool            `gorm:"default:false" json:"skip_if_contacted"`
	IsActive        bool            `gorm:"default:true" json:"is_active"`
}

// StepConditions gates a step at execution time. Absent fields are
// vacuously true; all present fields must hold.
type StepConditions struct {
	DaysOfWeek         []int    `json:"days_of_week,omitempty"` // 0=Sunday .. 6=Saturday
	TimeFrom           string   `json:"time_from,omitempty"`    // "HH:MM", inclusive
	TimeTo             string   `json:"time_to,omitempty"`      // "HH:MM", inclusive
	LeadTiers          []string `json:"lead_tiers,omitempty"`   // hot, warm, cold
	MinLeadScore       *int     `json:"min_lead_score,omitempty"`
	MaxLeadScore       *int     `json:"max_lead_score,omitempty"`
	PreviousStepResult string   `json:"previous_step_result,omitempty"` // sent, failed, skipped
}

// SequenceExecution represents one run of a sequence against one contact.
// At most one execution per (sequence, contact) may be pending or
// in_progress at a time.
type SequenceExecution struct {
	gorm.Model
	SequenceID uint  `gorm:"not null;index" json:"sequence_id"`
	ContactID  uint  `gorm:"not null;index" json:"contact_id"`
	CallID     *uint `gorm:"index" json:"call_id,omitempty"` // Triggering call, if any

	Status           string     `gorm:"default:'pending';index" json:"status"` // pending, in_progress, completed, cancelled
	CurrentStepOrder int        `gorm:"default:0" json:"current_step_order"`
	StartedAt        *time.Time `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	CancelReason     string     `json:"cancel_reason"`

	// Relations
	Sequence FollowUpSequence `json:"-"`
	Contact  Contact          `json:"-"`
}

// StepExecution represents one scheduled/attempted occurrence of a step
// within an execution. An execution has at most one scheduled StepExecution
// outstanding at a time, and terminal states are never rewritten.
type StepExecution struct {
	gorm.Model
	ExecutionID uint `gorm:"not null;index" json:"execution_id"`
	StepID      uint `gorm:"not null;index" json:"step_id"`

	Status       string                 `gorm:"default:'scheduled';index" json:"status"` // scheduled, sent, failed, skipped
	ScheduledFor time.Time              `gorm:"not null;index" json:"scheduled_for"`
	ExecutedAt   *time.Time             `json:"executed_at"`
	Result       map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"result,omitempty"`
	ErrorMessage string                 `json:"error_message"`

	// Relations
	Execution SequenceExecution `json:"-"`
	Step      FollowUpStep      `json:"-"`
}
