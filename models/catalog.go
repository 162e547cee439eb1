package models

// Execution statuses
const (
	ExecutionStatusPending    = "pending"
	ExecutionStatusInProgress = "in_progress"
	ExecutionStatusCompleted  = "completed"
	ExecutionStatusCancelled  = "cancelled"
)

// Step execution statuses
const (
	StepStatusScheduled = "scheduled"
	StepStatusSent      = "sent"
	StepStatusFailed    = "failed"
	StepStatusSkipped   = "skipped"
)

// Action types
const (
	ActionTypeSMS      = "sms"
	ActionTypeEmail    = "email"
	ActionTypeCallback = "callback"
	ActionTypeWhatsApp = "whatsapp"
	ActionTypeWait     = "wait"
)

// Delay types
const (
	DelayAfterPrevious = "after_previous"
	DelayAfterTrigger  = "after_trigger"
	DelaySpecificTime  = "specific_time"
)

// TriggerEvents is the fixed catalog of business events that can activate
// a sequence, exposed to the dashboard for UI population
var TriggerEvents = []string{
	"call_completed",
	"call_missed",
	"call_no_answer",
	"lead_interested",
	"lead_not_interested",
	"order_placed",
	"order_cancelled",
	"complaint_resolved",
	"payment_failed",
}

// ActionTypes is the closed set of step action types
var ActionTypes = []string{
	ActionTypeSMS,
	ActionTypeEmail,
	ActionTypeCallback,
	ActionTypeWhatsApp,
	ActionTypeWait,
}

// DelayTypes is the closed set of step delay semantics
var DelayTypes = []string{
	DelayAfterPrevious,
	DelayAfterTrigger,
	DelaySpecificTime,
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// IsValidTriggerEvent reports whether event is a known trigger event
func IsValidTriggerEvent(event string) bool {
	return contains(TriggerEvents, event)
}

// IsValidActionType reports whether t is a known action type
func IsValidActionType(t string) bool {
	return contains(ActionTypes, t)
}

// IsValidDelayType reports whether t is a known delay type
func IsValidDelayType(t string) bool {
	return contains(DelayTypes, t)
}
