package engine

import (
	"log"
	"time"

	"gorm.io/gorm"
)

const (
	// DefaultBatchLimit caps how many due step executions one ProcessDue
	// call will pick up, so a single tick stays bounded under backlog.
	DefaultBatchLimit = 100

	// DefaultSendTimeout bounds a single channel dispatch so one slow
	// send cannot stall the rest of the batch.
	DefaultSendTimeout = 30 * time.Second
)

// Engine runs follow-up sequences: it matches business events to sequences,
// schedules step executions and processes the ones that have come due.
// All collaborators are injected at construction time.
type Engine struct {
	DB          *gorm.DB
	Activity    ActivityChecker
	Senders     map[string]ActionSender
	Logger      *log.Logger
	SendTimeout time.Duration

	// Now is the clock used for all scheduling decisions. Tests override it.
	Now func() time.Time
}

// New returns an engine wired with the given collaborators. A nil activity
// checker falls back to the GORM-backed one reading the calls table.
func New(db *gorm.DB, activity ActivityChecker, senders map[string]ActionSender, logger *log.Logger) *Engine {
	if activity == nil {
		activity = NewActivityChecker(db)
	}
	if senders == nil {
		senders = map[string]ActionSender{}
	}
	return &Engine{
		DB:          db,
		Activity:    activity,
		Senders:     senders,
		Logger:      logger,
		SendTimeout: DefaultSendTimeout,
		Now:         time.Now,
	}
}

// RegisterSender adds or replaces the sender for one action type
func (e *Engine) RegisterSender(actionType string, sender ActionSender) {
	e.Senders[actionType] = sender
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}
