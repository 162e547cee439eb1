package engine

import (
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"calldeck/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Team{},
		&models.Campaign{},
		&models.Contact{},
		&models.Call{},
		&models.CallbackRequest{},
		&models.FollowUpSequence{},
		&models.FollowUpStep{},
		&models.SequenceExecution{},
		&models.StepExecution{},
	))
	return db
}

func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	e := New(db, nil, nil, log.New(io.Discard, "", 0))
	return e, db
}

func createContact(t *testing.T, db *gorm.DB, teamID uint) *models.Contact {
	t.Helper()
	contact := &models.Contact{
		TeamID:    teamID,
		Name:      "Maria Santos",
		Phone:     "+15550100",
		Email:     "maria@example.com",
		LeadTier:  "warm",
		LeadScore: 50,
	}
	require.NoError(t, db.Create(contact).Error)
	return contact
}

func createSequence(t *testing.T, db *gorm.DB, seq *models.FollowUpSequence) *models.FollowUpSequence {
	t.Helper()
	if seq.Name == "" {
		seq.Name = "post-call follow-up"
	}
	if seq.TriggerEvent == "" {
		seq.TriggerEvent = "call_completed"
	}
	seq.IsActive = true
	if seq.MaxExecutions == 0 {
		seq.MaxExecutions = 1
	}
	if seq.CooldownHours == 0 {
		seq.CooldownHours = 24
	}
	require.NoError(t, db.Create(seq).Error)
	return seq
}

func addStep(t *testing.T, db *gorm.DB, step *models.FollowUpStep) *models.FollowUpStep {
	t.Helper()
	if step.ActionType == "" {
		step.ActionType = models.ActionTypeSMS
	}
	if step.DelayType == "" {
		step.DelayType = models.DelayAfterPrevious
	}
	step.IsActive = true
	require.NoError(t, db.Create(step).Error)
	return step
}

func timePtr(ts time.Time) *time.Time { return &ts }

// fakeSender records dispatches and returns a configured result
type fakeSender struct {
	result   SendResult
	panicMsg string
	calls    int
}

func (f *fakeSender) Send(contact *models.Contact, step *models.FollowUpStep, seq *models.FollowUpSequence) SendResult {
	f.calls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.result
}

// fakeActivity answers the skip-if-contacted check without a database
type fakeActivity struct {
	contacted bool
	lastSince time.Time
}

func (f *fakeActivity) HasSuccessfulContactSince(contactID uint, since time.Time) (bool, error) {
	f.lastSince = since
	return f.contacted, nil
}
