package engine

import (
	"testing"
	"time"

	"calldeck/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedRun creates an in_progress execution with one scheduled step execution
func seedRun(t *testing.T, e *Engine, contact *models.Contact, step *models.FollowUpStep, startedAt, scheduledFor time.Time) (*models.SequenceExecution, *models.StepExecution) {
	t.Helper()
	execution := &models.SequenceExecution{
		SequenceID:       step.SequenceID,
		ContactID:        contact.ID,
		Status:           models.ExecutionStatusInProgress,
		CurrentStepOrder: step.StepOrder,
		StartedAt:        timePtr(startedAt),
	}
	require.NoError(t, e.DB.Create(execution).Error)

	stepExec := &models.StepExecution{
		ExecutionID:  execution.ID,
		StepID:       step.ID,
		Status:       models.StepStatusScheduled,
		ScheduledFor: scheduledFor,
	}
	require.NoError(t, e.DB.Create(stepExec).Error)
	return execution, stepExec
}

func reloadStepExec(t *testing.T, e *Engine, id uint) *models.StepExecution {
	t.Helper()
	var se models.StepExecution
	require.NoError(t, e.DB.First(&se, id).Error)
	return &se
}

func reloadExecution(t *testing.T, e *Engine, id uint) *models.SequenceExecution {
	t.Helper()
	var ex models.SequenceExecution
	require.NoError(t, e.DB.First(&ex, id).Error)
	return &ex
}

func TestProcessDueSendsAndAdvances(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	sender := &fakeSender{result: SendResult{Success: true, Detail: map[string]interface{}{"message_id": "m-1"}}}
	e.RegisterSender(models.ActionTypeSMS, sender)

	contact := createContact(t, db, 1)
	seq := createSequence(t, db, &models.FollowUpSequence{TeamID: 1})
	first := addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 10, DelayMinutes: 0})
	second := addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 20, DelayMinutes: 120})

	execution, stepExec := seedRun(t, e, contact, first, now.Add(-time.Minute), now.Add(-time.Minute))

	processed, err := e.ProcessDue(now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, sender.calls)

	done := reloadStepExec(t, e, stepExec.ID)
	assert.Equal(t, models.StepStatusSent, done.Status)
	require.NotNil(t, done.ExecutedAt)
	assert.Equal(t, true, done.Result["success"])
	assert.Equal(t, "m-1", done.Result["message_id"])

	var nextExecs []models.StepExecution
	require.NoError(t, db.Where("execution_id = ? AND status = ?", execution.ID, models.StepStatusScheduled).Find(&nextExecs).Error)
	require.Len(t, nextExecs, 1)
	assert.Equal(t, second.ID, nextExecs[0].StepID)
	assert.True(t, nextExecs[0].ScheduledFor.Equal(now.Add(120*time.Minute)))

	assert.Equal(t, 20, reloadExecution(t, e, execution.ID).CurrentStepOrder)
}

func TestProcessDueTerminalAdvance(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	e.RegisterSender(models.ActionTypeSMS, &fakeSender{result: SendResult{Success: true}})

	contact := createContact(t, db, 1)
	seq := createSequence(t, db, &models.FollowUpSequence{TeamID: 1})
	first := addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 10, DelayMinutes: 0})
	addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 20, DelayMinutes: 0})
	addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 30, DelayMinutes: 0})

	execution, _ := seedRun(t, e, contact, first, now, now)

	// Zero delays make each advance immediately due on the next tick.
	for i := 0; i < 3; i++ {
		processed, err := e.ProcessDue(now.Add(time.Duration(i)*time.Minute), 0)
		require.NoError(t, err)
		assert.Equal(t, 1, processed)
	}

	final := reloadExecution(t, e, execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)
	assert.Equal(t, 30, final.CurrentStepOrder)

	var statuses []string
	require.NoError(t, db.Model(&models.StepExecution{}).
		Where("execution_id = ?", execution.ID).
		Order("id ASC").
		Pluck("status", &statuses).Error)
	assert.Equal(t, []string{"sent", "sent", "sent"}, statuses)
}

func TestProcessDueConditionsGate(t *testing.T) {
	e, db := newTestEngine(t)
	// 2026-03-14 is a Saturday
	saturday := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	sender := &fakeSender{result: SendResult{Success: true}}
	e.RegisterSender(models.ActionTypeSMS, sender)

	contact := createContact(t, db, 1)
	seq := createSequence(t, db, &models.FollowUpSequence{TeamID: 1})
	step := addStep(t, db, &models.FollowUpStep{
		SequenceID: seq.ID,
		StepOrder:  10,
		Conditions: &models.StepConditions{DaysOfWeek: []int{1, 2, 3, 4, 5}},
	})
	addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 20, DelayMinutes: 60})

	execution, stepExec := seedRun(t, e, contact, step, saturday, saturday)

	processed, err := e.ProcessDue(saturday, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Zero(t, sender.calls)

	gated := reloadStepExec(t, e, stepExec.ID)
	assert.Equal(t, models.StepStatusSkipped, gated.Status)
	assert.Equal(t, "step conditions not met", gated.Result["skip_reason"])

	// The skip still advances the execution.
	assert.Equal(t, 20, reloadExecution(t, e, execution.ID).CurrentStepOrder)
}

func TestProcessDueSkipIfContacted(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	activity := &fakeActivity{contacted: true}
	e.Activity = activity
	sender := &fakeSender{result: SendResult{Success: true}}
	e.RegisterSender(models.ActionTypeSMS, sender)

	contact := createContact(t, db, 1)
	seq := createSequence(t, db, &models.FollowUpSequence{TeamID: 1})
	step := addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 10, SkipIfContacted: true})
	addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 20, DelayMinutes: 30})

	scheduledFor := now.Add(-10 * time.Minute)
	execution, stepExec := seedRun(t, e, contact, step, scheduledFor, scheduledFor)

	processed, err := e.ProcessDue(now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Zero(t, sender.calls)
	assert.True(t, activity.lastSince.Equal(scheduledFor))

	skipped := reloadStepExec(t, e, stepExec.ID)
	assert.Equal(t, models.StepStatusSkipped, skipped.Status)
	assert.Contains(t, skipped.Result["skip_reason"], "contact reached")

	assert.Equal(t, 20, reloadExecution(t, e, execution.ID).CurrentStepOrder)
}

func TestProcessDueFailureIsolation(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	e.RegisterSender(models.ActionTypeSMS, &fakeSender{panicMsg: "twilio client exploded"})
	okSender := &fakeSender{result: SendResult{Success: true}}
	e.RegisterSender(models.ActionTypeEmail, okSender)

	seq := createSequence(t, db, &models.FollowUpSequence{TeamID: 1})
	smsStep := addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 10, ActionType: models.ActionTypeSMS})

	seq2 := createSequence(t, db, &models.FollowUpSequence{TeamID: 1, Name: "second"})
	emailStep := addStep(t, db, &models.FollowUpStep{SequenceID: seq2.ID, StepOrder: 10, ActionType: models.ActionTypeEmail})

	contactA := createContact(t, db, 1)
	contactB := createContact(t, db, 1)

	// The panicking item is older so it is processed first.
	_, badExec := seedRun(t, e, contactA, smsStep, now.Add(-2*time.Hour), now.Add(-2*time.Hour))
	_, goodExec := seedRun(t, e, contactB, emailStep, now.Add(-1*time.Hour), now.Add(-1*time.Hour))

	processed, err := e.ProcessDue(now, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	failed := reloadStepExec(t, e, badExec.ID)
	assert.Equal(t, models.StepStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "twilio client exploded")

	sent := reloadStepExec(t, e, goodExec.ID)
	assert.Equal(t, models.StepStatusSent, sent.Status)
	assert.Equal(t, 1, okSender.calls)
}

func TestProcessDueFailedDispatchStillAdvances(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	e.RegisterSender(models.ActionTypeSMS, &fakeSender{result: SendResult{Success: false, Error: "carrier rejected"}})

	contact := createContact(t, db, 1)
	seq := createSequence(t, db, &models.FollowUpSequence{TeamID: 1})
	step := addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 10})
	addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 20, DelayMinutes: 15})

	execution, stepExec := seedRun(t, e, contact, step, now, now)

	processed, err := e.ProcessDue(now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	failed := reloadStepExec(t, e, stepExec.ID)
	assert.Equal(t, models.StepStatusFailed, failed.Status)
	assert.Equal(t, "carrier rejected", failed.ErrorMessage)

	var scheduled int64
	require.NoError(t, db.Model(&models.StepExecution{}).
		Where("execution_id = ? AND status = ?", execution.ID, models.StepStatusScheduled).
		Count(&scheduled).Error)
	assert.EqualValues(t, 1, scheduled)
}

func TestProcessDueOverdueAfterTrigger(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	e.RegisterSender(models.ActionTypeSMS, &fakeSender{result: SendResult{Success: true}})

	contact := createContact(t, db, 1)
	seq := createSequence(t, db, &models.FollowUpSequence{TeamID: 1})
	step := addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 10, DelayType: models.DelayAfterTrigger, DelayMinutes: 60})

	// Triggered three days ago: the resolved time is long past but the
	// work is processed, not dropped.
	startedAt := now.Add(-72 * time.Hour)
	_, stepExec := seedRun(t, e, contact, step, startedAt, startedAt.Add(time.Hour))

	processed, err := e.ProcessDue(now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, models.StepStatusSent, reloadStepExec(t, e, stepExec.ID).Status)
}

func TestProcessDueBatchLimit(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	e.RegisterSender(models.ActionTypeSMS, &fakeSender{result: SendResult{Success: true}})

	seq := createSequence(t, db, &models.FollowUpSequence{TeamID: 1})
	step := addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 10})

	for i := 0; i < 3; i++ {
		contact := createContact(t, db, 1)
		seedRun(t, e, contact, step, now.Add(-time.Hour), now.Add(-time.Hour))
	}

	processed, err := e.ProcessDue(now, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	processed, err = e.ProcessDue(now, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
}

func TestProcessDueNothingDue(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	contact := createContact(t, db, 1)
	seq := createSequence(t, db, &models.FollowUpSequence{TeamID: 1})
	step := addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 10})
	seedRun(t, e, contact, step, now, now.Add(time.Hour))

	processed, err := e.ProcessDue(now, 0)
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestProcessDueWaitStep(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	contact := createContact(t, db, 1)
	seq := createSequence(t, db, &models.FollowUpSequence{TeamID: 1})
	step := addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 10, ActionType: models.ActionTypeWait})

	_, stepExec := seedRun(t, e, contact, step, now, now)

	processed, err := e.ProcessDue(now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, models.StepStatusSent, reloadStepExec(t, e, stepExec.ID).Status)
}

func TestProcessDueUnregisteredActionFails(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	contact := createContact(t, db, 1)
	seq := createSequence(t, db, &models.FollowUpSequence{TeamID: 1})
	step := addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 10, ActionType: models.ActionTypeWhatsApp})

	_, stepExec := seedRun(t, e, contact, step, now, now)

	processed, err := e.ProcessDue(now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	failed := reloadStepExec(t, e, stepExec.ID)
	assert.Equal(t, models.StepStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "no sender registered")
}

func TestProcessDueDoNotContact(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	sender := &fakeSender{result: SendResult{Success: true}}
	e.RegisterSender(models.ActionTypeSMS, sender)

	contact := createContact(t, db, 1)
	require.NoError(t, db.Model(contact).Update("is_do_not_contact", true).Error)

	seq := createSequence(t, db, &models.FollowUpSequence{TeamID: 1})
	step := addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 10})

	_, stepExec := seedRun(t, e, contact, step, now, now)

	processed, err := e.ProcessDue(now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Zero(t, sender.calls)
	assert.Equal(t, models.StepStatusSkipped, reloadStepExec(t, e, stepExec.ID).Status)
}

// cancellingSender cancels its own execution from inside Send, the same
// shape as the cancel endpoint racing the worker mid-dispatch
type cancellingSender struct {
	engine      *Engine
	executionID uint
	reason      string
}

func (s *cancellingSender) Send(contact *models.Contact, step *models.FollowUpStep, seq *models.FollowUpSequence) SendResult {
	_ = s.engine.Cancel(s.executionID, s.reason)
	return SendResult{Success: true}
}

func TestProcessDueCancelDuringDispatchStaysCancelled(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	contact := createContact(t, db, 1)
	seq := createSequence(t, db, &models.FollowUpSequence{TeamID: 1})
	first := addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 10})
	addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 20, DelayMinutes: 60})

	execution, stepExec := seedRun(t, e, contact, first, now.Add(-time.Minute), now.Add(-time.Minute))
	e.RegisterSender(models.ActionTypeSMS, &cancellingSender{
		engine:      e,
		executionID: execution.ID,
		reason:      "contact replied",
	})

	processed, err := e.ProcessDue(now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	// The cancel wins: the execution must not come back to life.
	got := reloadExecution(t, e, execution.ID)
	assert.Equal(t, models.ExecutionStatusCancelled, got.Status)
	assert.Equal(t, "contact replied", got.CancelReason)

	// Cancel already flipped the in-flight item to skipped; the losing
	// outcome write must neither rewrite it nor schedule the next step.
	item := reloadStepExec(t, e, stepExec.ID)
	assert.Equal(t, models.StepStatusSkipped, item.Status)
	assert.Equal(t, "execution cancelled", item.ErrorMessage)

	var scheduled int64
	require.NoError(t, db.Model(&models.StepExecution{}).
		Where("execution_id = ? AND status = ?", execution.ID, models.StepStatusScheduled).
		Count(&scheduled).Error)
	assert.Zero(t, scheduled)
}
