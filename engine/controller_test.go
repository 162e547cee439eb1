package engine

import (
	"testing"
	"time"

	"calldeck/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelStopsScheduledWork(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)
	e.Now = func() time.Time { return now }

	sender := &fakeSender{result: SendResult{Success: true}}
	e.RegisterSender(models.ActionTypeSMS, sender)

	contact := createContact(t, db, 1)
	seq := createSequence(t, db, &models.FollowUpSequence{TeamID: 1})
	step := addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 10})

	execution, stepExec := seedRun(t, e, contact, step, now.Add(-time.Hour), now.Add(-time.Hour))

	require.NoError(t, e.Cancel(execution.ID, "customer asked to stop"))

	cancelled := reloadExecution(t, e, execution.ID)
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)
	assert.Equal(t, "customer asked to stop", cancelled.CancelReason)
	require.NotNil(t, cancelled.CompletedAt)

	assert.Equal(t, models.StepStatusSkipped, reloadStepExec(t, e, stepExec.ID).Status)

	// The due item is gone, so a later tick finds nothing.
	processed, err := e.ProcessDue(now, 0)
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Zero(t, sender.calls)
}

func TestCancelIdempotentOnTerminal(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)
	e.Now = func() time.Time { return now }

	contact := createContact(t, db, 1)
	seq := createSequence(t, db, &models.FollowUpSequence{TeamID: 1})

	execution := &models.SequenceExecution{
		SequenceID:  seq.ID,
		ContactID:   contact.ID,
		Status:      models.ExecutionStatusCompleted,
		CompletedAt: timePtr(now.Add(-time.Hour)),
	}
	require.NoError(t, db.Create(execution).Error)

	require.NoError(t, e.Cancel(execution.ID, "too late"))

	untouched := reloadExecution(t, e, execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, untouched.Status)
	assert.Empty(t, untouched.CancelReason)

	// Cancelling a cancelled execution is also a no-op.
	require.NoError(t, e.Cancel(execution.ID, "again"))
}

func TestCancelUnknownExecution(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.ErrorIs(t, e.Cancel(424242, "nope"), ErrExecutionNotFound)
}

func TestAnalytics(t *testing.T) {
	e, db := newTestEngine(t)
	now := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)

	contact := createContact(t, db, 1)
	seq := createSequence(t, db, &models.FollowUpSequence{TeamID: 1})
	stepOne := addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 10})
	stepTwo := addStep(t, db, &models.FollowUpStep{SequenceID: seq.ID, StepOrder: 20, ActionType: models.ActionTypeEmail})

	seed := func(status string) *models.SequenceExecution {
		ex := &models.SequenceExecution{SequenceID: seq.ID, ContactID: contact.ID, Status: status}
		if status == models.ExecutionStatusCompleted || status == models.ExecutionStatusCancelled {
			ex.CompletedAt = timePtr(now)
		}
		require.NoError(t, db.Create(ex).Error)
		return ex
	}

	exA := seed(models.ExecutionStatusCompleted)
	exB := seed(models.ExecutionStatusCompleted)
	exC := seed(models.ExecutionStatusCancelled)
	seed(models.ExecutionStatusInProgress)

	addOutcome := func(ex *models.SequenceExecution, step *models.FollowUpStep, status string) {
		require.NoError(t, db.Create(&models.StepExecution{
			ExecutionID:  ex.ID,
			StepID:       step.ID,
			Status:       status,
			ScheduledFor: now,
		}).Error)
	}
	addOutcome(exA, stepOne, models.StepStatusSent)
	addOutcome(exA, stepTwo, models.StepStatusSent)
	addOutcome(exB, stepOne, models.StepStatusFailed)
	addOutcome(exB, stepTwo, models.StepStatusSkipped)
	addOutcome(exC, stepOne, models.StepStatusSent)

	analytics, err := e.Analytics(seq.ID)
	require.NoError(t, err)

	assert.EqualValues(t, 4, analytics.TotalExecutions)
	assert.EqualValues(t, 2, analytics.StatusCounts[models.ExecutionStatusCompleted])
	assert.EqualValues(t, 1, analytics.StatusCounts[models.ExecutionStatusCancelled])
	assert.EqualValues(t, 1, analytics.StatusCounts[models.ExecutionStatusInProgress])
	assert.InDelta(t, 0.5, analytics.ConversionRate, 1e-9)

	require.Len(t, analytics.Steps, 2)
	assert.Equal(t, 10, analytics.Steps[0].StepOrder)
	assert.EqualValues(t, 2, analytics.Steps[0].Sent)
	assert.EqualValues(t, 1, analytics.Steps[0].Failed)
	assert.Equal(t, 20, analytics.Steps[1].StepOrder)
	assert.EqualValues(t, 1, analytics.Steps[1].Sent)
	assert.EqualValues(t, 1, analytics.Steps[1].Skipped)
}

func TestAnalyticsUnknownSequence(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Analytics(999)
	assert.ErrorIs(t, err, ErrSequenceNotFound)
}
