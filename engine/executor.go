package engine

import (
	"errors"
	"fmt"
	"time"

	"calldeck/models"

	"gorm.io/gorm"
)

// ProcessDue pulls up to batchLimit step executions whose scheduled time
// has passed, oldest first, runs each through the skip/condition/dispatch
// pipeline and advances its execution. A failure in one item is recorded on
// that item and never aborts the rest of the batch; only an infrastructure
// failure (the due query itself) is returned as an error. Returns how many
// items were processed in this call.
func (e *Engine) ProcessDue(now time.Time, batchLimit int) (int, error) {
	if batchLimit <= 0 {
		batchLimit = DefaultBatchLimit
	}

	var due []models.StepExecution
	err := e.DB.
		Where("status = ? AND scheduled_for <= ?", models.StepStatusScheduled, now).
		Order("scheduled_for ASC").
		Limit(batchLimit).
		Preload("Step").
		Preload("Execution").
		Preload("Execution.Sequence").
		Preload("Execution.Contact").
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("loading due step executions: %w", err)
	}

	processed := 0
	for i := range due {
		e.processItem(&due[i], now)
		processed++
	}

	return processed, nil
}

// processItem handles one due step execution end to end. Panics are caught
// and recorded as a failed item so the batch keeps going.
func (e *Engine) processItem(item *models.StepExecution, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			e.logf("step execution %d: panic: %v", item.ID, r)
			e.writeOutcome(item, models.StepStatusFailed, fmt.Sprintf("panic: %v", r), nil, now)
		}
	}()

	step := item.Step
	execution := item.Execution

	// The step or execution may have been deleted since scheduling.
	if step.ID == 0 || execution.ID == 0 {
		e.writeOutcome(item, models.StepStatusFailed, "step or execution no longer exists", nil, now)
		return
	}
	if execution.Status != models.ExecutionStatusInProgress && execution.Status != models.ExecutionStatusPending {
		// Cancel normally flips scheduled items to skipped in the same
		// transaction; this is the defensive path for a race with it.
		e.writeOutcome(item, models.StepStatusSkipped, "execution is no longer active", nil, now)
		return
	}

	contact := execution.Contact
	if contact.ID == 0 {
		e.finishAndAdvance(item, models.StepStatusFailed, "contact no longer exists", nil, now)
		return
	}

	if contact.IsDoNotContact && step.ActionType != models.ActionTypeWait {
		e.finishAndAdvance(item, models.StepStatusSkipped, "",
			map[string]interface{}{"skip_reason": "contact is marked do-not-contact"}, now)
		return
	}

	if step.SkipIfContacted {
		contacted, err := e.Activity.HasSuccessfulContactSince(contact.ID, item.ScheduledFor)
		if err != nil {
			e.logf("step execution %d: activity check failed: %v", item.ID, err)
		} else if contacted {
			e.finishAndAdvance(item, models.StepStatusSkipped, "",
				map[string]interface{}{"skip_reason": "contact reached since this step was scheduled"}, now)
			return
		}
	}

	if step.Conditions != nil {
		prevResult := ""
		if step.Conditions.PreviousStepResult != "" {
			prevResult = e.previousStepResult(execution.ID, item.ID)
		}
		if !EvaluateConditions(step.Conditions, &contact, prevResult, now) {
			e.finishAndAdvance(item, models.StepStatusSkipped, "",
				map[string]interface{}{"skip_reason": "step conditions not met"}, now)
			return
		}
	}

	res := e.dispatch(&contact, &step, &execution.Sequence)
	result := map[string]interface{}{"success": res.Success}
	for k, v := range res.Detail {
		result[k] = v
	}

	if res.Success {
		e.finishAndAdvance(item, models.StepStatusSent, "", result, now)
	} else {
		result["error"] = res.Error
		// A channel failure still advances the sequence; retries are the
		// channel's job, forward progress is ours.
		e.finishAndAdvance(item, models.StepStatusFailed, res.Error, result, now)
	}
}

// finishAndAdvance records the item's terminal status and moves its
// execution to the next active step (or completes it) in one transaction,
// so an execution can never advance without its next scheduled step. When
// the outcome write matches no row the item was finished concurrently,
// Cancel flips scheduled items to skipped, and advancing past it would
// resume a cancelled execution, so the advance is skipped too.
func (e *Engine) finishAndAdvance(item *models.StepExecution, status, errMsg string, result map[string]interface{}, now time.Time) {
	err := e.DB.Transaction(func(tx *gorm.DB) error {
		rows, err := outcomeUpdate(tx, item.ID, status, errMsg, result, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			e.logf("step execution %d: already finished, not advancing", item.ID)
			return nil
		}
		return e.advanceExecution(tx, &item.Execution, &item.Step, now)
	})
	if err != nil {
		e.logf("step execution %d: recording outcome: %v", item.ID, err)
	}
}

// writeOutcome records a terminal status without touching the owning
// execution, for items whose execution is gone or already terminal
func (e *Engine) writeOutcome(item *models.StepExecution, status, errMsg string, result map[string]interface{}, now time.Time) {
	if _, err := outcomeUpdate(e.DB, item.ID, status, errMsg, result, now); err != nil {
		e.logf("step execution %d: recording outcome: %v", item.ID, err)
	}
}

func outcomeUpdate(tx *gorm.DB, itemID uint, status, errMsg string, result map[string]interface{}, now time.Time) (int64, error) {
	// Struct update with an explicit Select so the jsonb result column goes
	// through the serializer and empty error messages still get written.
	// The status guard keeps terminal states immutable; callers use the
	// affected-row count to detect losing that race.
	outcome := models.StepExecution{
		Status:       status,
		ExecutedAt:   &now,
		ErrorMessage: errMsg,
		Result:       result,
	}
	res := tx.Model(&models.StepExecution{}).
		Where("id = ? AND status = ?", itemID, models.StepStatusScheduled).
		Select("status", "executed_at", "error_message", "result").
		Updates(outcome)
	return res.RowsAffected, res.Error
}

// advanceExecution schedules the smallest active step after the current one
// or completes the execution when none is left. Every execution update is
// guarded on the execution still being active, so a concurrent Cancel wins
// and no new step is scheduled for it.
func (e *Engine) advanceExecution(tx *gorm.DB, execution *models.SequenceExecution, current *models.FollowUpStep, now time.Time) error {
	activeStatuses := []string{models.ExecutionStatusPending, models.ExecutionStatusInProgress}

	var next models.FollowUpStep
	err := tx.Where("sequence_id = ? AND is_active = ? AND step_order > ?",
		execution.SequenceID, true, current.StepOrder).
		Order("step_order ASC").
		First(&next).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Model(&models.SequenceExecution{}).
			Where("id = ? AND status IN ?", execution.ID, activeStatuses).
			Updates(map[string]interface{}{
				"status":             models.ExecutionStatusCompleted,
				"completed_at":       now,
				"current_step_order": current.StepOrder,
			}).Error
	}
	if err != nil {
		return fmt.Errorf("loading next step: %w", err)
	}

	res := tx.Model(&models.SequenceExecution{}).
		Where("id = ? AND status IN ?", execution.ID, activeStatuses).
		Updates(map[string]interface{}{
			"status":             models.ExecutionStatusInProgress,
			"current_step_order": next.StepOrder,
		})
	if res.Error != nil {
		return fmt.Errorf("advancing execution: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	startedAt := now
	if execution.StartedAt != nil {
		startedAt = *execution.StartedAt
	}

	stepExec := models.StepExecution{
		ExecutionID:  execution.ID,
		StepID:       next.ID,
		Status:       models.StepStatusScheduled,
		ScheduledFor: e.resolveDelayOrNow(&next, startedAt, now),
	}
	if err := tx.Create(&stepExec).Error; err != nil {
		return fmt.Errorf("scheduling next step: %w", err)
	}

	return nil
}

// previousStepResult returns the status of the most recent finished step
// execution before the given one, or "" when there is none
func (e *Engine) previousStepResult(executionID, beforeID uint) string {
	var prev models.StepExecution
	err := e.DB.
		Where("execution_id = ? AND id < ? AND status <> ?", executionID, beforeID, models.StepStatusScheduled).
		Order("id DESC").
		First(&prev).Error
	if err != nil {
		return ""
	}
	return prev.Status
}
