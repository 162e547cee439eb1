package engine

import (
	"errors"
	"fmt"
	"time"

	"calldeck/models"

	"gorm.io/gorm"
)

// Trigger matches a business event against the active sequences of the
// contact's team and creates an execution (plus its first scheduled step)
// for each eligible one. Sequences already running for the contact, inside
// their cooldown window, or at their max-execution cap are skipped
// silently. Returns the executions created by this call; an empty slice
// means no eligible sequence, which is not an error.
func (e *Engine) Trigger(event string, contactID uint, callID *uint, campaignID *uint) ([]models.SequenceExecution, error) {
	now := e.Now()

	var contact models.Contact
	if err := e.DB.First(&contact, contactID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("resolving contact %d: %w", contactID, err)
	}
	if contact.TeamID == 0 {
		return nil, ErrTeamNotResolved
	}

	query := e.DB.Where("team_id = ? AND trigger_event = ? AND is_active = ?", contact.TeamID, event, true)
	if campaignID != nil {
		query = query.Where("campaign_id = ?", *campaignID)
	}

	var sequences []models.FollowUpSequence
	if err := query.Order("priority DESC").Find(&sequences).Error; err != nil {
		return nil, fmt.Errorf("matching sequences for event %q: %w", event, err)
	}

	created := []models.SequenceExecution{}
	for _, seq := range sequences {
		eligible, err := e.isEligible(&seq, contact.ID, now)
		if err != nil {
			return created, err
		}
		if !eligible {
			continue
		}

		execution, err := e.startExecution(&seq, contact.ID, callID, now)
		if err != nil {
			return created, err
		}
		created = append(created, *execution)
		e.logf("triggered sequence %d (%s) for contact %d, execution %d", seq.ID, seq.Name, contact.ID, execution.ID)
	}

	return created, nil
}

// isEligible applies the dedup, cooldown and max-execution checks for one
// (sequence, contact) pair. Failing a check is an advisory skip, never an
// error.
func (e *Engine) isEligible(seq *models.FollowUpSequence, contactID uint, now time.Time) (bool, error) {
	var active int64
	err := e.DB.Model(&models.SequenceExecution{}).
		Where("sequence_id = ? AND contact_id = ? AND status IN ?",
			seq.ID, contactID, []string{models.ExecutionStatusPending, models.ExecutionStatusInProgress}).
		Count(&active).Error
	if err != nil {
		return false, fmt.Errorf("dedup check for sequence %d: %w", seq.ID, err)
	}
	if active > 0 {
		return false, nil
	}

	if seq.CooldownHours > 0 {
		cutoff := now.Add(-time.Duration(seq.CooldownHours) * time.Hour)
		var recent int64
		err = e.DB.Model(&models.SequenceExecution{}).
			Where("sequence_id = ? AND contact_id = ? AND completed_at IS NOT NULL AND completed_at > ?",
				seq.ID, contactID, cutoff).
			Count(&recent).Error
		if err != nil {
			return false, fmt.Errorf("cooldown check for sequence %d: %w", seq.ID, err)
		}
		if recent > 0 {
			return false, nil
		}
	}

	if seq.MaxExecutions > 0 {
		var completed int64
		err = e.DB.Model(&models.SequenceExecution{}).
			Where("sequence_id = ? AND contact_id = ? AND status = ?",
				seq.ID, contactID, models.ExecutionStatusCompleted).
			Count(&completed).Error
		if err != nil {
			return false, fmt.Errorf("max-execution check for sequence %d: %w", seq.ID, err)
		}
		if completed >= int64(seq.MaxExecutions) {
			return false, nil
		}
	}

	return true, nil
}

// startExecution creates the execution and its first scheduled step in one
// transaction. A sequence with no active steps completes immediately
// instead of dangling in pending forever.
func (e *Engine) startExecution(seq *models.FollowUpSequence, contactID uint, callID *uint, now time.Time) (*models.SequenceExecution, error) {
	execution := models.SequenceExecution{
		SequenceID:       seq.ID,
		ContactID:        contactID,
		CallID:           callID,
		Status:           models.ExecutionStatusPending,
		CurrentStepOrder: 0,
	}

	err := e.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&execution).Error; err != nil {
			return fmt.Errorf("creating execution: %w", err)
		}

		var firstStep models.FollowUpStep
		err := tx.Where("sequence_id = ? AND is_active = ?", seq.ID, true).
			Order("step_order ASC").
			First(&firstStep).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			execution.Status = models.ExecutionStatusCompleted
			execution.StartedAt = &now
			execution.CompletedAt = &now
			return tx.Save(&execution).Error
		}
		if err != nil {
			return fmt.Errorf("loading first step: %w", err)
		}

		stepExec := models.StepExecution{
			ExecutionID:  execution.ID,
			StepID:       firstStep.ID,
			Status:       models.StepStatusScheduled,
			ScheduledFor: e.resolveDelayOrNow(&firstStep, now, now),
		}
		if err := tx.Create(&stepExec).Error; err != nil {
			return fmt.Errorf("scheduling first step: %w", err)
		}

		execution.Status = models.ExecutionStatusInProgress
		execution.StartedAt = &now
		execution.CurrentStepOrder = firstStep.StepOrder
		return tx.Save(&execution).Error
	})
	if err != nil {
		return nil, err
	}

	return &execution, nil
}
