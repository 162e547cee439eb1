package engine

import (
	"errors"
	"fmt"

	"calldeck/models"

	"gorm.io/gorm"
)

// Cancel stops an execution: status becomes cancelled and any still
// scheduled step execution is flipped to skipped so the scheduler never
// picks it up. Cancelling an already completed or cancelled execution is a
// no-op, not an error, so callers can retry freely.
func (e *Engine) Cancel(executionID uint, reason string) error {
	var execution models.SequenceExecution
	if err := e.DB.First(&execution, executionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrExecutionNotFound
		}
		return fmt.Errorf("loading execution %d: %w", executionID, err)
	}

	if execution.Status == models.ExecutionStatusCompleted || execution.Status == models.ExecutionStatusCancelled {
		return nil
	}

	now := e.Now()
	return e.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.SequenceExecution{}).
			Where("id = ?", execution.ID).
			Updates(map[string]interface{}{
				"status":        models.ExecutionStatusCancelled,
				"cancel_reason": reason,
				"completed_at":  now,
			}).Error
		if err != nil {
			return fmt.Errorf("cancelling execution %d: %w", execution.ID, err)
		}

		return tx.Model(&models.StepExecution{}).
			Where("execution_id = ? AND status = ?", execution.ID, models.StepStatusScheduled).
			Updates(map[string]interface{}{
				"status":        models.StepStatusSkipped,
				"error_message": "execution cancelled",
			}).Error
	})
}

// StepStats aggregates step execution outcomes for one step of a sequence
type StepStats struct {
	StepID     uint   `json:"step_id"`
	StepOrder  int    `json:"step_order"`
	ActionType string `json:"action_type"`
	Scheduled  int64  `json:"scheduled"`
	Sent       int64  `json:"sent"`
	Failed     int64  `json:"failed"`
	Skipped    int64  `json:"skipped"`
}

// SequenceAnalytics summarises how a sequence has performed across all its
// executions
type SequenceAnalytics struct {
	SequenceID      uint             `json:"sequence_id"`
	TotalExecutions int64            `json:"total_executions"`
	StatusCounts    map[string]int64 `json:"status_counts"`
	ConversionRate  float64          `json:"conversion_rate"`
	Steps           []StepStats      `json:"steps"`
}

// Analytics aggregates execution counts by status and step execution counts
// by step and status, and derives the sequence conversion rate. Read-only.
func (e *Engine) Analytics(sequenceID uint) (*SequenceAnalytics, error) {
	var sequence models.FollowUpSequence
	if err := e.DB.First(&sequence, sequenceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSequenceNotFound
		}
		return nil, fmt.Errorf("loading sequence %d: %w", sequenceID, err)
	}

	var statusRows []struct {
		Status string
		Count  int64
	}
	err := e.DB.Model(&models.SequenceExecution{}).
		Select("status, COUNT(*) as count").
		Where("sequence_id = ?", sequenceID).
		Group("status").
		Scan(&statusRows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregating executions: %w", err)
	}

	analytics := &SequenceAnalytics{
		SequenceID:   sequenceID,
		StatusCounts: map[string]int64{},
	}
	for _, row := range statusRows {
		analytics.StatusCounts[row.Status] = row.Count
		analytics.TotalExecutions += row.Count
	}
	if analytics.TotalExecutions > 0 {
		analytics.ConversionRate = float64(analytics.StatusCounts[models.ExecutionStatusCompleted]) / float64(analytics.TotalExecutions)
	}

	var steps []models.FollowUpStep
	if err := e.DB.Where("sequence_id = ?", sequenceID).Order("step_order ASC").Find(&steps).Error; err != nil {
		return nil, fmt.Errorf("loading steps: %w", err)
	}

	var stepRows []struct {
		StepID uint
		Status string
		Count  int64
	}
	err = e.DB.Model(&models.StepExecution{}).
		Select("step_executions.step_id, step_executions.status, COUNT(*) as count").
		Joins("JOIN follow_up_steps ON follow_up_steps.id = step_executions.step_id").
		Where("follow_up_steps.sequence_id = ?", sequenceID).
		Group("step_executions.step_id, step_executions.status").
		Scan(&stepRows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregating step executions: %w", err)
	}

	byStep := map[uint]*StepStats{}
	for _, step := range steps {
		stats := &StepStats{StepID: step.ID, StepOrder: step.StepOrder, ActionType: step.ActionType}
		byStep[step.ID] = stats
	}
	for _, row := range stepRows {
		stats, ok := byStep[row.StepID]
		if !ok {
			continue
		}
		switch row.Status {
		case models.StepStatusScheduled:
			stats.Scheduled = row.Count
		case models.StepStatusSent:
			stats.Sent = row.Count
		case models.StepStatusFailed:
			stats.Failed = row.Count
		case models.StepStatusSkipped:
			stats.Skipped = row.Count
		}
	}
	for _, step := range steps {
		analytics.Steps = append(analytics.Steps, *byStep[step.ID])
	}

	return analytics, nil
}
