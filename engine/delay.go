package engine

import (
	"fmt"
	"time"

	"calldeck/models"
)

// ResolveDelay computes when a step should fire. startedAt is the moment
// the execution was triggered; now anchors after_previous and specific_time.
//
//   - after_previous: now + delayMinutes
//   - after_trigger:  startedAt + delayMinutes. The result may already be in
//     the past, which means immediately due; overdue work is not dropped.
//   - specific_time:  today at HH:MM; if that instant is not after now, roll
//     forward exactly one day. Only a single day is ever added, however far
//     past the time is.
func ResolveDelay(step *models.FollowUpStep, startedAt, now time.Time) (time.Time, error) {
	switch step.DelayType {
	case models.DelayAfterPrevious:
		return now.Add(time.Duration(step.DelayMinutes) * time.Minute), nil

	case models.DelayAfterTrigger:
		return startedAt.Add(time.Duration(step.DelayMinutes) * time.Minute), nil

	case models.DelaySpecificTime:
		at, err := time.Parse("15:04", step.SpecificTime)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid specific_time %q: %w", step.SpecificTime, err)
		}
		target := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
		if !target.After(now) {
			target = target.Add(24 * time.Hour)
		}
		return target, nil

	default:
		return time.Time{}, fmt.Errorf("unknown delay type %q", step.DelayType)
	}
}

// resolveDelayOrNow falls back to immediate scheduling when a step carries
// an unparseable delay. Step CRUD validates delays up front, so this only
// fires on rows written before validation existed.
func (e *Engine) resolveDelayOrNow(step *models.FollowUpStep, startedAt, now time.Time) time.Time {
	at, err := ResolveDelay(step, startedAt, now)
	if err != nil {
		e.logf("step %d: %v, scheduling immediately", step.ID, err)
		return now
	}
	return at
}
