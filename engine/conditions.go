package engine

import (
	"calldeck/models"
	"time"
)

// EvaluateConditions reports whether a step's conditions hold right now for
// this contact. Absent fields are vacuously true; every present field must
// hold. Time-of-day comparison is lexical on "HH:MM" strings, so both
// window boundaries are inclusive. prevResult is the status of the previous
// step execution, empty when there is none.
func EvaluateConditions(cond *models.StepConditions, contact *models.Contact, prevResult string, now time.Time) bool {
	if cond == nil {
		return true
	}

	if len(cond.DaysOfWeek) > 0 {
		day := int(now.Weekday())
		found := false
		for _, d := range cond.DaysOfWeek {
			if d == day {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	nowHHMM := now.Format("15:04")
	if cond.TimeFrom != "" && nowHHMM < cond.TimeFrom {
		return false
	}
	if cond.TimeTo != "" && nowHHMM > cond.TimeTo {
		return false
	}

	if len(cond.LeadTiers) > 0 {
		found := false
		for _, tier := range cond.LeadTiers {
			if tier == contact.LeadTier {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if cond.MinLeadScore != nil && contact.LeadScore < *cond.MinLeadScore {
		return false
	}
	if cond.MaxLeadScore != nil && contact.LeadScore > *cond.MaxLeadScore {
		return false
	}

	if cond.PreviousStepResult != "" && prevResult != cond.PreviousStepResult {
		return false
	}

	return true
}
