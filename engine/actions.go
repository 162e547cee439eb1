package engine

import (
	"fmt"
	"time"

	"calldeck/models"
)

// SendResult is the outcome of one channel dispatch
type SendResult struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error,omitempty"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
}

// ActionSender dispatches one follow-up action over its channel. Each
// implementation owns its own retries; the engine only records the outcome.
type ActionSender interface {
	Send(contact *models.Contact, step *models.FollowUpStep, sequence *models.FollowUpSequence) SendResult
}

// dispatch runs the sender for the step's action type with a timeout and
// panic recovery, so one bad channel cannot take down the batch. A wait
// step succeeds without any sender.
func (e *Engine) dispatch(contact *models.Contact, step *models.FollowUpStep, sequence *models.FollowUpSequence) SendResult {
	if step.ActionType == models.ActionTypeWait {
		return SendResult{Success: true, Detail: map[string]interface{}{"action": "wait"}}
	}

	sender, ok := e.Senders[step.ActionType]
	if !ok {
		return SendResult{Success: false, Error: fmt.Sprintf("no sender registered for action type %q", step.ActionType)}
	}

	resultCh := make(chan SendResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- SendResult{Success: false, Error: fmt.Sprintf("sender panic: %v", r)}
			}
		}()
		resultCh <- sender.Send(contact, step, sequence)
	}()

	timeout := e.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}

	select {
	case res := <-resultCh:
		return res
	case <-time.After(timeout):
		return SendResult{Success: false, Error: fmt.Sprintf("%s dispatch timed out after %s", step.ActionType, timeout)}
	}
}
