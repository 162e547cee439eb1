package engine

import "errors"

var (
	// ErrContactNotFound is returned by Trigger when the contact does not exist
	ErrContactNotFound = errors.New("contact not found")

	// ErrTeamNotResolved is returned by Trigger when the contact has no owning team
	ErrTeamNotResolved = errors.New("contact has no owning team")

	// ErrExecutionNotFound is returned by Cancel and Analytics lookups
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrSequenceNotFound is returned by Analytics for an unknown sequence
	ErrSequenceNotFound = errors.New("sequence not found")
)
