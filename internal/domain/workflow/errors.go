package workflow

import "errors"

var (
	// ErrInvalidTransition means the trigger is not permitted from the
	// current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState means a state value outside the lifecycle
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed means every guard for the trigger rejected it
	ErrGuardFailed = errors.New("guard condition failed")
)
