package workflow

import "context"

// StateMachine tracks one request's current state and validates
// transitions against the configured chain position.
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire reports whether the trigger is permitted right now
	CanFire(trigger Trigger) bool

	// Fire applies the trigger, moving to the new state if permitted
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers lists the triggers that can fire from the
	// current state
	PermittedTriggers() []Trigger
}
