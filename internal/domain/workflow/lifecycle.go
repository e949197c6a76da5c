package workflow

import "context"

// ForRequest builds the lifecycle machine for a request positioned at
// currentLevel in a chain of chainLength steps. Approve at the final
// level completes the chain; anywhere earlier it stays pending at the
// next level. Returned requests act identically to pending ones.
func ForRequest(status State, currentLevel, chainLength int) StateMachine {
	atFinalLevel := func(ctx context.Context) bool { return currentLevel >= chainLength }
	beforeFinalLevel := func(ctx context.Context) bool { return currentLevel < chainLength }

	builder := NewBuilder()
	for _, from := range []State{StatePending, StateReturned} {
		builder.Configure(from).
			PermitIf(TriggerApprove, StateApproved, atFinalLevel).
			PermitIf(TriggerApprove, StatePending, beforeFinalLevel).
			Permit(TriggerReject, StateRejected).
			Permit(TriggerReturn, StateReturned)
	}

	return builder.Build(status)
}
