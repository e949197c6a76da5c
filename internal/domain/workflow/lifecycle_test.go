package workflow

import (
	"context"
	"testing"
)

func TestForRequest_Approve(t *testing.T) {
	tests := []struct {
		name         string
		status       State
		currentLevel int
		chainLength  int
		wantState    State
	}{
		{"first of three advances", StatePending, 1, 3, StatePending},
		{"middle of three advances", StatePending, 2, 3, StatePending},
		{"final of three completes", StatePending, 3, 3, StateApproved},
		{"single step completes", StatePending, 1, 1, StateApproved},
		{"returned at final completes", StateReturned, 2, 2, StateApproved},
		{"returned before final advances", StateReturned, 1, 3, StatePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine := ForRequest(tt.status, tt.currentLevel, tt.chainLength)
			if err := machine.Fire(context.Background(), TriggerApprove); err != nil {
				t.Fatalf("Fire(approve) unexpected error: %v", err)
			}
			if machine.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", machine.State(), tt.wantState)
			}
		})
	}
}

func TestForRequest_RejectIsAlwaysTerminal(t *testing.T) {
	for _, status := range []State{StatePending, StateReturned} {
		for _, level := range []int{1, 2, 3} {
			machine := ForRequest(status, level, 3)
			if err := machine.Fire(context.Background(), TriggerReject); err != nil {
				t.Fatalf("Fire(reject) from %s at level %d: %v", status, level, err)
			}
			if machine.State() != StateRejected {
				t.Errorf("State() = %v, want %v", machine.State(), StateRejected)
			}
		}
	}
}

func TestForRequest_Return(t *testing.T) {
	machine := ForRequest(StatePending, 3, 3)
	if err := machine.Fire(context.Background(), TriggerReturn); err != nil {
		t.Fatalf("Fire(return) unexpected error: %v", err)
	}
	if machine.State() != StateReturned {
		t.Errorf("State() = %v, want %v", machine.State(), StateReturned)
	}
}

func TestForRequest_TerminalStatesPermitNothing(t *testing.T) {
	for _, status := range []State{StateApproved, StateRejected} {
		machine := ForRequest(status, 1, 3)
		for _, trigger := range []Trigger{TriggerApprove, TriggerReject, TriggerReturn} {
			if machine.CanFire(trigger) {
				t.Errorf("CanFire(%s) from %s = true, want false", trigger, status)
			}
		}
	}
}
