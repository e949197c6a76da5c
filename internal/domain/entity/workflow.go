package entity

import (
	"fmt"
	"time"
)

// ApprovalStep is one role-gated stage of an approval chain
type ApprovalStep struct {
	Level        int    `json:"level"`
	Title        string `json:"title"`
	RequiredRole RoleID `json:"required_role"`
	Required     bool   `json:"required"`
}

// WorkflowDefinition describes an ordered approval chain. Definitions are
// immutable once requests reference them; new versions are new rows.
type WorkflowDefinition struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	WorkflowType  string         `json:"workflow_type"`
	ApprovalChain []ApprovalStep `json:"approval_chain"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Length returns the number of steps in the chain
func (w *WorkflowDefinition) Length() int {
	return len(w.ApprovalChain)
}

// StepAt returns the step at the given 1-based level
func (w *WorkflowDefinition) StepAt(level int) (ApprovalStep, error) {
	if level < 1 || level > len(w.ApprovalChain) {
		return ApprovalStep{}, fmt.Errorf("%w: level %d of %d", ErrStepNotFound, level, len(w.ApprovalChain))
	}
	return w.ApprovalChain[level-1], nil
}

// RequiredSteps returns only the steps marked required. The required
// flag affects chain-completion display, not transition skipping; every
// step still needs an explicit action to advance past it.
func (w *WorkflowDefinition) RequiredSteps() []ApprovalStep {
	steps := make([]ApprovalStep, 0, len(w.ApprovalChain))
	for _, s := range w.ApprovalChain {
		if s.Required {
			steps = append(steps, s)
		}
	}
	return steps
}

// Validate checks the chain invariants: at least one step, levels
// contiguous starting at 1, known roles.
func (w *WorkflowDefinition) Validate() error {
	if len(w.ApprovalChain) == 0 {
		return fmt.Errorf("workflow %q: approval chain must have at least one step", w.Name)
	}
	if !IsValidWorkflowType(w.WorkflowType) {
		return fmt.Errorf("workflow %q: unknown workflow type %q", w.Name, w.WorkflowType)
	}
	for i, step := range w.ApprovalChain {
		if step.Level != i+1 {
			return fmt.Errorf("workflow %q: levels must be contiguous starting at 1, got %d at position %d", w.Name, step.Level, i)
		}
		if !step.RequiredRole.IsValid() {
			return fmt.Errorf("workflow %q: unknown role %q at level %d", w.Name, step.RequiredRole, step.Level)
		}
	}
	return nil
}
