package entity

import "time"

// ApprovalRequest tracks one submission's progress through an approval
// chain. Requests are never deleted; terminal states are retained for
// audit.
type ApprovalRequest struct {
	ID             int64      `json:"id"`
	WorkflowID     int64      `json:"workflow_id"`
	SubmitterID    string     `json:"submitter_id"`
	InstitutionID  int64      `json:"institution_id"`
	SubmissionData string     `json:"submission_data"`
	CurrentLevel   int        `json:"current_level"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsTerminal returns true if no further action can be taken on the
// request. Returned requests stay actionable.
func (r *ApprovalRequest) IsTerminal() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected
}

// IsActionable returns true if the request is in a state an approver
// can act on.
func (r *ApprovalRequest) IsActionable() bool {
	return r.Status == StatusPending || r.Status == StatusReturned
}

// IsOverdue reports whether the request's deadline has passed while it
// is still awaiting action.
func (r *ApprovalRequest) IsOverdue(now time.Time) bool {
	return r.Deadline != nil && now.After(*r.Deadline) && r.IsActionable()
}
