package entity

import "time"

// ApprovalAction is one row of the append-only audit ledger. A level can
// be revisited after a return, producing multiple rows for the same
// level; rows are never updated or deleted.
type ApprovalAction struct {
	ID         int64     `json:"id"`
	RequestID  int64     `json:"request_id"`
	Level      int       `json:"level"`
	Action     string    `json:"action"`
	ApproverID string    `json:"approver_id"`
	Comments   string    `json:"comments,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
