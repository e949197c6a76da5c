package entity

// Status constants for ApprovalRequest
const (
	StatusPending  = "pending"
	StatusReturned = "returned"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Action type constants for ApprovalAction
const (
	ActionApproved = "approved"
	ActionRejected = "rejected"
	ActionReturned = "returned"
)

// Priority constants for ApprovalRequest
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Workflow type constants for WorkflowDefinition
const (
	WorkflowTypeSurvey     = "survey"
	WorkflowTypeDocument   = "document"
	WorkflowTypeTask       = "task"
	WorkflowTypeAssessment = "assessment"
	WorkflowTypeSchedule   = "schedule"
	WorkflowTypeReport     = "report"
	WorkflowTypeAttendance = "attendance"
)

// Bulk job status constants
const (
	BulkStatusRunning   = "running"
	BulkStatusCompleted = "completed"
	BulkStatusCancelled = "cancelled"
	BulkStatusFailed    = "failed"
)

// Notification event constants emitted on state transitions
const (
	EventApprovalRequired = "approval.required"
	EventApprovalApproved = "approval.approved"
	EventApprovalRejected = "approval.rejected"
	EventApprovalReturned = "approval.returned"
)

var validPriorities = map[string]bool{
	PriorityLow:    true,
	PriorityMedium: true,
	PriorityHigh:   true,
}

var validWorkflowTypes = map[string]bool{
	WorkflowTypeSurvey:     true,
	WorkflowTypeDocument:   true,
	WorkflowTypeTask:       true,
	WorkflowTypeAssessment: true,
	WorkflowTypeSchedule:   true,
	WorkflowTypeReport:     true,
	WorkflowTypeAttendance: true,
}

// IsValidPriority returns true if the priority is a known value
func IsValidPriority(p string) bool {
	return validPriorities[p]
}

// IsValidWorkflowType returns true if the workflow type is a known value
func IsValidWorkflowType(t string) bool {
	return validWorkflowTypes[t]
}
