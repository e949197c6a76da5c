package port

import (
	"context"
	"time"

	"github.com/atisplatform/approval-engine/internal/domain/entity"
)

// RequestFilter narrows approval request listings. Institutions is the
// caller's authorization scope intersected with any client filter; an
// empty non-nil set yields no rows.
type RequestFilter struct {
	Status string
	// Actionable selects pending and returned requests regardless of Status.
	Actionable    bool
	Priority      string
	WorkflowType  string
	Institutions  []int64
	SubmitterID   string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// ActionFilter narrows approval action history listings
type ActionFilter struct {
	ApproverID string
	Action     string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// StatusCount is one bucket of a status distribution
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// TypeStat aggregates outcomes per workflow type
type TypeStat struct {
	WorkflowType string `json:"workflow_type"`
	Total        int64  `json:"total"`
	Approved     int64  `json:"approved"`
}

// WorkflowRepository defines persistence operations for WorkflowDefinition.
// Definitions are immutable once written; there is no update or delete.
type WorkflowRepository interface {
	Create(ctx context.Context, def *entity.WorkflowDefinition) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)
	GetByType(ctx context.Context, workflowType string) (*entity.WorkflowDefinition, error)
	List(ctx context.Context) ([]*entity.WorkflowDefinition, error)
}

// RequestRepository defines persistence operations for ApprovalRequest
type RequestRepository interface {
	Create(ctx context.Context, req *entity.ApprovalRequest) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalRequest, error)

	// UpdateState applies a transition guarded by the expected current
	// status and level. It returns entity.ErrStaleRequest when no row
	// matched, meaning a concurrent actor got there first.
	UpdateState(ctx context.Context, id int64, expectStatus string, expectLevel int, newStatus string, newLevel int, completedAt *time.Time) error

	List(ctx context.Context, filter RequestFilter) ([]*entity.ApprovalRequest, error)
	Count(ctx context.Context, filter RequestFilter) (int64, error)

	// CountByStatus and StatsByType feed the analytics service.
	CountByStatus(ctx context.Context, filter RequestFilter) ([]StatusCount, error)
	StatsByType(ctx context.Context, filter RequestFilter) ([]TypeStat, error)
	AverageProcessingHours(ctx context.Context, filter RequestFilter) (float64, error)
}

// ActionRepository defines persistence operations for the append-only
// ApprovalAction ledger. Rows are created once and never mutated.
type ActionRepository interface {
	Create(ctx context.Context, action *entity.ApprovalAction) error
	GetByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalAction, error)
	ListByApprover(ctx context.Context, filter ActionFilter) ([]*entity.ApprovalAction, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
