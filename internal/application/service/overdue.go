package service

import (
	"time"

	"github.com/atisplatform/approval-engine/internal/domain/entity"
)

// IsOverdue classifies a request as overdue: it has a deadline, the
// deadline has passed, and the request is still awaiting action.
// Pure function, consumed by listing and filtering only.
func IsOverdue(req *entity.ApprovalRequest, now time.Time) bool {
	return req.IsOverdue(now)
}

// FilterOverdue returns only the overdue requests from the given slice
func FilterOverdue(requests []*entity.ApprovalRequest, now time.Time) []*entity.ApprovalRequest {
	overdue := make([]*entity.ApprovalRequest, 0, len(requests))
	for _, req := range requests {
		if req.IsOverdue(now) {
			overdue = append(overdue, req)
		}
	}
	return overdue
}
