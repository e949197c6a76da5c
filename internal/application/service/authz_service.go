package service

import (
	"context"

	"github.com/atisplatform/approval-engine/internal/application/port"
	"github.com/atisplatform/approval-engine/internal/domain/entity"
)

// AuthorizationGate decides whether an actor may act on a request at a
// given step, and what slice of the institution tree they may see at
// all. Pure decision logic, no side effects.
type AuthorizationGate interface {
	// CanAct returns true iff the actor's role matches the step's required
	// role and the actor's scope includes the request's institution.
	CanAct(ctx context.Context, actor port.Actor, req *entity.ApprovalRequest, step entity.ApprovalStep) (bool, error)

	// VisibleScope returns the institution ids the actor may see. A nil
	// slice means unrestricted (global roles); an empty non-nil slice
	// means nothing is visible.
	VisibleScope(ctx context.Context, actor port.Actor) ([]int64, error)
}

type authorizationGate struct {
	hierarchy port.OrgHierarchy
}

// NewAuthorizationGate creates the hierarchy-scoped authorization gate
func NewAuthorizationGate(hierarchy port.OrgHierarchy) AuthorizationGate {
	return &authorizationGate{hierarchy: hierarchy}
}

// CanAct applies the two-part rule: exact role match, then scope
// inclusion. A matching role never overrides the scope boundary.
func (g *authorizationGate) CanAct(ctx context.Context, actor port.Actor, req *entity.ApprovalRequest, step entity.ApprovalStep) (bool, error) {
	if actor.Role != step.RequiredRole {
		return false, nil
	}

	switch actor.Role.Scope() {
	case entity.ScopeGlobal:
		return true, nil
	case entity.ScopeOwn:
		return actor.InstitutionID == req.InstitutionID, nil
	default:
		subtree, err := g.hierarchy.SubtreeOf(ctx, actor.InstitutionID)
		if err != nil {
			return false, err
		}
		for _, id := range subtree {
			if id == req.InstitutionID {
				return true, nil
			}
		}
		return false, nil
	}
}

// VisibleScope precomputes the hard visibility boundary used by listing
// queries. Listing code intersects client-supplied institution filters
// with this set; it never trusts the client alone.
func (g *authorizationGate) VisibleScope(ctx context.Context, actor port.Actor) ([]int64, error) {
	switch actor.Role.Scope() {
	case entity.ScopeGlobal:
		return nil, nil
	case entity.ScopeOwn:
		return []int64{actor.InstitutionID}, nil
	default:
		return g.hierarchy.SubtreeOf(ctx, actor.InstitutionID)
	}
}

// ScopeIncludes reports whether an institution falls inside a visible
// scope returned by VisibleScope.
func ScopeIncludes(scope []int64, institutionID int64) bool {
	if scope == nil {
		return true
	}
	for _, id := range scope {
		if id == institutionID {
			return true
		}
	}
	return false
}

// IntersectScope narrows a visible scope to a single requested
// institution. The result is always a subset of the scope.
func IntersectScope(scope []int64, requested int64) []int64 {
	if requested == 0 {
		return scope
	}
	if ScopeIncludes(scope, requested) {
		return []int64{requested}
	}
	return []int64{}
}
