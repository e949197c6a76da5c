package port

import (
	"context"

	"github.com/atisplatform/approval-engine/internal/domain/entity"
)

// Actor is a resolved identity: the role the user holds and the
// institution they belong to.
type Actor struct {
	ID            string
	Role          entity.RoleID
	InstitutionID int64
}

// IdentityProvider resolves users to their role and institution
type IdentityProvider interface {
	// Resolve returns the actor for a user id, or entity.ErrUnknownActor.
	Resolve(ctx context.Context, actorID string) (Actor, error)

	// ApproversFor returns the ids of users holding the role whose
	// authority scope covers the institution. Used to resolve
	// notification recipients for the next approval level.
	ApproversFor(ctx context.Context, role entity.RoleID, institutionID int64) ([]string, error)
}

// OrgHierarchy exposes the institution tree. Subtree membership is
// precomputed by implementations; the authorization hot path never
// walks the tree.
type OrgHierarchy interface {
	// SubtreeOf returns the ids of the subtree rooted at the given
	// institution, inclusive.
	SubtreeOf(ctx context.Context, institutionID int64) ([]int64, error)

	// Exists reports whether the institution id is known.
	Exists(ctx context.Context, institutionID int64) bool
}

// Notification is one fire-and-forget event emitted on a state transition
type Notification struct {
	Event        string
	RecipientIDs []string
	Payload      map[string]interface{}
}

// Notifier dispatches notifications. Implementations must never block
// the transition path; delivery failures are logged and swallowed.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}
