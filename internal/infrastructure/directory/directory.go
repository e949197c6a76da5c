// Package directory provides configuration-backed implementations of
// the identity and organization hierarchy collaborators. Role and tree
// data load once at startup; subtree membership is precomputed so the
// authorization hot path never walks the tree.
package directory

import (
	"context"
	"fmt"

	"github.com/atisplatform/approval-engine/internal/application/port"
	"github.com/atisplatform/approval-engine/internal/domain/entity"
	"go.uber.org/zap"
)

// UserEntry is one configured user
type UserEntry struct {
	ID            string        `mapstructure:"id"`
	Role          entity.RoleID `mapstructure:"role"`
	InstitutionID int64         `mapstructure:"institution_id"`
}

// InstitutionEntry is one node of the configured institution tree.
// ParentID zero marks a root.
type InstitutionEntry struct {
	ID       int64  `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	ParentID int64  `mapstructure:"parent_id"`
}

// Directory implements port.IdentityProvider and port.OrgHierarchy over
// static configuration data.
type Directory struct {
	users    map[string]port.Actor
	byRole   map[entity.RoleID][]port.Actor
	subtrees map[int64][]int64
	logger   *zap.Logger
}

// New builds a directory, validating roles and tree consistency and
// precomputing every institution's subtree.
func New(users []UserEntry, institutions []InstitutionEntry, logger *zap.Logger) (*Directory, error) {
	known := make(map[int64]bool, len(institutions))
	children := make(map[int64][]int64, len(institutions))
	for _, inst := range institutions {
		if known[inst.ID] {
			return nil, fmt.Errorf("duplicate institution id %d", inst.ID)
		}
		known[inst.ID] = true
	}
	for _, inst := range institutions {
		if inst.ParentID != 0 {
			if !known[inst.ParentID] {
				return nil, fmt.Errorf("institution %d references unknown parent %d", inst.ID, inst.ParentID)
			}
			children[inst.ParentID] = append(children[inst.ParentID], inst.ID)
		}
	}

	subtrees := make(map[int64][]int64, len(institutions))
	for _, inst := range institutions {
		subtrees[inst.ID] = collectSubtree(inst.ID, children)
	}

	d := &Directory{
		users:    make(map[string]port.Actor, len(users)),
		byRole:   make(map[entity.RoleID][]port.Actor),
		subtrees: subtrees,
		logger:   logger,
	}

	for _, u := range users {
		if !u.Role.IsValid() {
			return nil, fmt.Errorf("user %s has unknown role %q", u.ID, u.Role)
		}
		if !known[u.InstitutionID] {
			return nil, fmt.Errorf("user %s references unknown institution %d", u.ID, u.InstitutionID)
		}
		actor := port.Actor{ID: u.ID, Role: u.Role, InstitutionID: u.InstitutionID}
		d.users[u.ID] = actor
		d.byRole[u.Role] = append(d.byRole[u.Role], actor)
	}

	logger.Info("Directory loaded",
		zap.Int("users", len(users)),
		zap.Int("institutions", len(institutions)))

	return d, nil
}

// collectSubtree walks the children adjacency depth-first, inclusive of
// the root.
func collectSubtree(root int64, children map[int64][]int64) []int64 {
	ids := []int64{root}
	stack := append([]int64(nil), children[root]...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ids = append(ids, id)
		stack = append(stack, children[id]...)
	}
	return ids
}

// Resolve implements port.IdentityProvider
func (d *Directory) Resolve(ctx context.Context, actorID string) (port.Actor, error) {
	actor, ok := d.users[actorID]
	if !ok {
		return port.Actor{}, fmt.Errorf("%w: %s", entity.ErrUnknownActor, actorID)
	}
	return actor, nil
}

// ApproversFor implements port.IdentityProvider: users holding the role
// whose authority scope covers the institution.
func (d *Directory) ApproversFor(ctx context.Context, role entity.RoleID, institutionID int64) ([]string, error) {
	var ids []string
	for _, actor := range d.byRole[role] {
		if d.scopeCovers(actor, institutionID) {
			ids = append(ids, actor.ID)
		}
	}
	return ids, nil
}

func (d *Directory) scopeCovers(actor port.Actor, institutionID int64) bool {
	switch actor.Role.Scope() {
	case entity.ScopeGlobal:
		return true
	case entity.ScopeOwn:
		return actor.InstitutionID == institutionID
	default:
		for _, id := range d.subtrees[actor.InstitutionID] {
			if id == institutionID {
				return true
			}
		}
		return false
	}
}

// SubtreeOf implements port.OrgHierarchy. The returned slice is a copy;
// callers may not mutate the precomputed sets.
func (d *Directory) SubtreeOf(ctx context.Context, institutionID int64) ([]int64, error) {
	subtree, ok := d.subtrees[institutionID]
	if !ok {
		return nil, fmt.Errorf("unknown institution %d", institutionID)
	}
	return append([]int64(nil), subtree...), nil
}

// Exists implements port.OrgHierarchy
func (d *Directory) Exists(ctx context.Context, institutionID int64) bool {
	_, ok := d.subtrees[institutionID]
	return ok
}

// Verify interface compliance
var (
	_ port.IdentityProvider = (*Directory)(nil)
	_ port.OrgHierarchy     = (*Directory)(nil)
)
