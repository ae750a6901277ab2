// Package rbac resolves the permissions a user effectively holds by
// walking role assignments and the inheritance chain above each role.
package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/valuetrack/valuetrack/internal/roles"
)

// maxChain bounds the upward walk per assigned role.
const maxChain = 64

// StorePort is the read surface the resolver needs. The roles repository
// satisfies it directly.
type StorePort interface {
	GetRole(ctx context.Context, id int64) (roles.Role, error)
	ListActiveAssignments(ctx context.Context, userID int64) ([]roles.Assignment, error)
	ListGrants(ctx context.Context, roleID int64) ([]roles.PermissionGrant, error)
}

// Resolver computes effective permission sets. Resolution fails closed: any
// store error propagates to the caller instead of degrading to a partial,
// possibly overly permissive answer.
type Resolver struct {
	store  StorePort
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewResolver wires a resolver. cache may be nil, in which case every call
// recomputes from the store.
func NewResolver(store StorePort, cache *Cache, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, cache: cache, logger: logger, now: time.Now}
}

// EffectivePermissions returns the set of permission keys the user holds
// right now, direct grants plus everything inherited upward from each
// assigned role while the inherit flag stays set.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID int64) (map[string]struct{}, error) {
	if r.cache == nil {
		return r.resolve(ctx, userID)
	}
	generation, err := r.cache.Generation(ctx)
	if err != nil {
		// A cache outage only costs the shortcut, not correctness.
		r.logger.Warn("permission cache unavailable", slog.Any("error", err))
		return r.resolve(ctx, userID)
	}
	flightKey := fmt.Sprintf("%d:%d", generation, userID)
	value, err, _ := r.group.Do(flightKey, func() (any, error) {
		if cached, ok := r.cache.GetPermissions(ctx, generation, userID); ok {
			return cached, nil
		}
		set, err := r.resolve(ctx, userID)
		if err != nil {
			return nil, err
		}
		r.cache.SetPermissions(ctx, generation, userID, set)
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(map[string]struct{}), nil
}

func (r *Resolver) resolve(ctx context.Context, userID int64) (map[string]struct{}, error) {
	assignments, err := r.store.ListActiveAssignments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list assignments for user %d: %w", userID, err)
	}
	now := r.now()
	set := map[string]struct{}{}
	for _, assignment := range assignments {
		if assignment.Expired(now) {
			continue
		}
		if err := r.collectChain(ctx, assignment.RoleID, now, set); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// collectChain gathers grants from roleID upward. A deactivated role still
// contributes; retiring a role stops new assignments but does not silently
// strip existing holders.
func (r *Resolver) collectChain(ctx context.Context, roleID int64, now time.Time, set map[string]struct{}) error {
	visited := map[int64]struct{}{}
	currentID := roleID
	for depth := 0; depth < maxChain; depth++ {
		if _, seen := visited[currentID]; seen {
			return nil
		}
		visited[currentID] = struct{}{}
		role, err := r.store.GetRole(ctx, currentID)
		if err != nil {
			return fmt.Errorf("load role %d: %w", currentID, err)
		}
		grants, err := r.store.ListGrants(ctx, role.ID)
		if err != nil {
			return fmt.Errorf("load grants of role %d: %w", role.ID, err)
		}
		for _, grant := range grants {
			if !grant.Granted || grant.Expired(now) {
				continue
			}
			set[grant.PermissionKey] = struct{}{}
		}
		if !role.InheritPermissions || role.ParentRoleID == nil {
			return nil
		}
		currentID = *role.ParentRoleID
	}
	return fmt.Errorf("rbac: inheritance chain of role %d exceeds depth %d", roleID, maxChain)
}

// HasPermission reports whether the user holds one permission key.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, permissionKey string) (bool, error) {
	set, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	_, ok := set[permissionKey]
	return ok, nil
}

// UserMaxPriority returns the highest priority among the user's live roles.
// Only active roles count here; a user whose every role was retired holds no
// authority over anyone. A user with no live roles gets 0, which the strict
// priority comparison can never satisfy.
func (r *Resolver) UserMaxPriority(ctx context.Context, userID int64) (int, error) {
	assignments, err := r.store.ListActiveAssignments(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list assignments for user %d: %w", userID, err)
	}
	now := r.now()
	max := 0
	for _, assignment := range assignments {
		if assignment.Expired(now) {
			continue
		}
		role, err := r.store.GetRole(ctx, assignment.RoleID)
		if err != nil {
			return 0, fmt.Errorf("load role %d: %w", assignment.RoleID, err)
		}
		if !role.IsActive {
			continue
		}
		if role.Priority > max {
			max = role.Priority
		}
	}
	return max, nil
}
