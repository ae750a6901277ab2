package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valuetrack/valuetrack/internal/audit"
	"github.com/valuetrack/valuetrack/internal/permissions"
	"github.com/valuetrack/valuetrack/internal/shared"
)

// RepositoryPort is the read side plus transaction entry point.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRole(ctx context.Context, id int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	ListChildren(ctx context.Context, parentID int64) ([]Role, error)
	ListGrants(ctx context.Context, roleID int64) ([]PermissionGrant, error)
	ListActiveAssignments(ctx context.Context, userID int64) ([]Assignment, error)
	CountActiveAssignments(ctx context.Context, roleID int64) (int64, error)
	ListTemplates(ctx context.Context) ([]Template, error)
	GetTemplate(ctx context.Context, name string) (Template, error)
	SaveTemplate(ctx context.Context, tpl Template) error
}

// GuardPort answers whether an actor may perform privileged operations.
type GuardPort interface {
	RequirePermission(ctx context.Context, actorID int64, permissionKey string) error
	ActorMaxPriority(ctx context.Context, actorID int64) (int, error)
}

// RegistryPort validates permission keys against the registry.
type RegistryPort interface {
	Lookup(ctx context.Context, keys []string) (map[string]permissions.Permission, error)
}

// ResolverInvalidator drops cached permission resolutions after a mutation.
type ResolverInvalidator interface {
	Invalidate(ctx context.Context) error
}

// IdempotencyPort deduplicates retried mutations.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditRecorder writes entries outside a transaction, used for denials.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

const idempotencyModule = "roles"

// Service implements role hierarchy management.
type Service struct {
	repo        RepositoryPort
	registry    RegistryPort
	guard       GuardPort
	invalidator ResolverInvalidator
	idem        IdempotencyPort
	denials     AuditRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService wires the role service.
func NewService(repo RepositoryPort, registry RegistryPort, guard GuardPort, invalidator ResolverInvalidator, idem IdempotencyPort, denials AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		registry:    registry,
		guard:       guard,
		invalidator: invalidator,
		idem:        idem,
		denials:     denials,
		logger:      logger,
		now:         time.Now,
	}
}

// requireAuthority runs the guard check and records denials before returning.
func (s *Service) requireAuthority(ctx context.Context, actorID int64, permissionKey string, roleID *int64, userID *int64) error {
	err := s.guard.RequirePermission(ctx, actorID, permissionKey)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInsufficientAuthority) {
		s.recordDenial(ctx, actorID, permissionKey, roleID, userID, "missing permission")
	}
	return err
}

func (s *Service) recordDenial(ctx context.Context, actorID int64, permissionKey string, roleID, userID *int64, reason string) {
	if s.denials == nil {
		return
	}
	entry := audit.Entry{
		ActionType:    audit.ActionGuardDenied,
		RoleID:        roleID,
		UserID:        userID,
		PermissionKey: permissionKey,
		ChangedBy:     actorID,
		Reason:        reason,
		Success:       false,
	}
	if err := s.denials.Record(ctx, entry); err != nil {
		s.logger.Warn("audit denial write failed", slog.Any("error", err))
	}
}

// invalidate bumps the resolver cache generation after a committed mutation.
// The mutation is durable either way, but a stale cache would keep serving
// revoked permissions, so the error is surfaced to the caller.
func (s *Service) invalidate(ctx context.Context) error {
	if s.invalidator == nil {
		return nil
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate resolver cache: %w", err)
	}
	return nil
}

// CreateRoleInput carries the fields of a new role.
type CreateRoleInput struct {
	Name               string
	DisplayName        string
	Description        string
	ParentRoleID       *int64
	Color              string
	Icon               string
	Priority           int
	MaxUsers           *int32
	AutoAssign         bool
	InheritPermissions bool
}

func (in CreateRoleInput) validate() error {
	name := strings.TrimSpace(in.Name)
	if len(name) < 2 {
		return fmt.Errorf("%w: role name must be at least 2 characters", ErrValidation)
	}
	if strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("%w: role name must not contain whitespace", ErrValidation)
	}
	if in.Priority < 0 || in.Priority > 100 {
		return fmt.Errorf("%w: priority must be between 0 and 100", ErrValidation)
	}
	if in.MaxUsers != nil && *in.MaxUsers < 1 {
		return fmt.Errorf("%w: max users must be positive when set", ErrValidation)
	}
	return nil
}

// CreateRole adds a role under an optional parent. The level is derived from
// the parent at insert time and never accepted from the caller.
func (s *Service) CreateRole(ctx context.Context, actorID int64, in CreateRoleInput) (Role, error) {
	if err := s.requireAuthority(ctx, actorID, shared.PermRolesCreate, nil, nil); err != nil {
		return Role{}, err
	}
	if err := in.validate(); err != nil {
		return Role{}, err
	}
	role := Role{
		Name:               strings.TrimSpace(in.Name),
		DisplayName:        strings.TrimSpace(in.DisplayName),
		Description:        in.Description,
		ParentRoleID:       in.ParentRoleID,
		Color:              in.Color,
		Icon:               in.Icon,
		Priority:           in.Priority,
		IsActive:           true,
		MaxUsers:           in.MaxUsers,
		AutoAssign:         in.AutoAssign,
		InheritPermissions: in.InheritPermissions,
		CreatedBy:          actorID,
	}
	if role.DisplayName == "" {
		role.DisplayName = role.Name
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		switch _, err := tx.GetRoleByName(ctx, role.Name); {
		case err == nil:
			return fmt.Errorf("%w: role name %q already taken", ErrConflict, role.Name)
		case !errors.Is(err, ErrNotFound):
			return err
		}
		if in.ParentRoleID != nil {
			parent, err := tx.GetRoleForUpdate(ctx, *in.ParentRoleID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return fmt.Errorf("%w: parent role %d", ErrNotFound, *in.ParentRoleID)
				}
				return err
			}
			if !parent.IsActive {
				return fmt.Errorf("%w: parent role %q", ErrRoleInactive, parent.Name)
			}
			role.Level = parent.Level + 1
		}
		id, err := tx.InsertRole(ctx, role)
		if err != nil {
			return err
		}
		role.ID = id
		return tx.AppendAudit(ctx, audit.Entry{
			ActionType: audit.ActionRoleCreated,
			RoleID:     &role.ID,
			NewValue: map[string]any{
				"role_name": role.Name,
				"parent_id": in.ParentRoleID,
				"level":     role.Level,
				"priority":  role.Priority,
			},
			ChangedBy: actorID,
			Success:   true,
		})
	})
	if err != nil {
		return Role{}, err
	}
	s.logger.Info("role created",
		slog.Int64("role_id", role.ID),
		slog.String("role_name", role.Name),
		slog.Int64("actor_id", actorID))
	return role, nil
}

// ReparentRole moves a role under a new parent, or to the root when
// newParentID is nil, and recomputes the levels of the moved subtree.
func (s *Service) ReparentRole(ctx context.Context, actorID, roleID int64, newParentID *int64) error {
	if err := s.requireAuthority(ctx, actorID, shared.PermRolesEdit, &roleID, nil); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.GetRoleForUpdate(ctx, roleID)
		if err != nil {
			return err
		}
		oldParent := role.ParentRoleID
		newLevel := 0
		if newParentID != nil {
			parent, err := tx.GetRoleForUpdate(ctx, *newParentID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return fmt.Errorf("%w: parent role %d", ErrNotFound, *newParentID)
				}
				return err
			}
			if !parent.IsActive {
				return fmt.Errorf("%w: parent role %q", ErrRoleInactive, parent.Name)
			}
			// Locking the ancestor chain while checking keeps a concurrent
			// reparent from closing a loop between the check and the write.
			cycle, err := wouldCreateCycle(ctx, tx.GetRoleForUpdate, roleID, parent)
			if err != nil {
				return err
			}
			if cycle {
				return fmt.Errorf("%w: role %d under role %d", ErrCycle, roleID, parent.ID)
			}
			newLevel = parent.Level + 1
		}
		if err := tx.SetParent(ctx, roleID, newParentID); err != nil {
			return err
		}
		role.ParentRoleID = newParentID
		role.Level = newLevel
		if err := recomputeSubtreeLevels(ctx, tx, role); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, audit.Entry{
			ActionType: audit.ActionRoleReparented,
			RoleID:     &roleID,
			OldValue:   map[string]any{"parent_id": oldParent},
			NewValue:   map[string]any{"parent_id": newParentID, "level": newLevel},
			ChangedBy:  actorID,
			Success:    true,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("role reparented", slog.Int64("role_id", roleID), slog.Int64("actor_id", actorID))
	return s.invalidate(ctx)
}

// DeactivateRole retires a role from new assignments. Existing assignments
// and grants keep resolving; deactivation is not a retroactive revoke.
func (s *Service) DeactivateRole(ctx context.Context, actorID, roleID int64, reason string) error {
	if err := s.requireAuthority(ctx, actorID, shared.PermRolesEdit, &roleID, nil); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.GetRoleForUpdate(ctx, roleID)
		if err != nil {
			return err
		}
		if !role.IsActive {
			return nil
		}
		if role.IsSystem {
			if err := s.requireStrictlyAbove(ctx, actorID, role, nil); err != nil {
				return err
			}
		}
		if err := tx.SetActive(ctx, roleID, false); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, audit.Entry{
			ActionType: audit.ActionRoleDeactivated,
			RoleID:     &roleID,
			OldValue:   map[string]any{"is_active": true},
			NewValue:   map[string]any{"is_active": false},
			ChangedBy:  actorID,
			Reason:     reason,
			Success:    true,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("role deactivated", slog.Int64("role_id", roleID), slog.Int64("actor_id", actorID))
	return s.invalidate(ctx)
}

// DeleteRole hard-deletes a role. Only inactive, non-system roles with no
// children and no active assignments qualify.
func (s *Service) DeleteRole(ctx context.Context, actorID, roleID int64) error {
	if err := s.requireAuthority(ctx, actorID, shared.PermRolesDelete, &roleID, nil); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.GetRoleForUpdate(ctx, roleID)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return fmt.Errorf("%w: %q", ErrSystemRole, role.Name)
		}
		if role.IsActive {
			return fmt.Errorf("%w: deactivate role %q before deleting", ErrValidation, role.Name)
		}
		children, err := tx.CountChildren(ctx, roleID)
		if err != nil {
			return err
		}
		if children > 0 {
			return fmt.Errorf("%w: %d child roles", ErrRoleReferenced, children)
		}
		assigned, err := tx.CountActiveAssignments(ctx, roleID)
		if err != nil {
			return err
		}
		if assigned > 0 {
			return fmt.Errorf("%w: %d active assignments", ErrRoleReferenced, assigned)
		}
		if err := tx.DeleteRole(ctx, roleID); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, audit.Entry{
			ActionType: audit.ActionRoleDeleted,
			RoleID:     &roleID,
			OldValue:   map[string]any{"role_name": role.Name},
			ChangedBy:  actorID,
			Success:    true,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("role deleted", slog.Int64("role_id", roleID), slog.Int64("actor_id", actorID))
	return s.invalidate(ctx)
}

// GrantInput carries an optional expiry and conditions for a grant.
type GrantInput struct {
	RoleID        int64
	PermissionKey string
	Conditions    map[string]any
	ExpiresAt     *time.Time
}

// GrantPermission attaches a permission to a role. Granting again refreshes
// the existing row in place, so repeated grants stay a single row.
func (s *Service) GrantPermission(ctx context.Context, actorID int64, in GrantInput) error {
	if err := s.requireAuthority(ctx, actorID, shared.PermRolesEdit, &in.RoleID, nil); err != nil {
		return err
	}
	known, err := s.registry.Lookup(ctx, []string{in.PermissionKey})
	if err != nil {
		return err
	}
	if _, ok := known[in.PermissionKey]; !ok {
		return fmt.Errorf("%w: unknown permission %q", ErrValidation, in.PermissionKey)
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return fmt.Errorf("%w: expiry must be in the future", ErrExpired)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.GetRoleForUpdate(ctx, in.RoleID)
		if err != nil {
			return err
		}
		if err := tx.UpsertGrant(ctx, PermissionGrant{
			RoleID:        role.ID,
			PermissionKey: in.PermissionKey,
			Conditions:    in.Conditions,
			GrantedBy:     actorID,
			ExpiresAt:     in.ExpiresAt,
		}); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, audit.Entry{
			ActionType:    audit.ActionPermissionGranted,
			RoleID:        &in.RoleID,
			PermissionKey: in.PermissionKey,
			NewValue:      map[string]any{"expires_at": in.ExpiresAt},
			ChangedBy:     actorID,
			Success:       true,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("permission granted",
		slog.Int64("role_id", in.RoleID),
		slog.String("permission", in.PermissionKey),
		slog.Int64("actor_id", actorID))
	return s.invalidate(ctx)
}

// RevokePermission flips a grant to revoked. The row survives for audit
// continuity; resolution stops honoring it as soon as the cache generation
// advances.
func (s *Service) RevokePermission(ctx context.Context, actorID, roleID int64, permissionKey string) error {
	if err := s.requireAuthority(ctx, actorID, shared.PermRolesEdit, &roleID, nil); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetRoleForUpdate(ctx, roleID); err != nil {
			return err
		}
		rows, err := tx.SetGranted(ctx, roleID, permissionKey, false)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: role %d has no grant for %q", ErrNotFound, roleID, permissionKey)
		}
		return tx.AppendAudit(ctx, audit.Entry{
			ActionType:    audit.ActionPermissionRevoked,
			RoleID:        &roleID,
			PermissionKey: permissionKey,
			OldValue:      map[string]any{"granted": true},
			NewValue:      map[string]any{"granted": false},
			ChangedBy:     actorID,
			Success:       true,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("permission revoked",
		slog.Int64("role_id", roleID),
		slog.String("permission", permissionKey),
		slog.Int64("actor_id", actorID))
	return s.invalidate(ctx)
}

// AssignInput carries the fields of a user-role assignment.
type AssignInput struct {
	UserID         int64
	RoleID         int64
	ExpiresAt      *time.Time
	IsPrimary      bool
	Context        map[string]any
	IdempotencyKey string
}

// AssignRole grants a user membership in a role. The actor needs the assign
// permission and strictly higher authority than the role being handed out,
// so nobody can mint peers at their own level.
func (s *Service) AssignRole(ctx context.Context, actorID int64, in AssignInput) error {
	if err := s.requireAuthority(ctx, actorID, shared.PermRolesAssign, &in.RoleID, &in.UserID); err != nil {
		return err
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return fmt.Errorf("%w: expiry must be in the future", ErrExpired)
	}
	role, err := s.repo.GetRole(ctx, in.RoleID)
	if err != nil {
		return err
	}
	if !role.IsActive {
		return fmt.Errorf("%w: %q", ErrRoleInactive, role.Name)
	}
	if err := s.requireStrictlyAbove(ctx, actorID, role, &in.UserID); err != nil {
		return err
	}
	if in.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, in.IdempotencyKey, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				// Retried request that already went through.
				return nil
			}
			return err
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetAssignmentForUpdate(ctx, in.UserID, in.RoleID)
		switch {
		case err == nil:
			if existing.IsActive && !existing.Expired(s.now()) {
				return fmt.Errorf("%w: user %d already holds role %q", ErrConflict, in.UserID, role.Name)
			}
		case !errors.Is(err, ErrNotFound):
			return err
		}
		if role.MaxUsers != nil {
			count, err := tx.CountActiveAssignments(ctx, in.RoleID)
			if err != nil {
				return err
			}
			if count >= int64(*role.MaxUsers) {
				return fmt.Errorf("%w: role %q is capped at %d users", ErrUserCap, role.Name, *role.MaxUsers)
			}
		}
		if err := tx.UpsertAssignment(ctx, Assignment{
			UserID:     in.UserID,
			RoleID:     in.RoleID,
			AssignedBy: actorID,
			ExpiresAt:  in.ExpiresAt,
			IsPrimary:  in.IsPrimary,
			Context:    in.Context,
		}); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, audit.Entry{
			ActionType: audit.ActionRoleAssigned,
			RoleID:     &in.RoleID,
			UserID:     &in.UserID,
			NewValue:   map[string]any{"expires_at": in.ExpiresAt, "is_primary": in.IsPrimary},
			ChangedBy:  actorID,
			Success:    true,
		})
	})
	if err != nil {
		if in.IdempotencyKey != "" && s.idem != nil {
			if delErr := s.idem.Delete(ctx, in.IdempotencyKey); delErr != nil {
				s.logger.Warn("idempotency key rollback failed", slog.Any("error", delErr))
			}
		}
		return err
	}
	s.logger.Info("role assigned",
		slog.Int64("user_id", in.UserID),
		slog.Int64("role_id", in.RoleID),
		slog.Int64("actor_id", actorID))
	return s.invalidate(ctx)
}

// RemoveRole deactivates a user's assignment. System roles at or above the
// actor's own authority cannot be stripped.
func (s *Service) RemoveRole(ctx context.Context, actorID, userID, roleID int64, reason string) error {
	if err := s.requireAuthority(ctx, actorID, shared.PermRolesAssign, &roleID, &userID); err != nil {
		return err
	}
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		if err := s.requireStrictlyAbove(ctx, actorID, role, &userID); err != nil {
			return err
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.DeactivateAssignment(ctx, userID, roleID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: user %d holds no active assignment for role %d", ErrNotFound, userID, roleID)
		}
		return tx.AppendAudit(ctx, audit.Entry{
			ActionType: audit.ActionRoleRemoved,
			RoleID:     &roleID,
			UserID:     &userID,
			OldValue:   map[string]any{"is_active": true},
			ChangedBy:  actorID,
			Reason:     reason,
			Success:    true,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("role removed",
		slog.Int64("user_id", userID),
		slog.Int64("role_id", roleID),
		slog.Int64("actor_id", actorID))
	return s.invalidate(ctx)
}

// requireStrictlyAbove enforces the priority comparison for operations on a
// role: the actor's highest active priority must exceed the target role's,
// equality is not enough.
func (s *Service) requireStrictlyAbove(ctx context.Context, actorID int64, role Role, subjectUserID *int64) error {
	actorPriority, err := s.guard.ActorMaxPriority(ctx, actorID)
	if err != nil {
		return err
	}
	if actorPriority <= role.Priority {
		s.recordDenial(ctx, actorID, "", &role.ID, subjectUserID,
			fmt.Sprintf("actor priority %d does not exceed role priority %d", actorPriority, role.Priority))
		return fmt.Errorf("%w: actor priority %d does not exceed role %q priority %d",
			ErrInsufficientAuthority, actorPriority, role.Name, role.Priority)
	}
	return nil
}

// Read side.

// GetRole fetches a single role.
func (s *Service) GetRole(ctx context.Context, roleID int64) (Role, error) {
	return s.repo.GetRole(ctx, roleID)
}

// GetAncestors returns the chain from the role's parent up to its root.
func (s *Service) GetAncestors(ctx context.Context, roleID int64) ([]Role, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return walkAncestors(ctx, s.repo.GetRole, role)
}

// GetDescendants returns every role below the given one, breadth-first.
func (s *Service) GetDescendants(ctx context.Context, roleID int64) ([]Role, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	var out []Role
	queue := []int64{roleID}
	visited := map[int64]struct{}{roleID: {}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		children, err := s.repo.ListChildren(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				continue
			}
			visited[child.ID] = struct{}{}
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}
	return out, nil
}

// Hierarchy renders the whole role graph as a forest.
func (s *Service) Hierarchy(ctx context.Context) ([]*Node, error) {
	all, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	return BuildForest(all), nil
}

// ListRoles returns all roles ordered by descending priority.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// UserRole pairs an assignment with its role.
type UserRole struct {
	Role       Role
	Assignment Assignment
}

// ListUserRoles returns the user's live memberships. Expired assignments are
// filtered out here even if no sweep has deactivated them yet.
func (s *Service) ListUserRoles(ctx context.Context, userID int64) ([]UserRole, error) {
	assignments, err := s.repo.ListActiveAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []UserRole
	for _, assignment := range assignments {
		if assignment.Expired(now) {
			continue
		}
		role, err := s.repo.GetRole(ctx, assignment.RoleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, UserRole{Role: role, Assignment: assignment})
	}
	return out, nil
}

// RoleStats summarizes one role's footprint.
type RoleStats struct {
	Role            Role
	ActiveUsers     int64
	GrantedKeys     int
	DirectChildren  int
	AncestorDepth   int
}

// RoleStatistics reports membership and grant counts for a role.
func (s *Service) RoleStatistics(ctx context.Context, roleID int64) (RoleStats, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return RoleStats{}, err
	}
	users, err := s.repo.CountActiveAssignments(ctx, roleID)
	if err != nil {
		return RoleStats{}, err
	}
	grants, err := s.repo.ListGrants(ctx, roleID)
	if err != nil {
		return RoleStats{}, err
	}
	now := s.now()
	live := 0
	for _, grant := range grants {
		if !grant.Expired(now) {
			live++
		}
	}
	children, err := s.repo.ListChildren(ctx, roleID)
	if err != nil {
		return RoleStats{}, err
	}
	ancestors, err := walkAncestors(ctx, s.repo.GetRole, role)
	if err != nil {
		return RoleStats{}, err
	}
	return RoleStats{
		Role:           role,
		ActiveUsers:    users,
		GrantedKeys:    live,
		DirectChildren: len(children),
		AncestorDepth:  len(ancestors),
	}, nil
}
