package roles

import (
	"errors"
	"time"
)

// Role is a named authority level with a position in a single-parent
// hierarchy. Name is immutable once created; Level is derived from the
// parent chain and maintained by the service on every topology change.
type Role struct {
	ID                 int64
	Name               string
	DisplayName        string
	Description        string
	ParentRoleID       *int64
	Level              int
	Color              string
	Icon               string
	Priority           int
	IsSystem           bool
	IsActive           bool
	MaxUsers           *int32
	AutoAssign         bool
	InheritPermissions bool
	CreatedBy          int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PermissionGrant ties a permission key to a role. Revocation flips Granted
// to false; the row is retained for audit continuity.
type PermissionGrant struct {
	RoleID        int64
	PermissionKey string
	Granted       bool
	Conditions    map[string]any
	GrantedBy     int64
	GrantedAt     time.Time
	ExpiresAt     *time.Time
}

// Expired reports whether the grant has lapsed at the given instant.
func (g PermissionGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// Assignment links a user to a role. Context is opaque caller metadata and
// takes no part in resolution.
type Assignment struct {
	ID         int64
	UserID     int64
	RoleID     int64
	AssignedBy int64
	AssignedAt time.Time
	ExpiresAt  *time.Time
	IsPrimary  bool
	Context    map[string]any
	IsActive   bool
}

// Expired reports whether the assignment has lapsed at the given instant.
func (a Assignment) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("roles: not found")
	// ErrConflict indicates a name or assignment collision.
	ErrConflict = errors.New("roles: conflict")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("roles: invalid input")
	// ErrCycle occurs when a reparent would make the hierarchy circular.
	ErrCycle = errors.New("roles: reparent would create a cycle")
	// ErrInsufficientAuthority occurs when the guard rejects the actor.
	ErrInsufficientAuthority = errors.New("roles: insufficient authority")
	// ErrRoleInactive occurs when an operation requires an active role.
	ErrRoleInactive = errors.New("roles: role is not active")
	// ErrSystemRole occurs when a system role would be hard-deleted.
	ErrSystemRole = errors.New("roles: system roles cannot be deleted")
	// ErrRoleReferenced occurs when deletion is blocked by children or assignments.
	ErrRoleReferenced = errors.New("roles: role still referenced")
	// ErrUserCap occurs when a role's max_users cap is reached.
	ErrUserCap = errors.New("roles: role user cap reached")
	// ErrExpired occurs when a supplied or inspected expiry has already
	// lapsed. Resolution never returns it; lapsed rows are simply skipped.
	ErrExpired = errors.New("roles: expired")
)
