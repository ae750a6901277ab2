package audit

import (
	"errors"
	"time"
)

// Action types recorded by the role engine.
const (
	ActionRoleCreated       = "role_created"
	ActionRoleReparented    = "role_reparented"
	ActionRoleDeactivated   = "role_deactivated"
	ActionRoleDeleted       = "role_deleted"
	ActionPermissionGranted = "permission_granted"
	ActionPermissionRevoked = "permission_revoked"
	ActionRoleAssigned      = "role_assigned"
	ActionRoleRemoved       = "role_removed"
	ActionGuardDenied       = "guard_denied"
)

// Entry is an immutable record of a state-changing action. Entries are only
// ever appended, never updated.
type Entry struct {
	ID            int64
	ActionType    string
	RoleID        *int64
	UserID        *int64
	PermissionKey string
	OldValue      map[string]any
	NewValue      map[string]any
	ChangedBy     int64
	Reason        string
	Success       bool
	At            time.Time
}

// ErrValidation indicates a malformed entry.
var ErrValidation = errors.New("audit: invalid entry")
