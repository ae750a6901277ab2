package permissions

import (
	"errors"
	"time"
)

// Permission represents an atomic capability identified by a stable key.
// Key, Category and IsSystem are immutable once registered.
type Permission struct {
	Key              string
	Name             string
	Description      string
	Category         string
	DangerLevel      int
	RequiresApproval bool
	IsSystem         bool
	CreatedAt        time.Time
}

var (
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("permissions: invalid input")
	// ErrConflict occurs when a registration disagrees with an immutable attribute.
	ErrConflict = errors.New("permissions: immutable attribute mismatch")
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("permissions: not found")
)
