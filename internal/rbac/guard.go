package rbac

import (
	"context"
	"fmt"

	"github.com/valuetrack/valuetrack/internal/roles"
)

// Guard answers authority questions for privileged operations. It satisfies
// the roles service's guard port.
type Guard struct {
	resolver *Resolver
}

// NewGuard wires the guard to a resolver.
func NewGuard(resolver *Resolver) *Guard {
	return &Guard{resolver: resolver}
}

// RequirePermission checks that the actor holds the permission. A resolution
// failure is returned as-is so callers deny rather than guess.
func (g *Guard) RequirePermission(ctx context.Context, actorID int64, permissionKey string) error {
	ok, err := g.resolver.HasPermission(ctx, actorID, permissionKey)
	if err != nil {
		return fmt.Errorf("authority check for actor %d: %w", actorID, err)
	}
	if !ok {
		return fmt.Errorf("%w: actor %d lacks %q", roles.ErrInsufficientAuthority, actorID, permissionKey)
	}
	return nil
}

// ActorMaxPriority reports the actor's highest live role priority.
func (g *Guard) ActorMaxPriority(ctx context.Context, actorID int64) (int, error) {
	return g.resolver.UserMaxPriority(ctx, actorID)
}
