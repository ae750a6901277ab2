package rbac

import (
	"log/slog"
	"net/http"

	"github.com/valuetrack/valuetrack/internal/platform/httpx"
	"github.com/valuetrack/valuetrack/internal/shared"
)

// Authorizer gates HTTP routes on the actor's effective permissions.
type Authorizer struct {
	resolver *Resolver
	logger   *slog.Logger
}

// NewAuthorizer builds the route middleware.
func NewAuthorizer(resolver *Resolver, logger *slog.Logger) *Authorizer {
	return &Authorizer{resolver: resolver, logger: logger}
}

// RequireAny admits the request when the actor holds at least one of the
// listed permissions.
func (a *Authorizer) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return a.middleware(func(set map[string]struct{}) bool {
		for _, perm := range perms {
			if _, ok := set[perm]; ok {
				return true
			}
		}
		return false
	})
}

// RequireAll admits the request only when the actor holds every listed
// permission.
func (a *Authorizer) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return a.middleware(func(set map[string]struct{}) bool {
		for _, perm := range perms {
			if _, ok := set[perm]; !ok {
				return false
			}
		}
		return true
	})
}

func (a *Authorizer) middleware(admit func(map[string]struct{}) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity missing")
				return
			}
			set, err := a.resolver.EffectivePermissions(r.Context(), actorID)
			if err != nil {
				// Fail closed.
				a.logger.Error("permission resolution failed",
					slog.Int64("actor_id", actorID), slog.Any("error", err))
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			if !admit(set) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
