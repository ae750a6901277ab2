package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/valuetrack/valuetrack/internal/roles"
	"github.com/valuetrack/valuetrack/internal/shared"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAny(t *testing.T) {
	store := newMemoryStore()
	store.roles[1] = roles.Role{ID: 1, Name: "viewer", IsActive: true}
	store.grant(1, "reports.view")
	store.assign(7, 1)

	authz := NewAuthorizer(NewResolver(store, nil, testLogger()), testLogger())
	handler := authz.RequireAny("reports.view", "trades.view")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), 7))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	denied := authz.RequireAny("trades.execute")(okHandler())
	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	store := newMemoryStore()
	store.roles[1] = roles.Role{ID: 1, Name: "viewer", IsActive: true}
	store.grant(1, "reports.view")
	store.grant(1, "trades.view")
	store.assign(7, 1)

	authz := NewAuthorizer(NewResolver(store, nil, testLogger()), testLogger())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), 7))

	rec := httptest.NewRecorder()
	authz.RequireAll("reports.view", "trades.view")(okHandler()).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	authz.RequireAll("reports.view", "trades.execute")(okHandler()).ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMissingActorIsUnauthorized(t *testing.T) {
	authz := NewAuthorizer(NewResolver(newMemoryStore(), nil, testLogger()), testLogger())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	authz.RequireAny("reports.view")(okHandler()).ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
