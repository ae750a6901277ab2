package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryPermRepo struct {
	perms map[string]Permission
}

func newMemoryPermRepo() *memoryPermRepo {
	return &memoryPermRepo{perms: make(map[string]Permission)}
}

func (r *memoryPermRepo) Get(ctx context.Context, key string) (Permission, error) {
	p, ok := r.perms[key]
	if !ok {
		return Permission{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryPermRepo) Upsert(ctx context.Context, p Permission) error {
	if existing, ok := r.perms[p.Key]; ok {
		p.Category = existing.Category
		p.IsSystem = existing.IsSystem
	}
	r.perms[p.Key] = p
	return nil
}

func (r *memoryPermRepo) List(ctx context.Context) ([]Permission, error) {
	perms := make([]Permission, 0, len(r.perms))
	for _, p := range r.perms {
		perms = append(perms, p)
	}
	return perms, nil
}

func (r *memoryPermRepo) LookupKeys(ctx context.Context, keys []string) ([]Permission, error) {
	var perms []Permission
	for _, key := range keys {
		if p, ok := r.perms[key]; ok {
			perms = append(perms, p)
		}
	}
	return perms, nil
}

func TestRegisterIsIdempotent(t *testing.T) {
	repo := newMemoryPermRepo()
	svc := NewService(repo)
	perm := Permission{Key: "trading.execute", Name: "Execute Trades", Category: "trading_operations", DangerLevel: 2}

	require.NoError(t, svc.Register(context.Background(), perm))
	perm.Description = "Execute trading operations"
	require.NoError(t, svc.Register(context.Background(), perm))

	require.Len(t, repo.perms, 1)
	require.Equal(t, "Execute trading operations", repo.perms["trading.execute"].Description)
}

func TestRegisterRejectsImmutableChange(t *testing.T) {
	repo := newMemoryPermRepo()
	svc := NewService(repo)
	require.NoError(t, svc.Register(context.Background(), Permission{Key: "users.ban", Name: "Ban Users", Category: "user_management", DangerLevel: 4}))

	err := svc.Register(context.Background(), Permission{Key: "users.ban", Name: "Ban Users", Category: "security_compliance", DangerLevel: 4})
	require.ErrorIs(t, err, ErrConflict)

	err = svc.Register(context.Background(), Permission{Key: "users.ban", Name: "Ban Users", Category: "user_management", DangerLevel: 4, IsSystem: true})
	require.ErrorIs(t, err, ErrConflict)
}

func TestRegisterValidatesInput(t *testing.T) {
	svc := NewService(newMemoryPermRepo())

	require.ErrorIs(t, svc.Register(context.Background(), Permission{Key: "noaction", Category: "misc", DangerLevel: 1}), ErrValidation)
	require.ErrorIs(t, svc.Register(context.Background(), Permission{Key: "a.b", Category: "", DangerLevel: 1}), ErrValidation)
	require.ErrorIs(t, svc.Register(context.Background(), Permission{Key: "a.b", Category: "misc", DangerLevel: 6}), ErrValidation)
}

func TestLookupDropsUnknownKeys(t *testing.T) {
	repo := newMemoryPermRepo()
	svc := NewService(repo)
	require.NoError(t, svc.Seed(context.Background()))

	result, err := svc.Lookup(context.Background(), []string{"roles.assign", "roles.asign", "trading.view"})
	require.NoError(t, err)
	require.Len(t, result, 2)
	require.Contains(t, result, "roles.assign")
	require.Contains(t, result, "trading.view")
	require.NotContains(t, result, "roles.asign")
}

func TestListByCategoryGroupsAndTitles(t *testing.T) {
	repo := newMemoryPermRepo()
	svc := NewService(repo)
	require.NoError(t, svc.Seed(context.Background()))

	groups, err := svc.ListByCategory(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, groups)

	var security *CategoryGroup
	for i := range groups {
		require.NotEmpty(t, groups[i].Permissions)
		if groups[i].Category == "security_compliance" {
			security = &groups[i]
		}
	}
	require.NotNil(t, security)
	require.Equal(t, "Security Compliance", security.Title)
}
