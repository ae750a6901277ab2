package roles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWalkAncestorsReturnsNearestFirst(t *testing.T) {
	repo := newMemoryRoleRepo()
	ctx := context.Background()
	root := repo.addRole(Role{Name: "root", Level: 0})
	mid := repo.addRole(Role{Name: "mid", Level: 1, ParentRoleID: &root.ID})
	leaf := repo.addRole(Role{Name: "leaf", Level: 2, ParentRoleID: &mid.ID})

	chain, err := walkAncestors(ctx, repo.GetRole, leaf)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.Equal(t, "mid", chain[0].Name)
	require.Equal(t, "root", chain[1].Name)
}

func TestWalkAncestorsDetectsCorruptTopology(t *testing.T) {
	repo := newMemoryRoleRepo()
	ctx := context.Background()
	a := repo.addRole(Role{Name: "a"})
	b := repo.addRole(Role{Name: "b"})
	// Force a stored loop bypassing the service checks.
	repo.roles[a.ID].ParentRoleID = &b.ID
	repo.roles[b.ID].ParentRoleID = &a.ID

	_, err := walkAncestors(ctx, repo.GetRole, *repo.roles[a.ID])
	require.ErrorIs(t, err, ErrCycle)
}

func TestWouldCreateCycle(t *testing.T) {
	repo := newMemoryRoleRepo()
	ctx := context.Background()
	root := repo.addRole(Role{Name: "root"})
	mid := repo.addRole(Role{Name: "mid", ParentRoleID: &root.ID})
	leaf := repo.addRole(Role{Name: "leaf", ParentRoleID: &mid.ID})
	other := repo.addRole(Role{Name: "other"})

	cycle, err := wouldCreateCycle(ctx, repo.GetRole, root.ID, leaf)
	require.NoError(t, err)
	require.True(t, cycle)

	cycle, err = wouldCreateCycle(ctx, repo.GetRole, mid.ID, mid)
	require.NoError(t, err)
	require.True(t, cycle)

	cycle, err = wouldCreateCycle(ctx, repo.GetRole, mid.ID, other)
	require.NoError(t, err)
	require.False(t, cycle)
}

func TestRecomputeSubtreeLevelsOnlyTouchesSubtree(t *testing.T) {
	repo := newMemoryRoleRepo()
	ctx := context.Background()
	root := repo.addRole(Role{Name: "root", Level: 0})
	mid := repo.addRole(Role{Name: "mid", Level: 9, ParentRoleID: &root.ID})
	leaf := repo.addRole(Role{Name: "leaf", Level: 9, ParentRoleID: &mid.ID})
	outside := repo.addRole(Role{Name: "outside", Level: 5})

	moved := *repo.roles[mid.ID]
	moved.Level = 1
	require.NoError(t, recomputeSubtreeLevels(ctx, (*memoryTx)(repo), moved))

	require.Equal(t, 1, repo.roles[mid.ID].Level)
	require.Equal(t, 2, repo.roles[leaf.ID].Level)
	require.Equal(t, 0, repo.roles[root.ID].Level)
	require.Equal(t, 5, repo.roles[outside.ID].Level)
}

func TestBuildForestTreatsOrphansAsRoots(t *testing.T) {
	missing := int64(999)
	all := []Role{
		{ID: 1, Name: "root"},
		{ID: 2, Name: "child", ParentRoleID: ptr(int64(1))},
		{ID: 3, Name: "orphan", ParentRoleID: &missing},
	}

	forest := BuildForest(all)
	require.Len(t, forest, 2)

	names := map[string]int{}
	for _, node := range forest {
		names[node.Role.Name] = len(node.Children)
	}
	require.Equal(t, 1, names["root"])
	require.Equal(t, 0, names["orphan"])
}
