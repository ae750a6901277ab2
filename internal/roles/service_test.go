package roles

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/valuetrack/valuetrack/internal/audit"
	"github.com/valuetrack/valuetrack/internal/permissions"
	"github.com/valuetrack/valuetrack/internal/shared"
)

type assignKey struct {
	userID int64
	roleID int64
}

type memoryRoleRepo struct {
	mu          sync.Mutex
	nextRoleID  int64
	nextAssign  int64
	roles       map[int64]*Role
	grants      map[int64]map[string]*PermissionGrant
	assignments map[assignKey]*Assignment
	templates   map[string]*Template
	audits      []audit.Entry
}

func newMemoryRoleRepo() *memoryRoleRepo {
	return &memoryRoleRepo{
		roles:       map[int64]*Role{},
		grants:      map[int64]map[string]*PermissionGrant{},
		assignments: map[assignKey]*Assignment{},
		templates:   map[string]*Template{},
	}
}

func (m *memoryRoleRepo) ListTemplates(ctx context.Context) ([]Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Template, 0, len(m.templates))
	for _, tpl := range m.templates {
		out = append(out, *tpl)
	}
	return out, nil
}

func (m *memoryRoleRepo) GetTemplate(ctx context.Context, name string) (Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[name]
	if !ok {
		return Template{}, ErrNotFound
	}
	return *tpl, nil
}

func (m *memoryRoleRepo) SaveTemplate(ctx context.Context, tpl Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[tpl.Name]; ok {
		return nil
	}
	clone := tpl
	m.templates[tpl.Name] = &clone
	return nil
}

func (m *memoryRoleRepo) addRole(role Role) Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRoleID++
	role.ID = m.nextRoleID
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now()
	}
	m.roles[role.ID] = &role
	return role
}

func (m *memoryRoleRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, (*memoryTx)(m))
}

func (m *memoryRoleRepo) GetRole(_ context.Context, id int64) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return *role, nil
}

func (m *memoryRoleRepo) GetRoleByName(_ context.Context, name string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range m.roles {
		if role.Name == name {
			return *role, nil
		}
	}
	return Role{}, ErrNotFound
}

func (m *memoryRoleRepo) ListRoles(_ context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, *role)
	}
	return out, nil
}

func (m *memoryRoleRepo) ListChildren(_ context.Context, parentID int64) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.childrenLocked(parentID), nil
}

func (m *memoryRoleRepo) childrenLocked(parentID int64) []Role {
	var out []Role
	for _, role := range m.roles {
		if role.ParentRoleID != nil && *role.ParentRoleID == parentID {
			out = append(out, *role)
		}
	}
	return out
}

func (m *memoryRoleRepo) ListGrants(_ context.Context, roleID int64) ([]PermissionGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PermissionGrant
	for _, grant := range m.grants[roleID] {
		if grant.Granted {
			out = append(out, *grant)
		}
	}
	return out, nil
}

func (m *memoryRoleRepo) ListActiveAssignments(_ context.Context, userID int64) ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Assignment
	for key, assignment := range m.assignments {
		if key.userID == userID && assignment.IsActive {
			out = append(out, *assignment)
		}
	}
	return out, nil
}

func (m *memoryRoleRepo) CountActiveAssignments(_ context.Context, roleID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countActiveLocked(roleID), nil
}

func (m *memoryRoleRepo) countActiveLocked(roleID int64) int64 {
	var count int64
	now := time.Now()
	for key, assignment := range m.assignments {
		if key.roleID == roleID && assignment.IsActive && !assignment.Expired(now) {
			count++
		}
	}
	return count
}

type memoryTx memoryRoleRepo

func (t *memoryTx) repo() *memoryRoleRepo { return (*memoryRoleRepo)(t) }

func (t *memoryTx) GetRole(ctx context.Context, id int64) (Role, error) {
	return t.repo().GetRole(ctx, id)
}

func (t *memoryTx) GetRoleForUpdate(ctx context.Context, id int64) (Role, error) {
	return t.repo().GetRole(ctx, id)
}

func (t *memoryTx) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return t.repo().GetRoleByName(ctx, name)
}

func (t *memoryTx) InsertRole(_ context.Context, role Role) (int64, error) {
	m := t.repo()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roles {
		if existing.Name == role.Name {
			return 0, ErrConflict
		}
	}
	m.nextRoleID++
	role.ID = m.nextRoleID
	role.CreatedAt = time.Now()
	m.roles[role.ID] = &role
	return role.ID, nil
}

func (t *memoryTx) SetParent(_ context.Context, id int64, parentID *int64) error {
	m := t.repo()
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return ErrNotFound
	}
	role.ParentRoleID = parentID
	return nil
}

func (t *memoryTx) SetLevel(_ context.Context, id int64, level int) error {
	m := t.repo()
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return ErrNotFound
	}
	role.Level = level
	return nil
}

func (t *memoryTx) SetActive(_ context.Context, id int64, active bool) error {
	m := t.repo()
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return ErrNotFound
	}
	role.IsActive = active
	return nil
}

func (t *memoryTx) DeleteRole(_ context.Context, id int64) error {
	m := t.repo()
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.roles, id)
	return nil
}

func (t *memoryTx) ListChildren(ctx context.Context, parentID int64) ([]Role, error) {
	return t.repo().ListChildren(ctx, parentID)
}

func (t *memoryTx) CountChildren(_ context.Context, roleID int64) (int64, error) {
	m := t.repo()
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.childrenLocked(roleID))), nil
}

func (t *memoryTx) UpsertGrant(_ context.Context, grant PermissionGrant) error {
	m := t.repo()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grants[grant.RoleID] == nil {
		m.grants[grant.RoleID] = map[string]*PermissionGrant{}
	}
	grant.Granted = true
	grant.GrantedAt = time.Now()
	m.grants[grant.RoleID][grant.PermissionKey] = &grant
	return nil
}

func (t *memoryTx) SetGranted(_ context.Context, roleID int64, permissionKey string, granted bool) (int64, error) {
	m := t.repo()
	m.mu.Lock()
	defer m.mu.Unlock()
	grant, ok := m.grants[roleID][permissionKey]
	if !ok {
		return 0, nil
	}
	grant.Granted = granted
	return 1, nil
}

func (t *memoryTx) GetAssignmentForUpdate(_ context.Context, userID, roleID int64) (Assignment, error) {
	m := t.repo()
	m.mu.Lock()
	defer m.mu.Unlock()
	assignment, ok := m.assignments[assignKey{userID: userID, roleID: roleID}]
	if !ok {
		return Assignment{}, ErrNotFound
	}
	return *assignment, nil
}

func (t *memoryTx) UpsertAssignment(_ context.Context, assignment Assignment) error {
	m := t.repo()
	m.mu.Lock()
	defer m.mu.Unlock()
	key := assignKey{userID: assignment.UserID, roleID: assignment.RoleID}
	if existing, ok := m.assignments[key]; ok {
		assignment.ID = existing.ID
	} else {
		m.nextAssign++
		assignment.ID = m.nextAssign
	}
	assignment.IsActive = true
	assignment.AssignedAt = time.Now()
	m.assignments[key] = &assignment
	return nil
}

func (t *memoryTx) DeactivateAssignment(_ context.Context, userID, roleID int64) (int64, error) {
	m := t.repo()
	m.mu.Lock()
	defer m.mu.Unlock()
	assignment, ok := m.assignments[assignKey{userID: userID, roleID: roleID}]
	if !ok || !assignment.IsActive {
		return 0, nil
	}
	assignment.IsActive = false
	return 1, nil
}

func (t *memoryTx) CountActiveAssignments(_ context.Context, roleID int64) (int64, error) {
	m := t.repo()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countActiveLocked(roleID), nil
}

func (t *memoryTx) AppendAudit(_ context.Context, entry audit.Entry) error {
	m := t.repo()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, entry)
	return nil
}

type stubGuard struct {
	denied   map[string]bool
	priority int
}

func (g *stubGuard) RequirePermission(_ context.Context, _ int64, permissionKey string) error {
	if g.denied[permissionKey] {
		return ErrInsufficientAuthority
	}
	return nil
}

func (g *stubGuard) ActorMaxPriority(_ context.Context, _ int64) (int, error) {
	return g.priority, nil
}

type stubRegistry struct {
	known map[string]permissions.Permission
}

func (r *stubRegistry) Lookup(_ context.Context, keys []string) (map[string]permissions.Permission, error) {
	out := map[string]permissions.Permission{}
	for _, key := range keys {
		if p, ok := r.known[key]; ok {
			out[key] = p
		}
	}
	return out, nil
}

type stubInvalidator struct {
	calls int
}

func (i *stubInvalidator) Invalidate(context.Context) error {
	i.calls++
	return nil
}

type stubIdempotency struct {
	seen map[string]bool
}

func (s *stubIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[key] {
		return shared.ErrIdempotencyConflict
	}
	s.seen[key] = true
	return nil
}

func (s *stubIdempotency) Delete(_ context.Context, key string) error {
	delete(s.seen, key)
	return nil
}

type stubDenials struct {
	entries []audit.Entry
}

func (d *stubDenials) Record(_ context.Context, entry audit.Entry) error {
	d.entries = append(d.entries, entry)
	return nil
}

type testEnv struct {
	repo        *memoryRoleRepo
	guard       *stubGuard
	registry    *stubRegistry
	invalidator *stubInvalidator
	idem        *stubIdempotency
	denials     *stubDenials
	service     *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:        newMemoryRoleRepo(),
		guard:       &stubGuard{denied: map[string]bool{}, priority: 100},
		registry:    &stubRegistry{known: map[string]permissions.Permission{}},
		invalidator: &stubInvalidator{},
		idem:        &stubIdempotency{},
		denials:     &stubDenials{},
	}
	for _, key := range []string{"trades.view", "trades.execute", "reports.view"} {
		env.registry.known[key] = permissions.Permission{Key: key}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.service = NewService(env.repo, env.registry, env.guard, env.invalidator, env.idem, env.denials, logger)
	return env
}

func ptr[T any](v T) *T { return &v }

func TestCreateRoleDerivesLevelFromParent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root, err := env.service.CreateRole(ctx, 1, CreateRoleInput{Name: "moderator", Priority: 50})
	require.NoError(t, err)
	require.Equal(t, 0, root.Level)

	child, err := env.service.CreateRole(ctx, 1, CreateRoleInput{
		Name:         "trainee_mod",
		Priority:     30,
		ParentRoleID: &root.ID,
	})
	require.NoError(t, err)
	require.Equal(t, 1, child.Level)
	require.Equal(t, root.ID, *child.ParentRoleID)

	require.Len(t, env.repo.audits, 2)
	require.Equal(t, audit.ActionRoleCreated, env.repo.audits[1].ActionType)
}

func TestCreateRoleRejectsInactiveParent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	parent := env.repo.addRole(Role{Name: "retired", IsActive: false})

	_, err := env.service.CreateRole(ctx, 1, CreateRoleInput{Name: "newbie", ParentRoleID: &parent.ID})
	require.ErrorIs(t, err, ErrRoleInactive)
}

func TestCreateRoleValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.CreateRole(ctx, 1, CreateRoleInput{Name: "x"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.service.CreateRole(ctx, 1, CreateRoleInput{Name: "ok_name", Priority: 101})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.service.CreateRole(ctx, 1, CreateRoleInput{Name: "has space"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateRoleRejectsDuplicateName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.repo.addRole(Role{Name: "moderator", IsActive: true})

	_, err := env.service.CreateRole(ctx, 1, CreateRoleInput{Name: "moderator", Priority: 50})
	require.ErrorIs(t, err, ErrConflict)
}

func TestApplyTemplateCreatesRoleWithGrants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.repo.SaveTemplate(ctx, Template{
		Name:               "floor_trader",
		DisplayName:        "Floor Trader",
		Category:           "trading",
		Permissions:        []string{"trades.view", "trades.execute"},
		Color:              "#4caf50",
		Priority:           30,
		InheritPermissions: true,
	}))

	role, err := env.service.ApplyTemplate(ctx, 1, ApplyTemplateInput{
		TemplateName: "floor_trader",
		RoleName:     "day_trader",
	})
	require.NoError(t, err)
	require.Equal(t, "day_trader", role.Name)
	require.Equal(t, "Floor Trader", role.DisplayName)
	require.Equal(t, 30, role.Priority)
	require.Equal(t, "#4caf50", role.Color)

	grants, err := env.repo.ListGrants(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	require.NotEmpty(t, env.repo.audits)
}

func TestApplyTemplateUnknownTemplate(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.ApplyTemplate(context.Background(), 1, ApplyTemplateInput{
		TemplateName: "no_such_template",
		RoleName:     "orphan",
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSeedTemplatesIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.SeedTemplates(ctx))
	require.NoError(t, env.service.SeedTemplates(ctx))

	templates, err := env.repo.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, len(DefaultTemplates()))
}

func TestReparentRejectsCycles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	root := env.repo.addRole(Role{Name: "root", IsActive: true, Level: 0})
	mid := env.repo.addRole(Role{Name: "mid", IsActive: true, Level: 1, ParentRoleID: &root.ID})
	leaf := env.repo.addRole(Role{Name: "leaf", IsActive: true, Level: 2, ParentRoleID: &mid.ID})

	err := env.service.ReparentRole(ctx, 1, root.ID, &leaf.ID)
	require.ErrorIs(t, err, ErrCycle)

	err = env.service.ReparentRole(ctx, 1, mid.ID, &mid.ID)
	require.ErrorIs(t, err, ErrCycle)

	// Rejected moves leave the stored topology untouched.
	got, err := env.repo.GetRole(ctx, root.ID)
	require.NoError(t, err)
	require.Nil(t, got.ParentRoleID)
}

func TestReparentRecomputesSubtreeLevels(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	oldRoot := env.repo.addRole(Role{Name: "old_root", IsActive: true, Level: 0})
	mid := env.repo.addRole(Role{Name: "mid", IsActive: true, Level: 1, ParentRoleID: &oldRoot.ID})
	leaf := env.repo.addRole(Role{Name: "leaf", IsActive: true, Level: 2, ParentRoleID: &mid.ID})
	newRoot := env.repo.addRole(Role{Name: "new_root", IsActive: true, Level: 0})
	deep := env.repo.addRole(Role{Name: "deep", IsActive: true, Level: 1, ParentRoleID: &newRoot.ID})

	require.NoError(t, env.service.ReparentRole(ctx, 1, mid.ID, &deep.ID))

	movedMid, _ := env.repo.GetRole(ctx, mid.ID)
	movedLeaf, _ := env.repo.GetRole(ctx, leaf.ID)
	require.Equal(t, 2, movedMid.Level)
	require.Equal(t, 3, movedLeaf.Level)

	// Detaching to the root resets the subtree relative to level zero.
	require.NoError(t, env.service.ReparentRole(ctx, 1, mid.ID, nil))
	movedMid, _ = env.repo.GetRole(ctx, mid.ID)
	movedLeaf, _ = env.repo.GetRole(ctx, leaf.ID)
	require.Equal(t, 0, movedMid.Level)
	require.Equal(t, 1, movedLeaf.Level)
	require.Nil(t, movedMid.ParentRoleID)
}

func TestAssignRequiresStrictlyHigherPriority(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	role := env.repo.addRole(Role{Name: "moderator", IsActive: true, Priority: 50})

	env.guard.priority = 50
	err := env.service.AssignRole(ctx, 1, AssignInput{UserID: 7, RoleID: role.ID})
	require.ErrorIs(t, err, ErrInsufficientAuthority)
	require.Len(t, env.denials.entries, 1)
	require.Equal(t, audit.ActionGuardDenied, env.denials.entries[0].ActionType)
	require.False(t, env.denials.entries[0].Success)

	env.guard.priority = 51
	require.NoError(t, env.service.AssignRole(ctx, 1, AssignInput{UserID: 7, RoleID: role.ID}))
	require.EqualValues(t, 1, env.repo.countActiveLocked(role.ID))
}

func TestAssignRejectsInactiveRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	role := env.repo.addRole(Role{Name: "retired", IsActive: false, Priority: 10})

	err := env.service.AssignRole(ctx, 1, AssignInput{UserID: 7, RoleID: role.ID})
	require.ErrorIs(t, err, ErrRoleInactive)
}

func TestAssignRejectsDuplicateActiveAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	role := env.repo.addRole(Role{Name: "premium", IsActive: true, Priority: 20})

	require.NoError(t, env.service.AssignRole(ctx, 1, AssignInput{UserID: 7, RoleID: role.ID}))
	err := env.service.AssignRole(ctx, 1, AssignInput{UserID: 7, RoleID: role.ID})
	require.ErrorIs(t, err, ErrConflict)
}

func TestAssignReactivatesExpiredAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	role := env.repo.addRole(Role{Name: "premium", IsActive: true, Priority: 20})
	past := time.Now().Add(-time.Hour)
	env.repo.assignments[assignKey{userID: 7, roleID: role.ID}] = &Assignment{
		ID: 1, UserID: 7, RoleID: role.ID, IsActive: true, ExpiresAt: &past,
	}

	require.NoError(t, env.service.AssignRole(ctx, 1, AssignInput{UserID: 7, RoleID: role.ID}))
	stored := env.repo.assignments[assignKey{userID: 7, roleID: role.ID}]
	require.True(t, stored.IsActive)
	require.Nil(t, stored.ExpiresAt)
}

func TestAssignEnforcesUserCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	role := env.repo.addRole(Role{Name: "owner", IsActive: true, Priority: 90, MaxUsers: ptr(int32(1))})

	require.NoError(t, env.service.AssignRole(ctx, 1, AssignInput{UserID: 7, RoleID: role.ID}))
	err := env.service.AssignRole(ctx, 1, AssignInput{UserID: 8, RoleID: role.ID})
	require.ErrorIs(t, err, ErrUserCap)
}

func TestAssignDuplicateIdempotencyKeyIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	role := env.repo.addRole(Role{Name: "premium", IsActive: true, Priority: 20})

	in := AssignInput{UserID: 7, RoleID: role.ID, IdempotencyKey: "req-1"}
	require.NoError(t, env.service.AssignRole(ctx, 1, in))
	// A retry with the same key does not hit the conflict path.
	require.NoError(t, env.service.AssignRole(ctx, 1, in))
	require.EqualValues(t, 1, env.repo.countActiveLocked(role.ID))
}

func TestAssignReleasesIdempotencyKeyOnFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	role := env.repo.addRole(Role{Name: "owner", IsActive: true, Priority: 90, MaxUsers: ptr(int32(1))})
	require.NoError(t, env.service.AssignRole(ctx, 1, AssignInput{UserID: 1, RoleID: role.ID}))

	err := env.service.AssignRole(ctx, 1, AssignInput{UserID: 2, RoleID: role.ID, IdempotencyKey: "req-2"})
	require.ErrorIs(t, err, ErrUserCap)
	require.False(t, env.idem.seen["req-2"])
}

func TestRemoveRoleDeactivatesAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	role := env.repo.addRole(Role{Name: "premium", IsActive: true, Priority: 20})
	require.NoError(t, env.service.AssignRole(ctx, 1, AssignInput{UserID: 7, RoleID: role.ID}))

	require.NoError(t, env.service.RemoveRole(ctx, 1, 7, role.ID, "policy change"))
	stored := env.repo.assignments[assignKey{userID: 7, roleID: role.ID}]
	require.False(t, stored.IsActive)

	err := env.service.RemoveRole(ctx, 1, 7, role.ID, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveSystemRoleNeedsHigherAuthority(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	role := env.repo.addRole(Role{Name: "admin", IsActive: true, IsSystem: true, Priority: 90})
	require.NoError(t, env.service.AssignRole(ctx, 1, AssignInput{UserID: 7, RoleID: role.ID}))

	env.guard.priority = 90
	err := env.service.RemoveRole(ctx, 1, 7, role.ID, "")
	require.ErrorIs(t, err, ErrInsufficientAuthority)

	env.guard.priority = 100
	require.NoError(t, env.service.RemoveRole(ctx, 1, 7, role.ID, ""))
}

func TestGrantRefreshesExistingRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	role := env.repo.addRole(Role{Name: "trader", IsActive: true, Priority: 20})

	require.NoError(t, env.service.GrantPermission(ctx, 1, GrantInput{RoleID: role.ID, PermissionKey: "trades.view"}))
	expiry := time.Now().Add(time.Hour)
	require.NoError(t, env.service.GrantPermission(ctx, 1, GrantInput{
		RoleID: role.ID, PermissionKey: "trades.view", ExpiresAt: &expiry,
	}))

	grants, err := env.repo.ListGrants(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.NotNil(t, grants[0].ExpiresAt)
}

func TestGrantRejectsUnknownPermission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	role := env.repo.addRole(Role{Name: "trader", IsActive: true})

	err := env.service.GrantPermission(ctx, 1, GrantInput{RoleID: role.ID, PermissionKey: "nope.nothing"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestPastExpiryRejectedAsExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	role := env.repo.addRole(Role{Name: "trader", IsActive: true})
	past := time.Now().Add(-time.Minute)

	err := env.service.GrantPermission(ctx, 1, GrantInput{
		RoleID: role.ID, PermissionKey: "trades.view", ExpiresAt: &past,
	})
	require.ErrorIs(t, err, ErrExpired)

	err = env.service.AssignRole(ctx, 1, AssignInput{UserID: 7, RoleID: role.ID, ExpiresAt: &past})
	require.ErrorIs(t, err, ErrExpired)
}

func TestRevokeFlipsGrantButKeepsRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	role := env.repo.addRole(Role{Name: "trader", IsActive: true})
	require.NoError(t, env.service.GrantPermission(ctx, 1, GrantInput{RoleID: role.ID, PermissionKey: "trades.view"}))

	require.NoError(t, env.service.RevokePermission(ctx, 1, role.ID, "trades.view"))
	grants, err := env.repo.ListGrants(ctx, role.ID)
	require.NoError(t, err)
	require.Empty(t, grants)
	require.False(t, env.repo.grants[role.ID]["trades.view"].Granted)

	err = env.service.RevokePermission(ctx, 1, role.ID, "reports.view")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeactivateRoleIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	role := env.repo.addRole(Role{Name: "temp", IsActive: true})

	require.NoError(t, env.service.DeactivateRole(ctx, 1, role.ID, "sunset"))
	require.NoError(t, env.service.DeactivateRole(ctx, 1, role.ID, "sunset"))

	got, _ := env.repo.GetRole(ctx, role.ID)
	require.False(t, got.IsActive)
}

func TestDeactivateSystemRoleNeedsHigherAuthority(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	role := env.repo.addRole(Role{Name: "admin", IsActive: true, IsSystem: true, Priority: 90})

	env.guard.priority = 90
	err := env.service.DeactivateRole(ctx, 1, role.ID, "")
	require.ErrorIs(t, err, ErrInsufficientAuthority)
}

func TestDeleteRoleGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	system := env.repo.addRole(Role{Name: "owner", IsActive: false, IsSystem: true})
	require.ErrorIs(t, env.service.DeleteRole(ctx, 1, system.ID), ErrSystemRole)

	active := env.repo.addRole(Role{Name: "live", IsActive: true})
	require.ErrorIs(t, env.service.DeleteRole(ctx, 1, active.ID), ErrValidation)

	parent := env.repo.addRole(Role{Name: "parent", IsActive: false})
	env.repo.addRole(Role{Name: "child", IsActive: true, ParentRoleID: &parent.ID})
	require.ErrorIs(t, env.service.DeleteRole(ctx, 1, parent.ID), ErrRoleReferenced)

	assigned := env.repo.addRole(Role{Name: "held", IsActive: true, Priority: 10})
	require.NoError(t, env.service.AssignRole(ctx, 1, AssignInput{UserID: 7, RoleID: assigned.ID}))
	require.NoError(t, env.service.DeactivateRole(ctx, 1, assigned.ID, ""))
	require.ErrorIs(t, env.service.DeleteRole(ctx, 1, assigned.ID), ErrRoleReferenced)

	lone := env.repo.addRole(Role{Name: "lone", IsActive: false})
	require.NoError(t, env.service.DeleteRole(ctx, 1, lone.ID))
	_, err := env.repo.GetRole(ctx, lone.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListUserRolesFiltersExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	live := env.repo.addRole(Role{Name: "live", IsActive: true, Priority: 20})
	lapsed := env.repo.addRole(Role{Name: "lapsed", IsActive: true, Priority: 30})

	require.NoError(t, env.service.AssignRole(ctx, 1, AssignInput{UserID: 7, RoleID: live.ID}))
	past := time.Now().Add(-time.Hour)
	env.repo.assignments[assignKey{userID: 7, roleID: lapsed.ID}] = &Assignment{
		ID: 99, UserID: 7, RoleID: lapsed.ID, IsActive: true, ExpiresAt: &past,
	}

	memberships, err := env.service.ListUserRoles(ctx, 7)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	require.Equal(t, "live", memberships[0].Role.Name)
}

func TestGuardDenialIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.guard.denied[shared.PermRolesCreate] = true

	_, err := env.service.CreateRole(ctx, 5, CreateRoleInput{Name: "blocked"})
	require.ErrorIs(t, err, ErrInsufficientAuthority)
	require.Len(t, env.denials.entries, 1)
	require.Equal(t, audit.ActionGuardDenied, env.denials.entries[0].ActionType)
	require.EqualValues(t, 5, env.denials.entries[0].ChangedBy)
}

func TestMutationsBumpResolverCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	role := env.repo.addRole(Role{Name: "trader", IsActive: true, Priority: 20})

	require.NoError(t, env.service.GrantPermission(ctx, 1, GrantInput{RoleID: role.ID, PermissionKey: "trades.view"}))
	require.NoError(t, env.service.RevokePermission(ctx, 1, role.ID, "trades.view"))
	require.NoError(t, env.service.AssignRole(ctx, 1, AssignInput{UserID: 7, RoleID: role.ID}))
	require.NoError(t, env.service.RemoveRole(ctx, 1, 7, role.ID, ""))
	require.Equal(t, 4, env.invalidator.calls)
}

func TestRoleStatistics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	root := env.repo.addRole(Role{Name: "root", IsActive: true, Level: 0})
	role := env.repo.addRole(Role{Name: "trader", IsActive: true, Level: 1, Priority: 20, ParentRoleID: &root.ID})
	env.repo.addRole(Role{Name: "junior", IsActive: true, Level: 2, ParentRoleID: &role.ID})

	require.NoError(t, env.service.AssignRole(ctx, 1, AssignInput{UserID: 7, RoleID: role.ID}))
	require.NoError(t, env.service.GrantPermission(ctx, 1, GrantInput{RoleID: role.ID, PermissionKey: "trades.view"}))

	stats, err := env.service.RoleStatistics(ctx, role.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.ActiveUsers)
	require.Equal(t, 1, stats.GrantedKeys)
	require.Equal(t, 1, stats.DirectChildren)
	require.Equal(t, 1, stats.AncestorDepth)
}
