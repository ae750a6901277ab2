package roles

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valuetrack/valuetrack/internal/audit"
	"github.com/valuetrack/valuetrack/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. All mutations of the role
// graph go through it so validation, writes and the audit entry commit or
// roll back as one unit.
type TxRepository interface {
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleForUpdate(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	InsertRole(ctx context.Context, role Role) (int64, error)
	SetParent(ctx context.Context, id int64, parentID *int64) error
	SetLevel(ctx context.Context, id int64, level int) error
	SetActive(ctx context.Context, id int64, active bool) error
	DeleteRole(ctx context.Context, id int64) error
	ListChildren(ctx context.Context, parentID int64) ([]Role, error)
	CountChildren(ctx context.Context, roleID int64) (int64, error)
	UpsertGrant(ctx context.Context, grant PermissionGrant) error
	SetGranted(ctx context.Context, roleID int64, permissionKey string, granted bool) (int64, error)
	GetAssignmentForUpdate(ctx context.Context, userID, roleID int64) (Assignment, error)
	UpsertAssignment(ctx context.Context, assignment Assignment) error
	DeactivateAssignment(ctx context.Context, userID, roleID int64) (int64, error)
	CountActiveAssignments(ctx context.Context, roleID int64) (int64, error)
	AppendAudit(ctx context.Context, entry audit.Entry) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const roleColumns = `role_id, role_name, display_name, description, parent_role_id, level, color, icon, priority,
	is_system, is_active, max_users, auto_assign, inherit_permissions, created_by, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Description, &role.ParentRoleID, &role.Level,
		&role.Color, &role.Icon, &role.Priority, &role.IsSystem, &role.IsActive, &role.MaxUsers,
		&role.AutoAssign, &role.InheritPermissions, &role.CreatedBy, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// GetRole fetches a role by id.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE role_id = $1`, id))
}

// ListRoles returns all roles ordered by priority, highest authority first.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY priority DESC, role_id`)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// ListChildren returns the direct children of a role.
func (r *Repository) ListChildren(ctx context.Context, parentID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE parent_role_id = $1 ORDER BY role_id`, parentID)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// ListGrants returns all granted=true permission rows for a role. Expiry is
// filtered by the caller so stale rows resolve identically whether or not a
// sweep has run.
func (r *Repository) ListGrants(ctx context.Context, roleID int64) ([]PermissionGrant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role_id, permission_key, granted, conditions, granted_by, granted_at, expires_at
		FROM role_permission_grants WHERE role_id = $1 AND granted = TRUE`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []PermissionGrant
	for rows.Next() {
		var grant PermissionGrant
		var conditions []byte
		if err := rows.Scan(&grant.RoleID, &grant.PermissionKey, &grant.Granted, &conditions,
			&grant.GrantedBy, &grant.GrantedAt, &grant.ExpiresAt); err != nil {
			return nil, err
		}
		if len(conditions) > 0 {
			if err := json.Unmarshal(conditions, &grant.Conditions); err != nil {
				return nil, err
			}
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// ListActiveAssignments returns is_active assignment rows for a user. Expiry
// is filtered by the caller.
func (r *Repository) ListActiveAssignments(ctx context.Context, userID int64) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT assignment_id, user_id, role_id, assigned_by, assigned_at, expires_at, is_primary, context, is_active
		FROM user_role_assignments WHERE user_id = $1 AND is_active = TRUE`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []Assignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

// CountActiveAssignments counts active, unexpired assignments of a role.
func (r *Repository) CountActiveAssignments(ctx context.Context, roleID int64) (int64, error) {
	return countActiveAssignments(ctx, r.pool, roleID)
}

const templateColumns = `template_id, template_name, display_name, description, category, permissions,
	color, icon, priority, inherit_permissions, created_at`

func scanTemplate(row pgx.Row) (Template, error) {
	var tpl Template
	var keys []byte
	err := row.Scan(&tpl.ID, &tpl.Name, &tpl.DisplayName, &tpl.Description, &tpl.Category, &keys,
		&tpl.Color, &tpl.Icon, &tpl.Priority, &tpl.InheritPermissions, &tpl.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, ErrNotFound
		}
		return Template{}, err
	}
	if len(keys) > 0 {
		if err := json.Unmarshal(keys, &tpl.Permissions); err != nil {
			return Template{}, err
		}
	}
	return tpl, nil
}

// ListTemplates returns all role presets ordered by category and name.
func (r *Repository) ListTemplates(ctx context.Context) ([]Template, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+templateColumns+` FROM role_templates ORDER BY category, template_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var templates []Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return templates, nil
}

// GetTemplate fetches a preset by its unique name.
func (r *Repository) GetTemplate(ctx context.Context, name string) (Template, error) {
	return scanTemplate(r.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM role_templates WHERE template_name = $1`, name))
}

// SaveTemplate inserts a preset. An existing row with the same name wins,
// so seeding never clobbers operator edits.
func (r *Repository) SaveTemplate(ctx context.Context, tpl Template) error {
	keys, err := json.Marshal(tpl.Permissions)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO role_templates (template_name, display_name, description, category, permissions,
			color, icon, priority, inherit_permissions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (template_name) DO NOTHING`,
		tpl.Name, tpl.DisplayName, tpl.Description, tpl.Category, keys,
		tpl.Color, tpl.Icon, tpl.Priority, tpl.InheritPermissions)
	return err
}

func scanAssignment(row pgx.Row) (Assignment, error) {
	var assignment Assignment
	var contextJSON []byte
	err := row.Scan(&assignment.ID, &assignment.UserID, &assignment.RoleID, &assignment.AssignedBy,
		&assignment.AssignedAt, &assignment.ExpiresAt, &assignment.IsPrimary, &contextJSON, &assignment.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, ErrNotFound
		}
		return Assignment{}, err
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &assignment.Context); err != nil {
			return Assignment{}, err
		}
	}
	return assignment, nil
}

type execQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func countActiveAssignments(ctx context.Context, q execQuerier, roleID int64) (int64, error) {
	var count int64
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM user_role_assignments
		WHERE role_id = $1 AND is_active = TRUE AND (expires_at IS NULL OR expires_at > NOW())`, roleID).Scan(&count)
	return count, err
}

// Transactional implementation.

func (t *txRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(t.tx.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE role_id = $1`, id))
}

func (t *txRepo) GetRoleForUpdate(ctx context.Context, id int64) (Role, error) {
	return scanRole(t.tx.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE role_id = $1 FOR UPDATE`, id))
}

func (t *txRepo) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return scanRole(t.tx.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE role_name = $1`, name))
}

func (t *txRepo) InsertRole(ctx context.Context, role Role) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO roles (role_name, display_name, description, parent_role_id, level, color, icon, priority,
			is_system, is_active, max_users, auto_assign, inherit_permissions, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING role_id`,
		role.Name, role.DisplayName, role.Description, role.ParentRoleID, role.Level, role.Color, role.Icon,
		role.Priority, role.IsSystem, role.IsActive, role.MaxUsers, role.AutoAssign, role.InheritPermissions,
		role.CreatedBy).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) SetParent(ctx context.Context, id int64, parentID *int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE roles SET parent_role_id = $2, updated_at = NOW() WHERE role_id = $1`, id, parentID)
	return err
}

func (t *txRepo) SetLevel(ctx context.Context, id int64, level int) error {
	_, err := t.tx.Exec(ctx, `UPDATE roles SET level = $2, updated_at = NOW() WHERE role_id = $1`, id, level)
	return err
}

func (t *txRepo) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := t.tx.Exec(ctx, `UPDATE roles SET is_active = $2, updated_at = NOW() WHERE role_id = $1`, id, active)
	return err
}

func (t *txRepo) DeleteRole(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM roles WHERE role_id = $1`, id)
	return err
}

func (t *txRepo) ListChildren(ctx context.Context, parentID int64) ([]Role, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE parent_role_id = $1 ORDER BY role_id`, parentID)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

func (t *txRepo) CountChildren(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM roles WHERE parent_role_id = $1`, roleID).Scan(&count)
	return count, err
}

func (t *txRepo) UpsertGrant(ctx context.Context, grant PermissionGrant) error {
	conditions, err := json.Marshal(orEmpty(grant.Conditions))
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO role_permission_grants (role_id, permission_key, granted, conditions, granted_by, granted_at, expires_at)
		VALUES ($1, $2, TRUE, $3, $4, NOW(), $5)
		ON CONFLICT (role_id, permission_key) DO UPDATE SET
			granted = TRUE,
			conditions = EXCLUDED.conditions,
			granted_by = EXCLUDED.granted_by,
			granted_at = NOW(),
			expires_at = EXCLUDED.expires_at`,
		grant.RoleID, grant.PermissionKey, conditions, grant.GrantedBy, grant.ExpiresAt)
	return err
}

func (t *txRepo) SetGranted(ctx context.Context, roleID int64, permissionKey string, granted bool) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE role_permission_grants SET granted = $3 WHERE role_id = $1 AND permission_key = $2`,
		roleID, permissionKey, granted)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) GetAssignmentForUpdate(ctx context.Context, userID, roleID int64) (Assignment, error) {
	return scanAssignment(t.tx.QueryRow(ctx, `
		SELECT assignment_id, user_id, role_id, assigned_by, assigned_at, expires_at, is_primary, context, is_active
		FROM user_role_assignments WHERE user_id = $1 AND role_id = $2 FOR UPDATE`, userID, roleID))
}

func (t *txRepo) UpsertAssignment(ctx context.Context, assignment Assignment) error {
	contextJSON, err := json.Marshal(orEmpty(assignment.Context))
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO user_role_assignments (user_id, role_id, assigned_by, assigned_at, expires_at, is_primary, context, is_active)
		VALUES ($1, $2, $3, NOW(), $4, $5, $6, TRUE)
		ON CONFLICT (user_id, role_id) DO UPDATE SET
			assigned_by = EXCLUDED.assigned_by,
			assigned_at = NOW(),
			expires_at = EXCLUDED.expires_at,
			is_primary = EXCLUDED.is_primary,
			context = EXCLUDED.context,
			is_active = TRUE`,
		assignment.UserID, assignment.RoleID, assignment.AssignedBy, assignment.ExpiresAt,
		assignment.IsPrimary, contextJSON)
	return err
}

func (t *txRepo) DeactivateAssignment(ctx context.Context, userID, roleID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE user_role_assignments SET is_active = FALSE
		WHERE user_id = $1 AND role_id = $2 AND is_active = TRUE`, userID, roleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) CountActiveAssignments(ctx context.Context, roleID int64) (int64, error) {
	return countActiveAssignments(ctx, t.tx, roleID)
}

func (t *txRepo) AppendAudit(ctx context.Context, entry audit.Entry) error {
	return audit.Append(ctx, t.tx, entry)
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
