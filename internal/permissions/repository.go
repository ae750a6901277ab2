package permissions

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const permissionColumns = `permission_key, permission_name, description, category, danger_level, requires_approval, is_system, created_at`

// Get fetches a permission by key.
func (r *Repository) Get(ctx context.Context, key string) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permission_registry WHERE permission_key = $1`, key)
	perm, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, ErrNotFound
		}
		return Permission{}, err
	}
	return perm, nil
}

// Upsert inserts a permission or refreshes its mutable attributes. Key,
// category and is_system are never changed by the upsert.
func (r *Repository) Upsert(ctx context.Context, p Permission) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO permission_registry (permission_key, permission_name, description, category, danger_level, requires_approval, is_system)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (permission_key) DO UPDATE SET
			permission_name = EXCLUDED.permission_name,
			description = EXCLUDED.description,
			danger_level = EXCLUDED.danger_level,
			requires_approval = EXCLUDED.requires_approval`,
		p.Key, p.Name, p.Description, p.Category, p.DangerLevel, p.RequiresApproval, p.IsSystem)
	return err
}

// List returns the full catalog ordered for display.
func (r *Repository) List(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permission_registry ORDER BY category, danger_level, permission_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// LookupKeys resolves a batch of keys. Unknown keys are simply absent from
// the result.
func (r *Repository) LookupKeys(ctx context.Context, keys []string) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permission_registry WHERE permission_key = ANY($1)`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.Key, &p.Name, &p.Description, &p.Category, &p.DangerLevel, &p.RequiresApproval, &p.IsSystem, &p.CreatedAt)
	return p, err
}
