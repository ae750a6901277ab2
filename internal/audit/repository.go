package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository provides PostgreSQL backed reads over role_audit_log.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const entryColumns = `audit_id, action_type, role_id, user_id, permission_key, old_value, new_value, changed_by, reason, success, changed_at`

// TimelineWindow returns one page of entries, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, params QueryParams) ([]Entry, error) {
	where, args := buildFilters(params.Filters)
	args = append(args, params.Limit, params.Offset)
	query := fmt.Sprintf(`SELECT %s FROM role_audit_log%s ORDER BY changed_at DESC, audit_id DESC LIMIT $%d OFFSET $%d`,
		entryColumns, where, len(args)-1, len(args))
	return r.query(ctx, query, args)
}

// TimelineAll returns all matching entries, newest first.
func (r *PGRepository) TimelineAll(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	where, args := buildFilters(filters)
	query := fmt.Sprintf(`SELECT %s FROM role_audit_log%s ORDER BY changed_at DESC, audit_id DESC`, entryColumns, where)
	return r.query(ctx, query, args)
}

func (r *PGRepository) query(ctx context.Context, query string, args []any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func buildFilters(f TimelineFilters) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if !f.From.IsZero() {
		add("changed_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("changed_at <= $%d", f.To)
	}
	if f.Actor != 0 {
		add("changed_by = $%d", f.Actor)
	}
	if f.Action != "" {
		add("action_type = $%d", strings.TrimSpace(f.Action))
	}
	if f.RoleID != 0 {
		add("role_id = $%d", f.RoleID)
	}
	if f.UserID != 0 {
		add("user_id = $%d", f.UserID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanEntry(row pgx.Row) (Entry, error) {
	var entry Entry
	var permissionKey *string
	var oldJSON, newJSON []byte
	err := row.Scan(&entry.ID, &entry.ActionType, &entry.RoleID, &entry.UserID, &permissionKey,
		&oldJSON, &newJSON, &entry.ChangedBy, &entry.Reason, &entry.Success, &entry.At)
	if err != nil {
		return Entry{}, err
	}
	if permissionKey != nil {
		entry.PermissionKey = *permissionKey
	}
	if len(oldJSON) > 0 {
		if err := json.Unmarshal(oldJSON, &entry.OldValue); err != nil {
			return Entry{}, err
		}
	}
	if len(newJSON) > 0 {
		if err := json.Unmarshal(newJSON, &entry.NewValue); err != nil {
			return Entry{}, err
		}
	}
	return entry, nil
}
