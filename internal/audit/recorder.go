package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Executor is the subset of pgx used to append entries. Both pgxpool.Pool
// and pgx.Tx satisfy it, so an append can join a caller's transaction and
// commit or roll back together with the mutation it describes.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Recorder writes records into role_audit_log.
type Recorder struct {
	exec Executor
}

// NewRecorder returns a new Recorder.
func NewRecorder(exec Executor) *Recorder {
	return &Recorder{exec: exec}
}

const insertEntrySQL = `INSERT INTO role_audit_log
	(action_type, role_id, user_id, permission_key, old_value, new_value, changed_by, reason, success, changed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()))`

// Record persists the log entry.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if r == nil {
		return errors.New("audit recorder not initialised")
	}
	return Append(ctx, r.exec, entry)
}

// Append writes an entry through the supplied executor.
func Append(ctx context.Context, exec Executor, entry Entry) error {
	if entry.ActionType == "" {
		return ErrValidation
	}
	oldJSON, err := marshalValue(entry.OldValue)
	if err != nil {
		return err
	}
	newJSON, err := marshalValue(entry.NewValue)
	if err != nil {
		return err
	}
	var at *time.Time
	if !entry.At.IsZero() {
		at = &entry.At
	}
	_, err = exec.Exec(ctx, insertEntrySQL,
		entry.ActionType, entry.RoleID, entry.UserID, nullableText(entry.PermissionKey),
		oldJSON, newJSON, entry.ChangedBy, entry.Reason, entry.Success, at)
	return err
}

func marshalValue(value map[string]any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}

func nullableText(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
