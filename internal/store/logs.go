package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gagan2k22/OPEX-Manager/internal/core"
)

func (s *Store) AppendAudit(ctx context.Context, e *core.AuditLogEntry) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO audit_log (entity, record_id, field, old_value, new_value, changed_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		e.Entity, e.RecordID, e.Field, e.OldValue, e.NewValue, e.ChangedBy,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) GetAuditEntry(ctx context.Context, id int64) (*core.AuditLogEntry, error) {
	var e core.AuditLogEntry
	err := s.db.QueryRow(ctx, `
		SELECT id, entity, record_id, field, old_value, new_value, changed_by, created_at
		FROM audit_log WHERE id = $1`, id,
	).Scan(&e.ID, &e.Entity, &e.RecordID, &e.Field, &e.OldValue, &e.NewValue, &e.ChangedBy, &e.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (s *Store) ListAudit(ctx context.Context, f core.AuditFilter) ([]core.AuditLogEntry, error) {
	var conds []string
	var args []any
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Entity != "" {
		add("entity = $%d", f.Entity)
	}
	if f.RecordID != 0 {
		add("record_id = $%d", f.RecordID)
	}
	if f.Field != "" {
		add("field = $%d", f.Field)
	}

	query := `SELECT id, entity, record_id, field, old_value, new_value, changed_by, created_at
		FROM audit_log`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.AuditLogEntry
	for rows.Next() {
		var e core.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.Entity, &e.RecordID, &e.Field, &e.OldValue, &e.NewValue, &e.ChangedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) AppendActivity(ctx context.Context, e *core.ActivityLogEntry) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO activity_log (username, action, details)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		e.Username, e.Action, e.Details,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity entry: %w", err)
	}
	return nil
}

func (s *Store) ListActivity(ctx context.Context, limit int) ([]core.ActivityLogEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, username, action, details, created_at
		FROM activity_log
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ActivityLogEntry
	for rows.Next() {
		var e core.ActivityLogEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) AppendImportLog(ctx context.Context, e *core.ImportLogEntry) error {
	failures, err := json.Marshal(e.Failures)
	if err != nil {
		return fmt.Errorf("encode import failures: %w", err)
	}
	err = s.db.QueryRow(ctx, `
		INSERT INTO import_logs (file_name, fiscal_year, total_rows, success_rows, failed_rows, failures, imported_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		e.FileName, e.FiscalYear, e.Total, e.Success, e.Failed, failures, e.ImportedBy,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert import log: %w", err)
	}
	return nil
}

func (s *Store) ListImportLogs(ctx context.Context, limit int) ([]core.ImportLogEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, file_name, fiscal_year, total_rows, success_rows, failed_rows, failures, imported_by, created_at
		FROM import_logs
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ImportLogEntry
	for rows.Next() {
		var e core.ImportLogEntry
		var failures []byte
		if err := rows.Scan(&e.ID, &e.FileName, &e.FiscalYear, &e.Total, &e.Success, &e.Failed, &failures, &e.ImportedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(failures, &e.Failures); err != nil {
			return nil, fmt.Errorf("decode import failures: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
