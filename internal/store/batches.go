package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gagan2k22/OPEX-Manager/internal/core"
)

// CreateBatch persists a batch and its diff rows. Callers run this inside
// InTx so a partial batch never becomes visible.
func (s *Store) CreateBatch(ctx context.Context, batch *core.ImportBatch, changes []core.StagingChange) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO import_batches (
			id, status, file_name, fiscal_year, created_by,
			new_count, modified_count, unchanged_count, removed_count, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		batch.ID, batch.Status, batch.FileName, batch.FiscalYear, batch.CreatedBy,
		batch.Summary.New, batch.Summary.Modified, batch.Summary.Unchanged,
		batch.Summary.Removed, batch.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", batch.ID, err)
	}

	for i := range changes {
		ch := &changes[i]
		diff, err := json.Marshal(ch.Diff)
		if err != nil {
			return fmt.Errorf("encode diff for %s: %w", ch.UID, err)
		}
		err = s.db.QueryRow(ctx, `
			INSERT INTO staging_changes (batch_id, uid, classification, changed_fields, diff)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			ch.BatchID, ch.UID, ch.Kind, ch.ChangedFields, diff,
		).Scan(&ch.ID)
		if err != nil {
			return fmt.Errorf("insert staging change for %s: %w", ch.UID, err)
		}
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (*core.ImportBatch, error) {
	var b core.ImportBatch
	err := s.db.QueryRow(ctx, `
		SELECT id, status, file_name, fiscal_year, created_by,
			new_count, modified_count, unchanged_count, removed_count, created_at
		FROM import_batches WHERE id = $1`, id,
	).Scan(&b.ID, &b.Status, &b.FileName, &b.FiscalYear, &b.CreatedBy,
		&b.Summary.New, &b.Summary.Modified, &b.Summary.Unchanged,
		&b.Summary.Removed, &b.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (s *Store) ListBatches(ctx context.Context, limit int) ([]core.ImportBatch, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, status, file_name, fiscal_year, created_by,
			new_count, modified_count, unchanged_count, removed_count, created_at
		FROM import_batches
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ImportBatch
	for rows.Next() {
		var b core.ImportBatch
		err := rows.Scan(&b.ID, &b.Status, &b.FileName, &b.FiscalYear, &b.CreatedBy,
			&b.Summary.New, &b.Summary.Modified, &b.Summary.Unchanged,
			&b.Summary.Removed, &b.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) GetChanges(ctx context.Context, batchID string) ([]core.StagingChange, error) {
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, batch_id, uid, classification, changed_fields, diff
		FROM staging_changes
		WHERE batch_id = $1
		ORDER BY id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.StagingChange
	for rows.Next() {
		var ch core.StagingChange
		var diff []byte
		if err := rows.Scan(&ch.ID, &ch.BatchID, &ch.UID, &ch.Kind, &ch.ChangedFields, &diff); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(diff, &ch.Diff); err != nil {
			return nil, fmt.Errorf("decode diff for %s: %w", ch.UID, err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// TransitionBatch is the serialization point for concurrent confirm and
// cancel attempts: the conditional UPDATE succeeds for exactly one caller.
func (s *Store) TransitionBatch(ctx context.Context, id string, from, to core.BatchStatus) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE import_batches SET status = $3
		WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current core.BatchStatus
	err = s.db.QueryRow(ctx, `SELECT status FROM import_batches WHERE id = $1`, id).Scan(&current)
	if err != nil {
		return notFound(err)
	}
	return fmt.Errorf("%w: batch %s is %s", core.ErrInvalidState, id, current)
}
