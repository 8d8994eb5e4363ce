package store

import (
	"context"

	"github.com/gagan2k22/OPEX-Manager/internal/core"
)

// UpsertAllocation replaces a service's BOA record: the basis row is
// upserted and the entity rows are rewritten wholesale. Callers run this
// inside InTx so a partial rewrite is never visible.
func (s *Store) UpsertAllocation(ctx context.Context, a *core.ServiceAllocation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO allocation_bases (service_id, basis, total_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (service_id) DO UPDATE
		SET basis = EXCLUDED.basis, total_count = EXCLUDED.total_count, updated_at = now()`,
		a.ServiceID, a.Basis, a.TotalCount,
	)
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx,
		`DELETE FROM entity_allocations WHERE service_id = $1`, a.ServiceID); err != nil {
		return err
	}
	for _, e := range a.Entities {
		if _, err := s.db.Exec(ctx, `
			INSERT INTO entity_allocations (service_id, entity, count)
			VALUES ($1, $2, $3)`,
			a.ServiceID, e.Entity, e.Count,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetAllocation(ctx context.Context, serviceID int64) (*core.ServiceAllocation, error) {
	var a core.ServiceAllocation
	err := s.db.QueryRow(ctx, `
		SELECT b.service_id, r.uid, b.basis, b.total_count
		FROM allocation_bases b
		JOIN service_records r ON r.id = b.service_id
		WHERE b.service_id = $1`, serviceID,
	).Scan(&a.ServiceID, &a.UID, &a.Basis, &a.TotalCount)
	if err != nil {
		return nil, notFound(err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT entity, count FROM entity_allocations
		WHERE service_id = $1
		ORDER BY entity`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e core.EntityAllocation
		if err := rows.Scan(&e.Entity, &e.Count); err != nil {
			return nil, err
		}
		a.Entities = append(a.Entities, e)
	}
	return &a, rows.Err()
}

func (s *Store) ListAllocations(ctx context.Context) ([]core.ServiceAllocation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT b.service_id, r.uid, b.basis, b.total_count
		FROM allocation_bases b
		JOIN service_records r ON r.id = b.service_id
		ORDER BY r.uid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ServiceAllocation
	index := make(map[int64]int)
	for rows.Next() {
		var a core.ServiceAllocation
		if err := rows.Scan(&a.ServiceID, &a.UID, &a.Basis, &a.TotalCount); err != nil {
			return nil, err
		}
		index[a.ServiceID] = len(out)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	entityRows, err := s.db.Query(ctx, `
		SELECT service_id, entity, count FROM entity_allocations
		ORDER BY service_id, entity`)
	if err != nil {
		return nil, err
	}
	defer entityRows.Close()
	for entityRows.Next() {
		var serviceID int64
		var e core.EntityAllocation
		if err := entityRows.Scan(&serviceID, &e.Entity, &e.Count); err != nil {
			return nil, err
		}
		if i, ok := index[serviceID]; ok {
			out[i].Entities = append(out[i].Entities, e)
		}
	}
	return out, entityRows.Err()
}
