package store

import (
	"context"
	"fmt"

	"github.com/gagan2k22/OPEX-Manager/internal/core"
)

func (s *Store) ListLookups(ctx context.Context, kind core.LookupKind) ([]core.Lookup, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, kind, name, is_user_defined
		FROM lookups
		WHERE kind = $1
		ORDER BY id`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Lookup
	for rows.Next() {
		var l core.Lookup
		if err := rows.Scan(&l.ID, &l.Kind, &l.Name, &l.IsUserDefined); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) CreateLookup(ctx context.Context, l *core.Lookup) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO lookups (kind, name, is_user_defined)
		VALUES ($1, $2, $3)
		RETURNING id`,
		l.Kind, l.Name, l.IsUserDefined,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("insert lookup %s/%s: %w", l.Kind, l.Name, err)
	}
	return nil
}

func (s *Store) DeleteLookup(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM lookups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}
