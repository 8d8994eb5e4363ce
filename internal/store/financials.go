package store

import (
	"context"
	"fmt"

	"github.com/gagan2k22/OPEX-Manager/internal/core"
)

func (s *Store) GetFinancial(ctx context.Context, serviceID int64, fiscalYear string) (*core.FiscalYearFinancial, error) {
	var f core.FiscalYearFinancial
	err := s.db.QueryRow(ctx, `
		SELECT id, service_id, fiscal_year, budget, actuals
		FROM fiscal_year_financials
		WHERE service_id = $1 AND fiscal_year = $2`,
		serviceID, fiscalYear,
	).Scan(&f.ID, &f.ServiceID, &f.FiscalYear, &f.Budget, &f.Actuals)
	if err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

func (s *Store) GetFinancialByID(ctx context.Context, id int64) (*core.FiscalYearFinancial, error) {
	var f core.FiscalYearFinancial
	err := s.db.QueryRow(ctx, `
		SELECT id, service_id, fiscal_year, budget, actuals
		FROM fiscal_year_financials WHERE id = $1`, id,
	).Scan(&f.ID, &f.ServiceID, &f.FiscalYear, &f.Budget, &f.Actuals)
	if err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

// UpsertFinancial creates or replaces the (service, fiscal year) row. The
// unique constraint makes concurrent upserts for the same pair safe.
func (s *Store) UpsertFinancial(ctx context.Context, f *core.FiscalYearFinancial) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO fiscal_year_financials (service_id, fiscal_year, budget, actuals)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (service_id, fiscal_year)
		DO UPDATE SET budget = EXCLUDED.budget, actuals = EXCLUDED.actuals
		RETURNING id`,
		f.ServiceID, f.FiscalYear, f.Budget, f.Actuals,
	).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("upsert financial for service %d %s: %w", f.ServiceID, f.FiscalYear, err)
	}
	return nil
}
