package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagan2k22/OPEX-Manager/internal/core"
	"github.com/jackc/pgx/v5"
)

// serviceColumns is the scan order shared by every service-record query.
const serviceColumns = `id, uid, vendor, service, description, tower, budget_head,
	contract, po_entity, allocation_basis, initiative_type, service_type,
	currency, start_date, end_date, renewal_date, remarks, created_at, updated_at`

func scanService(row pgx.Row) (*core.ServiceRecord, error) {
	var rec core.ServiceRecord
	err := row.Scan(
		&rec.ID, &rec.UID, &rec.Vendor, &rec.Service, &rec.Description,
		&rec.Tower, &rec.BudgetHead, &rec.Contract, &rec.POEntity,
		&rec.AllocationBasis, &rec.InitiativeType, &rec.ServiceType,
		&rec.Currency, &rec.StartDate, &rec.EndDate, &rec.RenewalDate,
		&rec.Remarks, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (s *Store) GetServiceByUID(ctx context.Context, uid string) (*core.ServiceRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+serviceColumns+` FROM service_records WHERE uid = $1`, uid)
	return scanService(row)
}

// FindServiceByKey resolves a loose identifier: uid exact match first, then
// service name, then vendor. Name and vendor matches prefer the lowest id so
// the same sheet always resolves the same way.
func (s *Store) FindServiceByKey(ctx context.Context, key string) (*core.ServiceRecord, error) {
	rec, err := s.GetServiceByUID(ctx, key)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	row := s.db.QueryRow(ctx, `
		SELECT `+serviceColumns+` FROM service_records
		WHERE lower(service) = lower($1) OR lower(vendor) = lower($1)
		ORDER BY (lower(service) = lower($1)) DESC, id
		LIMIT 1`, key)
	return scanService(row)
}

func (s *Store) GetServiceByID(ctx context.Context, id int64) (*core.ServiceRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+serviceColumns+` FROM service_records WHERE id = $1`, id)
	return scanService(row)
}

func (s *Store) CreateService(ctx context.Context, rec *core.ServiceRecord) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO service_records (
			uid, vendor, service, description, tower, budget_head, contract,
			po_entity, allocation_basis, initiative_type, service_type,
			currency, start_date, end_date, renewal_date, remarks
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id, created_at, updated_at`,
		rec.UID, rec.Vendor, rec.Service, rec.Description, rec.Tower,
		rec.BudgetHead, rec.Contract, rec.POEntity, rec.AllocationBasis,
		rec.InitiativeType, rec.ServiceType, rec.Currency,
		rec.StartDate, rec.EndDate, rec.RenewalDate, rec.Remarks,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert service %s: %w", rec.UID, err)
	}
	return nil
}

func (s *Store) UpdateService(ctx context.Context, rec *core.ServiceRecord) error {
	err := s.db.QueryRow(ctx, `
		UPDATE service_records SET
			uid = $2, vendor = $3, service = $4, description = $5, tower = $6,
			budget_head = $7, contract = $8, po_entity = $9,
			allocation_basis = $10, initiative_type = $11, service_type = $12,
			currency = $13, start_date = $14, end_date = $15,
			renewal_date = $16, remarks = $17, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		rec.ID, rec.UID, rec.Vendor, rec.Service, rec.Description, rec.Tower,
		rec.BudgetHead, rec.Contract, rec.POEntity, rec.AllocationBasis,
		rec.InitiativeType, rec.ServiceType, rec.Currency,
		rec.StartDate, rec.EndDate, rec.RenewalDate, rec.Remarks,
	).Scan(&rec.UpdatedAt)
	if err != nil {
		return notFound(err)
	}
	return nil
}

func (s *Store) DeleteService(ctx context.Context, id int64) error {
	// Financial rows go with the record via ON DELETE CASCADE.
	tag, err := s.db.Exec(ctx, `DELETE FROM service_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// fyMatch is the fiscal-year membership condition: a financial row exists
// for the year, or the business key embeds the year label.
const fyMatch = `(f.id IS NOT NULL OR ($1 <> '' AND upper(s.uid) LIKE '%' || upper($1) || '%'))`

func (s *Store) ListServicesWithFinancials(ctx context.Context, fiscalYear string) ([]core.ServiceWithFinancial, error) {
	rows, err := s.db.Query(ctx, `
		SELECT s.id, s.uid, s.vendor, s.service, s.description, s.tower,
			s.budget_head, s.contract, s.po_entity, s.allocation_basis,
			s.initiative_type, s.service_type, s.currency,
			s.start_date, s.end_date, s.renewal_date, s.remarks,
			s.created_at, s.updated_at,
			f.id, f.service_id, f.fiscal_year, f.budget, f.actuals
		FROM service_records s
		LEFT JOIN fiscal_year_financials f
			ON f.service_id = s.id AND f.fiscal_year = $1
		WHERE `+fyMatch+`
		ORDER BY s.uid`, fiscalYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ServiceWithFinancial
	for rows.Next() {
		var rec core.ServiceRecord
		var finID, finServiceID *int64
		var finFY *string
		var finBudget, finActuals *float64
		err := rows.Scan(
			&rec.ID, &rec.UID, &rec.Vendor, &rec.Service, &rec.Description,
			&rec.Tower, &rec.BudgetHead, &rec.Contract, &rec.POEntity,
			&rec.AllocationBasis, &rec.InitiativeType, &rec.ServiceType,
			&rec.Currency, &rec.StartDate, &rec.EndDate, &rec.RenewalDate,
			&rec.Remarks, &rec.CreatedAt, &rec.UpdatedAt,
			&finID, &finServiceID, &finFY, &finBudget, &finActuals,
		)
		if err != nil {
			return nil, err
		}
		item := core.ServiceWithFinancial{Service: rec}
		if finID != nil {
			item.Financial = &core.FiscalYearFinancial{
				ID: *finID, ServiceID: *finServiceID, FiscalYear: *finFY,
				Budget: *finBudget, Actuals: *finActuals,
			}
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// trackerSortColumns is the allowlist of sortable tracker columns. Anything
// else falls back to the business key.
var trackerSortColumns = map[string]string{
	"uid":      "s.uid",
	"vendor":   "s.vendor",
	"service":  "s.service",
	"tower":    "s.tower",
	"budget":   "COALESCE(f.budget, 0)",
	"actuals":  "COALESCE(f.actuals, 0)",
	"variance": "(COALESCE(f.budget, 0) - COALESCE(f.actuals, 0))",
}

// trackerSearch matches the needle against the visible text columns.
const trackerSearch = `($2 = '' OR s.uid ILIKE '%' || $2 || '%'
	OR s.vendor ILIKE '%' || $2 || '%'
	OR s.service ILIKE '%' || $2 || '%'
	OR s.description ILIKE '%' || $2 || '%'
	OR s.tower ILIKE '%' || $2 || '%'
	OR s.budget_head ILIKE '%' || $2 || '%'
	OR s.contract ILIKE '%' || $2 || '%'
	OR s.po_entity ILIKE '%' || $2 || '%'
	OR s.remarks ILIKE '%' || $2 || '%')`

func (s *Store) QueryTracker(ctx context.Context, q core.TrackerQuery) (*core.TrackerPage, error) {
	where := `FROM service_records s
		LEFT JOIN fiscal_year_financials f
			ON f.service_id = s.id AND f.fiscal_year = $1
		WHERE ` + fyMatch + ` AND ` + trackerSearch

	search := strings.TrimSpace(q.Search)

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) `+where, q.FiscalYear, search).Scan(&total); err != nil {
		return nil, err
	}

	orderBy, ok := trackerSortColumns[q.SortField]
	if !ok {
		orderBy = "s.uid"
	}
	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT s.id, s.uid, s.vendor, s.service, s.description, s.tower,
			s.budget_head, s.contract, s.po_entity, s.allocation_basis,
			s.initiative_type, s.service_type, s.currency,
			s.start_date, s.end_date, s.renewal_date, s.remarks,
			COALESCE(f.budget, 0), COALESCE(f.actuals, 0)
		%s
		ORDER BY %s %s, s.uid ASC
		LIMIT $3 OFFSET $4`, where, orderBy, dir)

	rows, err := s.db.Query(ctx, query, q.FiscalYear, search, q.PageSize, (q.Page-1)*q.PageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page := &core.TrackerPage{
		TotalRows: total,
		Page:      q.Page,
		PageSize:  q.PageSize,
	}
	if q.PageSize > 0 {
		page.TotalPages = int((total + int64(q.PageSize) - 1) / int64(q.PageSize))
	}

	for rows.Next() {
		var r core.TrackerRow
		r.FiscalYear = q.FiscalYear
		err := rows.Scan(
			&r.ID, &r.UID, &r.Vendor, &r.Service, &r.Description, &r.Tower,
			&r.BudgetHead, &r.Contract, &r.POEntity, &r.AllocationBasis,
			&r.InitiativeType, &r.ServiceType, &r.Currency,
			&r.StartDate, &r.EndDate, &r.RenewalDate, &r.Remarks,
			&r.Budget, &r.Actuals,
		)
		if err != nil {
			return nil, err
		}
		r.Variance = r.Budget - r.Actuals
		page.Rows = append(page.Rows, r)
	}
	return page, rows.Err()
}

func (s *Store) DistinctFieldValues(ctx context.Context, field string) ([]string, error) {
	f, ok := core.FieldByName(field)
	if !ok || f.Entity != core.EntityService || f.Kind != core.KindText {
		return nil, core.Validationf("unknown field %q", field)
	}

	// Canonical field names double as column names, and f came from the
	// registry, so interpolating it is safe.
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT DISTINCT %s FROM service_records WHERE %s <> '' ORDER BY %s`,
		f.Name, f.Name, f.Name))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
