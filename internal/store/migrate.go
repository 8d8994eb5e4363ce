package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the full DDL, written to be idempotent so Migrate can run on
// every startup.
const schema = `
CREATE TABLE IF NOT EXISTS service_records (
	id               BIGSERIAL PRIMARY KEY,
	uid              TEXT NOT NULL UNIQUE,
	vendor           TEXT NOT NULL DEFAULT '',
	service          TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	tower            TEXT NOT NULL DEFAULT '',
	budget_head      TEXT NOT NULL DEFAULT '',
	contract         TEXT NOT NULL DEFAULT '',
	po_entity        TEXT NOT NULL DEFAULT '',
	allocation_basis TEXT NOT NULL DEFAULT '',
	initiative_type  TEXT NOT NULL DEFAULT '',
	service_type     TEXT NOT NULL DEFAULT '',
	currency         TEXT NOT NULL DEFAULT '',
	start_date       DATE,
	end_date         DATE,
	renewal_date     DATE,
	remarks          TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fiscal_year_financials (
	id          BIGSERIAL PRIMARY KEY,
	service_id  BIGINT NOT NULL REFERENCES service_records(id) ON DELETE CASCADE,
	fiscal_year TEXT NOT NULL,
	budget      DOUBLE PRECISION NOT NULL DEFAULT 0,
	actuals     DOUBLE PRECISION NOT NULL DEFAULT 0,
	UNIQUE (service_id, fiscal_year)
);

CREATE TABLE IF NOT EXISTS allocation_bases (
	id          BIGSERIAL PRIMARY KEY,
	service_id  BIGINT NOT NULL UNIQUE REFERENCES service_records(id) ON DELETE CASCADE,
	basis       TEXT NOT NULL DEFAULT '',
	total_count DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entity_allocations (
	id         BIGSERIAL PRIMARY KEY,
	service_id BIGINT NOT NULL REFERENCES service_records(id) ON DELETE CASCADE,
	entity     TEXT NOT NULL,
	count      DOUBLE PRECISION NOT NULL DEFAULT 0,
	UNIQUE (service_id, entity)
);

CREATE TABLE IF NOT EXISTS import_batches (
	id              UUID PRIMARY KEY,
	status          TEXT NOT NULL,
	file_name       TEXT NOT NULL DEFAULT '',
	fiscal_year     TEXT NOT NULL,
	created_by      TEXT NOT NULL DEFAULT '',
	new_count       INT NOT NULL DEFAULT 0,
	modified_count  INT NOT NULL DEFAULT 0,
	unchanged_count INT NOT NULL DEFAULT 0,
	removed_count   INT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS staging_changes (
	id             BIGSERIAL PRIMARY KEY,
	batch_id       UUID NOT NULL REFERENCES import_batches(id) ON DELETE CASCADE,
	uid            TEXT NOT NULL,
	classification TEXT NOT NULL,
	changed_fields TEXT[] NOT NULL DEFAULT '{}',
	diff           JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_staging_changes_batch ON staging_changes (batch_id);

CREATE TABLE IF NOT EXISTS audit_log (
	id         BIGSERIAL PRIMARY KEY,
	entity     TEXT NOT NULL,
	record_id  BIGINT NOT NULL,
	field      TEXT NOT NULL,
	old_value  TEXT NOT NULL DEFAULT '',
	new_value  TEXT NOT NULL DEFAULT '',
	changed_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_audit_log_record ON audit_log (entity, record_id);

CREATE TABLE IF NOT EXISTS activity_log (
	id         BIGSERIAL PRIMARY KEY,
	username   TEXT NOT NULL DEFAULT '',
	action     TEXT NOT NULL,
	details    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS import_logs (
	id           BIGSERIAL PRIMARY KEY,
	file_name    TEXT NOT NULL DEFAULT '',
	fiscal_year  TEXT NOT NULL DEFAULT '',
	total_rows   INT NOT NULL DEFAULT 0,
	success_rows INT NOT NULL DEFAULT 0,
	failed_rows  INT NOT NULL DEFAULT 0,
	failures     JSONB NOT NULL DEFAULT '[]',
	imported_by  TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lookups (
	id              BIGSERIAL PRIMARY KEY,
	kind            TEXT NOT NULL,
	name            TEXT NOT NULL,
	is_user_defined BOOLEAN NOT NULL DEFAULT TRUE,
	UNIQUE (kind, name)
);
`

// Migrate applies the schema. Safe to call on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
