// Package core provides the business logic for the OPEX tracker.
//
// This package is the heart of the budget manager, containing all domain
// logic independent of any transport layer. It can be used by web handlers,
// CLI tools, or tests without modification.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Field Registry: Every editable attribute of a service record or its
//     fiscal-year financials is described once by a [Field] with a typed
//     accessor/mutator pair. Normalization, diffing, commit, and audit
//     restore all go through the registry; nothing reflects over arbitrary
//     struct fields.
//   - Row Normalizer: Maps spreadsheet headers (tolerant of naming variants)
//     onto canonical fields and coerces raw cell text into typed values.
//   - Diff Engine: Classifies every business key present in an upload or in
//     the live table as NEW, MODIFIED, UNCHANGED, or REMOVED.
//   - Staging: A re-upload is persisted as a reviewable [ImportBatch] plus
//     one [StagingChange] per affected key. Nothing touches live records
//     until an admin confirms the batch.
//   - Commit Engine: Applies a confirmed batch inside one storage
//     transaction, emitting an audit entry per changed field.
//   - BOA Allocation: Basis-of-allocation splits dividing one service's
//     cost across entities, imported from a fixed-layout workbook and
//     replaced wholesale per service.
//
// # Error Handling
//
// Operations return sentinel or typed errors ([ErrNotFound],
// [ErrInvalidState], [*ValidationError]) that the web layer maps to status
// codes. Technical errors are mapped to user-friendly messages using
// [MapError]; each category has a unique code for support reference.
//
// # Storage
//
// All persistence goes through the [Store] interface. The production
// implementation lives in internal/store (PostgreSQL via pgx); tests use an
// in-memory fake. Transactional units of work run through [Store.InTx].
package core
