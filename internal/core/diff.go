package core

// diff.go classifies uploaded rows against persisted records. The engine is
// deterministic and stateless: the same two input sets always produce the
// same classification, in the same order.

import "sort"

// RowDiff is the classification of one business key.
type RowDiff struct {
	UID           string               `json:"uid"`
	Kind          ChangeKind           `json:"kind"`
	ChangedFields []string             `json:"changedFields,omitempty"`
	Diff          map[string]FieldDiff `json:"diff,omitempty"`
}

// DiffResult is the full output of one comparison run.
type DiffResult struct {
	Summary DiffSummary `json:"summary"`
	Changes []RowDiff   `json:"changes"`
}

// ComputeDiff classifies every business key present in either the upload or
// the persisted set:
//
//   - absent from the store            -> NEW, diff holds every non-empty field
//   - absent from the upload           -> REMOVED (advisory; never auto-deleted)
//   - present in both, fields differ   -> MODIFIED, diff holds differing fields only
//   - present in both, fields equal    -> UNCHANGED
//
// Only fields whose column exists in the upload are compared; a sheet that
// omits a column never reports changes for it. Upload rows keep sheet order;
// REMOVED keys follow, sorted by UID.
func ComputeDiff(rows []NormalizedRow, persisted []ServiceWithFinancial) DiffResult {
	byUID := make(map[string]*ServiceWithFinancial, len(persisted))
	for i := range persisted {
		byUID[persisted[i].Service.UID] = &persisted[i]
	}

	var res DiffResult
	uploaded := make(map[string]bool, len(rows))

	for _, row := range rows {
		uploaded[row.UID] = true
		existing, ok := byUID[row.UID]
		if !ok {
			res.Summary.New++
			res.Changes = append(res.Changes, newRowDiff(row))
			continue
		}

		d := compareRow(row, existing)
		if len(d.ChangedFields) == 0 {
			res.Summary.Unchanged++
			continue
		}
		res.Summary.Modified++
		res.Changes = append(res.Changes, d)
	}

	var removed []string
	for uid := range byUID {
		if !uploaded[uid] {
			removed = append(removed, uid)
		}
	}
	sort.Strings(removed)
	for _, uid := range removed {
		res.Summary.Removed++
		res.Changes = append(res.Changes, RowDiff{UID: uid, Kind: ChangeRemoved})
	}

	return res
}

// newRowDiff builds the NEW classification: every valid uploaded field as
// {old: null, new: value}.
func newRowDiff(row NormalizedRow) RowDiff {
	d := RowDiff{UID: row.UID, Kind: ChangeNew, Diff: make(map[string]FieldDiff)}
	for _, name := range FieldNames() {
		v, ok := row.Values[name]
		if !ok || !v.Valid {
			continue
		}
		s := v.String()
		d.ChangedFields = append(d.ChangedFields, name)
		d.Diff[name] = FieldDiff{New: &s}
	}
	return d
}

// compareRow builds the MODIFIED classification against an existing record.
// Returns a diff with no changed fields when everything matches.
func compareRow(row NormalizedRow, existing *ServiceWithFinancial) RowDiff {
	d := RowDiff{UID: row.UID, Kind: ChangeModified}

	for _, name := range FieldNames() {
		incoming, ok := row.Values[name]
		if !ok {
			continue
		}
		f, ok := FieldByName(name)
		if !ok {
			continue
		}
		current := f.Get(&existing.Service, existing.Financial)
		if incoming.Equal(current) {
			continue
		}

		fd := FieldDiff{}
		if current.Valid {
			s := current.String()
			fd.Old = &s
		}
		if incoming.Valid {
			s := incoming.String()
			fd.New = &s
		}
		if d.Diff == nil {
			d.Diff = make(map[string]FieldDiff)
		}
		d.ChangedFields = append(d.ChangedFields, name)
		d.Diff[name] = fd
	}

	return d
}
