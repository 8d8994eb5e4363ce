package core

// lookups.go manages master-data value lists (towers, budget heads,
// vendors, ...). A listing merges two sources: rows users created
// explicitly, and values merely observed in tracker data. The flag
// IsUserDefined tells them apart; observed values carry no id and live only
// in the listing.

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Lookups returns the merged value list for one kind, sorted by name.
// User-defined rows win over an observed value with the same name.
func (s *Service) Lookups(ctx context.Context, kind LookupKind) ([]Lookup, error) {
	if !ValidLookupKind(kind) {
		return nil, Validationf("unknown lookup kind %q", kind)
	}

	defined, err := s.store.ListLookups(ctx, kind)
	if err != nil {
		return nil, Storagef("list lookups", err)
	}

	// Every lookup kind shadows a service-master text column of the same
	// name; observed values come from the live data.
	observed, err := s.store.DistinctFieldValues(ctx, string(kind))
	if err != nil {
		return nil, Storagef("list observed values", err)
	}

	byName := make(map[string]bool, len(defined))
	for _, l := range defined {
		byName[strings.ToLower(l.Name)] = true
	}

	out := append([]Lookup(nil), defined...)
	for _, name := range observed {
		name = strings.TrimSpace(name)
		if name == "" || byName[strings.ToLower(name)] {
			continue
		}
		out = append(out, Lookup{Kind: kind, Name: name, IsUserDefined: false})
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// CreateLookup adds a user-defined value to a lookup list.
func (s *Service) CreateLookup(ctx context.Context, kind LookupKind, name, user string) (*Lookup, error) {
	if !ValidLookupKind(kind) {
		return nil, Validationf("unknown lookup kind %q", kind)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Validationf("lookup name is required")
	}

	existing, err := s.store.ListLookups(ctx, kind)
	if err != nil {
		return nil, Storagef("list lookups", err)
	}
	for _, l := range existing {
		if strings.EqualFold(l.Name, name) {
			return nil, Validationf("%s %q already exists", kind, name)
		}
	}

	l := &Lookup{Kind: kind, Name: name, IsUserDefined: true}
	err = s.store.InTx(ctx, func(tx Store) error {
		if err := tx.CreateLookup(ctx, l); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, &ActivityLogEntry{
			Username: user,
			Action:   ActivityRecordCreate,
			Details:  fmt.Sprintf("added %s %q", kind, name),
		})
	})
	if err != nil {
		return nil, Storagef("create lookup", err)
	}
	return l, nil
}

// DeleteLookup removes a user-defined value. Observed values have no row to
// delete; they disappear when the last tracker record using them does.
func (s *Service) DeleteLookup(ctx context.Context, id int64, user string) error {
	err := s.store.InTx(ctx, func(tx Store) error {
		if err := tx.DeleteLookup(ctx, id); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, &ActivityLogEntry{
			Username: user,
			Action:   ActivityRecordDelete,
			Details:  fmt.Sprintf("removed lookup %d", id),
		})
	})
	if err != nil {
		return Storagef("delete lookup", err)
	}
	return nil
}
