package mockapi

import (
	"context"
	"errors"
	"fmt"

	"specimenreview/specimen"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("mockapi: record not found")
	// ErrDuplicateID is returned when a seed set reuses an id.
	ErrDuplicateID = errors.New("mockapi: duplicate record id")
)

// Repository is the backing collection behind the mock API. Records keep
// their insertion order.
type Repository interface {
	List(ctx context.Context) ([]specimen.Record, error)
	// Patch applies only the non-nil fields of updates and returns the stored record.
	Patch(ctx context.Context, id string, updates specimen.Updates) (specimen.Record, error)
	// Replace swaps the whole collection, e.g. when seeding.
	Replace(ctx context.Context, records []specimen.Record) error
}

func checkUnique(records []specimen.Record) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, ok := seen[r.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}
