package orchestrator

import (
	"context"
	"fmt"

	"specimenreview/specimen"
)

// Store is the backend the orchestrator reads from and writes through.
// recordstore.Client satisfies it.
type Store interface {
	FetchAll(ctx context.Context) ([]specimen.Record, error)
	Update(ctx context.Context, id string, updates specimen.Updates) (specimen.Record, error)
}

// State is a read-only copy of the orchestrator's shared state. Version grows
// by one on every change.
type State struct {
	Records []specimen.Record
	Loading bool
	Error   string
	History []specimen.HistoryEntry
	Version uint64
}

func (s State) clone() State {
	out := s
	out.Records = cloneRecords(s.Records)
	if s.History != nil {
		out.History = make([]specimen.HistoryEntry, len(s.History))
		copy(out.History, s.History)
	}
	return out
}

// Record returns the record with the given id from the copy.
func (s State) Record(id string) (specimen.Record, bool) {
	for _, rec := range s.Records {
		if rec.ID == id {
			return rec, true
		}
	}
	return specimen.Record{}, false
}

func cloneRecords(records []specimen.Record) []specimen.Record {
	if records == nil {
		return nil
	}
	out := make([]specimen.Record, len(records))
	copy(out, records)
	return out
}

// LoadError is returned when fetching the record collection fails.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return e.Err.Error() }
func (e *LoadError) Unwrap() error { return e.Err }

// UpdateError is returned when a single-record update fails. Nothing in the
// shared state was changed.
type UpdateError struct {
	ID  string
	Err error
}

func (e *UpdateError) Error() string { return e.Err.Error() }
func (e *UpdateError) Unwrap() error { return e.Err }

func lockError(id string, err error) error {
	return &UpdateError{ID: id, Err: fmt.Errorf("orchestrator: wait for record %s: %w", id, err)}
}
