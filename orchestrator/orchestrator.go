package orchestrator

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"specimenreview/specimen"
)

// Orchestrator owns the record collection, the loading/error flags and the
// session history. It is the only writer of that state; everything else reads
// copies through Snapshot, Subscribe or View.
type Orchestrator struct {
	store Store
	log   *logrus.Logger
	now   func() time.Time

	mu    sync.RWMutex
	state State

	locksMu sync.Mutex
	locks   map[string]*semaphore.Weighted

	subsMu  sync.Mutex
	subs    map[int]func(State)
	nextSub int

	views viewCache
}

func New(store Store) *Orchestrator {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Orchestrator{
		store: store,
		log:   log,
		now:   time.Now,
		locks: make(map[string]*semaphore.Weighted),
		subs:  make(map[int]func(State)),
	}
}

func (o *Orchestrator) WithLogger(log *logrus.Logger) *Orchestrator {
	if log != nil {
		o.log = log
	}
	return o
}

func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Snapshot returns a deep copy of the current state.
func (o *Orchestrator) Snapshot() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.clone()
}

// Subscribe registers fn to receive a copy of the state after every change.
// fn runs on the goroutine that made the change, outside the state lock.
// Copies may arrive out of order under concurrent changes; compare Version.
func (o *Orchestrator) Subscribe(fn func(State)) (cancel func()) {
	o.subsMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.subsMu.Unlock()

	return func() {
		o.subsMu.Lock()
		delete(o.subs, id)
		o.subsMu.Unlock()
	}
}

// Fetch loads the full collection. The loading flag is raised for the
// duration of the call and released on every exit path.
func (o *Orchestrator) Fetch(ctx context.Context) error {
	o.mutate(func(s *State) {
		s.Loading = true
		s.Error = ""
	})
	defer o.mutate(func(s *State) {
		s.Loading = false
	})

	records, err := o.store.FetchAll(ctx)
	if err != nil {
		o.log.WithError(err).Warn("orchestrator: fetch records failed")
		o.mutate(func(s *State) {
			s.Error = err.Error()
		})
		return &LoadError{Err: err}
	}

	o.mutate(func(s *State) {
		s.Records = cloneRecords(records)
	})
	o.log.WithField("records", len(records)).Debug("orchestrator: records loaded")
	return nil
}

// Refresh reloads the collection; used for manual reloads and to recover from
// a failed load.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	return o.Fetch(ctx)
}

// Update sends a partial update for one record and merges the server's answer.
//
// The previous status used for the history entry is read from the current
// state when the call starts, never from a copy the caller holds. Calls for
// the same id are serialized end to end; calls for different ids run
// concurrently.
func (o *Orchestrator) Update(ctx context.Context, id string, updates specimen.Updates) (specimen.Record, error) {
	release, err := o.lockRecord(ctx, id)
	if err != nil {
		return specimen.Record{}, err
	}
	defer release()

	o.mu.RLock()
	prev, found := o.state.Record(id)
	o.mu.RUnlock()

	o.mutate(func(s *State) {
		s.Error = ""
	})

	rec, err := o.store.Update(ctx, id, updates)
	if err != nil {
		o.log.WithError(err).WithField("record_id", id).Warn("orchestrator: update failed")
		o.mutate(func(s *State) {
			s.Error = err.Error()
		})
		return specimen.Record{}, &UpdateError{ID: id, Err: err}
	}

	var entry *specimen.HistoryEntry
	if found && updates.Status != nil && *updates.Status != prev.Status {
		entry = &specimen.HistoryEntry{
			ID:             id,
			PreviousStatus: prev.Status,
			NewStatus:      *updates.Status,
		}
		if updates.Note != nil {
			entry.Note = *updates.Note
		}
	}

	o.mutate(func(s *State) {
		for i := range s.Records {
			if s.Records[i].ID == id {
				s.Records[i] = rec
			}
		}
		if entry != nil {
			// Stamped under the lock so history stays newest first across records.
			entry.Timestamp = o.now().UTC()
			s.History = append([]specimen.HistoryEntry{*entry}, s.History...)
		}
	})

	fields := logrus.Fields{"record_id": id, "status": rec.Status}
	if entry != nil {
		fields["previous_status"] = entry.PreviousStatus
	}
	o.log.WithFields(fields).Info("orchestrator: record updated")
	return rec, nil
}

// ClearHistory empties the session history.
func (o *Orchestrator) ClearHistory() {
	o.mutate(func(s *State) {
		s.History = nil
	})
}

func (o *Orchestrator) mutate(fn func(*State)) {
	o.mu.Lock()
	fn(&o.state)
	o.state.Version++
	snap := o.state.clone()
	o.mu.Unlock()

	o.publish(snap)
}

func (o *Orchestrator) publish(snap State) {
	o.subsMu.Lock()
	fns := make([]func(State), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.subsMu.Unlock()

	for _, fn := range fns {
		fn(snap.clone())
	}
}

func (o *Orchestrator) lockRecord(ctx context.Context, id string) (func(), error) {
	o.locksMu.Lock()
	sem, ok := o.locks[id]
	if !ok {
		sem = semaphore.NewWeighted(1)
		o.locks[id] = sem
	}
	o.locksMu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, lockError(id, err)
	}
	return func() { sem.Release(1) }, nil
}
