package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"specimenreview/editor"
	"specimenreview/notify"
	"specimenreview/orchestrator"
	"specimenreview/specimen"
)

// Tally counts reviewer outcomes across actors.
type Tally struct {
	Saved     atomic.Int64
	Failed    atomic.Int64
	Blocked   atomic.Int64
	Unchanged atomic.Int64
	// Notified counts error notifications; it must match Failed.
	Notified atomic.Int64
}

func (t *Tally) String() string {
	return fmt.Sprintf("saved=%d failed=%d blocked=%d unchanged=%d notified=%d",
		t.Saved.Load(), t.Failed.Load(), t.Blocked.Load(), t.Unchanged.Load(), t.Notified.Load())
}

// Reviewer repeatedly opens an editor on a random record, picks a random
// status and saves. Notes are supplied only when the status needs one, except
// for an occasional deliberate omission that the editor must block.
func Reviewer(ctx context.Context, orch *orchestrator.Orchestrator, rng *rand.Rand, tally *Tally, stop <-chan struct{}) error {
	statuses := specimen.AllStatuses()
	notifier := notify.Funcs{OnError: func(string) { tally.Notified.Add(1) }}
	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		records := orch.Snapshot().Records
		if len(records) == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		rec := records[rng.IntN(len(records))]

		ed := editor.New(rec, orch, notifier, nil)
		next := statuses[rng.IntN(len(statuses))]
		if err := ed.SetStatus(next); err != nil {
			return fmt.Errorf("reviewer set status: %w", err)
		}
		skipNote := rng.IntN(10) == 0
		if next.RequiresNote() && !skipNote {
			if err := ed.SetNote(fmt.Sprintf("reviewer note %d", n)); err != nil {
				return fmt.Errorf("reviewer set note: %w", err)
			}
		}

		wasDirty := ed.State() == editor.Editing
		err := ed.Save(ctx)
		var verr *editor.ValidationError
		var uerr *orchestrator.UpdateError
		switch {
		case err == nil && !wasDirty:
			tally.Unchanged.Add(1)
		case err == nil:
			tally.Saved.Add(1)
		case errors.As(err, &verr):
			if !(next.RequiresNote() && skipNote) {
				return fmt.Errorf("reviewer: unexpected validation failure for %s", next)
			}
			tally.Blocked.Add(1)
			_ = ed.Close()
		case errors.As(err, &uerr):
			if ed.State() != editor.Editing {
				return fmt.Errorf("reviewer: editor left %s after failed save", ed.State())
			}
			tally.Failed.Add(1)
			_ = ed.Close()
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			tally.Failed.Add(1)
			return nil
		default:
			return fmt.Errorf("reviewer save: %w", err)
		}

		time.Sleep(time.Duration(2+rng.IntN(8)) * time.Millisecond)
	}
}

// Refresher reloads the collection at random intervals. Load failures are
// expected under chaos and only counted.
func Refresher(ctx context.Context, orch *orchestrator.Orchestrator, rng *rand.Rand, failures *atomic.Int64, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-time.After(time.Duration(20+rng.IntN(60)) * time.Millisecond):
		}

		if err := orch.Refresh(ctx); err != nil {
			var lerr *orchestrator.LoadError
			if errors.As(err, &lerr) {
				failures.Add(1)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("refresher: %w", err)
		}
	}
}

// Historian clears the session history now and then while reviewers write to it.
func Historian(ctx context.Context, orch *orchestrator.Orchestrator, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-time.After(time.Duration(100+rng.IntN(200)) * time.Millisecond):
		}
		orch.ClearHistory()
	}
}
