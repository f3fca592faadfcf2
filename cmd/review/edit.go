package main

import (
	"context"
	"errors"

	"specimenreview/editor"
	"specimenreview/notify"
	"specimenreview/orchestrator"
	"specimenreview/specimen"
)

var errUnknownRecord = errors.New("review: unknown record")

// editRecord drives one editor session: open, change status, optionally set
// the note, save.
func editRecord(ctx context.Context, orch *orchestrator.Orchestrator, n notify.Notifier, id, rawStatus, note string, hasNote bool) error {
	status, err := specimen.ParseStatus(rawStatus)
	if err != nil {
		n.Error(err.Error())
		return err
	}
	rec, ok := orch.Snapshot().Record(id)
	if !ok {
		n.Error("No record with id " + id)
		return errUnknownRecord
	}

	ed := editor.New(rec, orch, n, nil)
	if err := ed.SetStatus(status); err != nil {
		return err
	}
	if hasNote {
		if err := ed.SetNote(note); err != nil {
			return err
		}
	}

	if err := ed.Save(ctx); err != nil {
		var verr *editor.ValidationError
		if errors.As(err, &verr) {
			n.Error(verr.Message)
		}
		return err
	}
	return nil
}
