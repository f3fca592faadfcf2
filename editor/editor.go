// Package editor implements the detail editor for a single specimen record:
// a local draft of status and note, the note-required gate and the save
// protocol that hands dirty fields to the orchestrator.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"specimenreview/notify"
	"specimenreview/specimen"
)

const (
	// NoteRequiredMessage is shown while the draft status demands a note.
	NoteRequiredMessage = "A note is required when flagging a record or requesting a revision."
	// FallbackErrorMessage replaces failures that carry no usable message.
	FallbackErrorMessage = "Failed to update record"
	SuccessMessage       = "Record updated successfully"
)

var (
	ErrBusy   = errors.New("editor: save in progress")
	ErrClosed = errors.New("editor: closed")
)

// State is the editor's lifecycle position.
type State int

const (
	// Viewing means the draft mirrors the source record.
	Viewing State = iota
	// Editing means the draft diverges from the source record.
	Editing
	// Saving means an update is in flight; every input is locked.
	Saving
	// Closed is terminal.
	Closed
)

func (s State) String() string {
	switch s {
	case Viewing:
		return "viewing"
	case Editing:
		return "editing"
	case Saving:
		return "saving"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ValidationError blocks a save locally; it never reaches the network.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// PanicError carries a non-error value the updater panicked with.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("editor: update panicked: %v", e.Value) }

// Updater applies a partial update. orchestrator.Orchestrator satisfies it.
type Updater interface {
	Update(ctx context.Context, id string, updates specimen.Updates) (specimen.Record, error)
}

// Draft is the uncommitted copy of the editable fields.
type Draft struct {
	Status specimen.Status
	Note   string
}

type Editor struct {
	mu         sync.Mutex
	source     specimen.Record
	draft      Draft
	state      State
	validation string

	updater  Updater
	notifier notify.Notifier
	onClose  func()
}

// New opens an editor on record. onClose runs once, after a successful save,
// a no-op save or an explicit Close.
func New(record specimen.Record, updater Updater, notifier notify.Notifier, onClose func()) *Editor {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Editor{
		source:   record,
		draft:    Draft{Status: record.Status, Note: record.Note},
		state:    Viewing,
		updater:  updater,
		notifier: notifier,
		onClose:  onClose,
	}
}

func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Editor) Draft() Draft {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft
}

// Record returns the source record the editor was opened on.
func (e *Editor) Record() specimen.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source
}

// ValidationMessage is the message left by a blocked save, empty otherwise.
func (e *Editor) ValidationMessage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validation
}

// SetStatus selects a new draft status. Any real change clears the note
// draft, including a change back to the record's original status.
func (e *Editor) SetStatus(s specimen.Status) error {
	if !s.Valid() {
		return fmt.Errorf("editor: %w %q", specimen.ErrInvalidStatus, s)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.inputAllowed(); err != nil {
		return err
	}

	if s != e.draft.Status {
		e.draft.Note = ""
	}
	e.draft.Status = s
	e.validation = ""
	e.settle()
	return nil
}

// SetNote replaces the note draft verbatim.
func (e *Editor) SetNote(note string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.inputAllowed(); err != nil {
		return err
	}

	e.draft.Note = note
	e.validation = ""
	e.settle()
	return nil
}

// NoteRequired reports whether the note gate is active for the draft status.
func (e *Editor) NoteRequired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft.Status.RequiresNote()
}

// HelperMessage is shown for as long as the note gate is active.
func (e *Editor) HelperMessage() string {
	if e.NoteRequired() {
		return NoteRequiredMessage
	}
	return ""
}

// CanSave reports whether the save control is enabled.
func (e *Editor) CanSave() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Saving || e.state == Closed {
		return false
	}
	return !e.missingNote()
}

// Save commits the dirty fields through the updater.
func (e *Editor) Save(ctx context.Context) error {
	e.mu.Lock()
	if err := e.inputAllowed(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.missingNote() {
		e.validation = NoteRequiredMessage
		e.mu.Unlock()
		return &ValidationError{Message: NoteRequiredMessage}
	}

	updates, dirty := e.dirtyFields()
	if !dirty {
		e.state = Closed
		e.mu.Unlock()
		e.closed()
		return nil
	}

	e.state = Saving
	id := e.source.ID
	e.mu.Unlock()

	_, err := e.update(ctx, id, updates)

	e.mu.Lock()
	if err != nil {
		e.state = Editing
		e.mu.Unlock()
		e.notifier.Error(FailureMessage(err))
		return err
	}
	e.state = Closed
	e.mu.Unlock()

	e.notifier.Success(SuccessMessage)
	e.closed()
	return nil
}

// Close discards the draft and closes the editor without saving.
func (e *Editor) Close() error {
	e.mu.Lock()
	switch e.state {
	case Saving:
		e.mu.Unlock()
		return ErrBusy
	case Closed:
		e.mu.Unlock()
		return nil
	}
	e.state = Closed
	e.draft = Draft{Status: e.source.Status, Note: e.source.Note}
	e.validation = ""
	e.mu.Unlock()

	e.closed()
	return nil
}

// FailureMessage turns a failed save into the text shown to the reviewer.
func FailureMessage(err error) string {
	if err == nil {
		return FallbackErrorMessage
	}
	var p *PanicError
	if errors.As(err, &p) {
		return FallbackErrorMessage
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return FallbackErrorMessage
	}
	return msg
}

func (e *Editor) update(ctx context.Context, id string, updates specimen.Updates) (rec specimen.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rErr, ok := r.(error); ok {
				err = rErr
				return
			}
			err = &PanicError{Value: r}
		}
	}()
	return e.updater.Update(ctx, id, updates)
}

func (e *Editor) inputAllowed() error {
	switch e.state {
	case Saving:
		return ErrBusy
	case Closed:
		return ErrClosed
	default:
		return nil
	}
}

func (e *Editor) missingNote() bool {
	return e.draft.Status.RequiresNote() && strings.TrimSpace(e.draft.Note) == ""
}

// dirtyFields keeps status only when it differs from the source and the
// trimmed note only when it differs from the source note.
func (e *Editor) dirtyFields() (specimen.Updates, bool) {
	var u specimen.Updates
	if e.draft.Status != e.source.Status {
		s := e.draft.Status
		u.Status = &s
	}
	if note := strings.TrimSpace(e.draft.Note); note != e.source.Note {
		u.Note = &note
	}
	return u, !u.Empty()
}

func (e *Editor) settle() {
	if e.draft.Status != e.source.Status || e.draft.Note != e.source.Note {
		e.state = Editing
		return
	}
	e.state = Viewing
}

func (e *Editor) closed() {
	if e.onClose != nil {
		e.onClose()
	}
}
