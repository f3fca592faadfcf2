package specimen

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidStatus is returned when a value is not one of the four review states.
var ErrInvalidStatus = errors.New("specimen: invalid status")

// Status is the review state of a specimen record.
type Status string

const (
	StatusPending       Status = "pending"
	StatusApproved      Status = "approved"
	StatusFlagged       Status = "flagged"
	StatusNeedsRevision Status = "needs_revision"
)

// AllStatuses lists every known status in display order.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusApproved, StatusFlagged, StatusNeedsRevision}
}

// ParseStatus converts raw input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", fmt.Errorf("%w %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusFlagged, StatusNeedsRevision:
		return true
	default:
		return false
	}
}

// RequiresNote reports whether moving a record into this status needs a
// reviewer justification.
func (s Status) RequiresNote() bool {
	return s == StatusFlagged || s == StatusNeedsRevision
}

// Label is the human readable form used by renderers.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusApproved:
		return "Approved"
	case StatusFlagged:
		return "Flagged"
	case StatusNeedsRevision:
		return "Needs Revision"
	default:
		return string(s)
	}
}

// Record is a specimen entry under review. ID is stable; every other field may
// change through an update.
type Record struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Status      Status `json:"status" yaml:"status"`
	Note        string `json:"note,omitempty" yaml:"note,omitempty"`
}

// Updates is a partial record update. A nil field is absent and must not be
// altered.
type Updates struct {
	Status *Status `json:"status,omitempty"`
	Note   *string `json:"note,omitempty"`
}

// Empty reports whether no field is present.
func (u Updates) Empty() bool {
	return u.Status == nil && u.Note == nil
}

// HistoryEntry is an immutable audit record of a status transition.
type HistoryEntry struct {
	ID             string    `json:"id"`
	PreviousStatus Status    `json:"previousStatus"`
	NewStatus      Status    `json:"newStatus"`
	Note           string    `json:"note,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
