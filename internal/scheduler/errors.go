package scheduler

import (
	"errors"
	"fmt"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

// ErrCellOccupied is returned when a grid cell would be written twice.
var ErrCellOccupied = errors.New("weekly grid cell already occupied")

// InvalidCreditFormatError reports a credit string that is not three non-negative integers.
type InvalidCreditFormatError struct {
	Subject string
	Raw     string
	Reason  string
}

func (e *InvalidCreditFormatError) Error() string {
	return fmt.Sprintf("invalid credit format %q for subject %s: %s", e.Raw, e.Subject, e.Reason)
}

func (e *InvalidCreditFormatError) Unwrap() error { return appErrors.ErrInvalidCreditFormat }

// UnschedulableSessionError reports a required session for which no day and slot passed the checks
// within the attempt budget.
type UnschedulableSessionError struct {
	Term     string
	Subject  string
	Teacher  string
	Kind     models.SessionKind
	Placed   int
	Required int
	Attempts int
	Phase    Phase
}

func (e *UnschedulableSessionError) Error() string {
	return fmt.Sprintf("term %s: cannot place %s session %d/%d for %s (%s) after %d attempts",
		e.Term, e.Kind, e.Placed+1, e.Required, e.Subject, e.Teacher, e.Attempts)
}

func (e *UnschedulableSessionError) Unwrap() error { return appErrors.ErrUnschedulableSession }

// LedgerConflictError is returned by Ledger.Book when the interval overlaps an existing booking.
type LedgerConflictError struct {
	Teacher  string
	Day      Day
	Interval Interval
	Existing Interval
}

func (e *LedgerConflictError) Error() string {
	return fmt.Sprintf("teacher %s already booked %s on %s, cannot book %s", e.Teacher, e.Existing, e.Day, e.Interval)
}

func (e *LedgerConflictError) Unwrap() error { return appErrors.ErrConflict }
