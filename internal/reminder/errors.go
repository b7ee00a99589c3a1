package reminder

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMatch means the text held no recognizable time expression.
	ErrNoMatch = errors.New("could not parse time")
	// ErrPastTime means the text named a moment that has already passed.
	ErrPastTime = errors.New("time is in the past")
	// ErrOutOfRange means a 1-based position outside the owner's list.
	ErrOutOfRange = errors.New("reminder position out of range")
	// ErrTooMany means the owner reached reminders.max_per_owner.
	ErrTooMany = errors.New("too many pending reminders")
	// ErrStoreClosed means the store was closed during shutdown.
	ErrStoreClosed = errors.New("reminder store closed")
)

// PersistenceError is returned when the durable write of a mutation failed.
// The in-memory state has already been rolled back when it is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DeliveryError is one failed send. It is logged and never retried.
type DeliveryError struct {
	Owner      string
	ReminderID string
	Kind       AttachmentKind
	Err        error
}

func (e *DeliveryError) Error() string {
	kind := e.Kind.String()
	if kind == "" {
		kind = "text"
	}
	return fmt.Sprintf("deliver %s reminder %s to %s: %v", kind, e.ReminderID, e.Owner, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
