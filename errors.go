package eventsourcing

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrencyConflict is matched by every ConcurrencyConflictError.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrUnknownEventType is matched by every UnknownEventTypeError.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrMissingApplyHandler is matched by every MissingApplyHandlerError.
	ErrMissingApplyHandler = errors.New("missing apply handler")

	// ErrAggregateNotFound is returned by callers above the repository when a
	// lookup that must find an aggregate finds no events.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrAggregateExists is returned when a command that creates an aggregate
	// finds one already stored under its id.
	ErrAggregateExists = errors.New("aggregate already exists")

	// ErrBusinessRuleViolation is wrapped by errors that reject a command
	// because of the state of the aggregate.
	ErrBusinessRuleViolation = errors.New("business rule violation")

	ErrInvalidEventBatch  = errors.New("invalid event batch")
	ErrAggregateMismatch  = errors.New("event belongs to another aggregate")
	ErrVersionOutOfOrder  = errors.New("event version out of order")
	ErrAggregateUnbound   = errors.New("aggregate has no apply handlers bound")
	ErrDuplicateHandler   = errors.New("duplicate handler")
	ErrInvalidRecord      = errors.New("invalid event record")
	ErrSnapshotNotFound   = errors.New("snapshot not found")
	ErrEventStoreIsClosed = errors.New("event store is closed")
	ErrCommandBusStopped  = errors.New("command bus is stopped")
	ErrHandlerNotFound    = errors.New("handler not found")
)

// ConcurrencyConflictError is returned by EventStore.Append when one of the
// appended versions already exists for the aggregate.
type ConcurrencyConflictError struct {
	AggregateID     string
	ExpectedVersion uint64
	// ActualVersion is the stream head when the store knows it, zero otherwise.
	ActualVersion uint64
	Err           error
}

func (e *ConcurrencyConflictError) Error() string {
	if e.ActualVersion > 0 {
		return fmt.Sprintf("concurrency conflict on aggregate %q: (expected version %d, actual %d)",
			e.AggregateID, e.ExpectedVersion, e.ActualVersion)
	}
	return fmt.Sprintf("concurrency conflict on aggregate %q: (expected version %d)", e.AggregateID, e.ExpectedVersion)
}

func (e *ConcurrencyConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

func (e *ConcurrencyConflictError) Unwrap() error { return e.Err }

// UnknownEventTypeError is returned when a stored event type name has no
// registered Go type.
type UnknownEventTypeError struct {
	EventType string
}

func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("event not registered: %s", e.EventType)
}

func (e *UnknownEventTypeError) Is(target error) bool { return target == ErrUnknownEventType }

// MissingApplyHandlerError is returned when an aggregate receives an event it
// has no handler for.
type MissingApplyHandlerError struct {
	AggregateType string
	EventType     string
	// Payload is the offending payload type, set when a handler exists for the
	// name but expects another Go type.
	Payload string
}

func (e *MissingApplyHandlerError) Error() string {
	if e.Payload != "" {
		return fmt.Sprintf("aggregate %s: handler for %s cannot apply payload of type %s", e.AggregateType, e.EventType, e.Payload)
	}
	return fmt.Sprintf("aggregate %s has no handler for event %s", e.AggregateType, e.EventType)
}

func (e *MissingApplyHandlerError) Is(target error) bool { return target == ErrMissingApplyHandler }

// ErrSkippedEvent is returned when a handler cannot handle the event type.
type ErrSkippedEvent struct {
	Event DomainEvent
}

func (e ErrSkippedEvent) Error() string {
	return fmt.Sprintf("skipped event of type %s", e.Event.EventType())
}

// StorageError wraps failures of the backing store. It is never retried by
// this package.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("eventstore %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// WrapStorageError wraps err as a StorageError unless it is nil or already
// carries one of the typed errors of this package.
func WrapStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		conflict *ConcurrencyConflictError
		unknown  *UnknownEventTypeError
		storage  *StorageError
	)
	if errors.As(err, &conflict) || errors.As(err, &unknown) || errors.As(err, &storage) ||
		errors.Is(err, ErrInvalidEventBatch) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
