package eventsourcing

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorStrings(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "ConcurrencyConflictError",
			err: &ConcurrencyConflictError{
				AggregateID:     "family-123",
				ExpectedVersion: 5,
				ActualVersion:   7,
			},
			want: `concurrency conflict on aggregate "family-123": (expected version 5, actual 7)`,
		},
		{
			name: "ConcurrencyConflictError without actual version",
			err:  &ConcurrencyConflictError{AggregateID: "family-123", ExpectedVersion: 5},
			want: `concurrency conflict on aggregate "family-123": (expected version 5)`,
		},
		{
			name: "UnknownEventTypeError",
			err:  &UnknownEventTypeError{EventType: "FamilyMoved"},
			want: "event not registered: FamilyMoved",
		},
		{
			name: "MissingApplyHandlerError",
			err:  &MissingApplyHandlerError{AggregateType: "Family", EventType: "FamilyMoved"},
			want: "aggregate Family has no handler for event FamilyMoved",
		},
		{
			name: "ErrSkippedEvent",
			err:  &ErrSkippedEvent{Event: DomainEvent{Payload: testPayload{}}},
			want: "skipped event of type TestPayload",
		},
		{
			name: "StorageError",
			err:  &StorageError{Op: "append", Err: errors.New("connection reset")},
			want: "eventstore append: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorMatching(t *testing.T) {
	conflict := fmt.Errorf("save: %w", &ConcurrencyConflictError{AggregateID: "a", ExpectedVersion: 1})
	if !errors.Is(conflict, ErrConcurrencyConflict) {
		t.Errorf("wrapped conflict does not match ErrConcurrencyConflict")
	}
	var ce *ConcurrencyConflictError
	if !errors.As(conflict, &ce) || ce.AggregateID != "a" {
		t.Errorf("errors.As did not find the conflict")
	}

	if !errors.Is(&UnknownEventTypeError{EventType: "x"}, ErrUnknownEventType) {
		t.Errorf("UnknownEventTypeError does not match ErrUnknownEventType")
	}
	if !errors.Is(&MissingApplyHandlerError{}, ErrMissingApplyHandler) {
		t.Errorf("MissingApplyHandlerError does not match ErrMissingApplyHandler")
	}

	driver := errors.New("driver")
	if !errors.Is(&ConcurrencyConflictError{Err: driver}, driver) {
		t.Errorf("ConcurrencyConflictError does not unwrap to its cause")
	}
}

func TestWrapStorageError(t *testing.T) {
	if WrapStorageError("append", nil) != nil {
		t.Fatalf("nil must stay nil")
	}

	driver := errors.New("connection reset")
	err := WrapStorageError("append", driver)
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "append" || !errors.Is(err, driver) {
		t.Fatalf("expected StorageError wrapping the driver error, got %v", err)
	}

	passthrough := []error{
		&ConcurrencyConflictError{AggregateID: "a"},
		&UnknownEventTypeError{EventType: "x"},
		fmt.Errorf("%w: bad", ErrInvalidEventBatch),
		err,
	}
	for _, in := range passthrough {
		if got := WrapStorageError("read", in); got != in {
			t.Errorf("WrapStorageError(%v) = %v, want it unchanged", in, got)
		}
	}
}
