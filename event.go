package eventsourcing

import (
	"fmt"
	"maps"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// now is truncated to microseconds, the finest precision SQL stores keep.
var now = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// Event is the payload of a domain event. EventType is the stable name the
// payload is stored and registered under.
type Event interface {
	EventType() string
}

// DomainEvent is an immutable fact about one aggregate. Values are copied on
// every change; WithVersion is the only way to derive a new version.
type DomainEvent struct {
	EventID       uuid.UUID
	AggregateID   string
	AggregateType string
	Version       uint64
	Timestamp     time.Time
	UserID        string
	CorrelationID string
	CausationID   string
	Metadata      map[string]any
	Payload       Event
}

// EventType returns the payload's type name.
func (e DomainEvent) EventType() string {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.EventType()
}

// WithVersion returns a copy of e stamped with version v.
func (e DomainEvent) WithVersion(v uint64) DomainEvent {
	out := e
	out.Metadata = maps.Clone(e.Metadata)
	out.Version = v
	return out
}

func (e DomainEvent) String() string {
	return fmt.Sprintf("%s/%s@%d", e.AggregateID, e.EventType(), e.Version)
}

// EventOption configures a DomainEvent built by NewDomainEvent.
type EventOption func(*DomainEvent)

func WithUserID(id string) EventOption {
	return func(e *DomainEvent) { e.UserID = id }
}

func WithCorrelationID(id string) EventOption {
	return func(e *DomainEvent) { e.CorrelationID = id }
}

func WithCausationID(id string) EventOption {
	return func(e *DomainEvent) { e.CausationID = id }
}

// WithMetadata merges md into the event metadata.
func WithMetadata(md map[string]any) EventOption {
	return func(e *DomainEvent) {
		for k, v := range md {
			e.Metadata[k] = v
		}
	}
}

func WithTimestamp(t time.Time) EventOption {
	return func(e *DomainEvent) { e.Timestamp = t.UTC().Truncate(time.Microsecond) }
}

// NewDomainEvent builds an unversioned event for the given aggregate. The
// aggregate assigns the version when the event is raised.
//
// An event without a causation id is its own cause; an event without a
// correlation id is correlated by its cause.
func NewDomainEvent(aggregateID, aggregateType string, payload Event, opts ...EventOption) DomainEvent {
	ev := DomainEvent{
		EventID:       uuid.New(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Timestamp:     now(),
		Metadata:      make(map[string]any),
		Payload:       payload,
	}
	for _, opt := range opts {
		opt(&ev)
	}
	if ev.CausationID == "" {
		ev.CausationID = ev.EventID.String()
	}
	if ev.CorrelationID == "" {
		ev.CorrelationID = ev.CausationID
	}
	return ev
}

// Record is the at-rest form of a DomainEvent: one row per (AggregateID, Version).
type Record struct {
	EventID       uuid.UUID
	AggregateID   string
	AggregateType string
	EventType     string
	Data          []byte
	Metadata      []byte
	Version       uint64
	Timestamp     time.Time
	UserID        string
	CorrelationID string
	CausationID   string
}

const maxColumnLength = 100

// Validate checks the column limits of the row schema.
func (r Record) Validate() error {
	for name, v := range map[string]string{
		"aggregate id":   r.AggregateID,
		"aggregate type": r.AggregateType,
		"event type":     r.EventType,
		"user id":        r.UserID,
		"correlation id": r.CorrelationID,
		"causation id":   r.CausationID,
	} {
		if utf8.RuneCountInString(v) > maxColumnLength {
			return fmt.Errorf("%w: %s longer than %d characters", ErrInvalidRecord, name, maxColumnLength)
		}
	}
	if r.AggregateID == "" || r.EventType == "" {
		return fmt.Errorf("%w: aggregate id and event type are required", ErrInvalidRecord)
	}
	if r.Version == 0 {
		return fmt.Errorf("%w: version must start at 1", ErrInvalidRecord)
	}
	return nil
}

// TimeWindow bounds GetEventsByType. Both ends are inclusive; a zero bound is
// open.
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t lies inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}
