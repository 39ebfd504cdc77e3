package eventsourcing

import (
	"encoding/json"
	"fmt"
)

// Serializer encodes payloads and metadata.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONSerializer is the default Serializer.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONSerializer) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Codec converts between DomainEvent and Record.
type Codec struct {
	Registry   *Registry
	Serializer Serializer
}

// NewCodec returns a Codec using JSON.
func NewCodec(registry *Registry) *Codec {
	return &Codec{Registry: registry, Serializer: JSONSerializer{}}
}

// DefaultCodec decodes against DefaultRegistry.
func DefaultCodec() *Codec {
	return NewCodec(DefaultRegistry)
}

// Encode serializes ev. The payload type must be registered so the stored
// name can be decoded later.
func (c *Codec) Encode(ev DomainEvent) (Record, error) {
	if ev.Payload == nil {
		return Record{}, fmt.Errorf("%w: event %s has no payload", ErrInvalidRecord, ev.EventID)
	}
	name := ev.EventType()
	if !c.Registry.Registered(name) {
		return Record{}, &UnknownEventTypeError{EventType: name}
	}

	data, err := c.Serializer.Marshal(ev.Payload)
	if err != nil {
		return Record{}, fmt.Errorf("cannot marshal event %q: %w", name, err)
	}

	metadata := []byte("{}")
	if len(ev.Metadata) > 0 {
		metadata, err = c.Serializer.Marshal(ev.Metadata)
		if err != nil {
			return Record{}, fmt.Errorf("cannot marshal metadata of event %q: %w", name, err)
		}
	}

	rec := Record{
		EventID:       ev.EventID,
		AggregateID:   ev.AggregateID,
		AggregateType: ev.AggregateType,
		EventType:     name,
		Data:          data,
		Metadata:      metadata,
		Version:       ev.Version,
		Timestamp:     ev.Timestamp.UTC(),
		UserID:        ev.UserID,
		CorrelationID: ev.CorrelationID,
		CausationID:   ev.CausationID,
	}
	return rec, rec.Validate()
}

// EncodeAll encodes a batch, stopping at the first failure.
func (c *Codec) EncodeAll(events []DomainEvent) ([]Record, error) {
	out := make([]Record, len(events))
	for i, ev := range events {
		rec, err := c.Encode(ev)
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}

// Decode rebuilds the DomainEvent stored in rec. An unregistered type name
// fails with *UnknownEventTypeError.
func (c *Codec) Decode(rec Record) (DomainEvent, error) {
	payload, err := c.Registry.decode(rec.EventType, c.Serializer, rec.Data)
	if err != nil {
		return DomainEvent{}, err
	}

	metadata := make(map[string]any)
	if len(rec.Metadata) > 0 {
		if err := c.Serializer.Unmarshal(rec.Metadata, &metadata); err != nil {
			return DomainEvent{}, fmt.Errorf("cannot unmarshal metadata of event %q: %w", rec.EventType, err)
		}
	}

	return DomainEvent{
		EventID:       rec.EventID,
		AggregateID:   rec.AggregateID,
		AggregateType: rec.AggregateType,
		Version:       rec.Version,
		Timestamp:     rec.Timestamp.UTC(),
		UserID:        rec.UserID,
		CorrelationID: rec.CorrelationID,
		CausationID:   rec.CausationID,
		Metadata:      metadata,
		Payload:       payload,
	}, nil
}

// DecodeAll decodes a batch, stopping at the first failure.
func (c *Codec) DecodeAll(records []Record) ([]DomainEvent, error) {
	out := make([]DomainEvent, len(records))
	for i, rec := range records {
		ev, err := c.Decode(rec)
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return out, nil
}
