package gormstore

import (
	"time"

	"github.com/google/uuid"

	"github.com/familyorganizer/eventsourcing"
)

// EventRow is the persisted form of one DomainEvent. The unique index on
// (aggregate_id, version) is what rejects the second of two racing writers.
type EventRow struct {
	ID            string    `gorm:"primaryKey;size:36"`
	AggregateID   string    `gorm:"size:100;not null;uniqueIndex:idx_events_aggregate_version,priority:1;index:idx_events_aggregate_id"`
	AggregateType string    `gorm:"size:100;not null;index:idx_events_aggregate_type"`
	EventType     string    `gorm:"size:100;not null;index:idx_events_event_type"`
	EventData     string    `gorm:"type:text;not null"`
	Metadata      string    `gorm:"type:text;not null;default:'{}'"`
	Version       uint64    `gorm:"not null;uniqueIndex:idx_events_aggregate_version,priority:2"`
	Timestamp     time.Time `gorm:"column:timestamp;not null;index:idx_events_timestamp"`
	UserID        string    `gorm:"size:100;index:idx_events_user_id"`
	CorrelationID string    `gorm:"size:100;index:idx_events_correlation_id"`
	CausationID   string    `gorm:"size:100"`
}

func (EventRow) TableName() string { return "events" }

func newEventRow(rec eventsourcing.Record) EventRow {
	return EventRow{
		ID:            rec.EventID.String(),
		AggregateID:   rec.AggregateID,
		AggregateType: rec.AggregateType,
		EventType:     rec.EventType,
		EventData:     string(rec.Data),
		Metadata:      string(rec.Metadata),
		Version:       rec.Version,
		Timestamp:     rec.Timestamp.UTC(),
		UserID:        rec.UserID,
		CorrelationID: rec.CorrelationID,
		CausationID:   rec.CausationID,
	}
}

func (r EventRow) record() (eventsourcing.Record, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return eventsourcing.Record{}, err
	}
	return eventsourcing.Record{
		EventID:       id,
		AggregateID:   r.AggregateID,
		AggregateType: r.AggregateType,
		EventType:     r.EventType,
		Data:          []byte(r.EventData),
		Metadata:      []byte(r.Metadata),
		Version:       r.Version,
		Timestamp:     r.Timestamp.UTC(),
		UserID:        r.UserID,
		CorrelationID: r.CorrelationID,
		CausationID:   r.CausationID,
	}, nil
}

// SnapshotRow holds the latest snapshot of one aggregate.
type SnapshotRow struct {
	AggregateID        string    `gorm:"primaryKey;size:100"`
	AggregateType      string    `gorm:"size:100;not null"`
	Version            uint64    `gorm:"not null"`
	Data               []byte    `gorm:"not null"`
	Timestamp          time.Time `gorm:"column:timestamp;not null"`
	AggregateCreatedAt time.Time
	AggregateUpdatedAt time.Time
}

func (SnapshotRow) TableName() string { return "snapshots" }
