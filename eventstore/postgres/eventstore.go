package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/familyorganizer/eventsourcing"
)

var _ eventsourcing.EventStore = (*EventStore)(nil)

const selectColumns = `id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, "timestamp",
	COALESCE(user_id, '') AS user_id, COALESCE(correlation_id, '') AS correlation_id, COALESCE(causation_id, '') AS causation_id`

type eventRow struct {
	ID            uuid.UUID `db:"id"`
	AggregateID   string    `db:"aggregate_id"`
	AggregateType string    `db:"aggregate_type"`
	EventType     string    `db:"event_type"`
	EventData     []byte    `db:"event_data"`
	Metadata      []byte    `db:"metadata"`
	Version       int64     `db:"version"`
	Timestamp     time.Time `db:"timestamp"`
	UserID        string    `db:"user_id"`
	CorrelationID string    `db:"correlation_id"`
	CausationID   string    `db:"causation_id"`
}

// EventStore keeps events in the events table of a PostgreSQL database.
type EventStore struct {
	pool  *pgxpool.Pool
	codec *eventsourcing.Codec
}

func NewEventStore(pool *pgxpool.Pool, codec *eventsourcing.Codec) *EventStore {
	return &EventStore{pool: pool, codec: codec}
}

func (s *EventStore) Append(ctx context.Context, events []eventsourcing.DomainEvent, expectedVersion uint64) (eventsourcing.AppendResult, error) {
	if err := eventsourcing.ValidateBatch(events, expectedVersion); err != nil {
		return eventsourcing.AppendResult{}, err
	}
	records, err := s.codec.EncodeAll(events)
	if err != nil {
		return eventsourcing.AppendResult{}, err
	}
	aggregateID := events[0].AggregateID

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var head int64
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1`,
			aggregateID,
		).Scan(&head); err != nil {
			return err
		}
		if uint64(head) > expectedVersion {
			return &eventsourcing.ConcurrencyConflictError{
				AggregateID:     aggregateID,
				ExpectedVersion: expectedVersion,
				ActualVersion:   uint64(head),
			}
		}
		if uint64(head) < expectedVersion {
			return fmt.Errorf("append to %q: %w: stream is at version %d, expected %d",
				aggregateID, eventsourcing.ErrInvalidEventBatch, head, expectedVersion)
		}

		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(`
				INSERT INTO events
					(id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, "timestamp", user_id, correlation_id, causation_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			`, rec.EventID, rec.AggregateID, rec.AggregateType, rec.EventType, rec.Data, rec.Metadata,
				int64(rec.Version), rec.Timestamp, rec.UserID, rec.CorrelationID, rec.CausationID)
		}
		return tx.SendBatch(ctx, batch).Close()
	})

	var pgErr *pgconn.PgError
	switch {
	case err == nil:
	case errors.As(err, &pgErr) && pgErr.Code == "23505":
		var actual int64
		_ = s.pool.QueryRow(context.WithoutCancel(ctx),
			`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1`, aggregateID,
		).Scan(&actual)
		return eventsourcing.AppendResult{}, &eventsourcing.ConcurrencyConflictError{
			AggregateID:     aggregateID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   uint64(actual),
			Err:             err,
		}
	default:
		return eventsourcing.AppendResult{}, eventsourcing.WrapStorageError("append", err)
	}

	return eventsourcing.AppendResult{
		AggregateID:         aggregateID,
		NextExpectedVersion: expectedVersion + uint64(len(records)),
	}, nil
}

func (s *EventStore) GetEvents(ctx context.Context, aggregateID string, fromVersion uint64) ([]eventsourcing.DomainEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM events
		WHERE aggregate_id = $1 AND version >= $2
		ORDER BY version
	`, aggregateID, int64(fromVersion))
	if err != nil {
		return nil, eventsourcing.WrapStorageError("get events", err)
	}
	return s.collect(rows, "get events")
}

func (s *EventStore) GetEventsByType(ctx context.Context, eventType string, window eventsourcing.TimeWindow) ([]eventsourcing.DomainEvent, error) {
	var from, to *time.Time
	if !window.From.IsZero() {
		t := window.From.UTC()
		from = &t
	}
	if !window.To.IsZero() {
		t := window.To.UTC()
		to = &t
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM events
		WHERE event_type = $1
			AND ($2::timestamptz IS NULL OR "timestamp" >= $2)
			AND ($3::timestamptz IS NULL OR "timestamp" <= $3)
		ORDER BY "timestamp", aggregate_id, version
	`, eventType, from, to)
	if err != nil {
		return nil, eventsourcing.WrapStorageError("get events by type", err)
	}
	return s.collect(rows, "get events by type")
}

// Close releases the pool.
func (s *EventStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *EventStore) collect(rows pgx.Rows, op string) ([]eventsourcing.DomainEvent, error) {
	scanned, err := pgx.CollectRows(rows, pgx.RowToStructByName[eventRow])
	if err != nil {
		return nil, eventsourcing.WrapStorageError(op, err)
	}

	out := make([]eventsourcing.DomainEvent, len(scanned))
	for i, row := range scanned {
		ev, err := s.codec.Decode(eventsourcing.Record{
			EventID:       row.ID,
			AggregateID:   row.AggregateID,
			AggregateType: row.AggregateType,
			EventType:     row.EventType,
			Data:          row.EventData,
			Metadata:      row.Metadata,
			Version:       uint64(row.Version),
			Timestamp:     row.Timestamp.UTC(),
			UserID:        row.UserID,
			CorrelationID: row.CorrelationID,
			CausationID:   row.CausationID,
		})
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return out, nil
}
