// Package gormstore persists events and snapshots through GORM, on PostgreSQL
// or SQLite.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/familyorganizer/eventsourcing"
)

var _ eventsourcing.EventStore = (*EventStore)(nil)

// Open connects to driver ("postgres" or "sqlite") with unique violations
// translated to gorm.ErrDuplicatedKey.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("gormstore: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" {
		// one connection so that ":memory:" databases are shared and writes serialize.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// EventStore is an eventsourcing.EventStore over a GORM connection.
type EventStore struct {
	db    *gorm.DB
	codec *eventsourcing.Codec
}

func New(db *gorm.DB, codec *eventsourcing.Codec) *EventStore {
	return &EventStore{db: db, codec: codec}
}

// Migrate creates the events and snapshots tables with their indexes.
func (s *EventStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&EventRow{}, &SnapshotRow{}); err != nil {
		return eventsourcing.WrapStorageError("migrate", err)
	}
	return nil
}

// DB returns the underlying connection.
func (s *EventStore) DB() *gorm.DB { return s.db }

func (s *EventStore) Append(ctx context.Context, events []eventsourcing.DomainEvent, expectedVersion uint64) (eventsourcing.AppendResult, error) {
	if err := eventsourcing.ValidateBatch(events, expectedVersion); err != nil {
		return eventsourcing.AppendResult{}, err
	}
	records, err := s.codec.EncodeAll(events)
	if err != nil {
		return eventsourcing.AppendResult{}, err
	}

	rows := make([]EventRow, len(records))
	for i, rec := range records {
		rows[i] = newEventRow(rec)
	}
	aggregateID := events[0].AggregateID

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		head, err := headVersion(tx, aggregateID)
		if err != nil {
			return err
		}
		if head > expectedVersion {
			return &eventsourcing.ConcurrencyConflictError{
				AggregateID:     aggregateID,
				ExpectedVersion: expectedVersion,
				ActualVersion:   head,
			}
		}
		if head < expectedVersion {
			return fmt.Errorf("append to %q: %w: stream is at version %d, expected %d",
				aggregateID, eventsourcing.ErrInvalidEventBatch, head, expectedVersion)
		}
		return tx.Create(&rows).Error
	})

	switch {
	case err == nil:
	case isUniqueViolation(err):
		actual, _ := headVersion(s.db.WithContext(context.WithoutCancel(ctx)), aggregateID)
		return eventsourcing.AppendResult{}, &eventsourcing.ConcurrencyConflictError{
			AggregateID:     aggregateID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   actual,
			Err:             err,
		}
	default:
		return eventsourcing.AppendResult{}, eventsourcing.WrapStorageError("append", err)
	}

	return eventsourcing.AppendResult{
		AggregateID:         aggregateID,
		NextExpectedVersion: expectedVersion + uint64(len(rows)),
	}, nil
}

func (s *EventStore) GetEvents(ctx context.Context, aggregateID string, fromVersion uint64) ([]eventsourcing.DomainEvent, error) {
	var rows []EventRow
	err := s.db.WithContext(ctx).
		Where("aggregate_id = ? AND version >= ?", aggregateID, fromVersion).
		Order("version").
		Find(&rows).Error
	if err != nil {
		return nil, eventsourcing.WrapStorageError("get events", err)
	}
	return s.decode(rows)
}

func (s *EventStore) GetEventsByType(ctx context.Context, eventType string, window eventsourcing.TimeWindow) ([]eventsourcing.DomainEvent, error) {
	q := s.db.WithContext(ctx).Where("event_type = ?", eventType)
	ts := clause.Column{Name: "timestamp"}
	if !window.From.IsZero() {
		q = q.Where(clause.Gte{Column: ts, Value: window.From.UTC()})
	}
	if !window.To.IsZero() {
		q = q.Where(clause.Lte{Column: ts, Value: window.To.UTC()})
	}

	var rows []EventRow
	err := q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: ts},
		{Column: clause.Column{Name: "aggregate_id"}},
		{Column: clause.Column{Name: "version"}},
	}}).Find(&rows).Error
	if err != nil {
		return nil, eventsourcing.WrapStorageError("get events by type", err)
	}
	return s.decode(rows)
}

func (s *EventStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *EventStore) decode(rows []EventRow) ([]eventsourcing.DomainEvent, error) {
	out := make([]eventsourcing.DomainEvent, len(rows))
	for i, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, fmt.Errorf("%w: event id %q: %v", eventsourcing.ErrInvalidRecord, row.ID, err)
		}
		if out[i], err = s.codec.Decode(rec); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func headVersion(tx *gorm.DB, aggregateID string) (uint64, error) {
	var head uint64
	err := tx.Model(&EventRow{}).
		Where("aggregate_id = ?", aggregateID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&head).Error
	return head, err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
