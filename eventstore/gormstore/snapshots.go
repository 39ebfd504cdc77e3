package gormstore

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/familyorganizer/eventsourcing"
)

var _ eventsourcing.SnapshotStore = (*EventStore)(nil)

// SaveSnapshot upserts the snapshot of an aggregate unless a newer one is
// already stored.
func (s *EventStore) SaveSnapshot(ctx context.Context, snap eventsourcing.Snapshot) error {
	row := SnapshotRow{
		AggregateID:        snap.AggregateID,
		AggregateType:      snap.AggregateType,
		Version:            snap.Version,
		Data:               snap.Data,
		Timestamp:          snap.Timestamp.UTC(),
		AggregateCreatedAt: snap.CreatedAt.UTC(),
		AggregateUpdatedAt: snap.UpdatedAt.UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "aggregate_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"aggregate_type", "version", "data", "timestamp", "aggregate_created_at", "aggregate_updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "snapshots.version < excluded.version"},
		}},
	}).Create(&row).Error
	if err != nil {
		return eventsourcing.WrapStorageError("save snapshot", err)
	}
	return nil
}

func (s *EventStore) LoadSnapshot(ctx context.Context, aggregateID string) (eventsourcing.Snapshot, error) {
	var row SnapshotRow
	err := s.db.WithContext(ctx).Where("aggregate_id = ?", aggregateID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return eventsourcing.Snapshot{}, eventsourcing.ErrSnapshotNotFound
	}
	if err != nil {
		return eventsourcing.Snapshot{}, eventsourcing.WrapStorageError("load snapshot", err)
	}
	return eventsourcing.Snapshot{
		AggregateID:   row.AggregateID,
		AggregateType: row.AggregateType,
		Version:       row.Version,
		Data:          row.Data,
		Timestamp:     row.Timestamp.UTC(),
		CreatedAt:     row.AggregateCreatedAt.UTC(),
		UpdatedAt:     row.AggregateUpdatedAt.UTC(),
	}, nil
}
