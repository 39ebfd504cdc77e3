package main

import (
	"context"
	"fmt"
	"log/slog"

	es "github.com/familyorganizer/eventsourcing"
	"github.com/familyorganizer/eventsourcing/eventstore/disk"
	"github.com/familyorganizer/eventsourcing/eventstore/gormstore"
	"github.com/familyorganizer/eventsourcing/eventstore/kurrentdb"
	"github.com/familyorganizer/eventsourcing/eventstore/memory"
	"github.com/familyorganizer/eventsourcing/eventstore/postgres"
	"github.com/familyorganizer/eventsourcing/internal/config"
	"github.com/familyorganizer/eventsourcing/logging"
	esotel "github.com/familyorganizer/eventsourcing/otel"
)

// openStore connects the configured backend and wraps it with logging and
// telemetry. The snapshot store is nil for backends without one.
func openStore(ctx context.Context, cfg config.StoreConfig, codec *es.Codec, log *slog.Logger) (es.EventStore, es.SnapshotStore, error) {
	var (
		store     es.EventStore
		snapshots es.SnapshotStore
	)

	switch cfg.Driver {
	case config.DriverMemory:
		store = memory.NewMemoryStore(codec)
		snapshots = memory.NewSnapshotStore()

	case config.DriverDisk:
		s, err := disk.NewFileStore(cfg.DSN, codec)
		if err != nil {
			return nil, nil, err
		}
		store = s

	case config.DriverGormSQLite, config.DriverGormPostgres:
		dialect := "sqlite"
		if cfg.Driver == config.DriverGormPostgres {
			dialect = "postgres"
		}
		db, err := gormstore.Open(dialect, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		s := gormstore.New(db, codec)
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		store, snapshots = s, s

	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		store = postgres.NewEventStore(pool, codec)

	case config.DriverKurrentDB:
		client, err := kurrentdb.Dial(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		store = kurrentdb.NewEventStore(client, codec)

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	log.Debug("event store opened", "driver", cfg.Driver)
	store = logging.WithStoreLogging(log.With("component", "eventstore"), store)
	return esotel.WithEventStoreTelemetry(store), snapshots, nil
}
