package logging

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/familyorganizer/eventsourcing"
)

type loggingRepository[A eventsourcing.Aggregate] struct {
	logger *logrus.Entry
	next   eventsourcing.Repository[A]
}

// WithRepositoryLogging logs every load and save of next.
func WithRepositoryLogging[A eventsourcing.Aggregate](logger *logrus.Entry, next eventsourcing.Repository[A]) eventsourcing.Repository[A] {
	return &loggingRepository[A]{logger: logger, next: next}
}

func (r *loggingRepository[A]) AggregateType() string { return r.next.AggregateType() }

func (r *loggingRepository[A]) GetByID(ctx context.Context, id string) (A, bool, error) {
	start := time.Now()
	agg, found, err := r.next.GetByID(ctx, id)

	entry := r.logger.WithFields(logrus.Fields{
		"aggregateId": id,
		"found":       found,
		"took":        time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Error("load aggregate failed")
		return agg, found, err
	}
	if found {
		entry = entry.WithField("version", agg.Version())
	}
	entry.Debug("aggregate loaded")
	return agg, found, nil
}

func (r *loggingRepository[A]) Save(ctx context.Context, agg A) error {
	pending := agg.UncommittedEvents()
	entry := r.logger.WithFields(logrus.Fields{
		"aggregateId":   agg.AggregateID(),
		"aggregateType": agg.AggregateType(),
		"events":        len(pending),
		"userId":        eventsourcing.UserFromContext(ctx),
	})

	start := time.Now()
	err := r.next.Save(ctx, agg)
	entry = entry.WithField("took", time.Since(start))

	switch {
	case err == nil:
		entry.WithField("version", agg.Version()).Info("aggregate saved")
	case errors.Is(err, eventsourcing.ErrConcurrencyConflict):
		entry.WithError(err).Warn("aggregate save lost a concurrency race")
	default:
		entry.WithError(err).Error("aggregate save failed")
	}
	return err
}
