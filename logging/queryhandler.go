package logging

import (
	"context"
	"errors"
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/familyorganizer/eventsourcing"
)

type queryHandlerLogger[T eventsourcing.Query, R any] struct {
	logger *logrus.Entry
	next   eventsourcing.QueryHandler[T, R]
}

func (q *queryHandlerLogger[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	qryType := reflect.TypeOf(qry).String()
	entry := q.logger.WithFields(logrus.Fields{
		"query":   qryType,
		"queryId": string(qry.ID()),
		"userId":  eventsourcing.UserFromContext(ctx),
	})
	entry.Infof("Query: %s", qryType)

	result, err := q.next.HandleQuery(ctx, qry)
	switch {
	case err == nil:
	case errors.Is(err, eventsourcing.ErrAggregateNotFound):
		entry.Infof("Query found nothing: %s: %v", qryType, err)
	default:
		entry.Errorf("Query failed: %s: %v", qryType, err)
	}

	return result, err
}

// WithQueryLogging wraps a QueryHandler with logging functionality.
// It logs the query type before execution, and logs errors if the query fails.
func WithQueryLogging[T eventsourcing.Query, R any](logger *logrus.Entry, next eventsourcing.QueryHandler[T, R]) eventsourcing.QueryHandler[T, R] {
	return &queryHandlerLogger[T, R]{
		logger: logger,
		next:   next,
	}
}
