package logging

import (
	"context"
	"errors"
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/familyorganizer/eventsourcing"
)

// WithCommandLogging wraps a CommandHandler with logging functionality.
// It logs the command type and aggregate ID before execution, and logs
// errors if the command fails. Rejected commands are logged at warning level.
func WithCommandLogging[C eventsourcing.Command](logger *logrus.Entry, next eventsourcing.CommandHandler[C]) eventsourcing.CommandHandler[C] {
	return func(ctx context.Context, command C) (eventsourcing.AppendResult, error) {
		cmdType := reflect.TypeOf(command).String()
		entry := logger.WithFields(logrus.Fields{
			"command":     cmdType,
			"aggregateId": command.AggregateID(),
			"userId":      eventsourcing.UserFromContext(ctx),
		})
		entry.Infof("Dispatch: %s (aggregateID: %s)", cmdType, command.AggregateID())

		result, err := next(ctx, command)
		switch {
		case err == nil:
			entry.WithField("version", result.NextExpectedVersion).Debug("Dispatch succeeded")
		case errors.Is(err, eventsourcing.ErrBusinessRuleViolation):
			entry.Warnf("Dispatch rejected: %s (aggregateID: %s): %v", cmdType, command.AggregateID(), err)
		default:
			entry.Errorf("Dispatch failed: %s (aggregateID: %s): %v", cmdType, command.AggregateID(), err)
		}

		return result, err
	}
}
