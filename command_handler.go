package eventsourcing

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

// CommandHandler defines a function type for handling commands of a specific type.
//
// A CommandHandler loads the aggregate named by the command, lets the domain
// decide which events to raise and persists them. The returned AppendResult
// carries the aggregate id and its version after the command.
type CommandHandler[C Command] func(ctx context.Context, command C) (AppendResult, error)

// Decider applies a command to an aggregate by calling its domain methods,
// which raise events. A returned error rejects the command; nothing is saved.
//
// Deciders must be repeatable: on a concurrency conflict the handler reloads
// the aggregate and calls the decider again.
type Decider[A Aggregate, C Command] func(ctx context.Context, agg A, cmd C) error

// Existence states whether a command expects its aggregate to exist.
type Existence int

const (
	// AnyExistence accepts both new and existing aggregates.
	AnyExistence Existence = iota
	// MustExist rejects commands on aggregates without history.
	MustExist
	// MustNotExist rejects commands on aggregates that already have history.
	MustNotExist
)

// CommandHandlerOption defines a function type that modifies handlerOptions.
type CommandHandlerOption func(configuration *handlerOptions)

// handlerOptions defines configuration for a CommandHandler.
type handlerOptions struct {
	// NewBackOff returns the retry strategy of one command execution. Only
	// concurrency conflicts are retried. Defaults to no retries.
	NewBackOff func() backoff.BackOff

	// Existence is checked after loading the aggregate.
	Existence Existence
}

// WithRetryStrategy retries commands that lose an optimistic concurrency race.
// newBackOff is called once per command so that concurrent commands never
// share backoff state.
//
// Usage:
//
//	handler := NewCommandHandler(repo, NewFamily, decide, WithRetryStrategy(func() backoff.BackOff {
//	    return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
//	}))
func WithRetryStrategy(newBackOff func() backoff.BackOff) CommandHandlerOption {
	return func(cfg *handlerOptions) { cfg.NewBackOff = newBackOff }
}

// WithExistence sets whether the aggregate must or must not exist.
func WithExistence(e Existence) CommandHandlerOption {
	return func(cfg *handlerOptions) { cfg.Existence = e }
}

// NewCommandHandler returns a command handler for aggregates of type A.
//
// Each attempt:
//  1. loads the aggregate through repo, creating it with factory when it has no history
//  2. checks the configured Existence
//  3. runs decide
//  4. saves the raised events; a concurrency conflict starts the next attempt
//
// A decider that raises nothing completes without touching the store.
func NewCommandHandler[A Aggregate, C Command](
	repo Repository[A],
	factory Factory[A],
	decide Decider[A, C],
	opts ...CommandHandlerOption,
) CommandHandler[C] {
	cfg := &handlerOptions{
		NewBackOff: func() backoff.BackOff { return &backoff.StopBackOff{} },
	}
	for _, o := range opts {
		o(cfg)
	}

	return func(ctx context.Context, command C) (AppendResult, error) {
		id := command.AggregateID()

		attempt := func() (AppendResult, error) {
			agg, found, err := repo.GetByID(ctx, id)
			if err != nil {
				return AppendResult{}, backoff.Permanent(
					fmt.Errorf("handle command %T for aggregate %q: load failed: %w", command, id, err))
			}

			switch {
			case !found && cfg.Existence == MustExist:
				return AppendResult{}, backoff.Permanent(
					fmt.Errorf("handle command %T for aggregate %q: %w", command, id, ErrAggregateNotFound))
			case found && cfg.Existence == MustNotExist:
				return AppendResult{}, backoff.Permanent(
					fmt.Errorf("handle command %T for aggregate %q: %w", command, id, ErrAggregateExists))
			case !found:
				agg = factory(id)
			}

			if err := decide(ctx, agg, command); err != nil {
				return AppendResult{}, backoff.Permanent(
					fmt.Errorf("handle command %T for aggregate %q: %w", command, id, err))
			}

			if len(agg.UncommittedEvents()) == 0 {
				return AppendResult{AggregateID: id, NextExpectedVersion: agg.Version()}, nil
			}

			if err := repo.Save(ctx, agg); err != nil {
				if errors.Is(err, ErrConcurrencyConflict) {
					return AppendResult{}, err
				}
				return AppendResult{}, backoff.Permanent(
					fmt.Errorf("handle command %T for aggregate %q: %w", command, id, err))
			}
			return AppendResult{AggregateID: id, NextExpectedVersion: agg.Version()}, nil
		}

		return backoff.RetryWithData(attempt, backoff.WithContext(cfg.NewBackOff(), ctx))
	}
}
