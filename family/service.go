package family

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	es "github.com/familyorganizer/eventsourcing"
	"github.com/familyorganizer/eventsourcing/logging"
	esotel "github.com/familyorganizer/eventsourcing/otel"
)

// Service executes family commands and answers family queries.
//
// Commands go through a CommandBus so that commands for one family never race
// each other inside the process. Concurrent writers in other processes are
// caught by the store and retried with the configured backoff. Queries go
// through a QueryBus and run on the caller's goroutine.
type Service struct {
	repo    es.Repository[*Family]
	bus     *es.CommandBus
	queries *es.QueryBus

	get      es.GenericQueryGateway[GetFamily, *Family]
	byOwner  es.GenericQueryGateway[FamiliesByOwner, []*Family]
	byMember es.GenericQueryGateway[FamiliesByMember, []*Family]
	at       es.GenericQueryGateway[FamilyAt, *Family]
}

type serviceOptions struct {
	logger     *logrus.Entry
	newBackOff func() backoff.BackOff
	history    es.EventReader
	bufferSize int
	shards     int
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

// WithCommandLogger logs every command to logger.
func WithCommandLogger(logger *logrus.Entry) ServiceOption {
	return func(o *serviceOptions) { o.logger = logger }
}

// WithHistory answers FamilyAt queries by replaying events read from r.
// Without it FamilyAt fails with es.ErrHandlerNotFound.
func WithHistory(r es.EventReader) ServiceOption {
	return func(o *serviceOptions) { o.history = r }
}

// WithConflictRetry retries commands that lose a concurrency race. The
// default is not to retry.
func WithConflictRetry(newBackOff func() backoff.BackOff) ServiceOption {
	return func(o *serviceOptions) { o.newBackOff = newBackOff }
}

// WithShards sets the number of command workers and their queue size.
func WithShards(shards, bufferSize int) ServiceOption {
	return func(o *serviceOptions) {
		o.shards = shards
		o.bufferSize = bufferSize
	}
}

// ExponentialRetry retries up to maxRetries times with exponential backoff.
func ExponentialRetry(maxRetries uint64) func() backoff.BackOff {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)
	}
}

// NewService returns a Service saving through repo. directory answers the
// owner and member lookups; it must be registered as an event handler of
// repo to stay current.
func NewService(repo es.Repository[*Family], directory *Directory, opts ...ServiceOption) *Service {
	o := serviceOptions{
		logger:     logrus.NewEntry(logrus.StandardLogger()),
		newBackOff: func() backoff.BackOff { return &backoff.StopBackOff{} },
		bufferSize: 64,
		shards:     4,
	}
	for _, opt := range opts {
		opt(&o)
	}

	queries := es.NewQueryBus()
	s := &Service{
		repo:     repo,
		bus:      es.NewCommandBus(o.bufferSize, o.shards),
		queries:  queries,
		get:      es.NewQueryGateway[GetFamily, *Family](queries),
		byOwner:  es.NewQueryGateway[FamiliesByOwner, []*Family](queries),
		byMember: es.NewQueryGateway[FamiliesByMember, []*Family](queries),
		at:       es.NewQueryGateway[FamilyAt, *Family](queries),
	}
	logger := o.logger.WithField("aggregateType", AggregateType)

	register(s, logger, o.newBackOff, decideCreate, es.MustNotExist)
	register(s, logger, o.newBackOff, decideRename, es.MustExist)
	register(s, logger, o.newBackOff, decideAddMember, es.MustExist)
	register(s, logger, o.newBackOff, decideRemoveMember, es.MustExist)
	register(s, logger, o.newBackOff, decideAssignAdmin, es.MustExist)
	register(s, logger, o.newBackOff, decideRevokeAdmin, es.MustExist)

	registerQuery(queries, logger, getFamily(repo))
	registerQuery(queries, logger, familiesByOwner(s.get, directory))
	registerQuery(queries, logger, familiesByMember(s.get, directory))
	if o.history != nil {
		registerQuery(queries, logger, familyAt(es.NewReplayService(o.history, New)))
	}
	return s
}

func register[C es.Command](s *Service, logger *logrus.Entry, newBackOff func() backoff.BackOff, decide es.Decider[*Family, C], existence es.Existence) {
	h := es.NewCommandHandler(s.repo, New, decide,
		es.WithExistence(existence),
		es.WithRetryStrategy(newBackOff),
	)
	h = logging.WithCommandLogging(logger, h)
	h = esotel.WithCommandTelemetry(h)
	es.Register(s.bus, h)
}

func registerQuery[T es.Query, R any](bus *es.QueryBus, logger *logrus.Entry, fn func(context.Context, T) (R, error)) {
	h := es.NewQueryHandlerFunc(fn)
	h = logging.WithQueryLogging(logger, h)
	h = esotel.WithQueryTelemetry(h)
	es.RegisterQueryHandler(bus, h)
}

// Create starts a family. An empty FamilyID is replaced by a new uuid; the
// result carries the id used.
func (s *Service) Create(ctx context.Context, cmd CreateFamily) (es.AppendResult, error) {
	if cmd.FamilyID == "" {
		cmd.FamilyID = uuid.NewString()
	}
	return s.bus.Dispatch(ctx, cmd)
}

func (s *Service) Rename(ctx context.Context, cmd RenameFamily) (es.AppendResult, error) {
	return s.bus.Dispatch(ctx, cmd)
}

func (s *Service) AddMember(ctx context.Context, cmd AddMember) (es.AppendResult, error) {
	return s.bus.Dispatch(ctx, cmd)
}

func (s *Service) RemoveMember(ctx context.Context, cmd RemoveMember) (es.AppendResult, error) {
	return s.bus.Dispatch(ctx, cmd)
}

func (s *Service) AssignAdmin(ctx context.Context, cmd AssignAdmin) (es.AppendResult, error) {
	return s.bus.Dispatch(ctx, cmd)
}

func (s *Service) RevokeAdmin(ctx context.Context, cmd RevokeAdmin) (es.AppendResult, error) {
	return s.bus.Dispatch(ctx, cmd)
}

// Get loads a family. A family without events is es.ErrAggregateNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Family, error) {
	return s.get.HandleQuery(ctx, GetFamily{FamilyID: id})
}

// FindByOwner returns the families owned by userID.
func (s *Service) FindByOwner(ctx context.Context, userID string) ([]*Family, error) {
	return s.byOwner.HandleQuery(ctx, FamiliesByOwner{UserID: userID})
}

// FindByMember returns the families userID belongs to.
func (s *Service) FindByMember(ctx context.Context, userID string) ([]*Family, error) {
	return s.byMember.HandleQuery(ctx, FamiliesByMember{UserID: userID})
}

// Replay rebuilds a family as it was at version, 0 being its current state.
// It needs the WithHistory option.
func (s *Service) Replay(ctx context.Context, id string, version uint64) (*Family, error) {
	return s.at.HandleQuery(ctx, FamilyAt{FamilyID: id, Version: version})
}

// Queries returns the bus the family queries are registered on.
func (s *Service) Queries() *es.QueryBus {
	return s.queries
}

// Close stops the command workers after the dispatched commands finished.
func (s *Service) Close() {
	s.bus.Stop()
}
