package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/familyorganizer/eventsourcing"
)

const (
	instrumentationName = "github.com/familyorganizer/eventsourcing"
)

// Semantic attribute keys following OpenTelemetry conventions
const (
	// Command attributes
	AttrCommandType = attribute.Key("eventsourcing.command.type")

	// Query attributes
	AttrQueryType = attribute.Key("eventsourcing.query.type")
	AttrQueryID   = attribute.Key("eventsourcing.query.id")

	// Aggregate attributes
	AttrAggregateID      = attribute.Key("eventsourcing.aggregate.id")
	AttrAggregateType    = attribute.Key("eventsourcing.aggregate.type")
	AttrAggregateVersion = attribute.Key("eventsourcing.aggregate.version")
	AttrExpectedVersion  = attribute.Key("eventsourcing.aggregate.expected_version")

	// Event attributes
	AttrEventType  = attribute.Key("eventsourcing.event.type")
	AttrEventID    = attribute.Key("eventsourcing.event.id")
	AttrEventCount = attribute.Key("eventsourcing.events.count")

	// Handler attributes
	AttrHandlerName = attribute.Key("eventsourcing.handler.name")

	// Error attributes
	AttrErrorType = attribute.Key("eventsourcing.error.type")

	// Operation attributes
	AttrOperation = attribute.Key("eventsourcing.operation")
	AttrFound     = attribute.Key("eventsourcing.aggregate.found")
)

var (
	meter  = otel.Meter(instrumentationName, metric.WithInstrumentationVersion(eventsourcing.InstrumentationVersion))
	tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(eventsourcing.InstrumentationVersion))

	// Command metrics
	CommandsHandled, _ = meter.Int64Counter(
		"eventsourcing.commands.handled",
		metric.WithDescription("Total number of commands handled"),
		metric.WithUnit("{command}"),
	)

	CommandsDuration, _ = meter.Float64Histogram(
		"eventsourcing.commands.duration",
		metric.WithDescription("Command handling duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
	)

	CommandsInFlight, _ = meter.Int64UpDownCounter(
		"eventsourcing.commands.in_flight",
		metric.WithDescription("Number of commands currently being processed"),
		metric.WithUnit("{command}"),
	)

	CommandsFailed, _ = meter.Int64Counter(
		"eventsourcing.commands.failed",
		metric.WithDescription("Number of failed commands"),
		metric.WithUnit("{command}"),
	)

	// Query metrics
	QueriesHandled, _ = meter.Int64Counter(
		"eventsourcing.queries.handled",
		metric.WithDescription("Total number of queries handled"),
		metric.WithUnit("{query}"),
	)

	QueriesDuration, _ = meter.Float64Histogram(
		"eventsourcing.queries.duration",
		metric.WithDescription("Query handling duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	QueriesInFlight, _ = meter.Int64UpDownCounter(
		"eventsourcing.queries.in_flight",
		metric.WithDescription("Number of queries currently being processed"),
		metric.WithUnit("{query}"),
	)

	QueriesFailed, _ = meter.Int64Counter(
		"eventsourcing.queries.failed",
		metric.WithDescription("Number of failed queries"),
		metric.WithUnit("{query}"),
	)

	// Event metrics
	EventsAppended, _ = meter.Int64Counter(
		"eventsourcing.events.appended",
		metric.WithDescription("Number of events appended to the store"),
		metric.WithUnit("{event}"),
	)

	EventsLoaded, _ = meter.Int64Counter(
		"eventsourcing.events.loaded",
		metric.WithDescription("Number of events loaded from the store"),
		metric.WithUnit("{event}"),
	)

	// Event handler metrics
	EventsHandled, _ = meter.Int64Counter(
		"eventsourcing.handler.handled",
		metric.WithDescription("Number of events handled by projections"),
		metric.WithUnit("{event}"),
	)

	EventHandlerErrors, _ = meter.Int64Counter(
		"eventsourcing.handler.errors",
		metric.WithDescription("Number of event handler errors"),
		metric.WithUnit("{error}"),
	)

	EventHandlerDuration, _ = meter.Float64Histogram(
		"eventsourcing.handler.duration",
		metric.WithDescription("Event handler duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	// EventStore metrics
	EventStoreAppends, _ = meter.Int64Counter(
		"eventsourcing.eventstore.appends",
		metric.WithDescription("Number of append operations"),
		metric.WithUnit("{operation}"),
	)

	EventStoreLoads, _ = meter.Int64Counter(
		"eventsourcing.eventstore.loads",
		metric.WithDescription("Number of load operations"),
		metric.WithUnit("{operation}"),
	)

	EventStoreDuration, _ = meter.Float64Histogram(
		"eventsourcing.eventstore.duration",
		metric.WithDescription("Event store operation duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	EventStoreErrors, _ = meter.Int64Counter(
		"eventsourcing.eventstore.errors",
		metric.WithDescription("Number of event store errors"),
		metric.WithUnit("{error}"),
	)

	// Repository metrics
	RepositoryLoads, _ = meter.Int64Counter(
		"eventsourcing.repository.loads",
		metric.WithDescription("Number of aggregates loaded"),
		metric.WithUnit("{aggregate}"),
	)

	RepositorySaves, _ = meter.Int64Counter(
		"eventsourcing.repository.saves",
		metric.WithDescription("Number of aggregates saved"),
		metric.WithUnit("{aggregate}"),
	)

	RepositoryDuration, _ = meter.Float64Histogram(
		"eventsourcing.repository.duration",
		metric.WithDescription("Repository operation duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	// System metrics
	ConcurrencyConflicts, _ = meter.Int64Counter(
		"eventsourcing.concurrency.conflicts",
		metric.WithDescription("Number of concurrency conflicts"),
		metric.WithUnit("{conflict}"),
	)

	AggregateVersionGauge, _ = meter.Int64Gauge(
		"eventsourcing.aggregate.version",
		metric.WithDescription("Version of the last saved aggregate"),
		metric.WithUnit("{version}"),
	)
)
