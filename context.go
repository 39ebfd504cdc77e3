package eventsourcing

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey string

// Define constants for context keys
const (
	userIDKey        ctxKey = "userID"
	correlationIDKey ctxKey = "correlationID"
	causationIDKey   ctxKey = "causationID"
	aggregateIDKey   ctxKey = "aggregateID"
	eventIDKey       ctxKey = "eventID"
	versionKey       ctxKey = "version"
)

// WithUser records the user triggering the current request.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithCorrelation records the correlation id of the current request.
func WithCorrelation(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// WithCausation records the id of the event or command causing the work
// done with ctx.
func WithCausation(ctx context.Context, causationID string) context.Context {
	return context.WithValue(ctx, causationIDKey, causationID)
}

// WithEvent adds the context of ev. Events raised with the returned context
// are caused by ev and share its correlation id.
func WithEvent(ctx context.Context, ev DomainEvent) context.Context {
	ctx = context.WithValue(ctx, aggregateIDKey, ev.AggregateID)
	ctx = context.WithValue(ctx, eventIDKey, ev.EventID)
	ctx = context.WithValue(ctx, versionKey, ev.Version)
	ctx = WithCausation(ctx, ev.EventID.String())
	if ev.CorrelationID != "" {
		ctx = WithCorrelation(ctx, ev.CorrelationID)
	}
	if ev.UserID != "" {
		ctx = WithUser(ctx, ev.UserID)
	}
	return ctx
}

func stringFromContext(ctx context.Context, key ctxKey) string {
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// UserFromContext returns the user id or "" if not present
func UserFromContext(ctx context.Context) string {
	return stringFromContext(ctx, userIDKey)
}

// CausationFromContext returns the causation id or "" if not present
func CausationFromContext(ctx context.Context) string {
	return stringFromContext(ctx, causationIDKey)
}

// CorrelationFromContext returns the correlation id. Without an explicit one
// the trace id of the active span is used, or "" if there is none.
func CorrelationFromContext(ctx context.Context) string {
	if id := stringFromContext(ctx, correlationIDKey); id != "" {
		return id
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// AggregateIDFromContext returns the aggregate id of the handled event or ""
func AggregateIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, aggregateIDKey)
}

// EventIDFromContext returns the EventID or uuid.Nil if not present
func EventIDFromContext(ctx context.Context) uuid.UUID {
	if v := ctx.Value(eventIDKey); v != nil {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// VersionFromContext returns the Version or 0 if not present
func VersionFromContext(ctx context.Context) uint64 {
	if v := ctx.Value(versionKey); v != nil {
		if ver, ok := v.(uint64); ok {
			return ver
		}
	}
	return 0
}

// EventOptionsFromContext returns the provenance options found in ctx.
func EventOptionsFromContext(ctx context.Context) []EventOption {
	var opts []EventOption
	if id := UserFromContext(ctx); id != "" {
		opts = append(opts, WithUserID(id))
	}
	if id := CorrelationFromContext(ctx); id != "" {
		opts = append(opts, WithCorrelationID(id))
	}
	if id := CausationFromContext(ctx); id != "" {
		opts = append(opts, WithCausationID(id))
	}
	return opts
}
