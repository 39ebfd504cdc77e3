package eventsourcing

import (
	"context"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

type testPayload struct {
	Value string `json:"value"`
}

func (testPayload) EventType() string { return "TestPayload" }

func TestContextGetters(t *testing.T) {
	ev := NewDomainEvent("family-456", "Family", testPayload{},
		WithUserID("U1"),
		WithCorrelationID("corr-1"),
	).WithVersion(7)

	ctxWithEvent := WithEvent(t.Context(), ev)
	emptyCtx := t.Context()

	tests := []struct {
		name string
		ctx  context.Context
		fn   func(context.Context) any
		want any
	}{
		{
			name: "AggregateIDFromContext with value",
			ctx:  ctxWithEvent,
			fn:   func(ctx context.Context) any { return AggregateIDFromContext(ctx) },
			want: "family-456",
		},
		{
			name: "AggregateIDFromContext without value",
			ctx:  emptyCtx,
			fn:   func(ctx context.Context) any { return AggregateIDFromContext(ctx) },
			want: "",
		},
		{
			name: "EventIDFromContext with value",
			ctx:  ctxWithEvent,
			fn:   func(ctx context.Context) any { return EventIDFromContext(ctx) },
			want: ev.EventID,
		},
		{
			name: "EventIDFromContext without value",
			ctx:  emptyCtx,
			fn:   func(ctx context.Context) any { return EventIDFromContext(ctx) },
			want: uuid.Nil,
		},
		{
			name: "VersionFromContext with value",
			ctx:  ctxWithEvent,
			fn:   func(ctx context.Context) any { return VersionFromContext(ctx) },
			want: uint64(7),
		},
		{
			name: "VersionFromContext without value",
			ctx:  emptyCtx,
			fn:   func(ctx context.Context) any { return VersionFromContext(ctx) },
			want: uint64(0),
		},
		{
			name: "CausationFromContext is the handled event",
			ctx:  ctxWithEvent,
			fn:   func(ctx context.Context) any { return CausationFromContext(ctx) },
			want: ev.EventID.String(),
		},
		{
			name: "CorrelationFromContext is inherited",
			ctx:  ctxWithEvent,
			fn:   func(ctx context.Context) any { return CorrelationFromContext(ctx) },
			want: "corr-1",
		},
		{
			name: "UserFromContext is inherited",
			ctx:  ctxWithEvent,
			fn:   func(ctx context.Context) any { return UserFromContext(ctx) },
			want: "U1",
		},
		{
			name: "UserFromContext without value",
			ctx:  emptyCtx,
			fn:   func(ctx context.Context) any { return UserFromContext(ctx) },
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn(tt.ctx)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCorrelationFromContext_TraceID(t *testing.T) {
	traceID := trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
	})
	ctx := trace.ContextWithSpanContext(t.Context(), sc)

	if got := CorrelationFromContext(ctx); got != traceID.String() {
		t.Errorf("CorrelationFromContext() = %q, want trace id %q", got, traceID.String())
	}
	if got := CorrelationFromContext(WithCorrelation(ctx, "explicit")); got != "explicit" {
		t.Errorf("explicit correlation must win over the trace id, got %q", got)
	}
}

func TestEventOptionsFromContext(t *testing.T) {
	cause := NewDomainEvent("family-1", "Family", testPayload{}, WithUserID("U1"))
	ctx := WithEvent(t.Context(), cause)

	ev := NewDomainEvent("family-2", "Family", testPayload{}, EventOptionsFromContext(ctx)...)
	if ev.UserID != "U1" {
		t.Errorf("UserID = %q, want U1", ev.UserID)
	}
	if ev.CausationID != cause.EventID.String() {
		t.Errorf("CausationID = %q, want the causing event id", ev.CausationID)
	}
	if ev.CorrelationID != cause.CorrelationID {
		t.Errorf("CorrelationID = %q, want %q", ev.CorrelationID, cause.CorrelationID)
	}

	if opts := EventOptionsFromContext(t.Context()); len(opts) != 0 {
		t.Errorf("empty context yields %d options", len(opts))
	}
}
