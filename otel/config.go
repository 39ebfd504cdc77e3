package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// config holds the options shared by the decorators of this package.
type config struct {
	// Operation replaces the default span name.
	Operation string

	// GetOperation is an optional function that can set the span name based on
	// the default operation and information in the context.
	//
	// If the function is nil, or the returned operation is empty, the default is used.
	GetOperation func(ctx context.Context, operation string) string

	// Attributes holds the default attributes for each span.
	Attributes []attribute.KeyValue

	// GetAttributes is an optional function that can extract trace attributes
	// from the context and add them to the span.
	GetAttributes func(ctx context.Context) []attribute.KeyValue
}

func (c config) operation(ctx context.Context, def string) string {
	op := def
	if c.Operation != "" {
		op = c.Operation
	}
	if c.GetOperation != nil {
		if name := c.GetOperation(ctx, op); name != "" {
			op = name
		}
	}
	return op
}

func (c config) attributes(ctx context.Context, attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := append(attrs, c.Attributes...)
	if c.GetAttributes != nil {
		out = append(out, c.GetAttributes(ctx)...)
	}
	return out
}

// Option configures a telemetry decorator.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (o optionFunc) apply(c *config) {
	o(c)
}

// WithOperation sets the span name.
func WithOperation(operation string) Option {
	return optionFunc(func(o *config) {
		o.Operation = operation
	})
}

// WithOperationGetter sets an operation name getter function in config.
func WithOperationGetter(fn func(ctx context.Context, name string) string) Option {
	return optionFunc(func(o *config) {
		o.GetOperation = fn
	})
}

// WithAttributes sets the default attributes for the spans.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return optionFunc(func(o *config) {
		o.Attributes = attrs
	})
}

// WithAttributeGetter extracts additional attributes from the context.
func WithAttributeGetter(fn func(ctx context.Context) []attribute.KeyValue) Option {
	return optionFunc(func(o *config) {
		o.GetAttributes = fn
	})
}

func newConfig(options []Option) config {
	cfg := config{}
	for _, o := range options {
		o.apply(&cfg)
	}
	return cfg
}
