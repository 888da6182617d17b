package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestStartWithoutProviderIsNoop(t *testing.T) {
	ctx, span := Start(context.Background(), "checkout.place_order", attribute.String("user_id", "u1"))
	assert.NotNil(t, span)
	assert.Equal(t, span.SpanContext(), trace.SpanFromContext(ctx).SpanContext())
	assert.False(t, span.SpanContext().IsValid())

	assert.NotPanics(t, func() { End(span, errors.New("boom")) })
	assert.NotPanics(t, func() { End(span, nil) })
}
