package tracer_test

import (
	"context"
	"errors"
	"testing"

	"petchat/internal/platform/tracer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNoopTracer(t *testing.T) {
	ctx := context.Background()
	newCtx, span := tracer.NewNoop().Start(ctx, "chat.send_message", tracer.String("chat_id", "c1"))

	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)
	span.SetAttributes(tracer.Bool("queued", true))
	span.AddEvent("rate_limit_denied", tracer.Int64("retry_after_ms", 500))
	span.End(errors.New("denied"))
}

func TestOTelTracer(t *testing.T) {
	tr := tracer.NewOTel(tracer.WithOTelTracer(noop.NewTracerProvider().Tracer("test")))

	_, span := tr.Start(context.Background(), "chat.join",
		tracer.String("chat_id", "c1"),
		tracer.Int("remaining", 3),
		tracer.Attribute{Key: "ignored", Value: 1.5},
	)
	require.NotNil(t, span)
	assert.NotPanics(t, func() {
		span.AddEvent("emitted")
		span.End(errors.New("transport closed"))
	})
}

func TestNewOTel_DefaultsToGlobalProvider(t *testing.T) {
	tr := tracer.NewOTel()
	_, span := tr.Start(context.Background(), "chat.flush")
	span.End(nil)
}
