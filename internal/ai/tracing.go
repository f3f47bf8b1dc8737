package ai

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chatvault/chatvault/internal/chat"
)

// tracingCompleter wraps a Completer with an OpenTelemetry span per call.
type tracingCompleter struct {
	next   Completer
	tracer trace.Tracer
}

// WithTracing decorates a Completer so each completion is recorded as a span.
func WithTracing(next Completer) Completer {
	return &tracingCompleter{
		next:   next,
		tracer: otel.Tracer("chatvault/ai"),
	}
}

func (tc *tracingCompleter) Complete(ctx context.Context, history []chat.Message) (string, error) {
	ctx, span := tc.tracer.Start(ctx, "ai.Complete",
		trace.WithAttributes(attribute.Int("history.messages", len(history))),
	)
	defer span.End()

	response, err := tc.next.Complete(ctx, history)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", err
	}
	span.SetAttributes(attribute.Int("response.length", len(response)))
	return response, nil
}
