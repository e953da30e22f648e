package observer

import (
	"context"
	"time"

	bookvision "github.com/nevindra/bookvision"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedAnswerer wraps a bookvision.Answerer with OTEL instrumentation.
type ObservedAnswerer struct {
	inner bookvision.Answerer
	inst  *Instruments
	model string
}

var _ bookvision.Answerer = (*ObservedAnswerer)(nil)

// WrapAnswerer returns an instrumented answerer.
func WrapAnswerer(inner bookvision.Answerer, model string, inst *Instruments) *ObservedAnswerer {
	return &ObservedAnswerer{inner: inner, inst: inst, model: model}
}

func (o *ObservedAnswerer) Answer(ctx context.Context, question string, contexts []bookvision.ContextEntry, history []bookvision.QATurn) (string, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.answer", trace.WithAttributes(
		AttrModel.String(o.model),
		AttrContextCount.Int(len(contexts)),
		AttrHistoryTurns.Int(len(history)),
	))
	defer span.End()
	start := time.Now()

	answer, err := o.inner.Answer(ctx, question, contexts, history)
	o.record(ctx, span, "answer", start, err)
	return answer, err
}

func (o *ObservedAnswerer) Summarize(ctx context.Context, contexts []bookvision.ContextEntry) (string, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.summarize", trace.WithAttributes(
		AttrModel.String(o.model),
		AttrContextCount.Int(len(contexts)),
	))
	defer span.End()
	start := time.Now()

	summary, err := o.inner.Summarize(ctx, contexts)
	o.record(ctx, span, "summarize", start, err)
	return summary, err
}

func (o *ObservedAnswerer) record(ctx context.Context, span trace.Span, method string, start time.Time, err error) {
	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	o.inst.AnswerRequests.Add(ctx, 1, metric.WithAttributes(
		AttrModel.String(o.model),
		attribute.String("method", method),
		attribute.String("status", status),
	))
	o.inst.AnswerDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrModel.String(o.model),
		attribute.String("method", method),
	))
}
