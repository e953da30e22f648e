package observer

import (
	"context"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
)

// RecordIngest records one completed document ingestion: run and chunk
// counters plus a structured log record. Wire it into the ingestion
// completion path, for example via ingest.WithCompletion.
func RecordIngest(ctx context.Context, inst *Instruments, bookID string, chunks, pages int) {
	attrs := metric.WithAttributes(
		AttrBookID.String(bookID),
		AttrChunkCount.Int(chunks),
		AttrPageCount.Int(pages),
	)
	inst.IngestRuns.Add(ctx, 1, attrs)
	inst.IngestChunks.Add(ctx, int64(chunks), attrs)

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("ingestion completed"))
	rec.AddAttributes(
		otellog.String("book.id", bookID),
		otellog.Int("ingest.chunk_count", chunks),
		otellog.Int("ingest.page_count", pages),
	)
	inst.Logger.Emit(ctx, rec)
}
