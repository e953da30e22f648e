package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for retrieval observability spans and metrics.
var (
	AttrModel    = attribute.Key("llm.model")
	AttrProvider = attribute.Key("llm.provider")

	AttrEmbedTextCount  = attribute.Key("llm.embed.text_count")
	AttrEmbedDimensions = attribute.Key("llm.embed.dimensions")

	AttrContextCount = attribute.Key("answer.context_count")
	AttrHistoryTurns = attribute.Key("answer.history_turns")

	AttrBookID     = attribute.Key("book.id")
	AttrChunkCount = attribute.Key("ingest.chunk_count")
	AttrPageCount  = attribute.Key("ingest.page_count")
)
