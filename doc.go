// Package bookvision is a retrieval-augmented document question-answering
// backend. Documents are split into page-tagged chunks, embedded into a
// normalized vector space, and indexed for cosine-similarity search; questions
// are answered by retrieving the most relevant chunks and handing them, with
// the question, to an external language model.
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [EmbeddingProvider] — text-to-vector embedding
//   - [Answerer] — LLM that turns ranked context passages into an answer
//   - [Catalog] — durable ledger of ingested books
//
// # Components
//
// Retrieval lives in the subpackages:
//
//   - index — flat inner-product vector index with lockstep metadata and
//     file persistence
//   - ingest — text cleanup, boundary-aware chunking, page-preserving
//     extractors (PDF, HTML, Markdown), and the batched ingestion pipeline
//     with background task tracking
//   - cache — TTL query-result cache with a Redis tier and an in-process
//     FIFO fallback
//   - store/sqlite, store/postgres — Catalog implementations
//   - provider/openaicompat — EmbeddingProvider and Answerer for
//     OpenAI-compatible APIs
//   - observer — OpenTelemetry instrumentation for embedding and answering
//
// [Service] composes them at the query boundary. See cmd/bookvision for the
// composition root.
package bookvision
