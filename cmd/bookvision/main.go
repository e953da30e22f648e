// Command bookvision is the document question-answering backend.
//
// It ingests books (PDF, HTML, markdown, plain text) into an in-process
// vector index, answers questions about them through an OpenAI-compatible
// LLM, and serves the whole flow over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	bookvision "github.com/nevindra/bookvision"
	"github.com/nevindra/bookvision/cache"
	"github.com/nevindra/bookvision/index"
	"github.com/nevindra/bookvision/ingest"
	"github.com/nevindra/bookvision/internal/config"
	"github.com/nevindra/bookvision/observer"
	"github.com/nevindra/bookvision/provider/openaicompat"
	"github.com/nevindra/bookvision/store/postgres"
	"github.com/nevindra/bookvision/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to bookvision.toml")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg := config.Load(*configPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Observability (optional)
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		if cfg.Observer.Endpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Observer.Endpoint)
		}
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx)
		if err != nil {
			log.Fatalf("observer init: %v", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("observer shutdown", "error", err)
			}
		}()
	}

	// Providers: retry transient failures, then rate-limit, then instrument.
	var embedding bookvision.EmbeddingProvider = openaicompat.NewEmbedding(
		cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.BaseURL, cfg.Embedding.Dimensions)
	embedding = bookvision.WithEmbeddingRetry(embedding, bookvision.RetryLogger(logger))
	if cfg.Embedding.RPM > 0 || cfg.Embedding.TextsPerMinute > 0 {
		embedding = bookvision.WithRateLimit(embedding,
			bookvision.RPM(cfg.Embedding.RPM),
			bookvision.TextsPerMinute(cfg.Embedding.TextsPerMinute))
	}
	var answerer bookvision.Answerer = openaicompat.NewAnswerer(
		cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
	answerer = bookvision.WithAnswerRetry(answerer, bookvision.RetryLogger(logger))
	if inst != nil {
		embedding = observer.WrapEmbedding(embedding, cfg.Embedding.Model, inst)
		answerer = observer.WrapAnswerer(answerer, cfg.LLM.Model, inst)
	}

	// Catalog
	var catalog bookvision.Catalog
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			log.Fatalf("postgres pool: %v", err)
		}
		defer pool.Close()
		catalog = postgres.New(pool)
	default:
		catalog = sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
	}
	if err := catalog.Init(ctx); err != nil {
		log.Fatalf("catalog init: %v", err)
	}
	defer catalog.Close()

	// Index
	ix := index.New(cfg.Embedding.Dimensions, index.WithLogger(logger))
	if err := ix.Load(cfg.Index.Dir); err != nil {
		log.Fatalf("load index: %v", err)
	}
	logger.Info("index loaded", "chunks", ix.Size(), "dimension", ix.Dimension())

	// Cache
	cacheOpts := []cache.Option{
		cache.WithLogger(logger),
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
	}
	if cfg.Cache.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		defer rdb.Close()
		cacheOpts = append(cacheOpts, cache.WithRedis(rdb))
	}
	results := cache.New(cacheOpts...)

	// Query service
	svc := bookvision.NewService(ix, embedding, answerer,
		bookvision.WithCache(results),
		bookvision.WithCatalog(catalog),
		bookvision.WithTopK(cfg.Index.TopK),
		bookvision.WithCacheTTL(time.Duration(cfg.Cache.TTLSeconds)*time.Second),
		bookvision.WithLogger(logger),
	)

	// Ingestion. New content makes cached answers stale, so every completed
	// run clears the result cache and records ingestion metrics.
	pipeline := ingest.NewPipeline(ix, embedding,
		ingest.WithBatchSize(cfg.Ingest.BatchSize),
		ingest.WithChunkSize(cfg.Ingest.MaxChunkChars, cfg.Ingest.MinChunkChars),
		ingest.WithCatalog(catalog),
		ingest.WithImageStore(ingest.NewDirImageStore(cfg.Index.ImageDir)),
		ingest.WithIndexDir(cfg.Index.Dir),
		ingest.WithPipelineLogger(logger),
	)
	tasks, err := ingest.NewManager(pipeline, cfg.Index.TaskDir,
		ingest.WithManagerLogger(logger),
		ingest.WithCompletion(func(ctx context.Context, res ingest.Result) {
			svc.InvalidateCache(ctx)
			if inst != nil {
				observer.RecordIngest(ctx, inst, res.BookID, res.ChunkCount, res.PageCount)
			}
		}),
	)
	if err != nil {
		log.Fatalf("task manager: %v", err)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newHandler(svc, tasks, ix),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}

	// finish in-flight ingestions and persist the index before exit
	tasks.Wait()
	if err := ix.Save(cfg.Index.Dir); err != nil {
		logger.Error("save index", "error", err)
	}
}
