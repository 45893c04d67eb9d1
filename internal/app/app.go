package app

import (
	"context"
	"log"
	"time"

	"github.com/quarry-ai/quarry/internal/answer"
	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/internal/core"
	db "github.com/quarry-ai/quarry/internal/database"
	"github.com/quarry-ai/quarry/internal/embedcache"
	"github.com/quarry-ai/quarry/internal/extractor"
	"github.com/quarry-ai/quarry/internal/ingestion"
	"github.com/quarry-ai/quarry/internal/llm"
	"github.com/quarry-ai/quarry/internal/objectclient"
	"github.com/quarry-ai/quarry/internal/retriever"
)

// App owns every long-lived dependency and the HTTP server.
type App struct {
	DBClient core.DbClient
	Server   *Server

	cache *embedcache.RedisStore // non-nil only with a Redis backend
}

// NewApp wires the full dependency graph. Object storage, embeddings
// and the LLM are all optional; their absence degrades features instead
// of preventing startup.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	var objClient core.ObjectClient
	if s3, err := objectclient.NewS3Client(appCtx, cfg); err != nil {
		log.Printf("WARN: object storage unavailable, originals will not be archived: %v", err)
	} else {
		objClient = s3
	}

	var embedder core.EmbeddingProvider
	var llmProvider core.LLMProvider
	if cfg.AIAPIKey != "" {
		embedder, llmProvider, err = llm.NewProviders(appCtx, cfg)
		if err != nil {
			return nil, err
		}
	} else {
		log.Println("WARN: no AI key configured; keyword search and extractive answers only")
	}

	app := &App{DBClient: dbClient}

	var cachedEmbedder *embedcache.CachedProvider
	if embedder != nil {
		var store embedcache.Store
		if cfg.RedisAddr != "" {
			redisStore := embedcache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, 24*time.Hour)
			app.cache = redisStore
			store = redisStore
			log.Println("Embedding cache backed by Redis.")
		} else {
			store = embedcache.NewMemoryStore(0, 0)
		}
		cachedEmbedder = embedcache.NewCachedProvider(embedder, store)
		embedder = cachedEmbedder
	}

	documentExtractor := extractor.New(extractor.WithMaxFileBytes(cfg.MaxFileBytes))
	validator := extractor.NewPageLimitValidator(cfg.MaxPages)

	pipeline := ingestion.NewPipeline(dbClient, objClient, cfg.BucketName, documentExtractor, validator, embedder, llmProvider)
	runner := ingestion.NewJobRunner(pipeline, 0)
	runner.Start(ctx)

	ret := retriever.New(dbClient, embedder)
	gen := answer.NewGenerator(dbClient, ret, llmProvider)

	app.Server = NewServer(cfg, dbClient, objClient, pipeline, runner, ret, gen, cachedEmbedder)
	return app, nil
}

func (a *App) Close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
