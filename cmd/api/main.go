package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/api/handlers"
	"github.com/tutor-agent/backend/internal/cache"
	"github.com/tutor-agent/backend/internal/cache/redis"
	"github.com/tutor-agent/backend/internal/crossencoder"
	"github.com/tutor-agent/backend/internal/evaluation"
	"github.com/tutor-agent/backend/internal/kg/neo4j"
	"github.com/tutor-agent/backend/internal/lexicon"
	"github.com/tutor-agent/backend/internal/llm"
	"github.com/tutor-agent/backend/internal/metrics"
	"github.com/tutor-agent/backend/internal/middleware/ratelimit"
	"github.com/tutor-agent/backend/internal/middleware/security"
	"github.com/tutor-agent/backend/internal/middleware/validation"
	"github.com/tutor-agent/backend/internal/retrieval"
	"github.com/tutor-agent/backend/internal/storage/sqlite"
	"github.com/tutor-agent/backend/internal/vector/milvus"
	"github.com/tutor-agent/backend/pkg/config"
	"github.com/tutor-agent/backend/pkg/features"
	appLogger "github.com/tutor-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Tutor Agent retrieval API")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// Milvus, Redis, Neo4j, and the cross-encoder are optional at startup.
	// Missing ones degrade the pipeline rather than blocking boot.
	var searcher retrieval.VectorSearcher
	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Warn("Milvus unavailable, vector search disabled", zap.Error(err))
	} else {
		defer milvusClient.Close()
		if err := milvusClient.EnsureCollection(context.Background()); err != nil {
			appLogger.Warn("Failed to ensure Milvus collection", zap.Error(err))
		}
		searcher = milvusClient
	}

	var embedCache retrieval.EmbeddingCache
	redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		embedCache = redisClient
	}

	var graph retrieval.GraphExpander
	if cfg.Neo4j.Enabled {
		neo4jClient, err := neo4j.NewClient(
			cfg.Neo4j.URI,
			cfg.Neo4j.Username,
			cfg.Neo4j.Password,
			cfg.Neo4j.Database,
		)
		if err != nil {
			appLogger.Warn("Neo4j unavailable, graph expansion disabled", zap.Error(err))
		} else {
			defer neo4jClient.Close(context.Background())
			graph = neo4jClient
		}
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	encoder := crossencoder.NewClient(
		cfg.CrossEncoder.Endpoint,
		time.Duration(cfg.CrossEncoder.TimeoutSec)*time.Second,
	)
	if !encoder.Available() {
		appLogger.Warn("Cross-encoder unavailable, evaluator will bypass")
	}

	lex, err := lexicon.Load(cfg.Lexicon.Path)
	if err != nil {
		appLogger.Warn("Failed to load antonym lexicon, using built-ins", zap.Error(err))
		lex, _ = lexicon.Load("")
	}

	flags := features.NewResolver(cfg.Features.Defaults)

	classificationCache := cache.NewTypedCache[retrieval.Classification](
		sqliteClient, cache.BucketClassification, cfg.Cache.ClassificationTTL())
	qaCache := cache.NewTypedCache[[]retrieval.QAMatch](
		sqliteClient, cache.BucketQASimilarity, cfg.Cache.QASimilarityTTL())

	classifier := retrieval.NewTopicClassifier(sqliteClient, llmClient, classificationCache, cfg.Retrieval)
	chunks := retrieval.NewChunkRetriever(searcher, llmClient, lex, cfg.Retrieval)
	qa := retrieval.NewQAMatcher(sqliteClient, llmClient, embedCache, cfg.Cache.EmbeddingTTL(),
		qaCache, llmClient.EmbeddingModel(), cfg.Retrieval)
	kb := retrieval.NewKnowledgeBaseRetriever(sqliteClient, graph, cfg.Retrieval)
	fusion := retrieval.NewFusion(cfg.Fusion)

	pipeline := retrieval.NewPipeline(classifier, chunks, qa, kb, fusion, flags, cfg.Retrieval)

	evaluator := evaluation.NewEvaluator(encoder, cfg.Evaluator)
	reranker := evaluation.NewReranker(encoder)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.MaxRequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Session-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(cfg.Server.Environment))
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(appLogger.GetLogger()))

	retrieveHandler := handlers.NewRetrieveHandler(pipeline)
	evaluationHandler := handlers.NewEvaluationHandler(evaluator, reranker)
	contextHandler := handlers.NewContextHandler(cfg.Retrieval.ContextMaxChars)
	qaUsageHandler := handlers.NewQAUsageHandler(pipeline.QAMatcher())
	wsHandler := handlers.NewWebSocketHandler(pipeline)

	api := app.Group("/api/v1")

	api.Post("/retrieve", retrieveHandler.HandleRetrieve)
	api.Post("/retrieve/direct", retrieveHandler.HandleDirectAnswer)
	api.Post("/evaluate", evaluationHandler.HandleEvaluate)
	api.Post("/context", contextHandler.HandleBuildContext)
	api.Post("/qa/usage", qaUsageHandler.HandleTrackUsage)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if err := sqliteClient.Ping(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "not ready",
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/retrieve", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
