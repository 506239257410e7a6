package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"www.github.com/Wanderer0074348/HybridInfer/src/backends"
	"www.github.com/Wanderer0074348/HybridInfer/src/cache"
	"www.github.com/Wanderer0074348/HybridInfer/src/cascade"
	"www.github.com/Wanderer0074348/HybridInfer/src/config"
	"www.github.com/Wanderer0074348/HybridInfer/src/handlers"
	"www.github.com/Wanderer0074348/HybridInfer/src/inference"
	"www.github.com/Wanderer0074348/HybridInfer/src/isolation"
	"www.github.com/Wanderer0074348/HybridInfer/src/logging"
	"www.github.com/Wanderer0074348/HybridInfer/src/metrics"
	"www.github.com/Wanderer0074348/HybridInfer/src/middleware"
	"www.github.com/Wanderer0074348/HybridInfer/src/models"
	"www.github.com/Wanderer0074348/HybridInfer/src/services"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	} else {
		log.Println("✅ Loaded .env file")
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	logger := logging.New(&cfg.Logging)
	logger.Info("✓ Config loaded successfully")

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(promRegistry)

	var runner backends.IsolatedRunner
	if cfg.Isolation.Enabled {
		runner = isolation.NewRunner(&cfg.Isolation, logger, collector)
		logger.WithField("worker", cfg.Isolation.WorkerPath).Info("✓ Isolated worker configured")
	}

	reg, err := backends.Build(cfg, runner, logger)
	if err != nil {
		logger.WithError(err).Fatal("❌ Failed to build backend registry")
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 2*time.Minute)
	reg.Init(initCtx)
	cancelInit()

	for _, st := range reg.Statuses() {
		if st.State == models.StateLoaded {
			logger.Infof("  - %s/%s: %s", st.Task, st.TierName, st.Backend)
		}
	}

	dispatcher := cascade.NewDispatcher(reg, logger, collector)

	var embeddingCache models.EmbeddingCacheStore
	if cfg.EmbeddingCache.Enabled {
		redisCache, err := cache.NewEmbeddingCache(&cfg.Redis, &cfg.EmbeddingCache)
		if err != nil {
			logger.WithError(err).Warn("⚠️  Failed to initialize embedding cache, continuing without it")
		} else {
			defer redisCache.Close()
			embeddingCache = redisCache
			logger.WithField("ttl", cfg.Redis.CacheTTL).Info("✓ Redis embedding cache connected")
		}
	} else {
		logger.Info("ℹ️  Embedding cache disabled")
	}

	embeddingService := services.NewEmbeddingService(dispatcher, embeddingCache, cfg.Embedding.ModelName, logger, collector)
	classificationService := services.NewClassificationService(embeddingService, cfg.Classification.CandidateLabels, logger)
	ocrService := services.NewOCRService(dispatcher)
	detectionService := services.NewDetectionService(dispatcher)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(middleware.AllowedOrigins()))

	inferenceHandler := handlers.NewInferenceHandler(
		embeddingService,
		classificationService,
		ocrService,
		detectionService,
		reg,
	)

	r.GET("/metrics", gin.WrapH(collector.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", inferenceHandler.HealthCheck)
		v1.GET("/backends", inferenceHandler.ListBackends)
		v1.POST("/embeddings", inferenceHandler.HandleEmbeddings)
		v1.POST("/classify", inferenceHandler.HandleClassify)
		v1.POST("/ocr", inferenceHandler.HandleOCR)
		v1.POST("/detect", inferenceHandler.HandleDetect)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	logger.Infof("🚀 HybridInfer running on port %s", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := reg.Close(); err != nil {
		logger.WithError(err).Warn("failed to release backends")
	}
	if err := inference.ShutdownRuntime(); err != nil {
		logger.WithError(err).Warn("failed to shut down onnxruntime")
	}

	logger.Info("Server exited")
}
