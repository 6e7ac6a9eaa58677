// Package main runs the EduMirror API: REST endpoints, the realtime WebSocket
// endpoint and, in inprocess dispatch mode, the analysis pipeline.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edumirror/backend/config"
	"github.com/edumirror/backend/internal/analysis"
	"github.com/edumirror/backend/internal/auth"
	"github.com/edumirror/backend/internal/materials"
	"github.com/edumirror/backend/internal/middleware"
	"github.com/edumirror/backend/internal/realtime"
	"github.com/edumirror/backend/internal/sessions"
	"github.com/edumirror/backend/pkg/database"
	"github.com/edumirror/backend/pkg/queue"
	"github.com/edumirror/backend/pkg/redis"
	"github.com/edumirror/backend/pkg/response"
	"github.com/edumirror/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Object storage is optional; without it uploads are parsed and recorded but not kept.
	var objects materials.ObjectStore
	if cfg.AWS.Region != "" && cfg.AWS.MaterialsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.MaterialsBucket,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		objects = s3Client
	} else {
		logger.Warn("object storage not configured, uploaded files will not be stored")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Realtime: connection registry fanned out across instances through Redis pub/sub.
	relay := realtime.NewRedisRelay(rdb.Client, logger)
	registry := realtime.NewRegistry(logger, relay)
	metrics := realtime.NewMetrics(cfg.Realtime.MetricsTTL)
	telemetry := realtime.NewRouter(registry, metrics, cfg.Realtime.VolumeThreshold, logger)

	sessionRepo := sessions.NewRepository(pool)
	manager := sessions.NewManager(sessionRepo, metrics, nil, cfg.Analysis.Estimate, logger)

	llm := analysis.NewLLMClient(cfg.Analysis, logger)
	if cfg.Analysis.APIKey == "" {
		logger.Warn("analysis API key not set, sessions will receive fallback results")
	}

	materialRepo := materials.NewRepository(pool)
	materialHandler := materials.NewHandler(sessionRepo, materialRepo, objects, llm, materials.Limits{
		MaxFileSize:  cfg.AWS.MaxFileSize,
		MaxAudioSize: cfg.AWS.MaxAudioSize,
	}, logger)

	questions := analysis.NewQuestionService(materialRepo, llm, cfg.Analysis.Timeout)
	sessionHandler := sessions.NewHandler(sessionRepo, manager, questions, cfg.Server.PublicWSBase, logger)

	resultRepo := analysis.NewRepository(pool)
	collector := analysis.NewCollector(sessionRepo, materialRepo, materialRepo)
	orchestrator := analysis.NewOrchestrator(collector, llm, resultRepo, manager, registry, cfg.Analysis.Timeout, logger)
	analysisHandler := analysis.NewHandler(resultRepo, sessionRepo, logger)

	var runner *analysis.Runner
	switch cfg.Analysis.Dispatch {
	case config.DispatchQueue:
		manager.SetDispatcher(analysis.NewQueueDispatcher(queue.NewQueue(rdb.Client, logger)))
		logger.Info("analysis dispatched to worker queue", zap.String("queue", queue.QueueAnalysis))
	default:
		runner = analysis.NewRunner(orchestrator, logger)
		manager.SetDispatcher(runner)
		logger.Info("analysis runs in-process")
		if _, err := runner.Resume(ctx, sessionRepo); err != nil {
			logger.Error("resume pending analyses", zap.Error(err))
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/", func(c *gin.Context) {
		response.OK(c, gin.H{"message": "EduMirror backend", "status": "running"})
	})
	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{
			"status":          "healthy",
			"timestamp":       time.Now().UTC().Format(time.RFC3339),
			"active_sessions": registry.Sessions(),
		})
	})

	api := router.Group("/api")
	api.Use(middleware.RateLimit(middleware.NewRedisCounter(rdb.Client), cfg.RateLimit.Requests, cfg.RateLimit.Window, logger))

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/signup", authHandler.Signup)
		authGroup.POST("/login", authHandler.Login)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(jwtService))
	{
		protected.POST("/sessions/create", sessionHandler.Create)
		protected.POST("/sessions/:sessionId/upload-material", materialHandler.UploadMaterial)
		protected.POST("/sessions/:sessionId/upload-audio", materialHandler.UploadAudio)
		protected.POST("/sessions/:sessionId/transcript", materialHandler.AddTranscript)
		protected.POST("/sessions/:sessionId/start", sessionHandler.Start)
		protected.POST("/sessions/:sessionId/end", sessionHandler.End)
		protected.GET("/sessions/:sessionId/analysis-status", sessionHandler.AnalysisStatus)
		protected.GET("/sessions/:sessionId/analysis", analysisHandler.Analysis)
		protected.GET("/sessions/:sessionId/suggestions", analysisHandler.Suggestions)
		protected.GET("/my/sessions", sessionHandler.ListMine)
	}

	// WebSocket: the session id in the path identifies the stream; no token required.
	router.GET("/ws/:sessionId", realtime.ServeWs(registry, telemetry, logger, realtime.Options{SendBuffer: cfg.Realtime.SendBuffer}))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if runner != nil {
		// let in-flight analyses reach a terminal state; runs cut off here
		// are resumed by the next start
		done := make(chan struct{})
		go func() {
			runner.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(cfg.Analysis.Timeout + 15*time.Second):
			logger.Warn("shutdown deadline reached with analyses in flight")
		}
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
