// Package main runs the background analysis worker. It consumes the analysis
// queue fed by the API when ANALYSIS_DISPATCH=queue.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edumirror/backend/config"
	"github.com/edumirror/backend/internal/analysis"
	"github.com/edumirror/backend/internal/materials"
	"github.com/edumirror/backend/internal/realtime"
	"github.com/edumirror/backend/internal/sessions"
	"github.com/edumirror/backend/internal/worker"
	"github.com/edumirror/backend/pkg/database"
	"github.com/edumirror/backend/pkg/queue"
	"github.com/edumirror/backend/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	sessionRepo := sessions.NewRepository(pool)
	// The worker only completes or fails sessions; freezing and dispatch happen in the API.
	manager := sessions.NewManager(sessionRepo, nil, nil, cfg.Analysis.Estimate, logger)

	// Status notifications reach clients connected to any API instance through the relay.
	registry := realtime.NewRegistry(logger, realtime.NewRedisRelay(rdb.Client, logger))

	materialRepo := materials.NewRepository(pool)
	collector := analysis.NewCollector(sessionRepo, materialRepo, materialRepo)
	llm := analysis.NewLLMClient(cfg.Analysis, logger)
	orchestrator := analysis.NewOrchestrator(collector, llm, analysis.NewRepository(pool), manager, registry, cfg.Analysis.Timeout, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewAnalysisProcessor(orchestrator, sessionRepo, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started", zap.String("queue", queue.QueueAnalysis))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(cfg.Analysis.Timeout + 5*time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
