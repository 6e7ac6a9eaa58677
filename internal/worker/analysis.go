package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edumirror/backend/internal/models"
	"github.com/edumirror/backend/internal/sessions"
	"github.com/edumirror/backend/pkg/queue"
)

// Analyzer runs the analysis pipeline for one session.
type Analyzer interface {
	RunAnalysis(ctx context.Context, sessionID string) error
}

// SessionReader reads session status without owner scoping.
type SessionReader interface {
	GetByID(ctx context.Context, id string) (*models.Session, error)
}

// JobQueue is the queue the processor consumes.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// AnalysisProcessor consumes analysis jobs and drives the pipeline for each.
type AnalysisProcessor struct {
	analyzer Analyzer
	sessions SessionReader
	queue    JobQueue
	poll     time.Duration
	backoff  time.Duration
	logger   *zap.Logger
}

// NewAnalysisProcessor creates an analysis job processor.
func NewAnalysisProcessor(analyzer Analyzer, sessions SessionReader, q JobQueue, logger *zap.Logger) *AnalysisProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisProcessor{
		analyzer: analyzer,
		sessions: sessions,
		queue:    q,
		poll:     5 * time.Second,
		backoff:  queue.RetryBackoff,
		logger:   logger,
	}
}

// Process executes one analysis job. Sessions that are gone or no longer
// processing are skipped, so a retried job never reruns a finished session.
// Cancelling ctx does not abort a job once it has been dequeued; the run is
// bounded by the orchestrator's own timeout.
func (p *AnalysisProcessor) Process(ctx context.Context, job *queue.Job) error {
	ctx = context.WithoutCancel(ctx)
	payload, err := job.DecodeAnalysis()
	if err != nil {
		p.logger.Warn("dropping invalid job", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}
	log := p.logger.With(zap.String("job_id", job.ID), zap.String("session_id", payload.SessionID))

	s, err := p.sessions.GetByID(ctx, payload.SessionID)
	if errors.Is(err, sessions.ErrSessionNotFound) {
		log.Warn("session for analysis job not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if s.Status != models.SessionStatusProcessing {
		log.Info("session not processing, skipping", zap.String("status", string(s.Status)))
		return nil
	}

	if err := p.analyzer.RunAnalysis(ctx, payload.SessionID); err != nil {
		return fmt.Errorf("run analysis: %w", err)
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. Cancelling
// ctx stops dequeuing; Run returns after the current job finishes.
func (p *AnalysisProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("analysis worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.poll)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, p.backoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			sleep(ctx, p.backoff)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
