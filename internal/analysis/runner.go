package analysis

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Pipeline runs analysis for one session.
type Pipeline interface {
	RunAnalysis(ctx context.Context, sessionID string) error
}

// Runner dispatches analysis runs in-process, one goroutine per session.
// A session already in flight is not spawned again.
type Runner struct {
	pipeline Pipeline
	base     context.Context
	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewRunner creates a runner. Runs use a context detached from the
// dispatching request.
func NewRunner(pipeline Pipeline, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{pipeline: pipeline, base: context.Background(), inflight: make(map[string]struct{}), logger: logger}
}

// Dispatch starts RunAnalysis for sessionID and returns immediately.
func (r *Runner) Dispatch(_ context.Context, sessionID string) error {
	r.mu.Lock()
	if _, ok := r.inflight[sessionID]; ok {
		r.mu.Unlock()
		r.logger.Debug("analysis already in flight", zap.String("session_id", sessionID))
		return nil
	}
	r.inflight[sessionID] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.inflight, sessionID)
			r.mu.Unlock()
		}()
		if err := r.pipeline.RunAnalysis(r.base, sessionID); err != nil {
			r.logger.Error("analysis run failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()
	return nil
}

// PendingLister lists sessions left in processing.
type PendingLister interface {
	ListProcessing(ctx context.Context) ([]string, error)
}

// Resume dispatches every session still in processing, such as runs lost
// when a previous process stopped before they finished. It returns the
// number of sessions dispatched.
func (r *Runner) Resume(ctx context.Context, pending PendingLister) (int, error) {
	ids, err := pending.ListProcessing(ctx)
	if err != nil {
		return 0, fmt.Errorf("list processing sessions: %w", err)
	}
	for _, id := range ids {
		if err := r.Dispatch(ctx, id); err != nil {
			return 0, err
		}
	}
	if len(ids) > 0 {
		r.logger.Info("resumed pending analyses", zap.Int("count", len(ids)))
	}
	return len(ids), nil
}

// InFlight reports whether a run for sessionID is executing.
func (r *Runner) InFlight(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[sessionID]
	return ok
}

// Wait blocks until every dispatched run has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Enqueuer places an analysis job on a durable queue.
type Enqueuer interface {
	EnqueueAnalysis(ctx context.Context, sessionID string) error
}

// QueueDispatcher hands analysis to the background worker through a queue.
type QueueDispatcher struct {
	queue Enqueuer
}

// NewQueueDispatcher creates a queue-backed dispatcher.
func NewQueueDispatcher(q Enqueuer) *QueueDispatcher {
	return &QueueDispatcher{queue: q}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, sessionID string) error {
	return d.queue.EnqueueAnalysis(ctx, sessionID)
}
