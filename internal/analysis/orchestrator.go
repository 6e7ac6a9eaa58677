package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edumirror/backend/internal/models"
	"github.com/edumirror/backend/internal/realtime"
	"github.com/edumirror/backend/internal/sessions"
)

// DefaultTimeout bounds one capability call when none is configured.
const DefaultTimeout = 90 * time.Second

// Capability is the external analysis collaborator.
type Capability interface {
	Analyze(ctx context.Context, in models.AnalysisInput) (*models.AnalysisResult, error)
}

// ResultSaver replaces or removes the stored result for a session.
type ResultSaver interface {
	Save(ctx context.Context, sessionID string, r *models.AnalysisResult) error
	Delete(ctx context.Context, sessionID string) error
}

// Lifecycle finishes a processing session.
type Lifecycle interface {
	Complete(ctx context.Context, sessionID string, actualDuration int) error
	Fail(ctx context.Context, sessionID string) error
}

// Notifier pushes a message to a session's live connections.
type Notifier interface {
	Publish(ctx context.Context, sessionID string, message interface{}) error
}

// Orchestrator runs the analysis pipeline for one session at a time.
type Orchestrator struct {
	collector  *Collector
	capability Capability
	results    ResultSaver
	lifecycle  Lifecycle
	notifier   Notifier
	timeout    time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewOrchestrator creates an orchestrator. notifier may be nil.
func NewOrchestrator(collector *Collector, capability Capability, results ResultSaver, lifecycle Lifecycle, notifier Notifier, timeout time.Duration, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Orchestrator{
		collector:  collector,
		capability: capability,
		results:    results,
		lifecycle:  lifecycle,
		notifier:   notifier,
		timeout:    timeout,
		now:        time.Now,
		logger:     logger,
	}
}

// RunAnalysis collects, analyzes, stores and completes sessionID. Capability
// failures are replaced by FallbackResult and do not fail the run. A collect
// or persistence failure moves the session to failed and is returned.
func (o *Orchestrator) RunAnalysis(ctx context.Context, sessionID string) error {
	log := o.logger.With(zap.String("session_id", sessionID))
	start := o.now()

	in, err := o.collector.Collect(ctx, sessionID)
	if err != nil {
		log.Error("collect analysis input failed", zap.Error(err))
		o.fail(ctx, sessionID, log)
		return fmt.Errorf("collect: %w", err)
	}

	result, cerr := o.analyze(ctx, *in)
	if cerr != nil {
		log.Warn("analysis capability failed, storing fallback result", zap.Error(cerr))
		result = FallbackResult(o.now())
	}

	if err := o.results.Save(ctx, sessionID, result); err != nil {
		perr := &PersistenceError{Op: "save result", Err: err}
		log.Error("persist analysis failed", zap.Error(err))
		o.fail(ctx, sessionID, log)
		return perr
	}

	if err := o.lifecycle.Complete(ctx, sessionID, in.SessionMetadata.ActualDuration); err != nil {
		if errors.Is(err, sessions.ErrInvalidTransition) {
			log.Warn("session left processing before completion", zap.Error(err))
			return err
		}
		perr := &PersistenceError{Op: "complete session", Err: err}
		log.Error("complete session failed", zap.Error(err))
		// a failed run keeps no result
		if derr := o.results.Delete(context.WithoutCancel(ctx), sessionID); derr != nil {
			log.Error("remove result of failed run", zap.Error(derr))
		}
		o.fail(ctx, sessionID, log)
		return perr
	}

	log.Info("analysis completed",
		zap.Float64("overall_score", result.OverallScore),
		zap.Bool("fallback", result.Fallback),
		zap.Duration("took", o.now().Sub(start)),
	)
	o.notify(ctx, sessionID, models.SessionStatusCompleted, log)
	return nil
}

// analyze calls the capability under the configured timeout. Panics, nil
// results and out-of-range scores are capability failures.
func (o *Orchestrator) analyze(ctx context.Context, in models.AnalysisInput) (result *models.AnalysisResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			result, err = nil, &CapabilityError{Op: "analyze", Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	r, err := o.capability.Analyze(ctx, in)
	if err != nil {
		return nil, capabilityErr("analyze", err)
	}
	if err := Validate(r); err != nil {
		return nil, &CapabilityError{Op: "validate", Err: err}
	}
	out := *r
	out.Fallback = false
	out.AnalyzedAt = o.now().UTC()
	if out.Suggestions == nil {
		out.Suggestions = []models.Suggestion{}
	}
	return &out, nil
}

func (o *Orchestrator) fail(ctx context.Context, sessionID string, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	if err := o.lifecycle.Fail(ctx, sessionID); err != nil {
		log.Error("mark session failed", zap.Error(err))
		return
	}
	o.notify(ctx, sessionID, models.SessionStatusFailed, log)
}

func (o *Orchestrator) notify(ctx context.Context, sessionID string, status models.SessionStatus, log *zap.Logger) {
	if o.notifier == nil {
		return
	}
	msg := realtime.AnalysisStatus{Type: realtime.MessageAnalysisStatus, SessionID: sessionID, Status: string(status)}
	if err := o.notifier.Publish(context.WithoutCancel(ctx), sessionID, msg); err != nil {
		log.Warn("analysis status notification failed", zap.Error(err))
	}
}
