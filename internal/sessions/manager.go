package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edumirror/backend/internal/models"
)

// DefaultEstimate is the analysis completion estimate reported when none is configured.
const DefaultEstimate = 3 * time.Minute

// Store is the session persistence the Manager needs. Mark* methods are
// compare-and-set updates and report whether the guarded status matched.
type Store interface {
	Get(ctx context.Context, id string, userID uuid.UUID) (*models.Session, error)
	GetByID(ctx context.Context, id string) (*models.Session, error)
	MarkStarted(ctx context.Context, id string, userID uuid.UUID) (bool, error)
	MarkEnded(ctx context.Context, id string, userID uuid.UUID, metrics models.RealtimeMetrics) (bool, error)
	MarkCompleted(ctx context.Context, id string, actualDuration int) (bool, error)
	MarkFailed(ctx context.Context, id string) (bool, error)
}

// MetricsFreezer stops telemetry accumulation for a session and yields its summary.
// Discard releases the accumulator once the session is terminal.
type MetricsFreezer interface {
	Freeze(sessionID string) models.RealtimeMetrics
	Thaw(sessionID string)
	Discard(sessionID string)
}

// Dispatcher hands an ended session to the analysis pipeline without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID string) error
}

// JobTicket is the synchronous answer to an end-of-session signal.
type JobTicket struct {
	JobID               string
	EstimatedCompletion time.Time
	// Duplicate is true when the session had already ended; nothing was dispatched.
	Duplicate bool
}

// JobID derives the analysis job identifier from a session id.
func JobID(sessionID string) string {
	return "analysis_" + sessionID
}

// Manager enforces the session state machine on top of Store.
type Manager struct {
	store      Store
	metrics    MetricsFreezer
	dispatcher Dispatcher
	estimate   time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewManager creates a lifecycle manager.
func NewManager(store Store, metrics MetricsFreezer, dispatcher Dispatcher, estimate time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if estimate <= 0 {
		estimate = DefaultEstimate
	}
	return &Manager{store: store, metrics: metrics, dispatcher: dispatcher, estimate: estimate, now: time.Now, logger: logger}
}

// SetDispatcher replaces the analysis dispatcher (wired after construction to break init cycles).
func (m *Manager) SetDispatcher(d Dispatcher) { m.dispatcher = d }

// Start moves the session from created to active.
func (m *Manager) Start(ctx context.Context, sessionID string, userID uuid.UUID) (*models.Session, error) {
	s, err := m.store.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := Next(s.Status, TriggerStart); err != nil {
		return nil, err
	}
	ok, err := m.store.MarkStarted(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("mark started: %w", err)
	}
	if !ok {
		return nil, m.raced(ctx, sessionID, userID, TriggerStart)
	}
	s.Status = models.SessionStatusActive
	m.logger.Info("session started", zap.String("session_id", sessionID))
	return s, nil
}

// End moves an active session to processing and dispatches its analysis.
// Ending a session that has already ended is a no-op returning the same job id.
func (m *Manager) End(ctx context.Context, sessionID string, userID uuid.UUID) (*JobTicket, error) {
	s, err := m.store.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	ticket := &JobTicket{JobID: JobID(sessionID), EstimatedCompletion: m.now().Add(m.estimate).UTC()}
	if endedAlready(s.Status) {
		ticket.Duplicate = true
		return ticket, nil
	}
	if _, err := Next(s.Status, TriggerEnd); err != nil {
		return nil, err
	}

	snapshot := m.metrics.Freeze(sessionID)
	ok, err := m.store.MarkEnded(ctx, sessionID, userID, snapshot)
	if err != nil {
		m.metrics.Thaw(sessionID)
		return nil, fmt.Errorf("mark ended: %w", err)
	}
	if !ok {
		// a concurrent end won the compare-and-set
		current, gerr := m.store.Get(ctx, sessionID, userID)
		if gerr == nil && endedAlready(current.Status) {
			ticket.Duplicate = true
			return ticket, nil
		}
		return nil, m.raced(ctx, sessionID, userID, TriggerEnd)
	}

	if err := m.dispatcher.Dispatch(ctx, sessionID); err != nil {
		m.logger.Error("analysis dispatch failed", zap.String("session_id", sessionID), zap.Error(err))
		if ferr := m.Fail(context.WithoutCancel(ctx), sessionID); ferr != nil {
			m.logger.Error("mark failed after dispatch error", zap.String("session_id", sessionID), zap.Error(ferr))
		}
		return nil, fmt.Errorf("dispatch analysis: %w", err)
	}
	m.logger.Info("session ended, analysis dispatched",
		zap.String("session_id", sessionID),
		zap.String("job_id", ticket.JobID),
		zap.Int("page_transitions", snapshot.PageTransitions),
	)
	return ticket, nil
}

// Complete moves processing -> completed and records actualDuration.
func (m *Manager) Complete(ctx context.Context, sessionID string, actualDuration int) error {
	ok, err := m.store.MarkCompleted(ctx, sessionID, actualDuration)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if !ok {
		return m.rejected(ctx, sessionID, TriggerComplete)
	}
	m.discard(sessionID)
	return nil
}

// Fail moves processing -> failed.
func (m *Manager) Fail(ctx context.Context, sessionID string) error {
	ok, err := m.store.MarkFailed(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if !ok {
		return m.rejected(ctx, sessionID, TriggerFail)
	}
	m.discard(sessionID)
	return nil
}

// discard is a no-op in processes without a local accumulator (the worker).
func (m *Manager) discard(sessionID string) {
	if m.metrics != nil {
		m.metrics.Discard(sessionID)
	}
}

// Status returns the owner-scoped session.
func (m *Manager) Status(ctx context.Context, sessionID string, userID uuid.UUID) (*models.Session, error) {
	return m.store.Get(ctx, sessionID, userID)
}

func (m *Manager) raced(ctx context.Context, sessionID string, userID uuid.UUID, trigger Trigger) error {
	s, err := m.store.Get(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	return &TransitionError{From: s.Status, Trigger: trigger}
}

func (m *Manager) rejected(ctx context.Context, sessionID string, trigger Trigger) error {
	s, err := m.store.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	return &TransitionError{From: s.Status, Trigger: trigger}
}
