package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumirror/backend/internal/materials"
	"github.com/edumirror/backend/internal/models"
	"github.com/edumirror/backend/internal/realtime"
	"github.com/edumirror/backend/internal/sessions"
)

const sid = "session_ab12cd34"

type capabilityFunc func(ctx context.Context, in models.AnalysisInput) (*models.AnalysisResult, error)

func (f capabilityFunc) Analyze(ctx context.Context, in models.AnalysisInput) (*models.AnalysisResult, error) {
	return f(ctx, in)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []realtime.AnalysisStatus
}

func (n *recordingNotifier) Publish(_ context.Context, _ string, msg interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg.(realtime.AnalysisStatus))
	return nil
}

type env struct {
	store    *sessions.MemoryStore
	mats     *materials.MemoryStore
	results  *MemoryResults
	notifier *recordingNotifier
	owner    uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:    sessions.NewMemoryStore(),
		mats:     materials.NewMemoryStore(),
		notifier: &recordingNotifier{},
		owner:    uuid.New(),
	}
	e.results = NewMemoryResults(e.store)
	started := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ended := started.Add(5*time.Minute + 5*time.Second)
	e.store.Put(&models.Session{
		ID: sid, UserID: e.owner, Title: "Quarterly review", Theme: "business", ExpectedDuration: 300,
		Status: models.SessionStatusProcessing, StartedAt: &started, EndedAt: &ended,
		Metrics: &models.RealtimeMetrics{AvgVolume: 0.7, AvgSpeakingPace: 150, AudienceContactRatio: 65, PageTransitions: 8},
	})
	return e
}

func (e *env) orchestrator(c Capability, timeout time.Duration) *Orchestrator {
	collector := NewCollector(e.store, e.mats, e.mats)
	lifecycle := sessions.NewManager(e.store, nil, nil, 0, nil)
	return NewOrchestrator(collector, c, e.results, lifecycle, e.notifier, timeout, nil)
}

func (e *env) status(t *testing.T) models.SessionStatus {
	t.Helper()
	s, err := e.store.GetByID(context.Background(), sid)
	require.NoError(t, err)
	return s.Status
}

func TestRunAnalysisRoundTrip(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.mats.SaveMaterial(context.Background(), models.Material{SessionID: sid, ScriptText: "Good morning"}))
	_, _ = e.mats.AddTranscript(context.Background(), models.TranscriptSegment{SessionID: sid, Text: "good morning all"})

	var got models.AnalysisInput
	want, err := ParseResult(validOutput)
	require.NoError(t, err)
	o := e.orchestrator(capabilityFunc(func(_ context.Context, in models.AnalysisInput) (*models.AnalysisResult, error) {
		got = in
		return want, nil
	}), time.Second)

	require.NoError(t, o.RunAnalysis(context.Background(), sid))

	assert.Equal(t, "Good morning", got.ScriptText)
	assert.Equal(t, "good morning all", got.TranscribedText)
	assert.Equal(t, 305, got.SessionMetadata.ActualDuration)
	assert.Equal(t, 8, got.RealtimeMetrics.PageTransitions)

	assert.Equal(t, models.SessionStatusCompleted, e.status(t))
	s, _ := e.store.GetByID(context.Background(), sid)
	assert.Equal(t, 305, s.ActualDuration)

	stored, err := e.results.Get(context.Background(), sid, e.owner)
	require.NoError(t, err)
	assert.Equal(t, sid, stored.SessionID)
	assert.Equal(t, want.OverallScore, stored.OverallScore)
	assert.Equal(t, want.DetailedScores, stored.DetailedScores)
	assert.Equal(t, want.Suggestions, stored.Suggestions)
	assert.False(t, stored.Fallback)

	assert.Equal(t, []realtime.AnalysisStatus{{Type: "analysis_status", SessionID: sid, Status: "completed"}}, e.notifier.msgs)
}

func TestRunAnalysisTimeoutStoresFallback(t *testing.T) {
	e := newEnv(t)
	o := e.orchestrator(capabilityFunc(func(ctx context.Context, _ models.AnalysisInput) (*models.AnalysisResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), 20*time.Millisecond)

	require.NoError(t, o.RunAnalysis(context.Background(), sid))

	assert.Equal(t, models.SessionStatusCompleted, e.status(t))
	stored, err := e.results.Get(context.Background(), sid, e.owner)
	require.NoError(t, err)
	assert.Equal(t, float64(FallbackScore), stored.OverallScore)
	assert.True(t, stored.Fallback)
	require.Len(t, stored.Suggestions, 1)
	assert.Equal(t, "system", stored.Suggestions[0].Category)
}

func TestRunAnalysisDegradesOnBadCapabilityOutput(t *testing.T) {
	cases := map[string]capabilityFunc{
		"error": func(context.Context, models.AnalysisInput) (*models.AnalysisResult, error) {
			return nil, errors.New("connection reset")
		},
		"nil result": func(context.Context, models.AnalysisInput) (*models.AnalysisResult, error) { return nil, nil },
		"out of range": func(context.Context, models.AnalysisInput) (*models.AnalysisResult, error) {
			return &models.AnalysisResult{OverallScore: 140}, nil
		},
		"panic": func(context.Context, models.AnalysisInput) (*models.AnalysisResult, error) { panic("boom") },
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t)
			require.NoError(t, e.orchestrator(c, time.Second).RunAnalysis(context.Background(), sid))
			assert.Equal(t, models.SessionStatusCompleted, e.status(t))
			stored, err := e.results.Get(context.Background(), sid, e.owner)
			require.NoError(t, err)
			assert.True(t, stored.Fallback)
		})
	}
}

func TestRunAnalysisMissingSessionDoesNotPersist(t *testing.T) {
	e := newEnv(t)
	o := e.orchestrator(capabilityFunc(func(context.Context, models.AnalysisInput) (*models.AnalysisResult, error) {
		t.Fatal("capability must not be called")
		return nil, nil
	}), time.Second)

	err := o.RunAnalysis(context.Background(), "session_ffffffff")
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
	assert.Zero(t, e.results.Saves())
}

func TestRunAnalysisPersistenceFailureFails(t *testing.T) {
	e := newEnv(t)
	e.results.FailNextSave(errors.New("disk full"))
	o := e.orchestrator(capabilityFunc(func(context.Context, models.AnalysisInput) (*models.AnalysisResult, error) {
		return ParseResult(validOutput)
	}), time.Second)

	err := o.RunAnalysis(context.Background(), sid)
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, models.SessionStatusFailed, e.status(t))

	_, err = e.results.Get(context.Background(), sid, e.owner)
	assert.ErrorIs(t, err, ErrResultNotFound)
	assert.Equal(t, "failed", e.notifier.msgs[len(e.notifier.msgs)-1].Status)
}

// brokenComplete fails every Complete as an unreachable database would.
type brokenComplete struct {
	Lifecycle
}

func (brokenComplete) Complete(context.Context, string, int) error {
	return errors.New("connection reset")
}

func TestRunAnalysisCompleteFailureLeavesNoResult(t *testing.T) {
	e := newEnv(t)
	collector := NewCollector(e.store, e.mats, e.mats)
	lifecycle := brokenComplete{Lifecycle: sessions.NewManager(e.store, nil, nil, 0, nil)}
	o := NewOrchestrator(collector, capabilityFunc(func(context.Context, models.AnalysisInput) (*models.AnalysisResult, error) {
		return ParseResult(validOutput)
	}), e.results, lifecycle, e.notifier, time.Second, nil)

	err := o.RunAnalysis(context.Background(), sid)
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "complete session", perr.Op)
	assert.Equal(t, models.SessionStatusFailed, e.status(t))
	assert.Equal(t, 1, e.results.Saves())
	assert.False(t, e.results.Stored(sid))
}

func TestRunAnalysisReplacesPriorResult(t *testing.T) {
	e := newEnv(t)
	o := e.orchestrator(capabilityFunc(func(context.Context, models.AnalysisInput) (*models.AnalysisResult, error) {
		return ParseResult(validOutput)
	}), time.Second)
	require.NoError(t, e.results.Save(context.Background(), sid, FallbackResult(time.Now())))
	require.NoError(t, o.RunAnalysis(context.Background(), sid))

	stored, err := e.results.Get(context.Background(), sid, e.owner)
	require.NoError(t, err)
	assert.Equal(t, 82.0, stored.OverallScore)
	assert.False(t, stored.Fallback)
}

func TestResultNotServedToOtherOwner(t *testing.T) {
	e := newEnv(t)
	o := e.orchestrator(capabilityFunc(func(context.Context, models.AnalysisInput) (*models.AnalysisResult, error) {
		return ParseResult(validOutput)
	}), time.Second)
	require.NoError(t, o.RunAnalysis(context.Background(), sid))

	_, err := e.results.Get(context.Background(), sid, uuid.New())
	assert.ErrorIs(t, err, ErrResultNotFound)
}
