package analysis

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/edumirror/backend/internal/models"
)

// OwnedSessionReader resolves owner-scoped sessions.
type OwnedSessionReader interface {
	Get(ctx context.Context, id string, userID uuid.UUID) (*models.Session, error)
}

// MemoryResults is an in-process Result Store used by tests. Reads are gated
// on the session being completed, like Repository.
type MemoryResults struct {
	mu       sync.Mutex
	sessions OwnedSessionReader
	results  map[string][]byte
	saves    int
	failNext error
}

// NewMemoryResults creates an empty store.
func NewMemoryResults(sessions OwnedSessionReader) *MemoryResults {
	return &MemoryResults{sessions: sessions, results: make(map[string][]byte)}
}

// FailNextSave makes the next Save return err.
func (m *MemoryResults) FailNextSave(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *MemoryResults) Save(_ context.Context, sessionID string, r *models.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	m.results[sessionID] = b
	m.saves++
	return nil
}

func (m *MemoryResults) Get(ctx context.Context, sessionID string, userID uuid.UUID) (*models.StoredAnalysis, error) {
	s, err := m.sessions.Get(ctx, sessionID, userID)
	if err != nil || s.Status != models.SessionStatusCompleted {
		return nil, ErrResultNotFound
	}
	m.mu.Lock()
	b, ok := m.results[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrResultNotFound
	}
	out := &models.StoredAnalysis{SessionID: sessionID}
	if err := json.Unmarshal(b, &out.AnalysisResult); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MemoryResults) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.results, sessionID)
	return nil
}

// Stored reports whether a result exists for sessionID, regardless of session status.
func (m *MemoryResults) Stored(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.results[sessionID]
	return ok
}

// Saves reports how many results were written.
func (m *MemoryResults) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
