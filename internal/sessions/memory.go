package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edumirror/backend/internal/models"
	"github.com/edumirror/backend/pkg/utils"
)

// MemoryStore is an in-process Store used by tests and local tooling.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.Session), now: time.Now}
}

// Put stores a copy of s, replacing any session with the same id.
func (m *MemoryStore) Put(s *models.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = m.now()
	}
	m.sessions[s.ID] = &cp
}

func (m *MemoryStore) Get(_ context.Context, id string, userID uuid.UUID) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

// ListProcessing returns the ids of sessions in processing, sorted by id.
func (m *MemoryStore) ListProcessing(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, s := range m.sessions {
		if s.Status == models.SessionStatusProcessing {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// cas applies fn when session id (optionally owned by userID) is in status from.
func (m *MemoryStore) cas(id string, userID *uuid.UUID, from models.SessionStatus, fn func(s *models.Session)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != from || (userID != nil && s.UserID != *userID) {
		return false
	}
	fn(s)
	s.UpdatedAt = m.now()
	return true
}

func (m *MemoryStore) MarkStarted(_ context.Context, id string, userID uuid.UUID) (bool, error) {
	return m.cas(id, &userID, models.SessionStatusCreated, func(s *models.Session) {
		now := m.now()
		s.Status = models.SessionStatusActive
		s.StartedAt = &now
	}), nil
}

func (m *MemoryStore) MarkEnded(_ context.Context, id string, userID uuid.UUID, metrics models.RealtimeMetrics) (bool, error) {
	return m.cas(id, &userID, models.SessionStatusActive, func(s *models.Session) {
		now := m.now()
		s.Status = models.SessionStatusProcessing
		s.EndedAt = &now
		s.Metrics = &metrics
	}), nil
}

func (m *MemoryStore) MarkCompleted(_ context.Context, id string, actualDuration int) (bool, error) {
	return m.cas(id, nil, models.SessionStatusProcessing, func(s *models.Session) {
		s.Status = models.SessionStatusCompleted
		s.ActualDuration = actualDuration
	}), nil
}

func (m *MemoryStore) MarkFailed(_ context.Context, id string) (bool, error) {
	return m.cas(id, nil, models.SessionStatusProcessing, func(s *models.Session) {
		s.Status = models.SessionStatusFailed
	}), nil
}

// ListByUser mirrors Repository.ListByUser without scores.
func (m *MemoryStore) ListByUser(_ context.Context, userID uuid.UUID, page, limit int, theme string) ([]models.SessionSummary, int, error) {
	m.mu.RLock()
	var matched []*models.Session
	for _, s := range m.sessions {
		if s.UserID == userID && (theme == "" || s.Theme == theme) {
			matched = append(matched, s)
		}
	}
	m.mu.RUnlock()
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	list := make([]models.SessionSummary, 0, end-start)
	for _, s := range matched[start:end] {
		list = append(list, models.SessionSummary{SessionID: s.ID, Title: s.Title, Date: s.CreatedAt, Duration: s.ActualDuration, Theme: s.Theme})
	}
	return list, total, nil
}

// Create inserts a new created session with a fresh id.
func (m *MemoryStore) Create(_ context.Context, userID uuid.UUID, p CreateParams) (*models.Session, error) {
	id, err := utils.NewSessionID()
	if err != nil {
		return nil, err
	}
	now := m.now()
	s := &models.Session{
		ID:                 id,
		UserID:             userID,
		Title:              p.Title,
		Theme:              p.Theme,
		BackgroundNoise:    p.BackgroundNoise,
		AIQuestionsEnabled: p.AIQuestionsEnabled,
		ExpectedDuration:   p.ExpectedDuration,
		Status:             models.SessionStatusCreated,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	m.Put(s)
	return s, nil
}
