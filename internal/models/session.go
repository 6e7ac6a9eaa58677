package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the rehearsal session lifecycle.
type SessionStatus string

const (
	SessionStatusCreated    SessionStatus = "created"
	SessionStatusActive     SessionStatus = "active"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

// Session is one presentation rehearsal attempt owned by a user.
type Session struct {
	ID                 string           `json:"session_id"`
	UserID             uuid.UUID        `json:"user_id"`
	Title              string           `json:"title"`
	Theme              string           `json:"theme"`
	BackgroundNoise    bool             `json:"background_noise"`
	AIQuestionsEnabled bool             `json:"ai_questions_enabled"`
	ExpectedDuration   int              `json:"expected_duration"` // seconds
	ActualDuration     int              `json:"actual_duration"`   // seconds, set at completion
	Status             SessionStatus    `json:"status"`
	StartedAt          *time.Time       `json:"started_at,omitempty"`
	EndedAt            *time.Time       `json:"ended_at,omitempty"`
	Metrics            *RealtimeMetrics `json:"realtime_metrics,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// ElapsedSeconds returns ended_at - started_at in whole seconds, or 0 when either is unset.
func (s *Session) ElapsedSeconds() int {
	if s.StartedAt == nil || s.EndedAt == nil || s.EndedAt.Before(*s.StartedAt) {
		return 0
	}
	return int(s.EndedAt.Sub(*s.StartedAt) / time.Second)
}

// SessionSummary is the list view of a session for GET /api/my/sessions.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	Date         time.Time `json:"date"`
	Duration     int       `json:"duration"`
	OverallScore *float64  `json:"overall_score"`
	Theme        string    `json:"theme"`
}
