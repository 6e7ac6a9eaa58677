package analysis

import (
	"context"
	"fmt"

	"github.com/edumirror/backend/internal/models"
)

// SessionReader reads session records without owner scoping.
type SessionReader interface {
	GetByID(ctx context.Context, id string) (*models.Session, error)
}

// ScriptSource yields a session's uploaded script, "" when none.
type ScriptSource interface {
	ScriptText(ctx context.Context, sessionID string) (string, error)
}

// TranscriptSource yields a session's concatenated transcript, "" when none.
type TranscriptSource interface {
	Transcript(ctx context.Context, sessionID string) (string, error)
}

// Collector gathers the AnalysisInput for a session.
type Collector struct {
	sessions    SessionReader
	scripts     ScriptSource
	transcripts TranscriptSource
}

// NewCollector creates a collector.
func NewCollector(sessions SessionReader, scripts ScriptSource, transcripts TranscriptSource) *Collector {
	return &Collector{sessions: sessions, scripts: scripts, transcripts: transcripts}
}

// Collect reads the session, its script and transcript, and the metrics
// snapshot frozen at end. Only a missing session record yields
// sessions.ErrSessionNotFound; empty sources yield empty fields.
func (c *Collector) Collect(ctx context.Context, sessionID string) (*models.AnalysisInput, error) {
	s, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	script, err := c.scripts.ScriptText(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	transcript, err := c.transcripts.Transcript(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	in := &models.AnalysisInput{
		SessionID:       s.ID,
		ScriptText:      script,
		TranscribedText: transcript,
		SessionMetadata: models.SessionMetadata{
			Title:            s.Title,
			Theme:            s.Theme,
			ExpectedDuration: s.ExpectedDuration,
			ActualDuration:   s.ElapsedSeconds(),
		},
	}
	if s.Metrics != nil {
		in.RealtimeMetrics = *s.Metrics
	}
	return in, nil
}
