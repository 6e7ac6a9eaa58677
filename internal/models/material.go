package models

import "time"

// Material holds the presentation material uploaded for a session.
type Material struct {
	SessionID         string          `json:"session_id"`
	ScriptText        string          `json:"script_text"`
	PresentationKey   string          `json:"presentation_key,omitempty"`
	PresentationPages int             `json:"page_count"`
	ScriptAnalysis    *ScriptAnalysis `json:"script_analysis,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TranscriptSegment is externally transcribed speech for a session.
type TranscriptSegment struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	AudioKey  string    `json:"audio_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
