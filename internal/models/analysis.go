package models

import "time"

// SessionMetadata is the slice of the session record fed to analysis.
type SessionMetadata struct {
	Title            string `json:"title"`
	Theme            string `json:"theme"`
	ExpectedDuration int    `json:"expected_duration"`
	ActualDuration   int    `json:"actual_duration"`
}

// AnalysisInput aggregates everything the analysis capability needs for one session.
type AnalysisInput struct {
	SessionID       string          `json:"session_id"`
	ScriptText      string          `json:"script_text"`
	TranscribedText string          `json:"transcribed_text"`
	SessionMetadata SessionMetadata `json:"session_metadata"`
	RealtimeMetrics RealtimeMetrics `json:"realtime_metrics"`
}

// DetailedScores are the four required sub-scores of an analysis.
type DetailedScores struct {
	Expression    float64 `json:"expression"`
	Comprehension float64 `json:"comprehension"`
	Delivery      float64 `json:"delivery"`
	Engagement    float64 `json:"engagement"`
}

// Suggestion is one improvement item attached to an analysis.
type Suggestion struct {
	Category         string `json:"category"`
	Severity         string `json:"severity"`
	Description      string `json:"description"`
	SpecificFeedback string `json:"specific_feedback,omitempty"`
	ImprovementTip   string `json:"improvement_tip,omitempty"`
}

// AnalysisResult is the persisted outcome of analyzing a session.
type AnalysisResult struct {
	OverallScore     float64                `json:"overall_score"`
	DetailedScores   DetailedScores         `json:"detailed_scores"`
	SpeechAnalysis   map[string]interface{} `json:"speech_analysis,omitempty"`
	ContentAnalysis  map[string]interface{} `json:"content_analysis,omitempty"`
	DeliveryAnalysis map[string]interface{} `json:"delivery_analysis,omitempty"`
	Suggestions      []Suggestion           `json:"suggestions"`
	Fallback         bool                   `json:"fallback"`
	AnalyzedAt       time.Time              `json:"analyzed_at"`
}

// StoredAnalysis is an AnalysisResult read back for a session.
type StoredAnalysis struct {
	SessionID string `json:"session_id"`
	AnalysisResult
}

// ScriptAnalysis is the quick analysis of an uploaded script.
type ScriptAnalysis struct {
	WordCount         int      `json:"word_count"`
	EstimatedDuration int      `json:"estimated_duration"`
	KeyTopics         []string `json:"key_topics"`
}

// Question is a practice question generated for a session.
type Question struct {
	QuestionID             string `json:"question_id"`
	Text                   string `json:"text"`
	Difficulty             string `json:"difficulty"`
	ExpectedAnswerDuration int    `json:"expected_answer_duration"`
}
