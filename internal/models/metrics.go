package models

// RealtimeMetrics summarizes the telemetry gathered during a session.
type RealtimeMetrics struct {
	AvgVolume            float64 `json:"avg_volume"`
	AvgSpeakingPace      float64 `json:"avg_speaking_pace"`
	AudienceContactRatio float64 `json:"audience_contact_ratio"` // percent of gaze samples
	PageTransitions      int     `json:"page_transitions"`
	AudioSamples         int     `json:"audio_samples"`
	GazeSamples          int     `json:"gaze_samples"`
}
