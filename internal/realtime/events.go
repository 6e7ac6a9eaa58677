package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType is the declared type tag of an inbound realtime message.
type EventType string

const (
	EventAudioChunk EventType = "audio_chunk"
	EventPageTurn   EventType = "page_turn"
	EventGazeData   EventType = "gaze_data"
)

var (
	// ErrUnknownEventType is returned for a type tag outside the known set.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrMalformedEvent is returned when a recognized event lacks a required field.
	ErrMalformedEvent = errors.New("malformed event")
)

// Event is one of AudioChunk, PageTurn or GazeData.
type Event interface {
	Type() EventType
	// At is the client timestamp of the event.
	At() float64
	event()
}

// AudioChunk carries volume and pace measured over one audio chunk.
type AudioChunk struct {
	Timestamp    float64
	VolumeLevel  float64 // 0.0-1.0
	SpeakingPace float64 // words per minute
}

// PageTurn marks a slide transition.
type PageTurn struct {
	Timestamp float64
	PageIndex int
}

// GazeData carries the share of time the presenter looked at the audience.
type GazeData struct {
	Timestamp float64
	GazeRatio float64 // 0.0-1.0
}

func (AudioChunk) Type() EventType { return EventAudioChunk }
func (PageTurn) Type() EventType   { return EventPageTurn }
func (GazeData) Type() EventType   { return EventGazeData }

func (e AudioChunk) At() float64 { return e.Timestamp }
func (e PageTurn) At() float64   { return e.Timestamp }
func (e GazeData) At() float64   { return e.Timestamp }

func (AudioChunk) event() {}
func (PageTurn) event()   {}
func (GazeData) event()   {}

// envelope is the wire shape of every inbound message; pointers detect missing fields.
type envelope struct {
	Type         EventType `json:"type"`
	Timestamp    *float64  `json:"timestamp"`
	VolumeLevel  *float64  `json:"volume_level"`
	SpeakingPace *float64  `json:"speaking_pace"`
	PageIndex    *int      `json:"page_index"`
	GazeRatio    *float64  `json:"gaze_ratio"`
}

// DecodeEvent parses one inbound frame into its typed event.
func DecodeEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	switch env.Type {
	case EventAudioChunk, EventPageTurn, EventGazeData:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}
	if env.Timestamp == nil {
		return nil, malformed(env.Type, "timestamp")
	}
	ts := *env.Timestamp

	switch env.Type {
	case EventAudioChunk:
		if env.VolumeLevel == nil || *env.VolumeLevel < 0 || *env.VolumeLevel > 1 {
			return nil, malformed(env.Type, "volume_level")
		}
		if env.SpeakingPace == nil || *env.SpeakingPace < 0 {
			return nil, malformed(env.Type, "speaking_pace")
		}
		return AudioChunk{Timestamp: ts, VolumeLevel: *env.VolumeLevel, SpeakingPace: *env.SpeakingPace}, nil
	case EventPageTurn:
		if env.PageIndex == nil || *env.PageIndex < 0 {
			return nil, malformed(env.Type, "page_index")
		}
		return PageTurn{Timestamp: ts, PageIndex: *env.PageIndex}, nil
	default:
		if env.GazeRatio == nil || *env.GazeRatio < 0 || *env.GazeRatio > 1 {
			return nil, malformed(env.Type, "gaze_ratio")
		}
		return GazeData{Timestamp: ts, GazeRatio: *env.GazeRatio}, nil
	}
}

func malformed(t EventType, field string) error {
	return fmt.Errorf("%w: %s requires %s", ErrMalformedEvent, t, field)
}

// Outbound message types.
const (
	MessageRealtimeFeedback = "realtime_feedback"
	MessageAnalysisStatus   = "analysis_status"
)

// FeedbackVolumeLow is the feedback_type sent when the presenter is too quiet.
const FeedbackVolumeLow = "volume_low"

// Feedback is the outbound coaching envelope.
type Feedback struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	FeedbackType string `json:"feedback_type"`
}

// AnalysisStatus notifies live connections that the analysis run has finished.
type AnalysisStatus struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}
