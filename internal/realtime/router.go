package realtime

import (
	"errors"

	"go.uber.org/zap"
)

// DefaultVolumeThreshold is the volume level below which volume_low feedback is sent.
const DefaultVolumeThreshold = 0.3

const volumeLowMessage = "Try speaking a little louder"

// Broadcaster delivers a message to every live connection of a session.
type Broadcaster interface {
	Broadcast(sessionID string, message interface{}) int
}

// Recorder accumulates telemetry for later analysis.
type Recorder interface {
	RecordAudio(sessionID string, volume, pace float64) bool
	RecordPageTurn(sessionID string) bool
	RecordGaze(sessionID string, ratio float64) bool
}

// Router classifies inbound frames and dispatches them per event type.
type Router struct {
	broadcaster     Broadcaster
	recorder        Recorder
	volumeThreshold float64
	logger          *zap.Logger
}

// NewRouter creates a telemetry router. A threshold outside (0,1] falls back to DefaultVolumeThreshold.
func NewRouter(broadcaster Broadcaster, recorder Recorder, volumeThreshold float64, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if volumeThreshold <= 0 || volumeThreshold > 1 {
		volumeThreshold = DefaultVolumeThreshold
	}
	return &Router{broadcaster: broadcaster, recorder: recorder, volumeThreshold: volumeThreshold, logger: logger}
}

// Route decodes raw and handles it for conn's session. Unknown and malformed
// frames are logged and dropped; the returned error is informational only.
func (r *Router) Route(conn Conn, raw []byte) error {
	ev, err := DecodeEvent(raw)
	if err != nil {
		fields := []zap.Field{zap.String("session_id", conn.SessionID()), zap.String("conn_id", conn.ID()), zap.Error(err)}
		if errors.Is(err, ErrUnknownEventType) {
			r.logger.Warn("unknown realtime message type", fields...)
		} else {
			r.logger.Warn("malformed realtime message dropped", fields...)
		}
		return err
	}
	r.Handle(conn.SessionID(), ev)
	return nil
}

// Handle dispatches a decoded event for sessionID.
func (r *Router) Handle(sessionID string, ev Event) {
	switch e := ev.(type) {
	case AudioChunk:
		r.recorder.RecordAudio(sessionID, e.VolumeLevel, e.SpeakingPace)
		if e.VolumeLevel < r.volumeThreshold {
			r.broadcaster.Broadcast(sessionID, Feedback{
				Type:         MessageRealtimeFeedback,
				Message:      volumeLowMessage,
				FeedbackType: FeedbackVolumeLow,
			})
		}
	case PageTurn:
		r.recorder.RecordPageTurn(sessionID)
		r.logger.Debug("page turn", zap.String("session_id", sessionID), zap.Int("page_index", e.PageIndex))
	case GazeData:
		r.recorder.RecordGaze(sessionID, e.GazeRatio)
	}
}
