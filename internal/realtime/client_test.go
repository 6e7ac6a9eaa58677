package realtime

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	registry := NewRegistry(nil, nil)
	router := NewRouter(registry, NewMetrics(time.Hour), DefaultVolumeThreshold, nil)
	engine := gin.New()
	engine.GET("/ws/:sessionId", ServeWs(registry, router, nil, Options{SendBuffer: 8}))
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv, registry
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServeWsRejectsInvalidSession(t *testing.T) {
	srv, registry := newWSServer(t)
	conn := dial(t, srv, "rehearsal_123")
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, CloseInvalidSession, closeErr.Code)
	assert.Equal(t, 0, registry.Sessions())
}

func TestServeWsLowVolumeFeedbackRoundTrip(t *testing.T) {
	srv, registry := newWSServer(t)
	presenter := dial(t, srv, testSession)
	observer := dial(t, srv, testSession)
	require.Eventually(t, func() bool { return registry.Count(testSession) == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, presenter.WriteMessage(websocket.TextMessage, []byte(`{"type":"unknown_kind","timestamp":1}`)))
	require.NoError(t, presenter.WriteMessage(websocket.TextMessage, []byte(`{"type":"audio_chunk","timestamp":2,"volume_level":0.1,"speaking_pace":130}`)))

	for _, c := range []*websocket.Conn{presenter, observer} {
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		var fb Feedback
		require.NoError(t, json.Unmarshal(data, &fb))
		assert.Equal(t, MessageRealtimeFeedback, fb.Type)
		assert.Equal(t, FeedbackVolumeLow, fb.FeedbackType)
	}

	_ = presenter.Close()
	_ = observer.Close()
	require.Eventually(t, func() bool { return registry.Sessions() == 0 }, 2*time.Second, 10*time.Millisecond)
}
