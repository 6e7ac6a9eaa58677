package realtime

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	maxFrameSize = 65536

	// DefaultSendBuffer is the per-connection outbound queue length.
	DefaultSendBuffer = 64
)

// Close codes used at admission.
const (
	CloseInvalidSession = websocket.ClosePolicyViolation // 1008
	CloseServerError    = websocket.CloseInternalServerErr // 1011
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // browsers on the configured CORS origins connect directly
	},
}

// Client is a single WebSocket connection tagged with one session.
type Client struct {
	id        string
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	logger    *zap.Logger
}

func newClient(sessionID string, conn *websocket.Conn, buffer int, logger *zap.Logger) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		id:        uuid.New().String(),
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
		logger:    logger,
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string { return c.id }

// SessionID returns the session the connection is tagged with.
func (c *Client) SessionID() string { return c.sessionID }

// Open reports whether the connection still accepts messages.
func (c *Client) Open() bool { return !c.closed.Load() }

// Send queues data for the write pump without blocking.
func (c *Client) Send(data []byte) bool {
	if !c.Open() {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}

// Options configures ServeWs.
type Options struct {
	SendBuffer int
}

// ServeWs upgrades GET /ws/:sessionId and runs the client loop.
// A malformed session id is refused with close code 1008; a failure while
// admitting the connection is reported with 1011.
func ServeWs(registry *Registry, router *Router, logger *zap.Logger, opts Options) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client, reg, err := admit(registry, sessionID, conn, opts, logger)
		if err != nil {
			code, reason := CloseServerError, "Server error"
			if errors.Is(err, ErrInvalidSession) {
				code, reason = CloseInvalidSession, "Invalid session ID"
			} else {
				logger.Error("websocket admission failed", zap.String("session_id", sessionID), zap.Error(err))
			}
			closeWith(conn, code, reason)
			return
		}
		logger.Info("websocket connected", zap.String("session_id", sessionID), zap.String("conn_id", client.id))

		go client.writePump()
		client.readPump(router)

		registry.Remove(reg)
		logger.Info("websocket disconnected", zap.String("session_id", sessionID), zap.String("conn_id", client.id))
	}
}

func admit(registry *Registry, sessionID string, conn *websocket.Conn, opts Options, logger *zap.Logger) (client *Client, reg *Registration, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic during websocket admission", zap.Any("panic", p))
			client, reg, err = nil, nil, errors.New("admission panic")
		}
	}()
	client = newClient(sessionID, conn, opts.SendBuffer, logger)
	reg, err = registry.Admit(sessionID, client)
	if err != nil {
		return nil, nil, err
	}
	return client, reg, nil
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}

func (c *Client) readPump(router *Router) {
	defer func() {
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
		_ = router.Route(c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
