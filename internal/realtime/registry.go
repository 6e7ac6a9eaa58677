package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/edumirror/backend/pkg/utils"
)

// ErrInvalidSession is returned when a connection is admitted with an empty or malformed session ID.
var ErrInvalidSession = errors.New("invalid session id")

// Conn is a live realtime connection tagged with one session for its lifetime.
type Conn interface {
	ID() string
	SessionID() string
	// Open reports whether the connection can still accept messages.
	Open() bool
	// Send queues data without blocking; false means the message was dropped.
	Send(data []byte) bool
}

// Relay fans messages out across server instances (see RedisRelay).
type Relay interface {
	Publish(ctx context.Context, sessionID string, payload []byte) error
	Subscribe(sessionID string, handler func(payload []byte)) (cancel func(), err error)
}

// sessionSet is the connection set of one session, guarded by its own lock.
// evicted is set once the set is unlinked from the registry; admissions that
// observe it retry against a fresh set.
type sessionSet struct {
	mu          sync.RWMutex
	conns       map[string]Conn
	evicted     bool
	subscribing bool
	unsubscribe func()
}

// Registration is the handle returned by Admit and consumed by Remove.
type Registration struct {
	sessionID string
	connID    string
	set       *sessionSet
	once      sync.Once
}

// SessionID returns the session the registration belongs to.
func (r *Registration) SessionID() string { return r.sessionID }

// Registry maps session_id -> set of live connections.
// Sessions are independent entries in a sync.Map, so operations on different
// sessions never contend on a shared lock.
type Registry struct {
	sessions sync.Map // string -> *sessionSet
	relay    Relay
	logger   *zap.Logger
}

// NewRegistry creates a connection registry. relay may be nil for a single instance.
func NewRegistry(logger *zap.Logger, relay Relay) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{relay: relay, logger: logger}
}

// Admit adds conn to the set of sessionID, creating the set if absent.
func (r *Registry) Admit(sessionID string, conn Conn) (*Registration, error) {
	if !utils.ValidSessionID(sessionID) {
		return nil, ErrInvalidSession
	}
	if conn == nil {
		return nil, errors.New("nil connection")
	}
	for {
		v, _ := r.sessions.LoadOrStore(sessionID, &sessionSet{conns: make(map[string]Conn)})
		set := v.(*sessionSet)
		set.mu.Lock()
		if set.evicted {
			set.mu.Unlock()
			continue
		}
		set.conns[conn.ID()] = conn
		subscribe := r.relay != nil && set.unsubscribe == nil && !set.subscribing
		if subscribe {
			set.subscribing = true
		}
		count := len(set.conns)
		set.mu.Unlock()

		if subscribe {
			r.subscribe(sessionID, set)
		}

		r.logger.Debug("connection admitted",
			zap.String("session_id", sessionID),
			zap.String("conn_id", conn.ID()),
			zap.Int("connections", count),
		)
		return &Registration{sessionID: sessionID, connID: conn.ID(), set: set}, nil
	}
}

// subscribe attaches set to the relay without holding its lock, so a slow
// relay never blocks Broadcast or other admissions for the session.
func (r *Registry) subscribe(sessionID string, set *sessionSet) {
	cancel, err := r.relay.Subscribe(sessionID, func(payload []byte) {
		r.Broadcast(sessionID, json.RawMessage(payload))
	})
	set.mu.Lock()
	set.subscribing = false
	if err == nil && !set.evicted {
		set.unsubscribe = cancel
		cancel = nil
	}
	set.mu.Unlock()
	if err != nil {
		r.logger.Warn("relay subscribe failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if cancel != nil {
		// the session was evicted while subscribing
		cancel()
	}
}

// Remove drops the registered connection. It is idempotent; removing the last
// connection of a session evicts the session entry.
func (r *Registry) Remove(reg *Registration) {
	if reg == nil {
		return
	}
	reg.once.Do(func() {
		set := reg.set
		var cancel func()
		set.mu.Lock()
		delete(set.conns, reg.connID)
		remaining := len(set.conns)
		if remaining == 0 {
			set.evicted = true
			r.sessions.CompareAndDelete(reg.sessionID, set)
			cancel, set.unsubscribe = set.unsubscribe, nil
		}
		set.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		r.logger.Debug("connection removed",
			zap.String("session_id", reg.sessionID),
			zap.String("conn_id", reg.connID),
			zap.Int("connections", remaining),
		)
	})
}

// Broadcast sends message to every open connection of sessionID and returns
// how many accepted it. Closed connections are skipped and full send buffers
// drop the message; an unknown session is a no-op.
func (r *Registry) Broadcast(sessionID string, message interface{}) int {
	v, ok := r.sessions.Load(sessionID)
	if !ok {
		return 0
	}
	data, err := encode(message)
	if err != nil {
		r.logger.Error("broadcast encode failed", zap.String("session_id", sessionID), zap.Error(err))
		return 0
	}

	set := v.(*sessionSet)
	set.mu.RLock()
	conns := make([]Conn, 0, len(set.conns))
	for _, c := range set.conns {
		conns = append(conns, c)
	}
	set.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		if !c.Open() {
			continue
		}
		if c.Send(data) {
			delivered++
			continue
		}
		r.logger.Debug("send buffer full, message dropped", zap.String("session_id", sessionID), zap.String("conn_id", c.ID()))
	}
	return delivered
}

// Publish delivers message to the session's connections on every instance via
// the relay, or locally when no relay is configured.
func (r *Registry) Publish(ctx context.Context, sessionID string, message interface{}) error {
	if r.relay == nil {
		r.Broadcast(sessionID, message)
		return nil
	}
	data, err := encode(message)
	if err != nil {
		return err
	}
	return r.relay.Publish(ctx, sessionID, data)
}

// Count returns the number of live connections registered for sessionID.
func (r *Registry) Count(sessionID string) int {
	v, ok := r.sessions.Load(sessionID)
	if !ok {
		return 0
	}
	set := v.(*sessionSet)
	set.mu.RLock()
	defer set.mu.RUnlock()
	return len(set.conns)
}

// Sessions returns the number of sessions with at least one live connection.
func (r *Registry) Sessions() int {
	n := 0
	r.sessions.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

func encode(message interface{}) ([]byte, error) {
	switch v := message.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(message)
	}
}
