package realtime

import (
	"context"
	"sync"
	"sync/atomic"
)

type fakeConn struct {
	id        string
	sessionID string
	open      atomic.Bool
	capacity  int

	mu   sync.Mutex
	sent [][]byte
}

func newFakeConn(id, sessionID string) *fakeConn {
	c := &fakeConn{id: id, sessionID: sessionID, capacity: -1}
	c.open.Store(true)
	return c
}

func (c *fakeConn) ID() string        { return c.id }
func (c *fakeConn) SessionID() string { return c.sessionID }
func (c *fakeConn) Open() bool        { return c.open.Load() }

func (c *fakeConn) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capacity >= 0 && len(c.sent) >= c.capacity {
		return false
	}
	c.sent = append(c.sent, data)
	return true
}

func (c *fakeConn) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages map[string][]interface{}
}

func (b *recordingBroadcaster) Broadcast(sessionID string, message interface{}) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.messages == nil {
		b.messages = make(map[string][]interface{})
	}
	b.messages[sessionID] = append(b.messages[sessionID], message)
	return 1
}

func (b *recordingBroadcaster) sent(sessionID string) []interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.messages[sessionID]
}

type fakeRelay struct {
	// gate, when set, holds Subscribe until it is closed; entered is
	// signalled as Subscribe starts waiting.
	gate    chan struct{}
	entered chan struct{}
	// failNext is returned by the next Subscribe.
	failNext error

	mu        sync.Mutex
	handlers  map[string]func([]byte)
	cancelled map[string]int
	published map[string][][]byte
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		handlers:  make(map[string]func([]byte)),
		cancelled: make(map[string]int),
		published: make(map[string][][]byte),
	}
}

func (r *fakeRelay) Subscribe(sessionID string, handler func([]byte)) (func(), error) {
	if r.gate != nil {
		if r.entered != nil {
			r.entered <- struct{}{}
		}
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failNext; err != nil {
		r.failNext = nil
		return nil, err
	}
	r.handlers[sessionID] = handler
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.handlers, sessionID)
		r.cancelled[sessionID]++
	}, nil
}

func (r *fakeRelay) deliver(sessionID string, payload []byte) {
	r.mu.Lock()
	h := r.handlers[sessionID]
	r.mu.Unlock()
	if h != nil {
		h(payload)
	}
}

func (r *fakeRelay) Publish(_ context.Context, sessionID string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[sessionID] = append(r.published[sessionID], payload)
	return nil
}
