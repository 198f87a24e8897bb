package httpapi

import (
	"sync/atomic"

	"github.com/coder/websocket"
)

// Session phases, see handleScoreWS and API.closeIdle.
const (
	phaseActive int32 = iota
	phaseIdle
	phaseShut
)

type wsSession struct {
	conn  *websocket.Conn
	phase atomic.Int32
}

func (a *API) trackSession(s *wsSession) {
	a.sockets.Inc()
	a.mu.Lock()
	a.sessions[s] = struct{}{}
	a.mu.Unlock()
}

func (a *API) untrackSession(s *wsSession) {
	a.mu.Lock()
	delete(a.sessions, s)
	a.mu.Unlock()
	a.sockets.Dec()
}

// closeIdle closes sessions waiting for their next message. Sessions with a
// request in flight close themselves once it is answered.
func (a *API) closeIdle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for s := range a.sessions {
		if s.phase.CompareAndSwap(phaseIdle, phaseShut) {
			go func(c *websocket.Conn) { _ = c.Close(websocket.StatusGoingAway, "server shutting down") }(s.conn)
		}
	}
}
