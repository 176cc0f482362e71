package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"netscout/internal/scan"
)

// Frame types sent over the event stream.
const (
	FrameSnapshot     = "snapshot"
	FrameHostUpdated  = "host.updated"
	FrameProgress     = "progress"
	FramePhaseDone    = "phase.done"
	FrameSessionDone  = "session.done"
	FrameDeepScanDone = "deepscan.done"
)

func (s *Server) listener() scan.Listener {
	return scan.Listener{
		HostUpdated:  func(rec scan.HostRecord) { s.broadcast(FrameHostUpdated, rec) },
		Progress:     func(p scan.Progress) { s.broadcast(FrameProgress, p) },
		PhaseDone:    func(pd scan.PhaseDone) { s.broadcast(FramePhaseDone, pd) },
		SessionDone:  func(sum scan.Summary) { s.broadcast(FrameSessionDone, sum) },
		DeepScanDone: func(res scan.DeepScanResult) { s.broadcast(FrameDeepScanDone, res) },
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugw("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	// Seed the client before registering it, so nothing else can touch the
	// channel yet and the client does not have to poll for current state.
	snapshot := struct {
		Status statusResponse    `json:"status"`
		Hosts  []scan.HostRecord `json:"hosts"`
	}{Status: s.status(), Hosts: s.engine.Hosts()}
	if payload, err := json.Marshal(Frame{Type: FrameSnapshot, Time: time.Now().UTC(), Data: snapshot}); err == nil {
		c.send <- payload
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.writePump(c)
	s.readPump(c)
}

func (s *Server) broadcast(eventType string, data any) {
	payload, err := json.Marshal(Frame{Type: eventType, Time: time.Now().UTC(), Data: data})
	if err != nil {
		s.log.Warnw("Dropping event that failed to marshal", "type", eventType, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			// A full buffer means the client stopped reading; cut it loose
			// rather than stall the event path.
			s.dropLocked(c)
		}
	}
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(c)
}

func (s *Server) dropLocked(c *client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.send)
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

// writePump drains the client's send channel to the socket and keeps the
// connection alive with pings. It exits when the channel is closed or a write
// fails.
func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes and discards client messages until the connection drops,
// keeping pong handling alive.
func (s *Server) readPump(c *client) {
	defer func() {
		s.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
