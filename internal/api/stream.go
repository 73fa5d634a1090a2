package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Tyrannozavr/steamParser/internal/timeline"
)

// streamDecisions is a trimmed-down descendant of the teacher's
// multi-channel dashboard hub (control_plane/ws_hub.go): one topic
// only (scheduling events), no replay buffer, no auth-bypassed public
// channel. It is operator tooling for tailing live tick/publish/
// recovery events, not the presentation layer the Non-goals exclude.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Hub struct {
	mu   sync.Mutex
	conns map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]bool)}
}

func (h *Hub) Broadcast(e timeline.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if err := c.WriteJSON(e); err != nil {
			c.Close()
			delete(h.conns, c)
		}
	}
}

func (s *Server) streamDecisions(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("api: websocket upgrade failed")
		return
	}
	if s.hub == nil {
		conn.Close()
		return
	}
	s.hub.mu.Lock()
	s.hub.conns[conn] = true
	s.hub.mu.Unlock()

	go func() {
		defer func() {
			s.hub.mu.Lock()
			delete(s.hub.conns, conn)
			s.hub.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
