package server

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

// wsHub fans published payloads out to websocket subscribers, keyed by
// channel name ("game-<id>", "presence-<id>", "user-<n>").
type wsHub struct {
	mu       sync.Mutex
	channels map[string]map[*websocket.Conn]struct{}
}

func newWSHub() *wsHub {
	return &wsHub{
		channels: make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (h *wsHub) Subscribe(channel string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.channels[channel]
	if group == nil {
		group = make(map[*websocket.Conn]struct{})
		h.channels[channel] = group
	}
	group[conn] = struct{}{}
}

func (h *wsHub) RemoveConn(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel, group := range h.channels {
		delete(group, conn)
		if len(group) == 0 {
			delete(h.channels, channel)
		}
	}
	_ = conn.Close()
}

// Publish writes the payload to every subscriber of the channel. Dead
// connections are pruned; socket failures are not publish failures.
func (h *wsHub) Publish(channel string, data []byte) error {
	h.mu.Lock()
	group := h.channels[channel]
	conns := make([]*websocket.Conn, 0, len(group))
	for conn := range group {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.RemoveConn(conn)
		}
	}
	return nil
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	game, err := s.store.GetGame(gameID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	log.Printf("ws connected game_id=%s remote=%s", gameID, r.RemoteAddr)
	s.ws.Subscribe(gameChannel(gameID), conn)
	s.ws.Subscribe(presenceChannel(gameID), conn)
	if raw := r.URL.Query().Get("player_id"); raw != "" {
		if playerID, err := strconv.ParseUint(raw, 10, 32); err == nil {
			s.ws.Subscribe(userChannel(uint(playerID)), conn)
		}
	}
	s.sendSnapshot(conn, game)
	go s.readWS(gameID, conn)
}

// sendSnapshot gives a fresh subscriber the current game state so it does
// not depend on catching the next broadcast.
func (s *Server) sendSnapshot(conn *websocket.Conn, game GameSnapshot) {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteJSON(map[string]any{
		"type": "snapshot",
		"game": game,
	})
}

func (s *Server) readWS(gameID string, conn *websocket.Conn) {
	defer s.ws.RemoveConn(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Printf("ws disconnected game_id=%s error=%v", gameID, err)
			return
		}
	}
}
