package server

import (
	"net/http"
	"time"

	"sketchyaf/internal/config"

	"gorm.io/gorm"
)

type Server struct {
	store       Store
	db          *gorm.DB
	ws          *wsHub
	broadcaster *broadcaster
	cfg         config.Config
	now         func() time.Time
}

// New builds a Server backed by Postgres when conn is non-nil, otherwise by
// the in-memory store (single-instance and test runs).
func New(conn *gorm.DB, cfg config.Config) *Server {
	now := timeNowUTC
	var store Store
	if conn != nil {
		store = newGormStore(conn)
	} else {
		store = newMemStore(now)
	}
	hub := newWSHub()
	return &Server{
		store:       store,
		db:          conn,
		ws:          hub,
		broadcaster: newBroadcaster(hub, cfg, now),
		cfg:         cfg,
		now:         now,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/games", s.handleCreateGame)
	mux.HandleFunc("GET /api/games/{id}", s.handleGetGame)
	mux.HandleFunc("POST /api/games/{id}/join", s.handleJoinGame)
	mux.HandleFunc("POST /api/games/{id}/leave", s.handleLeaveGame)
	mux.HandleFunc("POST /api/games/{id}/start", s.handleStartGame)
	mux.HandleFunc("POST /api/games/{id}/submissions", s.handleSubmission)
	mux.HandleFunc("POST /api/games/{id}/votes", s.handleVote)
	mux.HandleFunc("GET /ws/games/{id}", s.handleWebsocket)
	mux.HandleFunc("POST /internal/monitor-timers", s.handleMonitorTimers)
	return mux
}
