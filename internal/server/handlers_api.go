package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
)

type createGameRequest struct {
	MaxPlayers int `json:"max_players"`
}

type joinRequest struct {
	Name string `json:"name"`
}

type leaveRequest struct {
	PlayerID uint `json:"player_id"`
}

type startRequest struct {
	PlayerID uint `json:"player_id"`
}

type submissionRequest struct {
	PlayerID uint            `json:"player_id"`
	Drawing  json.RawMessage `json:"drawing"`
}

type voteRequest struct {
	PlayerID     uint `json:"player_id"`
	SubmissionID uint `json:"submission_id"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if r.ContentLength > 0 {
		if err := readJSON(r.Body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
	}
	maxPlayers := req.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = s.cfg.DefaultMaxPlayers
	}
	if maxPlayers < 2 || maxPlayers > maxLobbyPlayers {
		writeError(w, http.StatusBadRequest, "max_players out of range")
		return
	}
	game, err := s.store.CreateGame(maxPlayers)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create game")
		return
	}
	log.Printf("game created game_id=%s join_code=%s max_players=%d", game.ID, game.JoinCode, game.MaxPlayers)
	writeJSON(w, http.StatusCreated, game)
}

// resolveGame accepts either a game id or a join code.
func (s *Server) resolveGame(idOrCode string) (GameSnapshot, error) {
	game, err := s.store.GetGame(idOrCode)
	if errors.Is(err, errGameNotFound) {
		return s.store.FindGameByJoinCode(idOrCode)
	}
	return game, err
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	game, err := s.resolveGame(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, errGameNotFound) {
			http.NotFound(w, r)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load game")
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxNameLength {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	game, err := s.resolveGame(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, errGameNotFound) {
			http.NotFound(w, r)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load game")
		return
	}
	player, game, err := s.store.AddParticipant(game.ID, name)
	if err != nil {
		switch {
		case errors.Is(err, errGameNotFound):
			http.NotFound(w, r)
		case errors.Is(err, errNameTaken):
			writeError(w, http.StatusConflict, "name already taken")
		case errors.Is(err, errLobbyFull):
			writeError(w, http.StatusConflict, "lobby full")
		case errors.Is(err, errGameNotJoinable):
			writeError(w, http.StatusConflict, "game already started")
		default:
			writeError(w, http.StatusInternalServerError, "failed to join game")
		}
		return
	}
	log.Printf("player joined game_id=%s player_id=%d name=%s count=%d", game.ID, player.ID, player.Name, game.CurrentPlayers)
	if err := s.store.RecordEvent(game.ID, eventPlayerJoined.String(), PresenceData{
		PlayerID:   player.ID,
		PlayerName: player.Name,
		Count:      game.CurrentPlayers,
	}); err != nil {
		log.Printf("join event persist failed game_id=%s error=%v", game.ID, err)
	}
	go s.broadcastEvent(eventPlayerJoined, game.ID, nil, PresenceData{
		PlayerID:   player.ID,
		PlayerName: player.Name,
		Count:      game.CurrentPlayers,
	})
	if game.CurrentPlayers >= game.MaxPlayers {
		s.startMatch(game)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"player_id": player.ID,
		"game_id":   game.ID,
		"status":    game.Status,
	})
}

func (s *Server) handleLeaveGame(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if err := readJSON(r.Body, &req); err != nil || req.PlayerID == 0 {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	game, err := s.store.RemoveParticipant(r.PathValue("id"), req.PlayerID)
	if err != nil {
		switch {
		case errors.Is(err, errGameNotFound), errors.Is(err, errPlayerNotFound):
			http.NotFound(w, r)
		default:
			writeError(w, http.StatusInternalServerError, "failed to leave game")
		}
		return
	}
	log.Printf("player left game_id=%s player_id=%d count=%d", game.ID, req.PlayerID, game.CurrentPlayers)
	go s.broadcastEvent(eventPlayerLeft, game.ID, nil, PresenceData{
		PlayerID: req.PlayerID,
		Count:    game.CurrentPlayers,
	})
	writeJSON(w, http.StatusOK, game)
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := readJSON(r.Body, &req); err != nil || req.PlayerID == 0 {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	game, err := s.resolveGame(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, errGameNotFound) {
			http.NotFound(w, r)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load game")
		return
	}
	if game.Status != statusWaiting {
		writeError(w, http.StatusConflict, "game already started")
		return
	}
	if game.CurrentPlayers < 2 {
		writeError(w, http.StatusConflict, "not enough players")
		return
	}
	started := s.startMatch(game)
	if !started {
		writeError(w, http.StatusConflict, "game already started")
		return
	}
	game, err = s.store.GetGame(game.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load game")
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// startMatch moves a waiting lobby into briefing and arms the first phase
// deadline. The conditional write keeps a full-lobby join and a manual start
// racing each other down to one winner.
func (s *Server) startMatch(game GameSnapshot) bool {
	now := s.now()
	updated, err := s.store.ConditionalUpdateStatus(game.ID, statusWaiting, statusBriefing, s.phaseDeadline(statusBriefing, now))
	if err != nil {
		log.Printf("match start failed game_id=%s error=%v", game.ID, err)
		return false
	}
	if !updated {
		return false
	}
	log.Printf("match started game_id=%s players=%d", game.ID, game.CurrentPlayers)
	players, err := s.store.ListParticipants(game.ID)
	if err != nil {
		log.Printf("participant list failed game_id=%s error=%v", game.ID, err)
	}
	userIDs := make([]uint, 0, len(players))
	for _, player := range players {
		userIDs = append(userIDs, player.ID)
	}
	data := MatchFoundData{JoinCode: game.JoinCode, Players: players}
	if err := s.store.RecordEvent(game.ID, eventMatchFound.String(), data); err != nil {
		log.Printf("match event persist failed game_id=%s error=%v", game.ID, err)
	}
	go s.broadcastEvent(eventMatchFound, game.ID, userIDs, data)
	return true
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if err := readJSON(r.Body, &req); err != nil || req.PlayerID == 0 {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if len(req.Drawing) == 0 || len(req.Drawing) > maxDrawingBytes {
		writeError(w, http.StatusBadRequest, "drawing missing or too large")
		return
	}
	game, err := s.store.GetGame(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, errGameNotFound) {
			http.NotFound(w, r)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load game")
		return
	}
	if game.Status != statusDrawing {
		writeError(w, http.StatusConflict, "submissions only accepted during drawing")
		return
	}
	if err := s.store.AddSubmission(game.ID, req.PlayerID, req.Drawing); err != nil {
		switch {
		case errors.Is(err, errPlayerNotFound):
			http.NotFound(w, r)
		case errors.Is(err, errAlreadySubmitted):
			writeError(w, http.StatusConflict, "drawing already submitted")
		default:
			writeError(w, http.StatusInternalServerError, "failed to store drawing")
		}
		return
	}
	log.Printf("drawing submitted game_id=%s player_id=%d", game.ID, req.PlayerID)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "submitted"})
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := readJSON(r.Body, &req); err != nil || req.PlayerID == 0 || req.SubmissionID == 0 {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	game, err := s.store.GetGame(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, errGameNotFound) {
			http.NotFound(w, r)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load game")
		return
	}
	if game.Status != statusVoting {
		writeError(w, http.StatusConflict, "votes only accepted during voting")
		return
	}
	if err := s.store.AddVote(game.ID, req.PlayerID, req.SubmissionID); err != nil {
		switch {
		case errors.Is(err, errPlayerNotFound):
			http.NotFound(w, r)
		case errors.Is(err, errAlreadyVoted):
			writeError(w, http.StatusConflict, "vote already cast")
		default:
			writeError(w, http.StatusInternalServerError, "failed to store vote")
		}
		return
	}
	log.Printf("vote cast game_id=%s player_id=%d submission_id=%d", game.ID, req.PlayerID, req.SubmissionID)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

// handleMonitorTimers is the cron-facing entry point. Unauthenticated
// invocations are rejected before any store access.
func (s *Server) handleMonitorTimers(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MonitorSecret == "" {
		writeError(w, http.StatusServiceUnavailable, "monitor secret not configured")
		return
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.MonitorSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	result := s.RunOnce()
	status := http.StatusOK
	if result.Status == monitorStatusError {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}
