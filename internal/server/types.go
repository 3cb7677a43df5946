package server

import "time"

const (
	statusWaiting   = "waiting"
	statusBriefing  = "briefing"
	statusDrawing   = "drawing"
	statusVoting    = "voting"
	statusResults   = "results"
	statusCompleted = "completed"
	statusCancelled = "cancelled"
)

// nextStatus is the fixed server-side phase mapping. results is client-owned,
// so voting goes straight to completed.
var nextStatus = map[string]string{
	statusBriefing: statusDrawing,
	statusDrawing:  statusVoting,
	statusVoting:   statusCompleted,
}

// timerGovernedStatuses are the only statuses the monitor polls for expiry.
var timerGovernedStatuses = []string{statusBriefing, statusDrawing, statusVoting}

const (
	maxNameLength   = 20
	maxDrawingBytes = 250 * 1024
	maxLobbyPlayers = 12
)

type GameSnapshot struct {
	ID             string     `json:"id"`
	JoinCode       string     `json:"join_code"`
	Status         string     `json:"status"`
	PhaseExpiresAt *time.Time `json:"phase_expires_at"`
	CurrentPlayers int        `json:"current_players"`
	MaxPlayers     int        `json:"max_players"`
}

type PlayerInfo struct {
	ID   uint   `json:"player_id"`
	Name string `json:"name"`
}

type transitionOutcome int

const (
	transitionProcessed transitionOutcome = iota
	transitionSkipped
	transitionError
)

func (o transitionOutcome) String() string {
	switch o {
	case transitionProcessed:
		return "processed"
	case transitionSkipped:
		return "skipped"
	default:
		return "error"
	}
}
