package server

import "fmt"

type eventKind int

const (
	eventPhaseChanged eventKind = iota
	eventMatchFound
	eventPlayerJoined
	eventPlayerLeft
)

func (k eventKind) String() string {
	switch k {
	case eventPhaseChanged:
		return "phase_changed"
	case eventMatchFound:
		return "match_found"
	case eventPlayerJoined:
		return "player_joined"
	case eventPlayerLeft:
		return "player_left"
	default:
		return "unknown"
	}
}

// channels maps an event kind to its target channel set: always the game
// channel, plus per-user channels for match_found and the presence channel
// for join/leave.
func (k eventKind) channels(gameID string, userIDs []uint) []string {
	channels := []string{gameChannel(gameID)}
	switch k {
	case eventMatchFound:
		for _, id := range userIDs {
			channels = append(channels, userChannel(id))
		}
	case eventPlayerJoined, eventPlayerLeft:
		channels = append(channels, presenceChannel(gameID))
	}
	return channels
}

func gameChannel(gameID string) string {
	return "game-" + gameID
}

func userChannel(playerID uint) string {
	return fmt.Sprintf("user-%d", playerID)
}

func presenceChannel(gameID string) string {
	return "presence-" + gameID
}

// GameEvent is the wire shape delivered over the pub/sub channels. Delivery
// is at-least-once; consumers must apply events idempotently and treat them
// as hints, polling game state as the correctness backstop.
type GameEvent struct {
	Type      string `json:"type"`
	GameID    string `json:"gameId"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Data      any    `json:"data"`
}

type PhaseChangeData struct {
	PreviousPhase  string `json:"previousPhase"`
	NewPhase       string `json:"newPhase"`
	PhaseStartedAt string `json:"phaseStartedAt"`
	ExecutionID    string `json:"executionId"`
}

type MatchFoundData struct {
	JoinCode string       `json:"joinCode"`
	Players  []PlayerInfo `json:"players"`
}

type PresenceData struct {
	PlayerID   uint   `json:"playerId"`
	PlayerName string `json:"playerName"`
	Count      int    `json:"count"`
}
