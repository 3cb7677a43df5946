package server

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	errGameNotFound     = errors.New("game not found")
	errPlayerNotFound   = errors.New("player not found")
	errNameTaken        = errors.New("name already taken")
	errGameNotJoinable  = errors.New("game not joinable")
	errLobbyFull        = errors.New("lobby full")
	errAlreadySubmitted = errors.New("drawing already submitted")
	errAlreadyVoted     = errors.New("vote already cast")
)

// Store is the record-store contract the timer core and the lifecycle
// handlers run against. The gorm implementation lives in dbstore.go; the
// in-memory one below backs DB-less servers and the test suite.
type Store interface {
	CreateGame(maxPlayers int) (GameSnapshot, error)
	GetGame(id string) (GameSnapshot, error)
	FindGameByJoinCode(code string) (GameSnapshot, error)
	FindExpiredGames(limit int) ([]GameSnapshot, error)
	ConditionalUpdateStatus(id, expectedStatus, newStatus string, newDeadline *time.Time) (bool, error)
	ExtendPhaseDeadline(id string, until time.Time) error
	AddParticipant(gameID, name string) (PlayerInfo, GameSnapshot, error)
	RemoveParticipant(gameID string, playerID uint) (GameSnapshot, error)
	ListParticipants(gameID string) ([]PlayerInfo, error)
	CountParticipants(gameID string) (int, error)
	AddSubmission(gameID string, playerID uint, drawing json.RawMessage) error
	CountSubmissions(gameID string) (int, error)
	AddVote(gameID string, playerID, submissionID uint) error
	GetGrace(gameID string) (time.Time, bool, error)
	CreateGrace(gameID string, startedAt time.Time) error
	DeleteGrace(gameID string) error
	AcquireLock(name, holderID string, timeout time.Duration) (bool, error)
	ReleaseLock(name string) error
	RecordEvent(gameID, eventType string, payload any) error
}

type memPlayer struct {
	id       uint
	name     string
	joinedAt time.Time
}

type memGame struct {
	snapshot    GameSnapshot
	players     []memPlayer
	submissions map[uint]json.RawMessage
	votes       map[uint]uint
}

type memLock struct {
	holderID   string
	acquiredAt time.Time
	timeout    time.Duration
}

type memEvent struct {
	gameID    string
	eventType string
	payload   any
}

type memStore struct {
	mu           sync.Mutex
	now          func() time.Time
	nextPlayerID uint
	games        map[string]*memGame
	grace        map[string]time.Time
	locks        map[string]memLock
	events       []memEvent
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:          now,
		nextPlayerID: 1,
		games:        make(map[string]*memGame),
		grace:        make(map[string]time.Time),
		locks:        make(map[string]memLock),
	}
}

func (s *memStore) CreateGame(maxPlayers int) (GameSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game := &memGame{
		snapshot: GameSnapshot{
			ID:         uuid.NewString(),
			JoinCode:   newJoinCode(),
			Status:     statusWaiting,
			MaxPlayers: maxPlayers,
		},
		submissions: make(map[uint]json.RawMessage),
		votes:       make(map[uint]uint),
	}
	s.games[game.snapshot.ID] = game
	return game.snapshot, nil
}

func (s *memStore) GetGame(id string) (GameSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[id]
	if !ok {
		return GameSnapshot{}, errGameNotFound
	}
	return game.snapshot, nil
}

func (s *memStore) FindGameByJoinCode(code string) (GameSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, game := range s.games {
		if game.snapshot.JoinCode == code {
			return game.snapshot, nil
		}
	}
	return GameSnapshot{}, errGameNotFound
}

func (s *memStore) FindExpiredGames(limit int) ([]GameSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	expired := make([]GameSnapshot, 0)
	for _, game := range s.games {
		snap := game.snapshot
		if snap.PhaseExpiresAt == nil || snap.PhaseExpiresAt.After(now) {
			continue
		}
		governed := false
		for _, status := range timerGovernedStatuses {
			if snap.Status == status {
				governed = true
				break
			}
		}
		if governed {
			expired = append(expired, snap)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].PhaseExpiresAt.Before(*expired[j].PhaseExpiresAt)
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (s *memStore) ConditionalUpdateStatus(id, expectedStatus, newStatus string, newDeadline *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[id]
	if !ok || game.snapshot.Status != expectedStatus {
		return false, nil
	}
	game.snapshot.Status = newStatus
	game.snapshot.PhaseExpiresAt = newDeadline
	return true, nil
}

func (s *memStore) ExtendPhaseDeadline(id string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[id]
	if !ok {
		return errGameNotFound
	}
	deadline := until
	game.snapshot.PhaseExpiresAt = &deadline
	return nil
}

func (s *memStore) AddParticipant(gameID, name string) (PlayerInfo, GameSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return PlayerInfo{}, GameSnapshot{}, errGameNotFound
	}
	if game.snapshot.Status != statusWaiting {
		return PlayerInfo{}, GameSnapshot{}, errGameNotJoinable
	}
	if game.snapshot.CurrentPlayers >= game.snapshot.MaxPlayers {
		return PlayerInfo{}, GameSnapshot{}, errLobbyFull
	}
	for _, player := range game.players {
		if player.name == name {
			return PlayerInfo{}, GameSnapshot{}, errNameTaken
		}
	}
	player := memPlayer{
		id:       s.nextPlayerID,
		name:     name,
		joinedAt: s.now(),
	}
	s.nextPlayerID++
	game.players = append(game.players, player)
	game.snapshot.CurrentPlayers++
	return PlayerInfo{ID: player.id, Name: player.name}, game.snapshot, nil
}

func (s *memStore) RemoveParticipant(gameID string, playerID uint) (GameSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return GameSnapshot{}, errGameNotFound
	}
	for i, player := range game.players {
		if player.id == playerID {
			game.players = append(game.players[:i], game.players[i+1:]...)
			if game.snapshot.CurrentPlayers > 0 {
				game.snapshot.CurrentPlayers--
			}
			return game.snapshot, nil
		}
	}
	return GameSnapshot{}, errPlayerNotFound
}

func (s *memStore) ListParticipants(gameID string) ([]PlayerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return nil, errGameNotFound
	}
	players := make([]PlayerInfo, 0, len(game.players))
	for _, player := range game.players {
		players = append(players, PlayerInfo{ID: player.id, Name: player.name})
	}
	return players, nil
}

func (s *memStore) CountParticipants(gameID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return 0, errGameNotFound
	}
	return len(game.players), nil
}

func (s *memStore) AddSubmission(gameID string, playerID uint, drawing json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return errGameNotFound
	}
	if !memHasPlayer(game, playerID) {
		return errPlayerNotFound
	}
	if _, exists := game.submissions[playerID]; exists {
		return errAlreadySubmitted
	}
	game.submissions[playerID] = drawing
	return nil
}

func (s *memStore) CountSubmissions(gameID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return 0, errGameNotFound
	}
	return len(game.submissions), nil
}

func (s *memStore) AddVote(gameID string, playerID, submissionID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return errGameNotFound
	}
	if !memHasPlayer(game, playerID) {
		return errPlayerNotFound
	}
	if _, exists := game.votes[playerID]; exists {
		return errAlreadyVoted
	}
	game.votes[playerID] = submissionID
	return nil
}

func (s *memStore) GetGrace(gameID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	startedAt, ok := s.grace[gameID]
	return startedAt, ok, nil
}

func (s *memStore) CreateGrace(gameID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grace[gameID] = startedAt
	return nil
}

func (s *memStore) DeleteGrace(gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grace, gameID)
	return nil
}

func (s *memStore) AcquireLock(name, holderID string, timeout time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if lock, ok := s.locks[name]; ok && now.Before(lock.acquiredAt.Add(lock.timeout)) {
		return false, nil
	}
	s.locks[name] = memLock{holderID: holderID, acquiredAt: now, timeout: timeout}
	return true, nil
}

func (s *memStore) ReleaseLock(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, name)
	return nil
}

func (s *memStore) RecordEvent(gameID, eventType string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, memEvent{gameID: gameID, eventType: eventType, payload: payload})
	return nil
}

func memHasPlayer(game *memGame, playerID uint) bool {
	for _, player := range game.players {
		if player.id == playerID {
			return true
		}
	}
	return false
}
