package server

import (
	"encoding/json"
	"errors"
	"time"

	"sketchyaf/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// gormStore implements Store on the shared Postgres record store. All
// coordination state (status, deadlines, grace markers, the timer lock)
// lives in rows so the monitor is safe to run from multiple instances.
type gormStore struct {
	db *gorm.DB
}

func newGormStore(conn *gorm.DB) *gormStore {
	return &gormStore{db: conn}
}

func gameSnapshot(record db.Game) GameSnapshot {
	return GameSnapshot{
		ID:             record.ID,
		JoinCode:       record.JoinCode,
		Status:         record.Status,
		PhaseExpiresAt: record.PhaseExpiresAt,
		CurrentPlayers: record.CurrentPlayers,
		MaxPlayers:     record.MaxPlayers,
	}
}

func (s *gormStore) CreateGame(maxPlayers int) (GameSnapshot, error) {
	record := db.Game{
		ID:         uuid.NewString(),
		JoinCode:   newJoinCode(),
		Status:     statusWaiting,
		MaxPlayers: maxPlayers,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return GameSnapshot{}, err
	}
	return gameSnapshot(record), nil
}

func (s *gormStore) GetGame(id string) (GameSnapshot, error) {
	var record db.Game
	if err := s.db.Where("id = ?", id).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return GameSnapshot{}, errGameNotFound
		}
		return GameSnapshot{}, err
	}
	return gameSnapshot(record), nil
}

func (s *gormStore) FindGameByJoinCode(code string) (GameSnapshot, error) {
	var record db.Game
	if err := s.db.Where("join_code = ?", code).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return GameSnapshot{}, errGameNotFound
		}
		return GameSnapshot{}, err
	}
	return gameSnapshot(record), nil
}

func (s *gormStore) FindExpiredGames(limit int) ([]GameSnapshot, error) {
	var records []db.Game
	err := s.db.
		Where("status IN ? AND phase_expires_at IS NOT NULL AND phase_expires_at <= ?", timerGovernedStatuses, time.Now().UTC()).
		Order("phase_expires_at asc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	games := make([]GameSnapshot, 0, len(records))
	for _, record := range records {
		games = append(games, gameSnapshot(record))
	}
	return games, nil
}

// ConditionalUpdateStatus is the compare-and-swap over the game row: the
// write only lands if the status still matches what the caller saw.
func (s *gormStore) ConditionalUpdateStatus(id, expectedStatus, newStatus string, newDeadline *time.Time) (bool, error) {
	tx := s.db.Model(&db.Game{}).
		Where("id = ? AND status = ?", id, expectedStatus).
		Updates(map[string]any{
			"status":           newStatus,
			"phase_expires_at": newDeadline,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (s *gormStore) ExtendPhaseDeadline(id string, until time.Time) error {
	tx := s.db.Model(&db.Game{}).
		Where("id = ?", id).
		Update("phase_expires_at", until)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return errGameNotFound
	}
	return nil
}

func (s *gormStore) AddParticipant(gameID, name string) (PlayerInfo, GameSnapshot, error) {
	var player PlayerInfo
	var game GameSnapshot
	err := s.db.Transaction(func(tx *gorm.DB) error {
		claim := tx.Model(&db.Game{}).
			Where("id = ? AND status = ? AND current_players < max_players", gameID, statusWaiting).
			Update("current_players", gorm.Expr("current_players + 1"))
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			var record db.Game
			if err := tx.Where("id = ?", gameID).First(&record).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errGameNotFound
				}
				return err
			}
			if record.Status != statusWaiting {
				return errGameNotJoinable
			}
			return errLobbyFull
		}
		record := db.Participant{
			GameID:   gameID,
			Name:     name,
			JoinedAt: time.Now().UTC(),
		}
		if err := tx.Create(&record).Error; err != nil {
			if isUniqueViolation(err) {
				return errNameTaken
			}
			return err
		}
		var updated db.Game
		if err := tx.Where("id = ?", gameID).First(&updated).Error; err != nil {
			return err
		}
		player = PlayerInfo{ID: record.ID, Name: record.Name}
		game = gameSnapshot(updated)
		return nil
	})
	if err != nil {
		return PlayerInfo{}, GameSnapshot{}, err
	}
	return player, game, nil
}

func (s *gormStore) RemoveParticipant(gameID string, playerID uint) (GameSnapshot, error) {
	var game GameSnapshot
	err := s.db.Transaction(func(tx *gorm.DB) error {
		removed := tx.Where("game_id = ? AND id = ?", gameID, playerID).Delete(&db.Participant{})
		if removed.Error != nil {
			return removed.Error
		}
		if removed.RowsAffected == 0 {
			return errPlayerNotFound
		}
		if err := tx.Model(&db.Game{}).
			Where("id = ?", gameID).
			Update("current_players", gorm.Expr("GREATEST(current_players - 1, 0)")).Error; err != nil {
			return err
		}
		var record db.Game
		if err := tx.Where("id = ?", gameID).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errGameNotFound
			}
			return err
		}
		game = gameSnapshot(record)
		return nil
	})
	if err != nil {
		return GameSnapshot{}, err
	}
	return game, nil
}

func (s *gormStore) ListParticipants(gameID string) ([]PlayerInfo, error) {
	var records []db.Participant
	if err := s.db.Where("game_id = ?", gameID).Order("joined_at asc").Find(&records).Error; err != nil {
		return nil, err
	}
	players := make([]PlayerInfo, 0, len(records))
	for _, record := range records {
		players = append(players, PlayerInfo{ID: record.ID, Name: record.Name})
	}
	return players, nil
}

func (s *gormStore) CountParticipants(gameID string) (int, error) {
	var count int64
	if err := s.db.Model(&db.Participant{}).Where("game_id = ?", gameID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *gormStore) AddSubmission(gameID string, playerID uint, drawing json.RawMessage) error {
	record := db.Submission{
		GameID:        gameID,
		ParticipantID: playerID,
		DrawingData:   datatypes.JSON(drawing),
	}
	if err := s.db.Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			return errAlreadySubmitted
		}
		return err
	}
	return nil
}

func (s *gormStore) CountSubmissions(gameID string) (int, error) {
	var count int64
	if err := s.db.Model(&db.Submission{}).Where("game_id = ?", gameID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *gormStore) AddVote(gameID string, playerID, submissionID uint) error {
	record := db.Vote{
		GameID:        gameID,
		ParticipantID: playerID,
		SubmissionID:  submissionID,
	}
	if err := s.db.Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			return errAlreadyVoted
		}
		return err
	}
	return nil
}

func (s *gormStore) GetGrace(gameID string) (time.Time, bool, error) {
	var record db.PhaseGrace
	if err := s.db.Where("game_id = ?", gameID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return record.GraceStartedAt, true, nil
}

func (s *gormStore) CreateGrace(gameID string, startedAt time.Time) error {
	record := db.PhaseGrace{
		GameID:         gameID,
		GraceStartedAt: startedAt,
	}
	if err := s.db.Create(&record).Error; err != nil {
		// A concurrent attempt already created the marker; that is benign.
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}

func (s *gormStore) DeleteGrace(gameID string) error {
	return s.db.Where("game_id = ?", gameID).Delete(&db.PhaseGrace{}).Error
}

// AcquireLock upserts the named lock row in one statement; the conditional
// DO UPDATE means a live lock held by anyone else loses the race, while an
// expired row is overtaken without a separate janitor.
func (s *gormStore) AcquireLock(name, holderID string, timeout time.Duration) (bool, error) {
	tx := s.db.Exec(`
		INSERT INTO timer_locks (name, holder_id, acquired_at, timeout_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE
		SET holder_id = EXCLUDED.holder_id,
		    acquired_at = EXCLUDED.acquired_at,
		    timeout_seconds = EXCLUDED.timeout_seconds
		WHERE timer_locks.acquired_at + make_interval(secs => timer_locks.timeout_seconds) <= EXCLUDED.acquired_at`,
		name, holderID, time.Now().UTC(), int(timeout.Seconds()))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (s *gormStore) ReleaseLock(name string) error {
	return s.db.Where("name = ?", name).Delete(&db.TimerLock{}).Error
}

func (s *gormStore) RecordEvent(gameID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	event := db.Event{
		GameID:  gameID,
		Type:    eventType,
		Payload: datatypes.JSON(data),
	}
	return s.db.Create(&event).Error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
