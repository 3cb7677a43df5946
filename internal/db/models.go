package db

import (
	"time"

	"gorm.io/datatypes"
)

type Game struct {
	ID             string     `gorm:"primaryKey;size:36"`
	JoinCode       string     `gorm:"size:12;uniqueIndex;not null"`
	Status         string     `gorm:"size:32;not null;index:idx_games_status_expiry"`
	PhaseExpiresAt *time.Time `gorm:"index:idx_games_status_expiry"`
	CurrentPlayers int        `gorm:"not null;default:0"`
	MaxPlayers     int        `gorm:"not null;default:0"`
	CreatedAt      time.Time  `gorm:"not null"`
	UpdatedAt      time.Time  `gorm:"not null"`
	Participants   []Participant
	Submissions    []Submission
	Votes          []Vote
	Events         []Event
}

type Participant struct {
	ID        uint      `gorm:"primaryKey"`
	GameID    string    `gorm:"size:36;index;not null;uniqueIndex:idx_participants_game_name"`
	Name      string    `gorm:"size:64;not null;uniqueIndex:idx_participants_game_name"`
	JoinedAt  time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type Submission struct {
	ID            uint           `gorm:"primaryKey"`
	GameID        string         `gorm:"size:36;index;not null;uniqueIndex:idx_submissions_game_participant"`
	ParticipantID uint           `gorm:"index;not null;uniqueIndex:idx_submissions_game_participant"`
	DrawingData   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt     time.Time      `gorm:"not null"`
	UpdatedAt     time.Time      `gorm:"not null"`
}

type Vote struct {
	ID            uint      `gorm:"primaryKey"`
	GameID        string    `gorm:"size:36;index;not null;uniqueIndex:idx_votes_game_participant"`
	ParticipantID uint      `gorm:"index;not null;uniqueIndex:idx_votes_game_participant"`
	SubmissionID  uint      `gorm:"index;not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// PhaseGrace marks a game inside its post-drawing grace window.
// At most one row per game; rows only ever exist for the drawing phase.
type PhaseGrace struct {
	GameID         string    `gorm:"primaryKey;size:36"`
	GraceStartedAt time.Time `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

// TimerLock is the advisory lock backing timer monitoring. A row is live
// while acquired_at + timeout_seconds is in the future; stale rows are
// overtaken on the next acquire.
type TimerLock struct {
	Name           string    `gorm:"primaryKey;size:64"`
	HolderID       string    `gorm:"size:128;not null"`
	AcquiredAt     time.Time `gorm:"not null"`
	TimeoutSeconds int       `gorm:"not null"`
}

type Event struct {
	ID        uint           `gorm:"primaryKey"`
	GameID    string         `gorm:"size:36;index;not null"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
