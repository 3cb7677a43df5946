package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	BriefingDurationSeconds   int
	DrawingDurationSeconds    int
	VotingDurationSeconds     int
	GraceSeconds              int
	DefaultMaxPlayers         int
	MonitorSecret             string
	MonitorIntervalSeconds    int
	MonitorLockTimeoutSeconds int
	MonitorBudgetSeconds      int
	MonitorBatchLimit         int
	MonitorChunkSize          int
	BroadcastAttempts         int
	BroadcastBackoffMillis    int
	BroadcastTimeoutSeconds   int
	MaxEventPayloadBytes      int
	DBMaxOpenConns            int
	DBMaxIdleConns            int
	DBConnMaxLifetimeSeconds  int
	DBConnMaxIdleTimeSeconds  int
}

func Default() Config {
	return Config{
		BriefingDurationSeconds:   20,
		DrawingDurationSeconds:    60,
		VotingDurationSeconds:     30,
		GraceSeconds:              15,
		DefaultMaxPlayers:         4,
		MonitorIntervalSeconds:    0,
		MonitorLockTimeoutSeconds: 60,
		MonitorBudgetSeconds:      50,
		MonitorBatchLimit:         50,
		MonitorChunkSize:          5,
		BroadcastAttempts:         3,
		BroadcastBackoffMillis:    1000,
		BroadcastTimeoutSeconds:   10,
		MaxEventPayloadBytes:      32 * 1024,
		DBMaxOpenConns:            10,
		DBMaxIdleConns:            10,
		DBConnMaxLifetimeSeconds:  300,
		DBConnMaxIdleTimeSeconds:  60,
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("BRIEFING_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.BriefingDurationSeconds = value
		}
	}
	if raw := os.Getenv("DRAWING_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DrawingDurationSeconds = value
		}
	}
	if raw := os.Getenv("VOTING_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.VotingDurationSeconds = value
		}
	}
	if raw := os.Getenv("GRACE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.GraceSeconds = value
		}
	}
	if raw := os.Getenv("DEFAULT_MAX_PLAYERS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 1 {
			cfg.DefaultMaxPlayers = value
		}
	}
	if raw := os.Getenv("MONITOR_SECRET"); raw != "" {
		cfg.MonitorSecret = raw
	}
	if raw := os.Getenv("MONITOR_INTERVAL_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value >= 0 {
			cfg.MonitorIntervalSeconds = value
		}
	}
	if raw := os.Getenv("MONITOR_LOCK_TIMEOUT_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.MonitorLockTimeoutSeconds = value
		}
	}
	if raw := os.Getenv("MONITOR_BUDGET_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.MonitorBudgetSeconds = value
		}
	}
	if raw := os.Getenv("MONITOR_BATCH_LIMIT"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.MonitorBatchLimit = value
		}
	}
	if raw := os.Getenv("MONITOR_CHUNK_SIZE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.MonitorChunkSize = value
		}
	}
	if raw := os.Getenv("BROADCAST_ATTEMPTS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.BroadcastAttempts = value
		}
	}
	if raw := os.Getenv("BROADCAST_BACKOFF_MILLIS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.BroadcastBackoffMillis = value
		}
	}
	if raw := os.Getenv("BROADCAST_TIMEOUT_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.BroadcastTimeoutSeconds = value
		}
	}
	if raw := os.Getenv("MAX_EVENT_PAYLOAD_BYTES"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.MaxEventPayloadBytes = value
		}
	}
	if raw := os.Getenv("DB_MAX_OPEN_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxOpenConns = value
		}
	}
	if raw := os.Getenv("DB_MAX_IDLE_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxIdleConns = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_LIFETIME_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxLifetimeSeconds = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_IDLE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxIdleTimeSeconds = value
		}
	}
	return cfg
}
