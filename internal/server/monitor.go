package server

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

const timerLockName = "timer_monitoring_lock"

const (
	monitorStatusCompleted = "completed"
	monitorStatusSkipped   = "skipped"
	monitorStatusTimeout   = "timeout"
	monitorStatusError     = "error"
)

type MonitorResult struct {
	Status          string `json:"status"`
	Processed       int    `json:"processed"`
	Errors          int    `json:"errors"`
	Skipped         int    `json:"skipped"`
	Message         string `json:"message,omitempty"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
	Timestamp       string `json:"timestamp"`
	ExecutionID     string `json:"executionId"`
}

// RunOnce is the timer monitor tick: under the advisory lock it finds
// expired games and drives each through attemptTransition with bounded
// concurrency. It never panics past its boundary; every path yields a
// structured result and releases the lock if held.
func (s *Server) RunOnce() MonitorResult {
	started := time.Now()
	executionID := uuid.NewString()
	finish := func(result MonitorResult) MonitorResult {
		result.ExecutionTimeMs = time.Since(started).Milliseconds()
		result.Timestamp = s.now().Format(time.RFC3339)
		result.ExecutionID = executionID
		return result
	}
	budget := time.Duration(s.cfg.MonitorBudgetSeconds) * time.Second
	if time.Since(started) > budget {
		return finish(MonitorResult{Status: monitorStatusTimeout, Message: "execution budget exceeded"})
	}

	lockTimeout := time.Duration(s.cfg.MonitorLockTimeoutSeconds) * time.Second
	acquired, err := s.store.AcquireLock(timerLockName, monitorHolderID(executionID), lockTimeout)
	if err != nil {
		log.Printf("monitor lock acquire failed execution_id=%s error=%v", executionID, err)
		return finish(MonitorResult{Status: monitorStatusError, Errors: 1, Message: "lock acquisition failed"})
	}
	if !acquired {
		return finish(MonitorResult{Status: monitorStatusSkipped, Skipped: 1, Message: "already in progress"})
	}
	defer func() {
		if err := s.store.ReleaseLock(timerLockName); err != nil {
			log.Printf("monitor lock release failed execution_id=%s error=%v", executionID, err)
		}
	}()

	if time.Since(started) > budget {
		return finish(MonitorResult{Status: monitorStatusTimeout, Message: "execution budget exceeded"})
	}
	games, err := s.store.FindExpiredGames(s.cfg.MonitorBatchLimit)
	if err != nil {
		log.Printf("monitor expired query failed execution_id=%s error=%v", executionID, err)
		return finish(MonitorResult{Status: monitorStatusError, Errors: 1, Message: "expired game query failed"})
	}
	if len(games) == 0 {
		return finish(MonitorResult{Status: monitorStatusCompleted})
	}
	log.Printf("monitor run started execution_id=%s expired=%d", executionID, len(games))

	var mu sync.Mutex
	result := MonitorResult{Status: monitorStatusCompleted}
	chunkSize := s.cfg.MonitorChunkSize
	for start := 0; start < len(games); start += chunkSize {
		end := min(start+chunkSize, len(games))
		var wg sync.WaitGroup
		for _, game := range games[start:end] {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcome := s.safeAttemptTransition(game)
				mu.Lock()
				switch outcome {
				case transitionProcessed:
					result.Processed++
				case transitionSkipped:
					result.Skipped++
				default:
					result.Errors++
				}
				mu.Unlock()
			}()
		}
		wg.Wait()
	}

	log.Printf("monitor run finished execution_id=%s processed=%d errors=%d skipped=%d",
		executionID, result.Processed, result.Errors, result.Skipped)
	return finish(result)
}

// safeAttemptTransition isolates one game's failure from the batch.
func (s *Server) safeAttemptTransition(game GameSnapshot) (outcome transitionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("transition panic game_id=%s panic=%v", game.ID, r)
			outcome = transitionError
		}
	}()
	return s.attemptTransition(game)
}

func monitorHolderID(executionID string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return host + ":" + executionID
}

// RunMonitorLoop invokes RunOnce on a fixed interval until stop is closed.
// Deployments with an external cron hit the HTTP entry point instead.
func (s *Server) RunMonitorLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			result := s.RunOnce()
			if result.Processed > 0 || result.Errors > 0 {
				log.Printf("monitor tick status=%s processed=%d errors=%d skipped=%d",
					result.Status, result.Processed, result.Errors, result.Skipped)
			}
		case <-stop:
			return
		}
	}
}
