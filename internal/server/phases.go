package server

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
)

// attemptTransition decides and executes the next status for one expired
// game. The caller has already confirmed expiry; this re-checks the row
// immediately before writing and the write itself is conditional, so two
// concurrent attempts for the same game cannot both land.
func (s *Server) attemptTransition(game GameSnapshot) transitionOutcome {
	next, ok := nextStatus[game.Status]
	if !ok {
		return transitionSkipped
	}
	now := s.now()
	if game.Status == statusDrawing {
		proceed, outcome := s.applyGracePeriod(game, now)
		if !proceed {
			return outcome
		}
	}

	current, err := s.store.GetGame(game.ID)
	if err != nil {
		if errors.Is(err, errGameNotFound) {
			return transitionSkipped
		}
		log.Printf("transition read failed game_id=%s error=%v", game.ID, err)
		return transitionError
	}
	if current.Status != game.Status || !sameDeadline(current.PhaseExpiresAt, game.PhaseExpiresAt) {
		log.Printf("transition skipped game_id=%s reason=stale_snapshot status=%s", game.ID, current.Status)
		return transitionSkipped
	}

	updated, err := s.store.ConditionalUpdateStatus(game.ID, game.Status, next, s.phaseDeadline(next, now))
	if err != nil {
		log.Printf("transition update failed game_id=%s error=%v", game.ID, err)
		return transitionError
	}
	if !updated {
		log.Printf("transition skipped game_id=%s reason=conditional_update_lost", game.ID)
		return transitionSkipped
	}

	log.Printf("game advanced game_id=%s from=%s to=%s", game.ID, game.Status, next)
	executionID := uuid.NewString()
	data := PhaseChangeData{
		PreviousPhase:  game.Status,
		NewPhase:       next,
		PhaseStartedAt: now.Format(time.RFC3339),
		ExecutionID:    executionID,
	}
	if err := s.store.RecordEvent(game.ID, eventPhaseChanged.String(), data); err != nil {
		log.Printf("phase event persist failed game_id=%s error=%v", game.ID, err)
	}
	// Best-effort notification; the transition row is the source of truth
	// and clients poll as a fallback.
	go s.broadcastEvent(eventPhaseChanged, game.ID, nil, data)
	return transitionProcessed
}

// applyGracePeriod handles the drawing phase's bounded wait for late
// submissions. Returns proceed=false with the outcome to report when the
// transition must not happen yet.
func (s *Server) applyGracePeriod(game GameSnapshot, now time.Time) (bool, transitionOutcome) {
	participants, err := s.store.CountParticipants(game.ID)
	if err != nil {
		log.Printf("participant count failed game_id=%s error=%v", game.ID, err)
		return false, transitionError
	}
	submissions, err := s.store.CountSubmissions(game.ID)
	if err != nil {
		log.Printf("submission count failed game_id=%s error=%v", game.ID, err)
		return false, transitionError
	}
	if submissions >= participants {
		if err := s.store.DeleteGrace(game.ID); err != nil {
			log.Printf("grace delete failed game_id=%s error=%v", game.ID, err)
		}
		return true, transitionProcessed
	}

	startedAt, exists, err := s.store.GetGrace(game.ID)
	if err != nil {
		log.Printf("grace read failed game_id=%s error=%v", game.ID, err)
		return false, transitionError
	}
	grace := time.Duration(s.cfg.GraceSeconds) * time.Second
	if !exists {
		if err := s.store.CreateGrace(game.ID, now); err != nil {
			log.Printf("grace create failed game_id=%s error=%v", game.ID, err)
			return false, transitionError
		}
		// Re-arm the timer so the next monitor tick re-evaluates.
		if err := s.store.ExtendPhaseDeadline(game.ID, now.Add(grace)); err != nil {
			log.Printf("grace deadline extend failed game_id=%s error=%v", game.ID, err)
			return false, transitionError
		}
		log.Printf("grace period started game_id=%s submissions=%d participants=%d", game.ID, submissions, participants)
		return false, transitionSkipped
	}
	if now.Before(startedAt.Add(grace)) {
		return false, transitionSkipped
	}
	// Grace elapsed; stragglers forfeit.
	if err := s.store.DeleteGrace(game.ID); err != nil {
		log.Printf("grace delete failed game_id=%s error=%v", game.ID, err)
		return false, transitionError
	}
	log.Printf("grace period elapsed game_id=%s submissions=%d participants=%d", game.ID, submissions, participants)
	return true, transitionProcessed
}

// phaseDeadline returns the expiry to arm for a freshly entered status, or
// nil for statuses without a deadline.
func (s *Server) phaseDeadline(status string, now time.Time) *time.Time {
	var seconds int
	switch status {
	case statusBriefing:
		seconds = s.cfg.BriefingDurationSeconds
	case statusDrawing:
		seconds = s.cfg.DrawingDurationSeconds
	case statusVoting:
		seconds = s.cfg.VotingDurationSeconds
	default:
		return nil
	}
	deadline := now.Add(time.Duration(seconds) * time.Second)
	return &deadline
}
