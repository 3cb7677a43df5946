package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"sketchyaf/internal/config"
)

// publisher is the abstract pub/sub channel the broadcaster fans out to.
// The websocket hub implements it; tests substitute their own.
type publisher interface {
	Publish(channel string, data []byte) error
}

var errPublishTimeout = errors.New("publish timed out")

type ChannelResult struct {
	Channel  string `json:"channel"`
	Success  bool   `json:"success"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

type BroadcastResult struct {
	Success  bool            `json:"success"`
	Channels []ChannelResult `json:"perChannelResults"`
}

type broadcaster struct {
	pub            publisher
	now            func() time.Time
	maxPayload     int
	attempts       int
	initialBackoff time.Duration
	attemptTimeout time.Duration
}

func newBroadcaster(pub publisher, cfg config.Config, now func() time.Time) *broadcaster {
	return &broadcaster{
		pub:            pub,
		now:            now,
		maxPayload:     cfg.MaxEventPayloadBytes,
		attempts:       cfg.BroadcastAttempts,
		initialBackoff: time.Duration(cfg.BroadcastBackoffMillis) * time.Millisecond,
		attemptTimeout: time.Duration(cfg.BroadcastTimeoutSeconds) * time.Second,
	}
}

// broadcast publishes one event to every channel the kind selects. A channel
// exhausting its retries is recorded but never blocks the other channels.
func (b *broadcaster) broadcast(kind eventKind, gameID string, userIDs []uint, data any) BroadcastResult {
	now := b.now()
	event := GameEvent{
		Type:      kind.String(),
		GameID:    gameID,
		Timestamp: now.Format(time.RFC3339Nano),
		Version:   strconv.FormatInt(now.UnixMilli(), 10),
		Data:      data,
	}
	channels := kind.channels(gameID, userIDs)
	result := BroadcastResult{Success: true}

	payload, err := json.Marshal(event)
	if err == nil && len(payload) > b.maxPayload {
		err = fmt.Errorf("payload is %d bytes, limit is %d", len(payload), b.maxPayload)
	}
	if err != nil {
		// Rejected locally; no network calls for any channel.
		log.Printf("broadcast rejected game_id=%s type=%s error=%v", gameID, event.Type, err)
		result.Success = false
		for _, channel := range channels {
			result.Channels = append(result.Channels, ChannelResult{
				Channel: channel,
				Error:   err.Error(),
			})
		}
		return result
	}

	for _, channel := range channels {
		channelResult := b.publishWithRetry(channel, payload)
		if !channelResult.Success {
			result.Success = false
			log.Printf("broadcast failed game_id=%s type=%s channel=%s attempts=%d error=%s",
				gameID, event.Type, channel, channelResult.Attempts, channelResult.Error)
		}
		result.Channels = append(result.Channels, channelResult)
	}
	return result
}

func (b *broadcaster) publishWithRetry(channel string, payload []byte) ChannelResult {
	result := ChannelResult{Channel: channel}
	backoff := b.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		result.Attempts = attempt
		lastErr = b.publishOnce(channel, payload)
		if lastErr == nil {
			result.Success = true
			return result
		}
		if attempt < b.attempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	result.Error = lastErr.Error()
	return result
}

func (b *broadcaster) publishOnce(channel string, payload []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- b.pub.Publish(channel, payload)
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(b.attemptTimeout):
		return errPublishTimeout
	}
}

// broadcastEvent is the fire-and-forget entry the rest of the server uses.
func (s *Server) broadcastEvent(kind eventKind, gameID string, userIDs []uint, data any) {
	s.broadcaster.broadcast(kind, gameID, userIDs, data)
}
