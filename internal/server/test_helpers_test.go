package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"sketchyaf/internal/config"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu        sync.Mutex
	published map[string][]GameEvent
	failLeft  map[string]int
	failAll   bool
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{
		published: make(map[string][]GameEvent),
		failLeft:  make(map[string]int),
	}
}

func (p *recordingPublisher) Publish(channel string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return errors.New("channel unavailable")
	}
	if remaining, ok := p.failLeft[channel]; ok && remaining != 0 {
		if remaining > 0 {
			p.failLeft[channel] = remaining - 1
		}
		return errors.New("channel unavailable")
	}
	var event GameEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}
	p.published[channel] = append(p.published[channel], event)
	return nil
}

func (p *recordingPublisher) events(channel string) []GameEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]GameEvent, len(p.published[channel]))
	copy(events, p.published[channel])
	return events
}

func (p *recordingPublisher) waitForEvent(t *testing.T, channel, eventType string, timeout time.Duration) GameEvent {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, event := range p.events(channel) {
			if event.Type == eventType {
				return event
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no %s event on channel %s within %s", eventType, channel, timeout)
	return GameEvent{}
}

func (p *recordingPublisher) expectNoEvents(t *testing.T, channel string, wait time.Duration) {
	t.Helper()
	time.Sleep(wait)
	if events := p.events(channel); len(events) > 0 {
		t.Fatalf("expected no events on channel %s, got %d", channel, len(events))
	}
}

// newTimerTestServer wires a DB-less server with a fake publisher and a
// controllable clock shared by the store, engine, and broadcaster.
func newTimerTestServer(t *testing.T) (*Server, *memStore, *recordingPublisher, *fakeClock) {
	t.Helper()
	cfg := config.Default()
	cfg.BroadcastBackoffMillis = 1
	cfg.BroadcastTimeoutSeconds = 1
	srv := New(nil, cfg)
	clock := newFakeClock()
	pub := newRecordingPublisher()
	store := srv.store.(*memStore)
	srv.now = clock.Now
	store.now = clock.Now
	srv.broadcaster.pub = pub
	srv.broadcaster.now = clock.Now
	return srv, store, pub, clock
}

// seedGame creates a game directly in the store with the given status,
// deadline, and participant/submission counts.
func (s *memStore) seedGame(t *testing.T, status string, expiresAt *time.Time, players, submissions int) GameSnapshot {
	t.Helper()
	maxPlayers := players
	if maxPlayers < 2 {
		maxPlayers = 2
	}
	snap, err := s.CreateGame(maxPlayers)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	game := s.games[snap.ID]
	game.snapshot.Status = status
	game.snapshot.PhaseExpiresAt = expiresAt
	for i := 0; i < players; i++ {
		player := memPlayer{
			id:       s.nextPlayerID,
			name:     fmt.Sprintf("player-%d", i+1),
			joinedAt: s.now(),
		}
		s.nextPlayerID++
		game.players = append(game.players, player)
		game.snapshot.CurrentPlayers++
	}
	for i := 0; i < submissions && i < len(game.players); i++ {
		game.submissions[game.players[i].id] = json.RawMessage(`{"strokes":[]}`)
	}
	return game.snapshot
}

func pastDeadline(clock *fakeClock, ago time.Duration) *time.Time {
	deadline := clock.Now().Add(-ago)
	return &deadline
}

func doRequest(t *testing.T, ts *httptest.Server, method, path string, payload any) *http.Response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func createGame(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, "/api/games", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}
	body := decodeBody(t, resp)
	return body["id"].(string)
}

func joinPlayer(t *testing.T, ts *httptest.Server, gameID, name string) uint {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, "/api/games/"+gameID+"/join", map[string]string{
		"name": name,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	body := decodeBody(t, resp)
	return uint(body["player_id"].(float64))
}

func eventData(t *testing.T, event GameEvent) map[string]any {
	t.Helper()
	data, ok := event.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected event data object, got %T", event.Data)
	}
	return data
}
