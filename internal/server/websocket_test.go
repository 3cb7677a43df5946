package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func readWSMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	return msg
}

func TestWebsocketSnapshotOnConnect(t *testing.T) {
	srv, store, _, clock := newTimerTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	game := store.seedGame(t, statusDrawing, pastDeadline(clock, -time.Minute), 2, 0)
	conn := dialWS(t, ts, "/ws/games/"+game.ID)

	msg := readWSMessage(t, conn)
	if msg["type"] != "snapshot" {
		t.Fatalf("expected snapshot first, got %v", msg["type"])
	}
	snap, ok := msg["game"].(map[string]any)
	if !ok || snap["id"] != game.ID || snap["status"] != statusDrawing {
		t.Fatalf("unexpected snapshot: %#v", msg["game"])
	}
}

func TestWebsocketReceivesPublishedEvents(t *testing.T) {
	srv, store, _, clock := newTimerTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	game := store.seedGame(t, statusBriefing, pastDeadline(clock, -time.Minute), 2, 0)
	conn := dialWS(t, ts, "/ws/games/"+game.ID+"?player_id=1")
	readWSMessage(t, conn) // snapshot

	payload, _ := json.Marshal(GameEvent{Type: "phase_changed", GameID: game.ID})
	if err := srv.ws.Publish(gameChannel(game.ID), payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if msg := readWSMessage(t, conn); msg["type"] != "phase_changed" {
		t.Fatalf("expected phase_changed, got %v", msg["type"])
	}

	// The same socket is subscribed to its user channel.
	payload, _ = json.Marshal(GameEvent{Type: "match_found", GameID: game.ID})
	if err := srv.ws.Publish(userChannel(1), payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if msg := readWSMessage(t, conn); msg["type"] != "match_found" {
		t.Fatalf("expected match_found, got %v", msg["type"])
	}
}

func TestWebsocketUnknownGameRejected(t *testing.T) {
	srv, _, _, _ := newTimerTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/games/missing"
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("expected handshake failure for unknown game")
	}
}
