package server

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMonitorProcessesExpiredGames(t *testing.T) {
	srv, store, _, clock := newTimerTestServer(t)
	// Seven expired games spans two concurrency chunks of five.
	for i := 0; i < 7; i++ {
		store.seedGame(t, statusBriefing, pastDeadline(clock, time.Duration(i+1)*time.Second), 2, 0)
	}
	notExpired := clock.Now().Add(time.Minute)
	untouched := store.seedGame(t, statusBriefing, &notExpired, 2, 0)

	result := srv.RunOnce()
	if result.Status != monitorStatusCompleted {
		t.Fatalf("expected status %s, got %s (%s)", monitorStatusCompleted, result.Status, result.Message)
	}
	if result.Processed != 7 || result.Errors != 0 {
		t.Fatalf("expected processed=7 errors=0, got processed=%d errors=%d", result.Processed, result.Errors)
	}
	if result.ExecutionID == "" || result.Timestamp == "" {
		t.Fatalf("expected execution metadata, got %+v", result)
	}
	game, _ := store.GetGame(untouched.ID)
	if game.Status != statusBriefing {
		t.Fatalf("game with a future deadline was advanced to %s", game.Status)
	}
}

func TestMonitorNoExpiredGames(t *testing.T) {
	srv, _, _, _ := newTimerTestServer(t)
	result := srv.RunOnce()
	if result.Status != monitorStatusCompleted {
		t.Fatalf("expected status %s, got %s", monitorStatusCompleted, result.Status)
	}
	if result.Processed != 0 || result.Errors != 0 || result.Skipped != 0 {
		t.Fatalf("expected empty counters, got %+v", result)
	}
}

func TestMonitorSkipsWhenLockHeld(t *testing.T) {
	srv, store, _, clock := newTimerTestServer(t)
	store.seedGame(t, statusBriefing, pastDeadline(clock, time.Second), 2, 0)
	if ok, err := store.AcquireLock(timerLockName, "other-instance", time.Minute); err != nil || !ok {
		t.Fatalf("pre-acquire lock: ok=%v err=%v", ok, err)
	}

	result := srv.RunOnce()
	if result.Status != monitorStatusSkipped {
		t.Fatalf("expected status %s, got %s", monitorStatusSkipped, result.Status)
	}
	if result.Skipped != 1 || result.Message != "already in progress" {
		t.Fatalf("unexpected skip result: %+v", result)
	}
	game, _ := store.FindExpiredGames(10)
	if len(game) != 1 || game[0].Status != statusBriefing {
		t.Fatal("skipped run must not touch any game")
	}
}

func TestMonitorReleasesLock(t *testing.T) {
	srv, store, _, clock := newTimerTestServer(t)
	store.seedGame(t, statusBriefing, pastDeadline(clock, time.Second), 2, 0)

	if result := srv.RunOnce(); result.Status != monitorStatusCompleted {
		t.Fatalf("expected completed run, got %+v", result)
	}
	ok, err := store.AcquireLock(timerLockName, "next-run", time.Minute)
	if err != nil || !ok {
		t.Fatalf("lock must be free after a completed run: ok=%v err=%v", ok, err)
	}
}

type failingExpiredStore struct {
	Store
}

func (f *failingExpiredStore) FindExpiredGames(limit int) ([]GameSnapshot, error) {
	return nil, errors.New("connection reset")
}

func TestMonitorReleasesLockOnQueryFailure(t *testing.T) {
	srv, store, _, _ := newTimerTestServer(t)
	srv.store = &failingExpiredStore{Store: store}

	result := srv.RunOnce()
	if result.Status != monitorStatusError || result.Errors != 1 {
		t.Fatalf("expected error result, got %+v", result)
	}
	ok, err := store.AcquireLock(timerLockName, "next-run", time.Minute)
	if err != nil || !ok {
		t.Fatalf("lock must be free after a failed run: ok=%v err=%v", ok, err)
	}
}

func TestMonitorStaleLockTakenOver(t *testing.T) {
	srv, store, _, clock := newTimerTestServer(t)
	game := store.seedGame(t, statusBriefing, pastDeadline(clock, time.Second), 2, 0)

	// A crashed holder never released; its timeout has elapsed.
	if ok, _ := store.AcquireLock(timerLockName, "crashed-instance", time.Minute); !ok {
		t.Fatal("pre-acquire lock")
	}
	clock.Advance(61 * time.Second)

	result := srv.RunOnce()
	if result.Status != monitorStatusCompleted || result.Processed != 1 {
		t.Fatalf("expected the stale lock to be overtaken, got %+v", result)
	}
	updated, _ := store.GetGame(game.ID)
	if updated.Status != statusDrawing {
		t.Fatalf("expected status %s, got %s", statusDrawing, updated.Status)
	}
}

type gatedStore struct {
	Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) FindExpiredGames(limit int) ([]GameSnapshot, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.Store.FindExpiredGames(limit)
}

func TestMonitorConcurrentRunsSingleWinner(t *testing.T) {
	srv, store, _, clock := newTimerTestServer(t)
	store.seedGame(t, statusBriefing, pastDeadline(clock, time.Second), 2, 0)
	gated := &gatedStore{
		Store:   store,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	srv.store = gated

	first := make(chan MonitorResult, 1)
	go func() {
		first <- srv.RunOnce()
	}()
	<-gated.entered

	// Second run arrives while the first holds the lock.
	second := srv.RunOnce()
	if second.Status != monitorStatusSkipped || second.Message != "already in progress" {
		t.Fatalf("expected overlapping run skipped, got %+v", second)
	}

	close(gated.release)
	result := <-first
	if result.Status != monitorStatusCompleted || result.Processed != 1 {
		t.Fatalf("expected first run to complete, got %+v", result)
	}
}

type panickingStore struct {
	Store
	panicID string
}

func (p *panickingStore) GetGame(id string) (GameSnapshot, error) {
	if id == p.panicID {
		panic("corrupt row")
	}
	return p.Store.GetGame(id)
}

func TestMonitorIsolatesPerGameFailures(t *testing.T) {
	srv, store, _, clock := newTimerTestServer(t)
	healthy := store.seedGame(t, statusBriefing, pastDeadline(clock, time.Second), 2, 0)
	broken := store.seedGame(t, statusVoting, pastDeadline(clock, 2*time.Second), 2, 2)
	srv.store = &panickingStore{Store: store, panicID: broken.ID}

	result := srv.RunOnce()
	if result.Status != monitorStatusCompleted {
		t.Fatalf("expected status %s, got %s", monitorStatusCompleted, result.Status)
	}
	if result.Processed != 1 || result.Errors != 1 {
		t.Fatalf("expected processed=1 errors=1, got %+v", result)
	}
	updated, _ := store.GetGame(healthy.ID)
	if updated.Status != statusDrawing {
		t.Fatalf("healthy game must still advance, got %s", updated.Status)
	}
	unchanged, _ := store.GetGame(broken.ID)
	if unchanged.Status != statusVoting {
		t.Fatalf("broken game must stay put, got %s", unchanged.Status)
	}
}
