package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"foresight/internal/models"
)

type fakeLister struct {
	mu       sync.Mutex
	sessions map[string][]models.Session
	calls    int
	err      error
}

func (f *fakeLister) List(_ context.Context, userID string) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.Session(nil), f.sessions[userID]...), nil
}

func (f *fakeLister) set(userID string, list ...models.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessions == nil {
		f.sessions = make(map[string][]models.Session)
	}
	f.sessions[userID] = list
}

func TestHubSubscribeReceivesInitialAndUpdates(t *testing.T) {
	lister := &fakeLister{}
	lister.set("u1", models.Session{ID: "a"})
	hub := NewHub(lister, nil)

	var got [][]models.Session
	unsubscribe := hub.Subscribe("u1", func(list []models.Session) {
		got = append(got, list)
	})
	if len(got) != 1 || got[0][0].ID != "a" {
		t.Fatalf("expected initial snapshot, got %+v", got)
	}

	lister.set("u1", models.Session{ID: "b"}, models.Session{ID: "a"})
	hub.Notify("u1")
	if len(got) != 2 || len(got[1]) != 2 || got[1][0].ID != "b" {
		t.Fatalf("expected update after notify, got %+v", got)
	}

	// other users do not trigger this subscriber
	hub.Notify("u2")
	if len(got) != 2 {
		t.Fatalf("unexpected delivery for other user")
	}

	unsubscribe()
	unsubscribe()
	hub.Notify("u1")
	if len(got) != 2 {
		t.Fatalf("delivery after unsubscribe")
	}
	if hub.Subscribers("u1") != 0 {
		t.Fatalf("subscriber not removed")
	}
}

func TestHubSkipsDeliveryOnListError(t *testing.T) {
	lister := &fakeLister{err: errors.New("db down")}
	hub := NewHub(lister, nil)
	calls := 0
	defer hub.Subscribe("u1", func([]models.Session) { calls++ })()
	hub.Notify("u1")
	if calls != 0 {
		t.Fatalf("expected no deliveries, got %d", calls)
	}
}

func TestHubRunWithoutRedis(t *testing.T) {
	hub := NewHub(&fakeLister{}, nil)
	if err := hub.Run(context.Background()); err != nil {
		t.Fatalf("run without redis: %v", err)
	}
}

func TestHubWithStore(t *testing.T) {
	db := openTestDB(t)
	insertUser(t, db, "u1")
	store := NewStore(db, "sqlite3")
	hub := NewHub(store, nil)
	store.OnChange(hub.Notify)

	var last []models.Session
	defer hub.Subscribe("u1", func(list []models.Session) { last = list })()
	if last == nil || len(last) != 0 {
		t.Fatalf("expected empty initial list, got %+v", last)
	}
	if _, err := store.Create(context.Background(), "u1", models.StartupData{Name: "Acme"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(last) != 1 || last[0].Name != "Acme" {
		t.Fatalf("expected pushed session, got %+v", last)
	}
}
