package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"foresight/internal/config"
	"foresight/internal/models"
	"foresight/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertUser(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, '', CURRENT_TIMESTAMP)`, id, "user_"+id)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
}

func TestStoreLifecycle(t *testing.T) {
	db := openTestDB(t)
	insertUser(t, db, "u1")
	insertUser(t, db, "u2")
	store := NewStore(db, "sqlite3")

	var mu sync.Mutex
	var notified []string
	store.OnChange(func(userID string) {
		mu.Lock()
		notified = append(notified, userID)
		mu.Unlock()
	})

	ctx := context.Background()
	s1, err := store.Create(ctx, "u1", models.StartupData{Name: "Acme", Website: "acme.io"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s1.Status != models.StatusInProgress || len(s1.Files) != 0 {
		t.Fatalf("unexpected new session %+v", s1)
	}
	s2, err := store.Create(ctx, "u1", models.StartupData{Name: "Beta"})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	files := []models.FileDescriptor{
		{Name: "Acme_1.pdf", OriginalName: "deck.pdf", Path: "u1/" + s1.ID + "/Acme_1.pdf"},
		{Name: "Acme_2.pdf", OriginalName: "plan.pdf", Path: "u1/" + s1.ID + "/Acme_2.pdf"},
	}
	updated, err := store.AppendFiles(ctx, "u1", s1.ID, files)
	if err != nil {
		t.Fatalf("append files: %v", err)
	}
	more := []models.FileDescriptor{{Name: "Acme_1.xlsx", OriginalName: "model.xlsx", Path: "u1/" + s1.ID + "/Acme_1.xlsx"}}
	updated, err = store.AppendFiles(ctx, "u1", s1.ID, more)
	if err != nil {
		t.Fatalf("append more files: %v", err)
	}
	if len(updated.Files) != 3 || updated.Files[0].OriginalName != "deck.pdf" || updated.Files[2].OriginalName != "model.xlsx" {
		t.Fatalf("files out of order: %+v", updated.Files)
	}

	if _, err := store.AppendFiles(ctx, "u2", s1.ID, more); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign session, got %v", err)
	}

	analysis := json.RawMessage(`{"startupName":"Acme"}`)
	completed, err := store.Complete(ctx, "u1", s1.ID, analysis)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != models.StatusCompleted || string(completed.Analysis) != string(analysis) {
		t.Fatalf("unexpected completed session %+v", completed)
	}

	list, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != s2.ID || list[1].ID != s1.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if len(list[1].Files) != 3 {
		t.Fatalf("list did not load files: %+v", list[1].Files)
	}
	if other, _ := store.List(ctx, "u2"); len(other) != 0 {
		t.Fatalf("sessions leaked across users")
	}

	if err := store.Delete(ctx, "u1", s1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "u1", s1.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "u1", s1.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	var remaining int
	_ = db.QueryRow(`SELECT COUNT(*) FROM session_files`).Scan(&remaining)
	if remaining != 0 {
		t.Fatalf("file rows left behind: %d", remaining)
	}

	mu.Lock()
	defer mu.Unlock()
	// create x2, append x2, complete, delete
	if len(notified) != 6 {
		t.Fatalf("expected 6 notifications, got %d", len(notified))
	}
}

func TestAppendFilesConcurrentPositions(t *testing.T) {
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: filepath.Join(t.TempDir(), "sessions.db")},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	insertUser(t, db, "u1")
	store := NewStore(db, "sqlite3")
	ctx := context.Background()
	s, err := store.Create(ctx, "u1", models.StartupData{Name: "Acme"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const writers = 6
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("Acme_%d.pdf", i+1)
			_, err := store.AppendFiles(ctx, "u1", s.ID, []models.FileDescriptor{{Name: name, OriginalName: name, Path: "u1/" + s.ID + "/" + name}})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := store.Get(ctx, "u1", s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Files) != writers {
		t.Fatalf("files = %d, want %d", len(got.Files), writers)
	}
	seen := map[string]bool{}
	for _, f := range got.Files {
		if seen[f.Path] {
			t.Fatalf("duplicate file %s", f.Path)
		}
		seen[f.Path] = true
	}

	if _, err := store.AppendFiles(ctx, "u2", s.ID, []models.FileDescriptor{{Name: "x"}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("append to another user's session: %v", err)
	}
}
