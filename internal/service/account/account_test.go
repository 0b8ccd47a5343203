package account

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"foresight/internal/config"
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

func TestRegisterLoginDelete(t *testing.T) {
	svc := NewService(openTestDB(t), "sqlite3")
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, " alice ", "s3cret", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID == "" || user.Username != "alice" || user.DisplayName != "alice" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.PasswordHash == "s3cret" {
		t.Fatalf("password stored in clear")
	}

	if _, err := svc.RegisterUser(ctx, "alice", "other", ""); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	got, err := svc.Login(ctx, "alice", "s3cret")
	if err != nil || got.ID != user.ID {
		t.Fatalf("login failed: %+v %v", got, err)
	}
	if _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "bob", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}

	loaded, err := svc.GetUser(ctx, user.ID)
	if err != nil || loaded.Username != "alice" {
		t.Fatalf("get user: %+v %v", loaded, err)
	}

	if err := svc.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteUser(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestRegisterRequiresFields(t *testing.T) {
	svc := NewService(openTestDB(t), "sqlite3")
	if _, err := svc.RegisterUser(context.Background(), "", "x", ""); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
}
