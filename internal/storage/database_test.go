package storage

import (
	"testing"

	"foresight/internal/config"
)

func TestRebind(t *testing.T) {
	q := `SELECT id FROM sessions WHERE id = ? AND user_id = ?`
	if got := Rebind("sqlite3", q); got != q {
		t.Fatalf("sqlite query rewritten: %s", got)
	}
	want := `SELECT id FROM sessions WHERE id = $1 AND user_id = $2`
	if got := Rebind("postgres", q); got != want {
		t.Fatalf("postgres rebind = %s", got)
	}
}

func TestOpenAndMigrateSQLite(t *testing.T) {
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// idempotent
	if err := Migrate(db, "sqlite"); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	for _, table := range []string{"users", "sessions", "session_files"} {
		var name string
		if err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"oracle": {DSN: "x"}}}
	if _, err := Open("oracle", cfg); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := Open("mysql", cfg); err == nil {
		t.Fatalf("expected missing config error")
	}
}

func TestSQLiteDSNTakesImmediateLock(t *testing.T) {
	cases := map[string]string{
		":memory:":                       ":memory:",
		"/data/app.db":                   "/data/app.db?_txlock=immediate",
		"/data/app.db?_fk=1":             "/data/app.db?_fk=1&_txlock=immediate",
		"/data/app.db?_txlock=exclusive": "/data/app.db?_txlock=exclusive",
	}
	for in, want := range cases {
		if got := sqliteDSN(in); got != want {
			t.Fatalf("sqliteDSN(%q) = %q, want %q", in, got, want)
		}
	}
}
