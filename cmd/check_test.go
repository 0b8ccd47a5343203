package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"foresight/internal/config"
)

func testConfig(t *testing.T, dashboardURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		BasicConfig: config.BasicConfig{Database: "sqlite3", MaxUploadMB: 1},
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: filepath.Join(dir, "db", "foresight.db")},
		},
		Dashboard: config.DashboardConfig{BaseURL: dashboardURL, TimeoutSeconds: 1},
		ObjectStore: config.ObjectStoreConfig{
			Driver:              "local",
			LocalDir:            filepath.Join(dir, "uploads"),
			PublicBaseURL:       "http://files.test",
			SignedURLTTLMinutes: 5,
		},
		Identity: config.IdentityConfig{Credential: "check-test-secret-value", TokenTTLHours: 1},
	}
}

func TestCheckStepsPass(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	cfg := testConfig(t, upstream.URL)
	for _, step := range checkSteps(cfg) {
		detail, warn, err := step.run(context.Background())
		if err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if step.name == "Checking redis" {
			if !warn {
				t.Fatalf("expected redis warning when not configured")
			}
			continue
		}
		if warn {
			t.Fatalf("%s: unexpected warning %q", step.name, detail)
		}
	}
}

func TestCheckStepsReportFailures(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	cfg := testConfig(t, url)
	cfg.Identity.Credential = ""
	failed := map[string]bool{}
	for _, step := range checkSteps(cfg) {
		if _, _, err := step.run(context.Background()); err != nil {
			failed[step.name] = true
		}
	}
	for _, name := range []string{"Validating configuration", "Checking object store", "Checking Dashboard API"} {
		if !failed[name] {
			t.Fatalf("expected %q to fail, got %v", name, failed)
		}
	}
	if failed["Checking database"] {
		t.Fatalf("database check should not depend on identity")
	}
}

func TestNewAppWiresLocalStack(t *testing.T) {
	cfg := testConfig(t, "http://dashboard.test")
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.close()
	if a.handler == nil || a.hub == nil || a.objects == nil {
		t.Fatalf("app not fully wired: %+v", a)
	}
	if a.rdb != nil {
		t.Fatalf("redis should stay disabled without a host")
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "")
	if _, err := newApp(context.Background(), cfg); err == nil {
		t.Fatalf("expected missing dashboard url to fail")
	}
}
