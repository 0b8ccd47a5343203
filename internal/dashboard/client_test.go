package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerateSummaryTruncatesPathAndGroups(t *testing.T) {
	var gotPath, gotMode string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate_summary" {
			t.Errorf("unexpected upstream path %s", r.URL.Path)
		}
		gotPath = r.URL.Query().Get("path")
		gotMode = r.URL.Query().Get("mode")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"startup_name": "Acme",
			"analysis_summary": {"short_summary": "short", "detailed_analysis_summary": "long"},
			"peer_comparison_table": {"comparison": {"columns": ["name", "arr"], "companies": [{"name": "Acme", "arr": "1M"}]}},
			"extracted_data": {"company_name": "Acme", "arr": "1M", "risk_gauge": 2.5},
			"gcs_key": "a/b",
			"files_processed": 2,
			"stored_in_database": true,
			"response_time_seconds": 1.5
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	d, err := client.GenerateSummary(context.Background(), "a/b/c/d", ModeRead)
	if err != nil {
		t.Fatalf("generate summary: %v", err)
	}
	if gotPath != "a/b" || gotMode != "read" {
		t.Fatalf("upstream got path=%s mode=%s", gotPath, gotMode)
	}
	if d.StartupName != "Acme" || d.Summary != "short" || d.DetailedSummary != "long" {
		t.Fatalf("unexpected summary fields: %+v", d)
	}
	if d.FilesProcessed != 2 || !d.Stored || d.GCSKey != "a/b" {
		t.Fatalf("unexpected metadata: %+v", d)
	}
	if d.PeerComparison == nil || d.PeerComparison.Comparison == nil || len(d.PeerComparison.Comparison.Companies) != 1 {
		t.Fatalf("peer table not decoded: %+v", d.PeerComparison)
	}

	intro, ok := d.Extracted.Group(GroupIntroduction)
	if !ok {
		t.Fatalf("introduction group missing")
	}
	if v, _ := intro.Get("🏢 Company Name"); v != "Acme" {
		t.Fatalf("company name = %v", v)
	}
	if v, ok := intro.Get("🔗 Website"); !ok || v != nil {
		t.Fatalf("absent website should be present with nil value, got %v ok=%v", v, ok)
	}
	fin, _ := d.Extracted.Group(GroupFinancials)
	if v, _ := fin.Get("🔁 ARR"); v != "1M" {
		t.Fatalf("arr = %v", v)
	}
	risks, _ := d.Extracted.Group(GroupRisks)
	if v, _ := risks.Get(KeyRiskGauge); v != 2.5 {
		t.Fatalf("risk gauge = %v", v)
	}
}

func TestGenerateSummaryUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"backend down"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).GenerateSummary(context.Background(), "a/b", ModeNew)
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upErr.Status != http.StatusBadGateway {
		t.Fatalf("status = %d", upErr.Status)
	}
	var body map[string]string
	if err := json.Unmarshal(upErr.Body, &body); err != nil || body["detail"] != "backend down" {
		t.Fatalf("body = %s", upErr.Body)
	}
}

func TestGenerateSummaryMissingPath(t *testing.T) {
	_, err := NewClient("http://unused", time.Second).GenerateSummary(context.Background(), "", ModeNew)
	if !errors.Is(err, ErrMissingPath) {
		t.Fatalf("expected ErrMissingPath, got %v", err)
	}
}

func TestChatCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/history":
			_, _ = w.Write([]byte(`{"status":"success","gcs_key":"` + r.URL.Query().Get("gcs_key") + `","messages":[]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/chat/message":
			_, _ = w.Write([]byte(`{"bot_response":"echo ` + r.URL.Query().Get("message") + `"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", time.Second)
	raw, err := client.History(context.Background(), "u1/s1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var hist map[string]any
	_ = json.Unmarshal(raw, &hist)
	if hist["gcs_key"] != "u1/s1" {
		t.Fatalf("history passthrough = %s", raw)
	}

	raw, err = client.SendMessage(context.Background(), "u1/s1", "hi there")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	var reply map[string]string
	_ = json.Unmarshal(raw, &reply)
	if reply["bot_response"] != "echo hi there" {
		t.Fatalf("reply = %s", raw)
	}
}

func TestParseMode(t *testing.T) {
	valid := map[string]Mode{"": ModeNew, "new": ModeNew, "read": ModeRead}
	for raw, want := range valid {
		if got, err := ParseMode(raw); err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v", raw, got, err)
		}
	}
	for _, raw := range []string{"READ", "Read", "bogus", " new"} {
		if _, err := ParseMode(raw); !errors.Is(err, ErrInvalidMode) {
			t.Fatalf("ParseMode(%q) err = %v, want ErrInvalidMode", raw, err)
		}
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	client := NewClient(srv.URL, time.Second)
	status, err := client.Ping(context.Background())
	if err != nil || status != http.StatusNotFound {
		t.Fatalf("ping = %d, %v", status, err)
	}
	srv.Close()
	if _, err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected error after server closed")
	}
}
