package appstate

import (
	"testing"

	"foresight/internal/models"
)

func TestSessionsUpdatedClearsMissingSelection(t *testing.T) {
	store := NewStore()
	a := models.Session{ID: "a", Name: "Acme"}
	b := models.Session{ID: "b", Name: "Beta"}

	store.Dispatch(
		SessionsUpdated{Sessions: []models.Session{a, b}},
		SessionSelected{Session: &a},
		DashboardLoaded{Dashboard: &models.Dashboard{StartupName: "Acme"}},
	)
	st := store.Snapshot()
	if st.Selected == nil || st.Selected.ID != "a" || st.Dashboard == nil {
		t.Fatalf("unexpected state %+v", st)
	}

	// selection survives while still listed and picks up fresh data
	renamed := a
	renamed.Status = models.StatusCompleted
	store.Dispatch(SessionsUpdated{Sessions: []models.Session{renamed, b}})
	st = store.Snapshot()
	if st.Selected == nil || st.Selected.Status != models.StatusCompleted || st.Dashboard == nil {
		t.Fatalf("selection should be refreshed, got %+v", st)
	}

	store.Dispatch(SessionsUpdated{Sessions: []models.Session{b}})
	st = store.Snapshot()
	if st.Selected != nil || st.Dashboard != nil {
		t.Fatalf("selection and dashboard should be cleared, got %+v", st)
	}
	if len(st.Sessions) != 1 {
		t.Fatalf("sessions not replaced")
	}
}

func TestSelectionResetsDashboard(t *testing.T) {
	store := NewStore()
	a := &models.Session{ID: "a"}
	store.Dispatch(SessionSelected{Session: a}, DashboardLoading{})
	if !store.Snapshot().DashboardLoading {
		t.Fatalf("expected loading")
	}
	store.Dispatch(DashboardFailed{Err: "upstream down"})
	st := store.Snapshot()
	if st.DashboardLoading || st.Error != "upstream down" {
		t.Fatalf("unexpected failure state %+v", st)
	}
	store.Dispatch(DashboardLoaded{Dashboard: &models.Dashboard{}}, SessionSelected{Session: &models.Session{ID: "b"}})
	st = store.Snapshot()
	if st.Dashboard != nil || st.Error != "" || st.Selected.ID != "b" {
		t.Fatalf("selection should drop dashboard, got %+v", st)
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	store := NewStore()
	store.Dispatch(SessionsUpdated{Sessions: []models.Session{{ID: "a", Files: []models.FileDescriptor{{Path: "u/a/x"}}}}})
	st := store.Snapshot()
	st.Sessions[0].Files[0].Path = "mutated"
	if store.Snapshot().Sessions[0].Files[0].Path != "u/a/x" {
		t.Fatalf("snapshot shares memory with store")
	}
}

func TestSubscribeAndViews(t *testing.T) {
	store := NewStore()
	if store.Snapshot().View != ViewAbout {
		t.Fatalf("default view should be about")
	}
	var seen []View
	unsubscribe := store.Subscribe(func(s State) { seen = append(seen, s.View) })
	store.Dispatch(ViewChanged{View: ParseView("chat")})
	store.Dispatch(ViewChanged{View: ParseView("nonsense")})
	unsubscribe()
	store.Dispatch(ViewChanged{View: ViewDashboard})
	if len(seen) != 2 || seen[0] != ViewChat || seen[1] != ViewAbout {
		t.Fatalf("unexpected notifications %v", seen)
	}
}
