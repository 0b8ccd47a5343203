// Package appstate holds the per-user application state behind a dispatch/subscribe store.
package appstate

import (
	"sync"

	"foresight/internal/models"
)

// View names the main panel.
type View string

const (
	ViewAbout     View = "about"
	ViewDashboard View = "dashboard"
	ViewChat      View = "chat"
)

// ParseView falls back to ViewAbout for unknown values.
func ParseView(raw string) View {
	switch View(raw) {
	case ViewDashboard, ViewChat:
		return View(raw)
	default:
		return ViewAbout
	}
}

// State is an immutable snapshot. Mutate it only through Store.Dispatch.
type State struct {
	User             *models.User
	Sessions         []models.Session
	Selected         *models.Session
	Dashboard        *models.Dashboard
	DashboardLoading bool
	View             View
	Error            string
}

func (s State) clone() State {
	out := s
	if s.Sessions != nil {
		out.Sessions = make([]models.Session, len(s.Sessions))
		for i := range s.Sessions {
			out.Sessions[i] = *s.Sessions[i].Clone()
		}
	}
	out.Selected = s.Selected.Clone()
	return out
}

// Action is a state transition.
type Action interface {
	apply(State) State
}

// UserLoaded records the signed-in user.
type UserLoaded struct{ User *models.User }

func (a UserLoaded) apply(s State) State {
	s.User = a.User
	return s
}

// SessionsUpdated replaces the session list. A selected session that is no
// longer listed is cleared together with its dashboard.
type SessionsUpdated struct{ Sessions []models.Session }

func (a SessionsUpdated) apply(s State) State {
	s.Sessions = a.Sessions
	if s.Selected == nil {
		return s
	}
	for i := range a.Sessions {
		if a.Sessions[i].ID == s.Selected.ID {
			s.Selected = a.Sessions[i].Clone()
			return s
		}
	}
	s.Selected = nil
	s.Dashboard = nil
	s.DashboardLoading = false
	return s
}

// SessionSelected makes Session current and drops the previous dashboard.
type SessionSelected struct{ Session *models.Session }

func (a SessionSelected) apply(s State) State {
	s.Selected = a.Session.Clone()
	s.Dashboard = nil
	s.Error = ""
	return s
}

// DashboardLoading marks an analysis request in flight.
type DashboardLoading struct{}

func (DashboardLoading) apply(s State) State {
	s.DashboardLoading = true
	s.Error = ""
	return s
}

// DashboardLoaded stores a fetched analysis. The last dispatch wins.
type DashboardLoaded struct{ Dashboard *models.Dashboard }

func (a DashboardLoaded) apply(s State) State {
	s.Dashboard = a.Dashboard
	s.DashboardLoading = false
	s.Error = ""
	return s
}

// DashboardFailed ends loading with an error message.
type DashboardFailed struct{ Err string }

func (a DashboardFailed) apply(s State) State {
	s.DashboardLoading = false
	s.Error = a.Err
	return s
}

// ViewChanged switches the main panel.
type ViewChanged struct{ View View }

func (a ViewChanged) apply(s State) State {
	s.View = a.View
	return s
}

// Store serialises dispatches and notifies observers outside the lock.
type Store struct {
	mu    sync.Mutex
	state State
	next  int
	subs  map[int]func(State)
}

func NewStore() *Store {
	return &Store{
		state: State{View: ViewAbout},
		subs:  make(map[int]func(State)),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Dispatch applies the actions in order and notifies observers once.
func (s *Store) Dispatch(actions ...Action) State {
	s.mu.Lock()
	for _, a := range actions {
		s.state = a.apply(s.state)
	}
	snapshot := s.state.clone()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot.clone())
	}
	return snapshot
}

// Subscribe registers fn for every later dispatch.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	s.next++
	id := s.next
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
