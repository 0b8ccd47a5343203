package appstate

import (
	"sync"

	"foresight/internal/models"
)

// SessionSource pushes session lists for a user until unsubscribed.
type SessionSource interface {
	Subscribe(userID string, onUpdate func([]models.Session)) func()
}

type entry struct {
	store       *Store
	unsubscribe func()
}

// Registry lazily creates one Store per user and keeps it fed from the session source.
type Registry struct {
	source SessionSource

	mu     sync.Mutex
	stores map[string]*entry
}

func NewRegistry(source SessionSource) *Registry {
	return &Registry{
		source: source,
		stores: make(map[string]*entry),
	}
}

// Get returns the user's store, creating and subscribing it on first use.
func (r *Registry) Get(userID string) *Store {
	r.mu.Lock()
	if e, ok := r.stores[userID]; ok {
		r.mu.Unlock()
		return e.store
	}
	e := &entry{store: NewStore()}
	r.stores[userID] = e
	r.mu.Unlock()

	if r.source != nil {
		unsubscribe := r.source.Subscribe(userID, func(list []models.Session) {
			e.store.Dispatch(SessionsUpdated{Sessions: list})
		})
		r.mu.Lock()
		if current, ok := r.stores[userID]; ok && current == e {
			e.unsubscribe = unsubscribe
			unsubscribe = nil
		}
		r.mu.Unlock()
		if unsubscribe != nil {
			// reset raced with creation
			unsubscribe()
		}
	}
	return e.store
}

// Reset drops the user's store and stops its subscription.
func (r *Registry) Reset(userID string) {
	r.mu.Lock()
	e, ok := r.stores[userID]
	delete(r.stores, userID)
	r.mu.Unlock()
	if ok && e.unsubscribe != nil {
		e.unsubscribe()
	}
}

// Len reports how many users have live stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}
