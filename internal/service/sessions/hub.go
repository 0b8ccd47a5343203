package sessions

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"foresight/internal/models"
	"foresight/internal/redis"

	"github.com/rs/zerolog/log"
)

// ChangedChannel is the redis channel carrying session-list invalidations.
const ChangedChannel = "sessions:changed"

const listTimeout = 5 * time.Second

// Lister loads the current session list of a user.
type Lister interface {
	List(ctx context.Context, userID string) ([]models.Session, error)
}

type changedMessage struct {
	UserID string `json:"user_id"`
}

// Hub fans session-list updates out to per-user subscribers. With redis the
// change notice travels through ChangedChannel so every instance refreshes its
// own subscribers.
type Hub struct {
	lister Lister
	rdb    *redis.Client

	mu   sync.Mutex
	next uint64
	subs map[string]map[uint64]func([]models.Session)
}

func NewHub(lister Lister, rdb *redis.Client) *Hub {
	return &Hub{
		lister: lister,
		rdb:    rdb,
		subs:   make(map[string]map[uint64]func([]models.Session)),
	}
}

// Subscribe delivers the current list right away and again after every change.
// The returned function removes the subscription.
func (h *Hub) Subscribe(userID string, onUpdate func([]models.Session)) func() {
	h.mu.Lock()
	h.next++
	id := h.next
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[uint64]func([]models.Session))
	}
	h.subs[userID][id] = onUpdate
	h.mu.Unlock()

	if list, ok := h.load(userID); ok {
		onUpdate(list)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[userID], id)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
		})
	}
}

// Notify announces that userID's sessions changed.
func (h *Hub) Notify(userID string) {
	if userID == "" {
		return
	}
	if h.rdb != nil {
		payload, err := json.Marshal(changedMessage{UserID: userID})
		if err == nil {
			err = h.rdb.Publish(context.Background(), ChangedChannel, payload)
		}
		if err == nil {
			return
		}
		log.Warn().Err(err).Str("user_id", userID).Msg("session change publish failed, notifying locally")
	}
	h.fanout(userID)
}

// Run consumes ChangedChannel until ctx is done. It is a no-op without redis.
func (h *Hub) Run(ctx context.Context) error {
	if h.rdb == nil {
		return nil
	}
	return h.rdb.Subscribe(ctx, ChangedChannel, func(payload []byte) {
		var msg changedMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Warn().Err(err).Msg("session change decode failed")
			return
		}
		h.fanout(msg.UserID)
	})
}

// Subscribers reports how many subscriptions the user has on this instance.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

func (h *Hub) fanout(userID string) {
	h.mu.Lock()
	callbacks := make([]func([]models.Session), 0, len(h.subs[userID]))
	for _, fn := range h.subs[userID] {
		callbacks = append(callbacks, fn)
	}
	h.mu.Unlock()
	if len(callbacks) == 0 {
		return
	}
	list, ok := h.load(userID)
	if !ok {
		return
	}
	for _, fn := range callbacks {
		fn(cloneList(list))
	}
}

func (h *Hub) load(userID string) ([]models.Session, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
	defer cancel()
	list, err := h.lister.List(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("load sessions for subscribers")
		return nil, false
	}
	return list, true
}

func cloneList(list []models.Session) []models.Session {
	out := make([]models.Session, len(list))
	for i := range list {
		out[i] = *list[i].Clone()
	}
	return out
}
