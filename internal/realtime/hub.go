package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/pkg/logger"
	"github.com/google/uuid"
)

// ErrHubClosed is returned by Subscribe after the hub has been closed.
var ErrHubClosed = errors.New("realtime hub closed")

const defaultSubscriptionBuffer = 16

// Hub fans events out to the subscriptions of the event's user. Sends never
// block: a subscriber whose buffer is full misses the event.
type Hub struct {
	log    *logger.Logger
	buffer int

	mu     sync.RWMutex
	subs   map[string]map[string]*Subscription // user id -> subscription id
	closed bool
}

// NewHub creates an empty hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:    log.With("component", "realtime_hub"),
		buffer: defaultSubscriptionBuffer,
		subs:   make(map[string]map[string]*Subscription),
	}
}

// Subscribe registers interest in the user's changes. With no stores given the
// subscription receives changes from every store. The caller must Close it.
func (h *Hub) Subscribe(userID string, stores ...models.StoreKind) (*Subscription, error) {
	if userID == "" {
		return nil, errors.New("subscribe: user id required")
	}

	sub := &Subscription{
		id:     uuid.NewString(),
		userID: userID,
		ch:     make(chan Event, h.buffer),
		hub:    h,
	}
	if len(stores) > 0 {
		sub.stores = make(map[models.StoreKind]bool, len(stores))
		for _, s := range stores {
			sub.stores[s] = true
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	byUser, ok := h.subs[userID]
	if !ok {
		byUser = make(map[string]*Subscription)
		h.subs[userID] = byUser
	}
	byUser[sub.id] = sub

	h.log.Debug("subscription opened", "user_id", userID, "subscription_id", sub.id, "user_subscriptions", len(byUser))
	return sub, nil
}

// Publish delivers the event to the matching subscriptions. It implements
// Publisher so a hub can stand in for a bus in a single process.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.Deliver(ev)
	return nil
}

// Deliver sends the event to every subscription of ev.UserID interested in ev.Store
func (h *Hub) Deliver(ev Event) {
	var delivered, dropped int

	h.mu.RLock()
	for _, sub := range h.subs[ev.UserID] {
		if !sub.wants(ev.Store) {
			continue
		}
		select {
		case sub.ch <- ev:
			delivered++
		default:
			dropped++
		}
	}
	h.mu.RUnlock()

	if dropped > 0 {
		h.log.Warn("dropped change event for slow subscriber",
			"user_id", ev.UserID, "store", ev.Store, "dropped", dropped)
	}
	h.log.Debug("change event delivered",
		"user_id", ev.UserID, "store", ev.Store, "op", ev.Op, "delivered", delivered)
}

// SubscriberCount returns the number of live subscriptions for a user
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Close ends every subscription. Later Subscribe calls fail.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, byUser := range h.subs {
		for _, sub := range byUser {
			sub.closeLocked()
		}
	}
	h.subs = make(map[string]map[string]*Subscription)
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	byUser, ok := h.subs[sub.userID]
	if !ok {
		return
	}
	if _, ok := byUser[sub.id]; !ok {
		return
	}
	delete(byUser, sub.id)
	if len(byUser) == 0 {
		delete(h.subs, sub.userID)
	}
	sub.closeLocked()
	h.log.Debug("subscription closed", "user_id", sub.userID, "subscription_id", sub.id)
}

// Subscription is a live registration with the hub. Events arrive on C until
// Close is called or the hub shuts down, after which C is closed.
type Subscription struct {
	id     string
	userID string
	stores map[models.StoreKind]bool
	ch     chan Event
	hub    *Hub
	done   bool // guarded by hub.mu
}

// ID returns the subscription's unique id
func (s *Subscription) ID() string { return s.id }

// UserID returns the user the subscription is scoped to
func (s *Subscription) UserID() string { return s.userID }

// C returns the channel events are delivered on
func (s *Subscription) C() <-chan Event { return s.ch }

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

func (s *Subscription) wants(store models.StoreKind) bool {
	return s.stores == nil || s.stores[store]
}

// closeLocked closes the channel; the caller holds hub.mu for writing.
func (s *Subscription) closeLocked() {
	if s.done {
		return
	}
	s.done = true
	close(s.ch)
}
