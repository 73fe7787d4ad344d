// Package notify delivers "user changed" events to every surface that shows
// the same user, so they refresh without reloading from storage.
package notify

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"spendbook/internal/models"
)

// Kind names an event.
type Kind string

const (
	UserUpdated  Kind = "user.updated"
	UserRemoved  Kind = "user.removed"
	SessionEnded Kind = "session.ended"
)

// Event describes a committed change. User is nil for SessionEnded and UserRemoved.
// Previous is set when a commit changed the user's identity.
type Event struct {
	Kind     Kind
	Identity string
	Previous string
	User     *models.User
	At       time.Time
}

// Listener receives events synchronously, in subscription order.
type Listener func(ctx context.Context, ev Event)

// Hub fans events out to subscribed listeners.
type Hub struct {
	mu        sync.Mutex
	next      int
	listeners map[int]Listener
	logger    *slog.Logger
}

// NewHub returns a Hub without subscribers.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		listeners: make(map[int]Listener),
		logger:    logger.With("component", "notify"),
	}
}

// Subscribe registers l and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (h *Hub) Subscribe(l Listener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	h.listeners[id] = l

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, id)
	}
}

// Publish calls every listener with ev. Each listener gets its own copy of
// the user.
func (h *Hub) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h.mu.Lock()
	ids := make([]int, 0, len(h.listeners))
	for id := range h.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, h.listeners[id])
	}
	h.mu.Unlock()

	h.logger.DebugContext(ctx, "publishing event", "kind", ev.Kind, "identity", ev.Identity, "listeners", len(listeners))

	for _, l := range listeners {
		copied := ev
		if ev.User != nil {
			copied.User = ev.User.Clone()
		}
		l(ctx, copied)
	}
}

// Len returns the number of subscribed listeners.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}
