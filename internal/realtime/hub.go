// Package realtime is the process-local event bus: it tracks live websocket connections by room
// and fans published events out to them.
package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
)

// Subscriber is one live connection as seen by the hub.
type Subscriber interface {
	ID() string
	// Send queues one complete frame without blocking. It reports false when the frame was
	// dropped because the connection is closed or its buffer is full.
	Send(frame []byte) bool
}

// Hub maps rooms to the subscribers joined to them. It is safe for concurrent use.
type Hub struct {
	mu          sync.RWMutex
	rooms       map[events.Room]map[Subscriber]struct{}
	memberships map[Subscriber]map[events.Room]struct{}

	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewHub builds an empty hub. metrics may be nil.
func NewHub(logger *zap.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		rooms:       make(map[events.Room]map[Subscriber]struct{}),
		memberships: make(map[Subscriber]map[events.Room]struct{}),
		logger:      logger,
		metrics:     metrics,
	}
}

// Join adds sub to room. Joining twice is a no-op.
func (h *Hub) Join(sub Subscriber, room events.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[Subscriber]struct{})
		h.rooms[room] = members
	}
	members[sub] = struct{}{}

	joined, ok := h.memberships[sub]
	if !ok {
		joined = make(map[events.Room]struct{})
		h.memberships[sub] = joined
	}
	joined[room] = struct{}{}
}

// Leave removes sub from one room.
func (h *Hub) Leave(sub Subscriber, room events.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(sub, room)
}

// Remove drops sub from every room it joined. Called when the transport disconnects.
func (h *Hub) Remove(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.memberships[sub] {
		h.leaveLocked(sub, room)
	}
	delete(h.memberships, sub)
}

func (h *Hub) leaveLocked(sub Subscriber, room events.Room) {
	if members, ok := h.rooms[room]; ok {
		delete(members, sub)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if joined, ok := h.memberships[sub]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(h.memberships, sub)
		}
	}
}

// Publish implements events.Publisher. The payload is encoded once and every subscriber in the
// union of rooms gets exactly one copy.
func (h *Hub) Publish(rooms []events.Room, name events.EventName, payload any) {
	frame, err := events.Encode(name, payload)
	if err != nil {
		h.logger.Error("encode event", zap.String("event", string(name)), zap.Error(err))
		return
	}
	h.metrics.EventPublished(string(name))
	h.Deliver(rooms, frame)
}

// Deliver fans an already-encoded frame out to rooms. Used by the relay for remote publishes.
func (h *Hub) Deliver(rooms []events.Room, frame []byte) int {
	targets := h.targets(rooms)
	delivered := 0
	for _, sub := range targets {
		if sub.Send(frame) {
			delivered++
			continue
		}
		h.metrics.DeliveryDropped("buffer_full")
		h.logger.Debug("dropped delivery", zap.String("conn_id", sub.ID()))
	}
	return delivered
}

// targets snapshots the deduplicated union of rooms so sends happen without the lock held.
func (h *Hub) targets(rooms []events.Room) []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[Subscriber]struct{})
	var out []Subscriber
	for _, room := range rooms {
		for sub := range h.rooms[room] {
			if _, dup := seen[sub]; dup {
				continue
			}
			seen[sub] = struct{}{}
			out = append(out, sub)
		}
	}
	return out
}

// RoomSize returns the number of subscribers joined to room.
func (h *Hub) RoomSize(room events.Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// RoomsOf lists the rooms sub is joined to.
func (h *Hub) RoomsOf(sub Subscriber) []events.Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]events.Room, 0, len(h.memberships[sub]))
	for room := range h.memberships[sub] {
		out = append(out, room)
	}
	return out
}
