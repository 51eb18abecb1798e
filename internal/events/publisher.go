package events

import "sync"

// Publisher delivers an event to every live connection joined to any of rooms. Delivery is
// best effort: there is no result, no retry and no guarantee anyone receives it. The
// notification inbox is the durable record; publishers must never block or fail the caller.
type Publisher interface {
	Publish(rooms []Room, name EventName, payload any)
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish([]Room, EventName, any) {}

// Published is one call captured by Recorder.
type Published struct {
	Rooms   []Room
	Name    EventName
	Payload any
}

// Recorder is an in-memory Publisher that remembers every call.
type Recorder struct {
	mu    sync.Mutex
	calls []Published
}

// Publish implements Publisher.
func (r *Recorder) Publish(rooms []Room, name EventName, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Published{Rooms: append([]Room(nil), rooms...), Name: name, Payload: payload})
}

// Calls returns a copy of the recorded publishes.
func (r *Recorder) Calls() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.calls...)
}

// Named returns the recorded publishes of one event.
func (r *Recorder) Named(name EventName) []Published {
	var out []Published
	for _, call := range r.Calls() {
		if call.Name == name {
			out = append(out, call)
		}
	}
	return out
}

// Reset forgets every recorded call.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
