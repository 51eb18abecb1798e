package client

import (
	"strconv"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/events"
)

const defaultDedupeWindow = 30 * time.Second

// Entry is one line of an open chat window.
type Entry struct {
	ID         string
	TicketID   string
	SenderID   string
	SenderName string
	Content    string
	CreatedAt  time.Time
	// Pending marks an optimistic local copy the server has not confirmed yet.
	Pending bool
}

// EntryFromResponse converts a REST message.
func EntryFromResponse(m dto.MessageResponse) Entry {
	e := Entry{ID: m.ID, TicketID: m.TicketID, Content: m.Content, CreatedAt: m.CreatedAt}
	if m.Sender != nil {
		e.SenderID, e.SenderName = m.Sender.ID, m.Sender.Name
	}
	return e
}

// EntryFromRecord converts a message:new record.
func EntryFromRecord(m events.MessageRecord) Entry {
	e := Entry{ID: m.ID, TicketID: m.TicketID, Content: m.Content, CreatedAt: m.CreatedAt}
	if m.Sender != nil {
		e.SenderID, e.SenderName = m.Sender.ID, m.Sender.Name
	}
	return e
}

// Transcript is the visible message list of one ticket's chat. Pending entries are reconciled
// against server records either by Confirm or by an incoming message:new, whichever arrives first.
type Transcript struct {
	ticketID string
	selfID   string
	window   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries []Entry
	seq     int
}

// NewTranscript opens the window for ticketID as seen by selfID. window bounds how far apart a
// pending copy and its server record may be timestamped and still be treated as the same message.
func NewTranscript(ticketID, selfID string, window time.Duration) *Transcript {
	if window <= 0 {
		window = defaultDedupeWindow
	}
	return &Transcript{ticketID: ticketID, selfID: selfID, window: window, now: time.Now}
}

// TicketID is the ticket this window shows.
func (t *Transcript) TicketID() string { return t.ticketID }

// Load replaces the window with fetched history, keeping unconfirmed sends at the tail.
func (t *Transcript) Load(history []Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := make([]Entry, 0, len(history)+len(t.entries))
	next = append(next, history...)
	for _, e := range t.entries {
		if e.Pending {
			next = append(next, e)
		}
	}
	t.entries = next
}

// AddPending inserts an optimistic copy of a local send and returns its temporary id.
func (t *Transcript) AddPending(content string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	id := "pending-" + strconv.Itoa(t.seq)
	t.entries = append(t.entries, Entry{
		ID:        id,
		TicketID:  t.ticketID,
		SenderID:  t.selfID,
		Content:   content,
		CreatedAt: t.now(),
		Pending:   true,
	})
	return id
}

// Confirm swaps the pending entry tempID for the server's record. If the record already
// arrived as an event the pending copy is just dropped. If an event for a later send with the
// same content took over tempID's slot, msg is placed by server order instead.
func (t *Transcript) Confirm(tempID string, msg Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg.Pending = false
	if t.indexOf(msg.ID) >= 0 {
		t.removeLocked(tempID)
		return
	}
	if i := t.indexOf(tempID); i >= 0 {
		t.entries[i] = msg
		return
	}
	t.insertOrderedLocked(msg)
}

// Rollback removes a pending entry whose send failed.
func (t *Transcript) Rollback(tempID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(tempID)
}

// Merge applies an incoming message:new. It reports whether the window changed. Messages for
// other tickets and ids already shown are ignored; an own message matching a pending copy
// replaces it.
func (t *Transcript) Merge(msg Entry) bool {
	if msg.TicketID != t.ticketID {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.indexOf(msg.ID) >= 0 {
		return false
	}
	msg.Pending = false
	if i := t.pendingMatch(msg); i >= 0 {
		t.entries[i] = msg
		return true
	}
	t.entries = append(t.entries, msg)
	return true
}

// Entries returns a copy of the window in display order.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Transcript) pendingMatch(msg Entry) int {
	if msg.SenderID != t.selfID {
		return -1
	}
	for i, e := range t.entries {
		if !e.Pending || e.Content != msg.Content {
			continue
		}
		delta := msg.CreatedAt.Sub(e.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= t.window {
			return i
		}
	}
	return -1
}

// insertOrderedLocked puts msg before the first confirmed entry the server recorded after it.
func (t *Transcript) insertOrderedLocked(msg Entry) {
	for i, e := range t.entries {
		if e.Pending {
			continue
		}
		if e.CreatedAt.After(msg.CreatedAt) || (e.CreatedAt.Equal(msg.CreatedAt) && e.ID > msg.ID) {
			t.entries = append(t.entries[:i], append([]Entry{msg}, t.entries[i:]...)...)
			return
		}
	}
	t.entries = append(t.entries, msg)
}

func (t *Transcript) indexOf(id string) int {
	for i, e := range t.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (t *Transcript) removeLocked(id string) {
	if i := t.indexOf(id); i >= 0 {
		t.entries = append(t.entries[:i], t.entries[i+1:]...)
	}
}
