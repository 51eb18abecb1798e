package events

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// EventName identifies a server-to-client real-time event.
type EventName string

const (
	EventTicketCreated       EventName = "ticket:created"
	EventTicketUpdated       EventName = "ticket:updated"
	EventTicketStatusChanged EventName = "ticket:status-changed"
	EventNotificationNew     EventName = "notification:new"
	EventMessageNew          EventName = "message:new"
)

// Client-to-server control events.
const (
	ClientJoin     = "join"
	ClientJoinRole = "join-role"
	// ServerError is sent back when a control event is rejected.
	ServerError EventName = "error"
)

// Envelope is the frame exchanged over the websocket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals a payload into a ready-to-send frame.
func Encode(name EventName, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: string(name), Data: data})
}

// PersonRef names the actor behind an event.
type PersonRef struct {
	Name  string      `json:"name"`
	Email string      `json:"email,omitempty"`
	Role  domain.Role `json:"role,omitempty"`
}

// TicketSummary is the denormalized ticket view carried by ticket:* events.
type TicketSummary struct {
	ID             string                `json:"id"`
	Title          string                `json:"title"`
	Status         domain.TicketStatus   `json:"status,omitempty"`
	PreviousStatus domain.TicketStatus   `json:"previous_status,omitempty"`
	Priority       domain.TicketPriority `json:"priority"`
	Category       string                `json:"category,omitempty"`
}

// TicketCreatedPayload is broadcast to admin and analyst rooms when a ticket is filed.
type TicketCreatedPayload struct {
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	TicketID  string                  `json:"ticket_id"`
	Ticket    TicketSummary           `json:"ticket"`
	CreatedBy PersonRef               `json:"created_by"`
	Timestamp time.Time               `json:"timestamp"`
}

// TicketUpdatedPayload is sent to the creator (ticket:updated) and to staff
// (ticket:status-changed) when a ticket's status changes.
type TicketUpdatedPayload struct {
	Type       domain.NotificationType `json:"type"`
	Title      string                  `json:"title"`
	Message    string                  `json:"message"`
	TicketID   string                  `json:"ticket_id"`
	Ticket     TicketSummary           `json:"ticket"`
	UpdatedBy  PersonRef               `json:"updated_by"`
	ResolvedAt *time.Time              `json:"resolved_at,omitempty"`
	Timestamp  time.Time               `json:"timestamp"`
}

// NotificationPayload mirrors a persisted inbox record.
type NotificationPayload struct {
	ID        string                  `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	TicketID  *string                 `json:"ticket_id,omitempty"`
	Ticket    *domain.TicketRef       `json:"ticket,omitempty"`
	Read      bool                    `json:"read"`
	CreatedAt time.Time               `json:"created_at"`
	Timestamp time.Time               `json:"timestamp"`
}

// NewNotificationPayload projects a notification for the wire.
func NewNotificationPayload(n domain.Notification) NotificationPayload {
	return NotificationPayload{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		TicketID:  n.TicketID,
		Ticket:    n.Ticket,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
		Timestamp: n.CreatedAt,
	}
}

// MessageRecord is the full chat message with its resolved sender.
type MessageRecord struct {
	ID        string          `json:"id"`
	TicketID  string          `json:"ticket_id"`
	Content   string          `json:"content"`
	Sender    *domain.UserRef `json:"sender,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewMessageRecord projects a message for the wire.
func NewMessageRecord(m domain.Message) MessageRecord {
	return MessageRecord{
		ID:        m.ID,
		TicketID:  m.TicketID,
		Content:   m.Content,
		Sender:    m.Sender,
		CreatedAt: m.CreatedAt,
	}
}

// MessageNewPayload announces a chat message. Message is the human-readable line; Record is the
// stored message.
type MessageNewPayload struct {
	TicketID    string        `json:"ticket_id"`
	TicketTitle string        `json:"ticket_title"`
	SenderName  string        `json:"sender_name"`
	Message     string        `json:"message"`
	Record      MessageRecord `json:"record"`
	Timestamp   time.Time     `json:"timestamp"`
}
