package domain

import "time"

// NotificationType is the closed set of inbox record kinds.
type NotificationType string

const (
	NotificationTicketCreated  NotificationType = "ticket:created"
	NotificationTicketUpdated  NotificationType = "ticket:updated"
	NotificationTicketAssigned NotificationType = "ticket:assigned"
	NotificationMessageNew     NotificationType = "message:new"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTicketCreated, NotificationTicketUpdated, NotificationTicketAssigned, NotificationMessageNew:
		return true
	}
	return false
}

// Notification is one record in a user's inbox. Only Read ever changes, and only false to true.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Message   string
	TicketID  *string
	Ticket    *TicketRef
	Read      bool
	CreatedAt time.Time
}

// NotificationPage is a newest-first slice of an inbox plus the unread total from the same snapshot.
type NotificationPage struct {
	Items       []Notification
	UnreadCount int
}
