package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in-progress"
	TicketStatusResolved   TicketStatus = "resolved"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved:
		return true
	}
	return false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// Ticket is the support request aggregate. LastMessage and LastMessageAt are a denormalized
// projection of the newest chat message and are never authoritative.
type Ticket struct {
	ID             string
	Title          string
	Description    string
	Status         TicketStatus
	Priority       TicketPriority
	Category       string
	CreatorID      string
	AssigneeID     *string
	OrganizationID string
	LastMessage    *string
	LastMessageAt  *time.Time
	ResolvedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsAssignee reports whether userID is the current assignee.
func (t *Ticket) IsAssignee(userID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}

// ActivityAt is the timestamp used to order chat lists.
func (t *Ticket) ActivityAt() time.Time {
	if t.LastMessageAt != nil {
		return *t.LastMessageAt
	}
	return t.UpdatedAt
}

// TicketRef is the summary embedded in notifications and events.
type TicketRef struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Status   TicketStatus   `json:"status"`
	Priority TicketPriority `json:"priority"`
}

// Ref returns the summary projection of t.
func (t *Ticket) Ref() TicketRef {
	return TicketRef{ID: t.ID, Title: t.Title, Status: t.Status, Priority: t.Priority}
}
