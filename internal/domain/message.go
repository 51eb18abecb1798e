package domain

import "time"

// Message is one chat line on a ticket. Messages are append-only; per-ticket order is
// CreatedAt then ID, and IDs are time-sortable.
type Message struct {
	ID        string
	TicketID  string
	SenderID  string
	Sender    *UserRef
	Content   string
	CreatedAt time.Time
}

// MessagePage is a chronological window of a ticket transcript.
type MessagePage struct {
	Items []Message
	Total int
	Page  int
	Limit int
}

// Pages returns the number of pages of size Limit needed to hold Total messages.
func (p MessagePage) Pages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// ChatSummary annotates a ticket in the "my chats" list.
type ChatSummary struct {
	Ticket        Ticket
	Creator       *UserRef
	Assignee      *UserRef
	LastMessage   *string
	LastMessageAt *time.Time
}
