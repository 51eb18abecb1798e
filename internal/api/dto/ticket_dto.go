package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	Category    string                `json:"category"`
}

// UpdateTicketRequest payload. Absent fields are left unchanged.
type UpdateTicketRequest struct {
	Status     *domain.TicketStatus   `json:"status"`
	Priority   *domain.TicketPriority `json:"priority"`
	AssigneeID *string                `json:"assignee_id"`
}

// TicketResponse is the full ticket view.
type TicketResponse struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Status        domain.TicketStatus   `json:"status"`
	Priority      domain.TicketPriority `json:"priority"`
	Category      string                `json:"category,omitempty"`
	CreatorID     string                `json:"creator_id"`
	AssigneeID    *string               `json:"assignee_id"`
	LastMessage   *string               `json:"last_message"`
	LastMessageAt *time.Time            `json:"last_message_at"`
	ResolvedAt    *time.Time            `json:"resolved_at"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// NewTicketResponse projects a ticket.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:            ticket.ID,
		Title:         ticket.Title,
		Description:   ticket.Description,
		Status:        ticket.Status,
		Priority:      ticket.Priority,
		Category:      ticket.Category,
		CreatorID:     ticket.CreatorID,
		AssigneeID:    ticket.AssigneeID,
		LastMessage:   ticket.LastMessage,
		LastMessageAt: ticket.LastMessageAt,
		ResolvedAt:    ticket.ResolvedAt,
		CreatedAt:     ticket.CreatedAt,
		UpdatedAt:     ticket.UpdatedAt,
	}
}

// ChatSummaryResponse is one row of the my-chats list.
type ChatSummaryResponse struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	Status        domain.TicketStatus   `json:"status"`
	Priority      domain.TicketPriority `json:"priority"`
	Creator       *domain.UserRef       `json:"creator"`
	Assignee      *domain.UserRef       `json:"assignee"`
	LastMessage   *string               `json:"last_message"`
	LastMessageAt *time.Time            `json:"last_message_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// NewChatSummaryResponse projects a chat summary.
func NewChatSummaryResponse(s domain.ChatSummary) ChatSummaryResponse {
	return ChatSummaryResponse{
		ID:            s.Ticket.ID,
		Title:         s.Ticket.Title,
		Status:        s.Ticket.Status,
		Priority:      s.Ticket.Priority,
		Creator:       s.Creator,
		Assignee:      s.Assignee,
		LastMessage:   s.LastMessage,
		LastMessageAt: s.LastMessageAt,
		UpdatedAt:     s.Ticket.UpdatedAt,
	}
}
