package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// SendMessageRequest payload.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// MessageResponse is one chat message with its sender.
type MessageResponse struct {
	ID        string          `json:"id"`
	TicketID  string          `json:"ticket_id"`
	Content   string          `json:"content"`
	Sender    *domain.UserRef `json:"sender"`
	CreatedAt time.Time       `json:"created_at"`
}

// Pagination describes a message window.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// MessageListResponse is one chronological window of a transcript.
type MessageListResponse struct {
	Data       []MessageResponse `json:"data"`
	Pagination Pagination        `json:"pagination"`
}

// NewMessageResponse projects a message.
func NewMessageResponse(m *domain.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		TicketID:  m.TicketID,
		Content:   m.Content,
		Sender:    m.Sender,
		CreatedAt: m.CreatedAt,
	}
}

// NewMessageListResponse projects a message page.
func NewMessageListResponse(page domain.MessagePage) MessageListResponse {
	out := MessageListResponse{
		Data: make([]MessageResponse, 0, len(page.Items)),
		Pagination: Pagination{
			Total: page.Total,
			Page:  page.Page,
			Limit: page.Limit,
			Pages: page.Pages(),
		},
	}
	for i := range page.Items {
		out.Data = append(out.Data, NewMessageResponse(&page.Items[i]))
	}
	return out
}
