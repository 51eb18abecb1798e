package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// NotificationResponse is one inbox record.
type NotificationResponse struct {
	ID        string                  `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	TicketID  *string                 `json:"ticket_id"`
	Ticket    *domain.TicketRef       `json:"ticket,omitempty"`
	Read      bool                    `json:"read"`
	CreatedAt time.Time               `json:"created_at"`
}

// NotificationListResponse is the inbox listing.
type NotificationListResponse struct {
	Data        []NotificationResponse `json:"data"`
	UnreadCount int                    `json:"unreadCount"`
}

// NewNotificationResponse projects a notification.
func NewNotificationResponse(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		TicketID:  n.TicketID,
		Ticket:    n.Ticket,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

// NewNotificationListResponse projects an inbox page.
func NewNotificationListResponse(page domain.NotificationPage) NotificationListResponse {
	out := NotificationListResponse{Data: make([]NotificationResponse, 0, len(page.Items)), UnreadCount: page.UnreadCount}
	for i := range page.Items {
		out.Data = append(out.Data, NewNotificationResponse(&page.Items[i]))
	}
	return out
}
