package client

import (
	"context"
	"strings"

	"github.com/spec-kit/helpdesk/internal/api/dto"
)

// MessageSender posts a chat message. *APIClient implements it.
type MessageSender interface {
	SendMessage(ctx context.Context, ticketID, content string) (dto.MessageResponse, error)
}

// Chat sends messages into a Transcript optimistically.
type Chat struct {
	api        MessageSender
	transcript *Transcript
}

// NewChat pairs a sender with an open transcript.
func NewChat(api MessageSender, transcript *Transcript) *Chat {
	return &Chat{api: api, transcript: transcript}
}

// Send shows content immediately as pending, then replaces it with the stored message or
// removes it if the server rejects the send.
func (c *Chat) Send(ctx context.Context, content string) (Entry, error) {
	content = strings.TrimSpace(content)
	tempID := c.transcript.AddPending(content)
	msg, err := c.api.SendMessage(ctx, c.transcript.TicketID(), content)
	if err != nil {
		c.transcript.Rollback(tempID)
		return Entry{}, err
	}
	entry := EntryFromResponse(msg)
	c.transcript.Confirm(tempID, entry)
	return entry, nil
}
