package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// MessagesHandler serves a ticket's chat transcript.
type MessagesHandler struct {
	chat *service.ChatService
}

// NewMessagesHandler constructs handler.
func NewMessagesHandler(chatService *service.ChatService) *MessagesHandler {
	return &MessagesHandler{chat: chatService}
}

// List GET /tickets/:ticketId/messages?page=&limit=.
func (h *MessagesHandler) List(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	page, err := h.chat.List(c.UserContext(), c.Params("ticketId"), principal.User,
		parseInt(c.Query("page"), 1), parseInt(c.Query("limit"), 0))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewMessageListResponse(page))
}

// Send POST /tickets/:ticketId/messages.
func (h *MessagesHandler) Send(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.chat.Send(c.UserContext(), c.Params("ticketId"), principal.User, req.Content)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewMessageResponse(msg)})
}
