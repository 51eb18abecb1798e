package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const maxMessagePageSize = 200

// ChatService authorizes, records and fans out ticket chat messages.
type ChatService struct {
	tickets       repository.TicketRepository
	messages      repository.MessageRepository
	users         repository.UserRepository
	notifications *NotificationService
	publisher     events.Publisher
	cfg           config.ChatConfig
	logger        *zap.Logger
	metrics       *observability.Metrics
	ids           *messageIDs
}

// ChatDependencies wires the chat service.
type ChatDependencies struct {
	TicketRepo    repository.TicketRepository
	MessageRepo   repository.MessageRepository
	UserRepo      repository.UserRepository
	Notifications *NotificationService
	Publisher     events.Publisher
	Config        config.ChatConfig
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// NewChatService constructs the service.
func NewChatService(deps ChatDependencies) *ChatService {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	cfg := deps.Config
	defaults := config.DefaultChatConfig()
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = defaults.MaxContentLength
	}
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = defaults.PreviewLength
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = defaults.DefaultPageSize
	}
	if cfg.MyChatsLimit <= 0 {
		cfg.MyChatsLimit = defaults.MyChatsLimit
	}
	return &ChatService{
		tickets:       deps.TicketRepo,
		messages:      deps.MessageRepo,
		users:         deps.UserRepo,
		notifications: deps.Notifications,
		publisher:     publisher,
		cfg:           cfg,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		ids:           newMessageIDs(),
	}
}

// Authorize loads the ticket and checks that user may read and write its chat: the creator,
// the current assignee, or any admin or analyst.
func (s *ChatService) Authorize(ctx context.Context, ticketID string, user *domain.User) (*domain.Ticket, error) {
	if !isRecordID(ticketID) {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", nil)
		}
		return nil, apperrors.NewInfrastructureError(err)
	}
	if ticket.CreatorID == user.ID || ticket.IsAssignee(user.ID) || user.Role.IsStaff() {
		return ticket, nil
	}
	return nil, apperrors.NewForbidden("not authorized to access messages on this ticket")
}

// Send records a message and notifies the counterparty. Only the message write can fail the
// call; summary and notify failures are logged.
func (s *ChatService) Send(ctx context.Context, ticketID string, sender *domain.User, content string) (*domain.Message, error) {
	ticket, err := s.Authorize(ctx, ticketID, sender)
	if err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	switch {
	case content == "":
		return nil, apperrors.NewFieldError("content", "required")
	case utf8.RuneCountInString(content) > s.cfg.MaxContentLength:
		return nil, apperrors.NewFieldError("content", fmt.Sprintf("must be at most %d characters", s.cfg.MaxContentLength))
	}

	id, now := s.ids.next()
	msg := &domain.Message{
		ID:        id,
		TicketID:  ticket.ID,
		SenderID:  sender.ID,
		Content:   content,
		CreatedAt: now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.NewInfrastructureError(err)
	}
	ref := sender.Ref()
	msg.Sender = &ref

	if err := s.tickets.UpdateChatSummary(ctx, ticket.ID, content, now); err != nil {
		s.metrics.NotifyFailed("chat_summary")
		s.logger.Error("update chat summary", zap.String("ticket_id", ticket.ID), zap.Error(err))
	} else {
		ticket.LastMessage, ticket.LastMessageAt = &content, &now
	}

	s.notify(ctx, ticket, sender, msg)
	return msg, nil
}

// counterparty picks the single user a message should alert, or "" for nobody.
func counterparty(ticket *domain.Ticket, sender *domain.User) string {
	var target string
	if ticket.CreatorID == sender.ID {
		if ticket.AssigneeID != nil {
			target = *ticket.AssigneeID
		}
	} else {
		target = ticket.CreatorID
	}
	if target == sender.ID {
		return ""
	}
	return target
}

func (s *ChatService) notify(ctx context.Context, ticket *domain.Ticket, sender *domain.User, msg *domain.Message) {
	ctx, cancel := detached(ctx)
	defer cancel()
	logger := s.logger.With(zap.String("ticket_id", ticket.ID), zap.String("message_id", msg.ID))

	recipient := counterparty(ticket, sender)
	preview := truncateRunes(msg.Content, s.cfg.PreviewLength)
	line := fmt.Sprintf("%s: %s", displayName(sender), preview)

	var created *domain.Notification
	if recipient != "" {
		n, err := s.notifications.Create(ctx, NotificationInput{
			RecipientID: recipient,
			Type:        domain.NotificationMessageNew,
			Title:       fmt.Sprintf("New message on \"%s\"", ticket.Title),
			Message:     line,
			Ticket:      ticket,
		})
		if err != nil {
			s.metrics.NotifyFailed("persist_notification")
			logger.Error("persist message notification", zap.String("recipient_id", recipient), zap.Error(err))
		}
		created = n
	}

	var rooms []events.Room
	if recipient != "" {
		rooms = append(rooms, events.UserRoom(recipient))
	}
	if ticket.CreatorID == sender.ID {
		rooms = append(rooms, events.StaffRooms()...)
	}
	if len(rooms) > 0 {
		s.publisher.Publish(rooms, events.EventMessageNew, events.MessageNewPayload{
			TicketID:    ticket.ID,
			TicketTitle: ticket.Title,
			SenderName:  displayName(sender),
			Message:     line,
			Record:      events.NewMessageRecord(*msg),
			Timestamp:   msg.CreatedAt,
		})
	}
	if created != nil {
		s.publisher.Publish([]events.Room{events.UserRoom(recipient)}, events.EventNotificationNew, events.NewNotificationPayload(*created))
	}
}

// List returns one chronological window of the transcript. Page 1 is the newest limit
// messages; each further page steps back in time.
func (s *ChatService) List(ctx context.Context, ticketID string, user *domain.User, page, limit int) (domain.MessagePage, error) {
	if _, err := s.Authorize(ctx, ticketID, user); err != nil {
		return domain.MessagePage{}, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if limit > maxMessagePageSize {
		limit = maxMessagePageSize
	}

	total, err := s.messages.CountByTicket(ctx, ticketID)
	if err != nil {
		return domain.MessagePage{}, apperrors.NewInfrastructureError(err)
	}
	items, err := s.messages.ListNewestFirst(ctx, ticketID, limit, (page-1)*limit)
	if err != nil {
		return domain.MessagePage{}, apperrors.NewInfrastructureError(err)
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	return domain.MessagePage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// MyChats lists the tickets whose chat user takes part in, most recent activity first.
func (s *ChatService) MyChats(ctx context.Context, user *domain.User) ([]domain.ChatSummary, error) {
	filter := repository.ChatFilter{Limit: s.cfg.MyChatsLimit}
	switch user.Role {
	case domain.RoleAdmin:
	case domain.RoleAnalyst:
		filter.ParticipantID = &user.ID
	default:
		filter.CreatorID = &user.ID
	}

	tickets, err := s.tickets.ListChats(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInfrastructureError(err)
	}

	refs := map[string]*domain.UserRef{}
	resolve := func(id string) *domain.UserRef {
		if ref, ok := refs[id]; ok {
			return ref
		}
		var ref *domain.UserRef
		if u, err := s.users.GetByID(ctx, id); err == nil {
			r := u.Ref()
			ref = &r
		} else if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("resolve chat participant", zap.String("user_id", id), zap.Error(err))
		}
		refs[id] = ref
		return ref
	}

	out := make([]domain.ChatSummary, 0, len(tickets))
	for _, ticket := range tickets {
		summary := domain.ChatSummary{
			Ticket:        ticket,
			Creator:       resolve(ticket.CreatorID),
			LastMessage:   ticket.LastMessage,
			LastMessageAt: ticket.LastMessageAt,
		}
		if ticket.AssigneeID != nil {
			summary.Assignee = resolve(*ticket.AssigneeID)
		}
		out = append(out, summary)
	}
	return out, nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// messageIDs hands out ULIDs and their timestamps together so id order and time order agree
// within the process.
type messageIDs struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	last    time.Time
}

func newMessageIDs() *messageIDs {
	return &messageIDs{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *messageIDs) next() (string, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now().UTC().Truncate(time.Microsecond)
	if now.Before(g.last) {
		now = g.last
	}
	g.last = now
	return ulid.MustNew(ulid.Timestamp(now), g.entropy).String(), now
}
