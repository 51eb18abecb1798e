package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
)

const notifyTimeout = 5 * time.Second

// TicketNotifier fans ticket lifecycle changes out to inboxes and live sessions. It runs after
// the ticket write has committed and never reports failure to the caller.
type TicketNotifier struct {
	users         repository.UserRepository
	notifications *NotificationService
	publisher     events.Publisher
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

// NotifierDependencies wires the notifier.
type NotifierDependencies struct {
	UserRepo      repository.UserRepository
	Notifications *NotificationService
	Publisher     events.Publisher
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// NewTicketNotifier constructs the notifier.
func NewTicketNotifier(deps NotifierDependencies) *TicketNotifier {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &TicketNotifier{
		users:         deps.UserRepo,
		notifications: deps.Notifications,
		publisher:     publisher,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// OnCreated gives every admin and analyst their own inbox record, pushes each record to its
// owner and broadcasts one summary to the staff rooms.
func (n *TicketNotifier) OnCreated(ctx context.Context, ticket *domain.Ticket, creator *domain.User) {
	ctx, cancel := detached(ctx)
	defer cancel()
	logger := n.logger.With(zap.String("ticket_id", ticket.ID), zap.String("event", string(events.EventTicketCreated)))

	title := "New Ticket"
	message := fmt.Sprintf("New ticket \"%s\" created by %s", ticket.Title, displayName(creator))

	staff, err := n.users.ListByRoles(ctx, domain.StaffRoles...)
	if err != nil {
		n.metrics.NotifyFailed("resolve_recipients")
		logger.Error("resolve staff recipients", zap.Error(err))
	} else {
		inputs := make([]NotificationInput, 0, len(staff))
		for _, member := range staff {
			inputs = append(inputs, NotificationInput{
				RecipientID: member.ID,
				Type:        domain.NotificationTicketCreated,
				Title:       title,
				Message:     message,
				Ticket:      ticket,
			})
		}
		created, err := n.notifications.CreateMany(ctx, inputs)
		if err != nil {
			n.metrics.NotifyFailed("persist_notification")
			logger.Error("persist staff notifications", zap.Int("recipients", len(inputs)), zap.Error(err))
		}
		for _, record := range created {
			n.publisher.Publish([]events.Room{events.UserRoom(record.UserID)}, events.EventNotificationNew, events.NewNotificationPayload(record))
		}
	}

	n.publisher.Publish(events.StaffRooms(), events.EventTicketCreated, events.TicketCreatedPayload{
		Type:      domain.NotificationTicketCreated,
		Title:     title,
		Message:   message,
		TicketID:  ticket.ID,
		Ticket:    ticketSummary(ticket, ""),
		CreatedBy: personRef(creator),
		Timestamp: n.now(),
	})
}

// OnStatusChanged notifies the creator of a status transition and signals staff dashboards.
// Same-status updates are ignored.
func (n *TicketNotifier) OnStatusChanged(ctx context.Context, ticket *domain.Ticket, previous domain.TicketStatus, actor *domain.User) {
	if ticket.Status == previous {
		return
	}
	logger := n.logger.With(zap.String("ticket_id", ticket.ID), zap.String("event", string(events.EventTicketUpdated)))
	if ticket.CreatorID == "" {
		logger.Warn("ticket has no creator, skipping status notification")
		return
	}
	ctx, cancel := detached(ctx)
	defer cancel()

	title, message := statusCopy(ticket, displayName(actor))
	created, err := n.notifications.Create(ctx, NotificationInput{
		RecipientID: ticket.CreatorID,
		Type:        domain.NotificationTicketUpdated,
		Title:       title,
		Message:     message,
		Ticket:      ticket,
	})
	if err != nil {
		n.metrics.NotifyFailed("persist_notification")
		logger.Error("persist status notification", zap.String("recipient_id", ticket.CreatorID), zap.Error(err))
	}

	payload := events.TicketUpdatedPayload{
		Type:       domain.NotificationTicketUpdated,
		Title:      title,
		Message:    message,
		TicketID:   ticket.ID,
		Ticket:     ticketSummary(ticket, previous),
		UpdatedBy:  personRef(actor),
		ResolvedAt: ticket.ResolvedAt,
		Timestamp:  n.now(),
	}
	n.publisher.Publish([]events.Room{events.UserRoom(ticket.CreatorID)}, events.EventTicketUpdated, payload)
	n.publisher.Publish(events.StaffRooms(), events.EventTicketStatusChanged, payload)
	if created != nil {
		n.publisher.Publish([]events.Room{events.UserRoom(ticket.CreatorID)}, events.EventNotificationNew, events.NewNotificationPayload(*created))
	}
}

// OnAssigned tells a newly assigned analyst about the ticket. Self-assignment is silent.
func (n *TicketNotifier) OnAssigned(ctx context.Context, ticket *domain.Ticket, actor *domain.User) {
	if ticket.AssigneeID == nil || (actor != nil && *ticket.AssigneeID == actor.ID) {
		return
	}
	ctx, cancel := detached(ctx)
	defer cancel()

	assigneeID := *ticket.AssigneeID
	created, err := n.notifications.Create(ctx, NotificationInput{
		RecipientID: assigneeID,
		Type:        domain.NotificationTicketAssigned,
		Title:       "Ticket Assigned",
		Message:     fmt.Sprintf("Ticket \"%s\" has been assigned to you by %s", ticket.Title, displayName(actor)),
		Ticket:      ticket,
	})
	if err != nil {
		n.metrics.NotifyFailed("persist_notification")
		n.logger.Error("persist assignment notification",
			zap.String("ticket_id", ticket.ID), zap.String("recipient_id", assigneeID), zap.Error(err))
		return
	}
	n.publisher.Publish([]events.Room{events.UserRoom(assigneeID)}, events.EventNotificationNew, events.NewNotificationPayload(*created))
}

func statusCopy(ticket *domain.Ticket, actorName string) (string, string) {
	title := "Ticket Updated"
	if ticket.Status == domain.TicketStatusResolved {
		title = "Ticket Resolved"
	}
	switch ticket.Status {
	case domain.TicketStatusInProgress:
		return title, fmt.Sprintf("Your ticket \"%s\" is now being worked on by %s", ticket.Title, actorName)
	case domain.TicketStatusResolved:
		return title, fmt.Sprintf("Your ticket \"%s\" has been resolved by %s", ticket.Title, actorName)
	case domain.TicketStatusOpen:
		return title, fmt.Sprintf("Your ticket \"%s\" has been reopened", ticket.Title)
	default:
		return title, fmt.Sprintf("Your ticket \"%s\" has been updated", ticket.Title)
	}
}

func ticketSummary(ticket *domain.Ticket, previous domain.TicketStatus) events.TicketSummary {
	return events.TicketSummary{
		ID:             ticket.ID,
		Title:          ticket.Title,
		Status:         ticket.Status,
		PreviousStatus: previous,
		Priority:       ticket.Priority,
		Category:       ticket.Category,
	}
}

func personRef(user *domain.User) events.PersonRef {
	if user == nil {
		return events.PersonRef{Name: "Unknown"}
	}
	return events.PersonRef{Name: user.Name, Email: user.Email, Role: user.Role}
}

func displayName(user *domain.User) string {
	if user == nil || user.Name == "" {
		return "Unknown"
	}
	return user.Name
}

// detached keeps the notify step alive when the request that triggered it is cancelled.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
}
