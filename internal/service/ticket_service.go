package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const (
	minTitleLength       = 5
	minDescriptionLength = 10
)

// TicketService coordinates the ticket writes that drive lifecycle notifications.
type TicketService struct {
	tickets  repository.TicketRepository
	users    repository.UserRepository
	notifier *TicketNotifier
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Notifier   *TicketNotifier
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	Category    string
}

// TicketUpdateInput carries the optional fields of an update. A nil field is left unchanged;
// an empty AssigneeID unassigns.
type TicketUpdateInput struct {
	Status     *domain.TicketStatus
	Priority   *domain.TicketPriority
	AssigneeID *string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:  deps.TicketRepo,
		users:    deps.UserRepo,
		notifier: deps.Notifier,
	}
}

// CreateTicket files a ticket for creator and notifies staff once it is stored.
func (s *TicketService) CreateTicket(ctx context.Context, creator *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}

	details := map[string]any{}
	if utf8.RuneCountInString(title) < minTitleLength {
		details["title"] = "must be at least 5 characters"
	}
	if utf8.RuneCountInString(description) < minDescriptionLength {
		details["description"] = "must be at least 10 characters"
	}
	if !priority.Valid() {
		details["priority"] = "must be one of low, medium, high"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}

	ticket := &domain.Ticket{
		ID:             uuid.NewString(),
		Title:          title,
		Description:    description,
		Status:         domain.TicketStatusOpen,
		Priority:       priority,
		Category:       strings.TrimSpace(input.Category),
		CreatorID:      creator.ID,
		OrganizationID: creator.OrganizationID,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewInfrastructureError(err)
	}

	if s.notifier != nil {
		s.notifier.OnCreated(ctx, ticket, creator)
	}
	return ticket, nil
}

// GetTicket returns a ticket visible to user. End users only see their own.
func (s *TicketService) GetTicket(ctx context.Context, user *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !user.Role.IsStaff() && ticket.CreatorID != user.ID && !ticket.IsAssignee(user.ID) {
		return nil, apperrors.NewForbidden("not authorized to view this ticket")
	}
	return ticket, nil
}

// UpdateTicket applies status, priority and assignee changes. The creator or any staff member
// may update; only staff may reassign.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.User, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.CreatorID != actor.ID && !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("not authorized to update this ticket")
	}

	if input.Status != nil && !input.Status.Valid() {
		return nil, apperrors.NewFieldError("status", "must be one of open, in-progress, resolved")
	}
	if input.Priority != nil && !input.Priority.Valid() {
		return nil, apperrors.NewFieldError("priority", "must be one of low, medium, high")
	}

	assigneeChanged := false
	if input.AssigneeID != nil {
		if !actor.Role.IsStaff() {
			return nil, apperrors.NewForbidden("only staff can assign tickets")
		}
		next := strings.TrimSpace(*input.AssigneeID)
		if next == "" {
			assigneeChanged = ticket.AssigneeID != nil
			ticket.AssigneeID = nil
		} else if !ticket.IsAssignee(next) {
			if err := s.checkAssignee(ctx, next); err != nil {
				return nil, err
			}
			ticket.AssigneeID = &next
			assigneeChanged = true
		}
	}

	previous := ticket.Status
	if input.Status != nil {
		ticket.Status = *input.Status
		if ticket.Status == domain.TicketStatusResolved && previous != domain.TicketStatusResolved {
			now := time.Now().UTC()
			ticket.ResolvedAt = &now
		} else if ticket.Status != domain.TicketStatusResolved {
			ticket.ResolvedAt = nil
		}
	}
	if input.Priority != nil {
		ticket.Priority = *input.Priority
	}

	if err := s.tickets.Update(ctx, ticket, previous); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", nil)
		}
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, apperrors.NewConflict("ticket status changed, reload and retry", nil)
		}
		return nil, apperrors.NewInfrastructureError(err)
	}

	if s.notifier != nil {
		if ticket.Status != previous {
			s.notifier.OnStatusChanged(ctx, ticket, previous, actor)
		}
		if assigneeChanged {
			s.notifier.OnAssigned(ctx, ticket, actor)
		}
	}
	return ticket, nil
}

func (s *TicketService) checkAssignee(ctx context.Context, userID string) error {
	if !isRecordID(userID) {
		return apperrors.NewFieldError("assignee_id", "unknown user")
	}
	assignee, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewFieldError("assignee_id", "unknown user")
		}
		return apperrors.NewInfrastructureError(err)
	}
	if !assignee.Role.IsStaff() {
		return apperrors.NewFieldError("assignee_id", "must be an admin or analyst")
	}
	return nil
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
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
	return ticket, nil
}
