package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

func countType(page domain.NotificationPage, typ domain.NotificationType) int {
	n := 0
	for _, item := range page.Items {
		if item.Type == typ {
			n++
		}
	}
	return n
}

func TestCreateTicketNotifiesEveryStaffUser(t *testing.T) {
	f := newFixture(t)
	ticket, err := f.tickets.CreateTicket(context.Background(), f.creator, TicketCreateInput{
		Title:       "Printer on fire",
		Description: "Third floor printer is smoking",
		Priority:    domain.TicketPriorityHigh,
		Category:    "hardware",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)

	for _, staff := range []*domain.User{f.admin, f.analyst, f.analyst2} {
		page := f.inbox(t, staff)
		require.Len(t, page.Items, 1, staff.Name)
		n := page.Items[0]
		assert.Equal(t, domain.NotificationTicketCreated, n.Type)
		require.NotNil(t, n.TicketID)
		assert.Equal(t, ticket.ID, *n.TicketID)
		assert.Equal(t, "New Ticket", n.Title)
		assert.Equal(t, `New ticket "Printer on fire" created by Uma User`, n.Message)
	}
	assert.Empty(t, f.inbox(t, f.creator).Items)

	published := f.recorder.Named(events.EventTicketCreated)
	require.Len(t, published, 1)
	assert.ElementsMatch(t, events.StaffRooms(), published[0].Rooms)
	payload, ok := published[0].Payload.(events.TicketCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, "hardware", payload.Ticket.Category)
	assert.Equal(t, "Uma User", payload.CreatedBy.Name)
	assert.False(t, payload.Timestamp.IsZero())

	pushed := f.recorder.Named(events.EventNotificationNew)
	require.Len(t, pushed, 3)
	owners := map[events.Room]string{}
	for _, call := range pushed {
		require.Len(t, call.Rooms, 1)
		note, ok := call.Payload.(events.NotificationPayload)
		require.True(t, ok)
		owners[call.Rooms[0]] = note.ID
	}
	for _, staff := range []*domain.User{f.admin, f.analyst, f.analyst2} {
		assert.Equal(t, f.inbox(t, staff).Items[0].ID, owners[events.UserRoom(staff.ID)], staff.Name)
	}
	assert.NotContains(t, owners, events.UserRoom(f.creator.ID))
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.tickets.CreateTicket(context.Background(), f.creator, TicketCreateInput{
		Title: "Hi", Description: "short", Priority: "urgent",
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Contains(t, domainErr.Details, "title")
	assert.Contains(t, domainErr.Details, "description")
	assert.Contains(t, domainErr.Details, "priority")
	assert.Empty(t, f.recorder.Calls())
}

func TestStatusChangeNotifiesCreatorExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.openTicket(t, nil)

	inProgress := domain.TicketStatusInProgress
	_, err := f.tickets.UpdateTicket(ctx, f.analyst, ticket.ID, TicketUpdateInput{Status: &inProgress})
	require.NoError(t, err)

	page := f.inbox(t, f.creator)
	require.Equal(t, 1, countType(page, domain.NotificationTicketUpdated))
	assert.Equal(t, "Ticket Updated", page.Items[0].Title)
	assert.Equal(t, `Your ticket "VPN keeps dropping" is now being worked on by Xavier Analyst`, page.Items[0].Message)

	updated := f.recorder.Named(events.EventTicketUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, []events.Room{events.UserRoom(f.creator.ID)}, updated[0].Rooms)
	payload := updated[0].Payload.(events.TicketUpdatedPayload)
	assert.Equal(t, domain.TicketStatusOpen, payload.Ticket.PreviousStatus)
	assert.Equal(t, domain.TicketStatusInProgress, payload.Ticket.Status)
	assert.Equal(t, "Xavier Analyst", payload.UpdatedBy.Name)

	changed := f.recorder.Named(events.EventTicketStatusChanged)
	require.Len(t, changed, 1)
	assert.ElementsMatch(t, events.StaffRooms(), changed[0].Rooms)

	// same status again is silent
	f.recorder.Reset()
	_, err = f.tickets.UpdateTicket(ctx, f.analyst, ticket.ID, TicketUpdateInput{Status: &inProgress})
	require.NoError(t, err)
	assert.Equal(t, 1, countType(f.inbox(t, f.creator), domain.NotificationTicketUpdated))
	assert.Empty(t, f.recorder.Calls())
}

func TestResolveSetsResolvedAtAndCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.openTicket(t, nil)

	resolved := domain.TicketStatusResolved
	got, err := f.tickets.UpdateTicket(ctx, f.admin, ticket.ID, TicketUpdateInput{Status: &resolved})
	require.NoError(t, err)
	require.NotNil(t, got.ResolvedAt)

	page := f.inbox(t, f.creator)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Ticket Resolved", page.Items[0].Title)
	assert.Equal(t, `Your ticket "VPN keeps dropping" has been resolved by Ada Admin`, page.Items[0].Message)

	payload := f.recorder.Named(events.EventTicketUpdated)[0].Payload.(events.TicketUpdatedPayload)
	require.NotNil(t, payload.ResolvedAt)

	open := domain.TicketStatusOpen
	got, err = f.tickets.UpdateTicket(ctx, f.creator, ticket.ID, TicketUpdateInput{Status: &open})
	require.NoError(t, err)
	assert.Nil(t, got.ResolvedAt)
	assert.Equal(t, `Your ticket "VPN keeps dropping" has been reopened`, f.inbox(t, f.creator).Items[0].Message)
}

func TestUpdateAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.openTicket(t, nil)

	resolved := domain.TicketStatusResolved
	_, err := f.tickets.UpdateTicket(ctx, f.outsider, ticket.ID, TicketUpdateInput{Status: &resolved})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	id := f.analyst.ID
	_, err = f.tickets.UpdateTicket(ctx, f.creator, ticket.ID, TicketUpdateInput{AssigneeID: &id})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	userID := f.outsider.ID
	_, err = f.tickets.UpdateTicket(ctx, f.admin, ticket.ID, TicketUpdateInput{AssigneeID: &userID})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.tickets.UpdateTicket(ctx, f.admin, "missing", TicketUpdateInput{Status: &resolved})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.tickets.GetTicket(ctx, f.outsider, ticket.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestAssignmentNotifiesAssignee(t *testing.T) {
	f := newFixture(t)
	ticket := f.openTicket(t, nil)

	id := f.analyst.ID
	_, err := f.tickets.UpdateTicket(context.Background(), f.admin, ticket.ID, TicketUpdateInput{AssigneeID: &id})
	require.NoError(t, err)

	assert.Equal(t, 1, countType(f.inbox(t, f.analyst), domain.NotificationTicketAssigned))
	published := f.recorder.Named(events.EventNotificationNew)
	require.Len(t, published, 1)
	assert.Equal(t, []events.Room{events.UserRoom(f.analyst.ID)}, published[0].Rooms)
}

type failingUsers struct {
	repository.UserRepository
}

func (failingUsers) ListByRoles(context.Context, ...domain.Role) ([]domain.User, error) {
	return nil, errors.New("directory unavailable")
}

func TestNotifyFailureDoesNotFailTicketWrite(t *testing.T) {
	f := newFixture(t)
	notifier := NewTicketNotifier(NotifierDependencies{
		UserRepo:      failingUsers{f.store.Users()},
		Notifications: NewNotificationService(f.store.Notifications(), config.DefaultNotificationConfig()),
		Publisher:     f.recorder,
		Logger:        zaptest.NewLogger(t),
	})
	tickets := NewTicketService(TicketDependencies{TicketRepo: f.store.Tickets(), UserRepo: f.store.Users(), Notifier: notifier})

	ticket, err := tickets.CreateTicket(context.Background(), f.creator, TicketCreateInput{
		Title: "Laptop battery", Description: "Battery drains in under an hour", Priority: domain.TicketPriorityLow,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.ID)
	assert.Empty(t, f.inbox(t, f.admin).Items)
	assert.Len(t, f.recorder.Named(events.EventTicketCreated), 1)
}

func TestStatusNotifySkippedWithoutCreator(t *testing.T) {
	f := newFixture(t)
	ticket := &domain.Ticket{ID: "t-orphan", Title: "Orphan", Status: domain.TicketStatusResolved}
	f.notifier.OnStatusChanged(context.Background(), ticket, domain.TicketStatusOpen, f.admin)
	assert.Empty(t, f.recorder.Calls())
}

func TestMalformedIDsResolveAsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.openTicket(t, nil)

	_, err := f.tickets.GetTicket(ctx, f.admin, "abc")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	resolved := domain.TicketStatusResolved
	_, err = f.tickets.UpdateTicket(ctx, f.admin, "abc", TicketUpdateInput{Status: &resolved})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.chat.List(ctx, "abc", f.admin, 1, 0)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.notifications.MarkRead(ctx, "abc", f.admin.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	bogus := "not-a-user"
	_, err = f.tickets.UpdateTicket(ctx, f.admin, ticket.ID, TicketUpdateInput{AssigneeID: &bogus})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

// staleTickets serves a snapshot taken before a concurrent writer committed.
type staleTickets struct {
	repository.TicketRepository
	snapshot domain.Ticket
}

func (s staleTickets) GetByID(context.Context, string) (*domain.Ticket, error) {
	t := s.snapshot
	return &t, nil
}

func TestConcurrentResolveNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.openTicket(t, nil)
	snapshot := *ticket

	resolved := domain.TicketStatusResolved
	_, err := f.tickets.UpdateTicket(ctx, f.admin, ticket.ID, TicketUpdateInput{Status: &resolved})
	require.NoError(t, err)

	loser := NewTicketService(TicketDependencies{
		TicketRepo: staleTickets{TicketRepository: f.store.Tickets(), snapshot: snapshot},
		UserRepo:   f.store.Users(),
		Notifier:   f.notifier,
	})
	_, err = loser.UpdateTicket(ctx, f.analyst, ticket.ID, TicketUpdateInput{Status: &resolved})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	assert.Equal(t, 1, countType(f.inbox(t, f.creator), domain.NotificationTicketUpdated))
	assert.Len(t, f.recorder.Named(events.EventTicketUpdated), 1)
}
