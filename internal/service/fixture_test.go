package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
)

type fixture struct {
	store    *memory.Store
	recorder *events.Recorder

	notifications *NotificationService
	notifier      *TicketNotifier
	tickets       *TicketService
	chat          *ChatService

	admin    *domain.User
	analyst  *domain.User
	analyst2 *domain.User
	creator  *domain.User
	outsider *domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.NewStore()
	recorder := &events.Recorder{}

	f := &fixture{store: store, recorder: recorder}
	f.admin = seedUser(t, store, "Ada Admin", domain.RoleAdmin)
	f.analyst = seedUser(t, store, "Xavier Analyst", domain.RoleAnalyst)
	f.analyst2 = seedUser(t, store, "Yuki Analyst", domain.RoleAnalyst)
	f.creator = seedUser(t, store, "Uma User", domain.RoleUser)
	f.outsider = seedUser(t, store, "Otto Outsider", domain.RoleUser)

	f.notifications = NewNotificationService(store.Notifications(), config.DefaultNotificationConfig())
	f.notifier = NewTicketNotifier(NotifierDependencies{
		UserRepo:      store.Users(),
		Notifications: f.notifications,
		Publisher:     recorder,
		Logger:        logger,
	})
	f.tickets = NewTicketService(TicketDependencies{
		TicketRepo: store.Tickets(),
		UserRepo:   store.Users(),
		Notifier:   f.notifier,
	})
	f.chat = NewChatService(ChatDependencies{
		TicketRepo:    store.Tickets(),
		MessageRepo:   store.Messages(),
		UserRepo:      store.Users(),
		Notifications: f.notifications,
		Publisher:     recorder,
		Config:        config.DefaultChatConfig(),
		Logger:        logger,
	})
	return f
}

func seedUser(t *testing.T, store *memory.Store, name string, role domain.Role) *domain.User {
	t.Helper()
	user := &domain.User{Name: name, Email: name + "@example.com", Role: role}
	require.NoError(t, store.Users().Create(context.Background(), user))
	return user
}

// openTicket files a ticket as the fixture's creator and clears the recorded side effects.
func (f *fixture) openTicket(t *testing.T, assignee *domain.User) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, f.creator, TicketCreateInput{
		Title:       "VPN keeps dropping",
		Description: "Disconnects every ten minutes since Monday",
		Priority:    domain.TicketPriorityHigh,
		Category:    "network",
	})
	require.NoError(t, err)
	if assignee != nil {
		id := assignee.ID
		ticket, err = f.tickets.UpdateTicket(ctx, f.admin, ticket.ID, TicketUpdateInput{AssigneeID: &id})
		require.NoError(t, err)
	}
	f.recorder.Reset()
	return ticket
}

func (f *fixture) inbox(t *testing.T, user *domain.User) domain.NotificationPage {
	t.Helper()
	page, err := f.notifications.ListForUser(context.Background(), user.ID, 100)
	require.NoError(t, err)
	return page
}

func roomSet(rooms []events.Room) map[events.Room]bool {
	out := make(map[events.Room]bool, len(rooms))
	for _, r := range rooms {
		out[r] = true
	}
	return out
}
