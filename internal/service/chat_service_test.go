package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

func contents(items []domain.Message) []string {
	out := make([]string, len(items))
	for i, m := range items {
		out[i] = m.Content
	}
	return out
}

func TestCreatorMessageNotifiesAssigneeAndStaff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.openTicket(t, f.analyst)

	msg, err := f.chat.Send(ctx, ticket.ID, f.creator, "  Hello  ")
	require.NoError(t, err)
	assert.Equal(t, "Hello", msg.Content)
	assert.Equal(t, f.creator.ID, msg.SenderID)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, domain.RoleUser, msg.Sender.Role)

	page, err := f.chat.List(ctx, ticket.ID, f.creator, 1, 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Hello", page.Items[0].Content)
	assert.Equal(t, f.creator.ID, page.Items[0].SenderID)

	stored, err := f.store.Tickets().GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessage)
	assert.Equal(t, "Hello", *stored.LastMessage)
	require.NotNil(t, stored.LastMessageAt)
	assert.True(t, stored.LastMessageAt.Equal(msg.CreatedAt))

	inbox := f.inbox(t, f.analyst)
	assert.Equal(t, 1, countType(inbox, domain.NotificationMessageNew))
	assert.Equal(t, `New message on "VPN keeps dropping"`, inbox.Items[0].Title)
	assert.Equal(t, "Uma User: Hello", inbox.Items[0].Message)
	for _, other := range []*domain.User{f.admin, f.analyst2, f.creator} {
		assert.Zero(t, countType(f.inbox(t, other), domain.NotificationMessageNew), other.Name)
	}

	published := f.recorder.Named(events.EventMessageNew)
	require.Len(t, published, 1)
	rooms := roomSet(published[0].Rooms)
	assert.True(t, rooms[events.UserRoom(f.analyst.ID)])
	assert.True(t, rooms[events.RoleRoom(domain.RoleAdmin)])
	assert.True(t, rooms[events.RoleRoom(domain.RoleAnalyst)])
	assert.Len(t, rooms, 3)
	payload := published[0].Payload.(events.MessageNewPayload)
	assert.Equal(t, "Uma User", payload.SenderName)
	assert.Equal(t, msg.ID, payload.Record.ID)

	alerts := f.recorder.Named(events.EventNotificationNew)
	require.Len(t, alerts, 1)
	assert.Equal(t, []events.Room{events.UserRoom(f.analyst.ID)}, alerts[0].Rooms)
}

func TestUnassignedCreatorMessageOnlyBroadcastsToStaff(t *testing.T) {
	f := newFixture(t)
	ticket := f.openTicket(t, nil)

	_, err := f.chat.Send(context.Background(), ticket.ID, f.creator, "anyone there?")
	require.NoError(t, err)

	published := f.recorder.Named(events.EventMessageNew)
	require.Len(t, published, 1)
	assert.ElementsMatch(t, events.StaffRooms(), published[0].Rooms)
	assert.Empty(t, f.recorder.Named(events.EventNotificationNew))
	assert.Zero(t, countType(f.inbox(t, f.admin), domain.NotificationMessageNew))
}

func TestStaffMessageNotifiesCreator(t *testing.T) {
	f := newFixture(t)
	ticket := f.openTicket(t, f.analyst)

	_, err := f.chat.Send(context.Background(), ticket.ID, f.analyst2, "Looking into it")
	require.NoError(t, err)

	assert.Equal(t, 1, countType(f.inbox(t, f.creator), domain.NotificationMessageNew))
	assert.Zero(t, countType(f.inbox(t, f.analyst), domain.NotificationMessageNew))

	published := f.recorder.Named(events.EventMessageNew)
	require.Len(t, published, 1)
	assert.Equal(t, []events.Room{events.UserRoom(f.creator.ID)}, published[0].Rooms)
}

func TestSenderNeverNotifiesThemself(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, f.analyst, TicketCreateInput{
		Title: "Rotate VPN certs", Description: "Certificates expire next week", Priority: domain.TicketPriorityMedium,
	})
	require.NoError(t, err)
	id := f.analyst.ID
	_, err = f.tickets.UpdateTicket(ctx, f.analyst, ticket.ID, TicketUpdateInput{AssigneeID: &id})
	require.NoError(t, err)
	f.recorder.Reset()

	_, err = f.chat.Send(ctx, ticket.ID, f.analyst, "note to self")
	require.NoError(t, err)
	assert.Zero(t, countType(f.inbox(t, f.analyst), domain.NotificationMessageNew))
	assert.Empty(t, f.recorder.Named(events.EventNotificationNew))
}

func TestChatAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.openTicket(t, nil)

	_, err := f.chat.List(ctx, ticket.ID, f.outsider, 1, 50)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = f.chat.Send(ctx, ticket.ID, f.outsider, "let me in")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.chat.List(ctx, "missing", f.admin, 1, 50)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.chat.Send(ctx, "missing", f.admin, "hello")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// any analyst may take part, assigned or not
	_, err = f.chat.Send(ctx, ticket.ID, f.analyst2, "hi")
	assert.NoError(t, err)

	count, err := f.store.Messages().CountByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSendValidatesContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.openTicket(t, nil)

	_, err := f.chat.Send(ctx, ticket.ID, f.creator, "   ")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.chat.Send(ctx, ticket.ID, f.creator, strings.Repeat("a", 2001))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	msg, err := f.chat.Send(ctx, ticket.ID, f.creator, strings.Repeat("é", 2000))
	require.NoError(t, err)

	inbox := f.inbox(t, f.admin)
	assert.Zero(t, countType(inbox, domain.NotificationMessageNew))
	published := f.recorder.Named(events.EventMessageNew)
	require.Len(t, published, 1)
	line := published[0].Payload.(events.MessageNewPayload).Message
	assert.Equal(t, "Uma User: "+strings.Repeat("é", 100), line)
	assert.Len(t, []rune(msg.Content), 2000)
}

func TestListReturnsLatestWindowChronologically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.openTicket(t, f.analyst)

	for i := 0; i < 120; i++ {
		_, err := f.chat.Send(ctx, ticket.ID, f.creator, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	page, err := f.chat.List(ctx, ticket.ID, f.analyst, 1, 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 50)
	assert.Equal(t, "m70", page.Items[0].Content)
	assert.Equal(t, "m119", page.Items[49].Content)
	assert.Equal(t, 120, page.Total)
	assert.Equal(t, 3, page.Pages())
	for i := 1; i < len(page.Items); i++ {
		assert.False(t, page.Items[i].CreatedAt.Before(page.Items[i-1].CreatedAt))
	}

	page, err = f.chat.List(ctx, ticket.ID, f.analyst, 2, 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 50)
	assert.Equal(t, "m20", page.Items[0].Content)
	assert.Equal(t, "m69", page.Items[49].Content)

	page, err = f.chat.List(ctx, ticket.ID, f.analyst, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 50, page.Limit)
}

func TestSequentialSendsSummaryFollowsLastMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.openTicket(t, f.analyst)

	senders := []*domain.User{f.creator, f.analyst, f.creator, f.admin, f.creator}
	for i, sender := range senders {
		_, err := f.chat.Send(ctx, ticket.ID, sender, fmt.Sprintf("send %d", i+1))
		require.NoError(t, err)
	}

	stored, err := f.store.Tickets().GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessage)
	assert.Equal(t, "send 5", *stored.LastMessage)

	page, err := f.chat.List(ctx, ticket.ID, f.creator, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"send 4", "send 5"}, contents(page.Items))
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Pages())
}

func TestMyChatsScopesByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assigned := f.openTicket(t, f.analyst)
	unassigned := f.openTicket(t, nil)
	foreign, err := f.tickets.CreateTicket(ctx, f.outsider, TicketCreateInput{
		Title: "Outlook crash", Description: "Crashes when opening calendar", Priority: domain.TicketPriorityLow,
	})
	require.NoError(t, err)

	_, err = f.chat.Send(ctx, unassigned.ID, f.creator, "bump")
	require.NoError(t, err)

	ids := func(list []domain.ChatSummary) []string {
		out := make([]string, len(list))
		for i, s := range list {
			out[i] = s.Ticket.ID
		}
		return out
	}

	mine, err := f.chat.MyChats(ctx, f.creator)
	require.NoError(t, err)
	require.Equal(t, []string{unassigned.ID, assigned.ID}, ids(mine))
	require.NotNil(t, mine[0].LastMessage)
	assert.Equal(t, "bump", *mine[0].LastMessage)
	require.NotNil(t, mine[0].Creator)
	assert.Equal(t, "Uma User", mine[0].Creator.Name)
	require.NotNil(t, mine[1].Assignee)
	assert.Equal(t, f.analyst.ID, mine[1].Assignee.ID)

	analystChats, err := f.chat.MyChats(ctx, f.analyst)
	require.NoError(t, err)
	assert.Equal(t, []string{assigned.ID}, ids(analystChats))

	all, err := f.chat.MyChats(ctx, f.admin)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{assigned.ID, unassigned.ID, foreign.ID}, ids(all))
}
