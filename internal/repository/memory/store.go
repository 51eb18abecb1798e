// Package memory implements the repository interfaces on process memory. The API falls back to
// it when no Postgres DSN is configured, and tests use it as the datastore.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// Store holds every table behind one lock, which gives each call a consistent snapshot.
type Store struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	tickets       map[string]domain.Ticket
	notifications []domain.Notification
	messages      map[string][]domain.Message
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]domain.User),
		tickets:  make(map[string]domain.Ticket),
		messages: make(map[string][]domain.Message),
	}
}

// Users returns the user repository view.
func (s *Store) Users() repository.UserRepository { return userRepo{s} }

// Tickets returns the ticket repository view.
func (s *Store) Tickets() repository.TicketRepository { return ticketRepo{s} }

// Notifications returns the inbox repository view.
func (s *Store) Notifications() repository.NotificationRepository { return notificationRepo{s} }

// Messages returns the transcript repository view.
func (s *Store) Messages() repository.MessageRepository { return messageRepo{s} }

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	r.s.users[user.ID] = *user
	return nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, user := range r.s.users {
		if strings.EqualFold(user.Email, email) {
			u := user
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r userRepo) ListByRoles(_ context.Context, roles ...domain.Role) ([]domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := []domain.User{}
	for _, user := range r.s.users {
		for _, role := range roles {
			if user.Role == role {
				result = append(result, user)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ticket.CreatedAt, ticket.UpdatedAt = now, now
	r.s.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r ticketRepo) Update(_ context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Status != expected {
		return repository.ErrStatusChanged
	}
	ticket.UpdatedAt = time.Now().UTC()
	// The chat summary is owned by UpdateChatSummary; a stale copy must not overwrite it.
	ticket.LastMessage, ticket.LastMessageAt = stored.LastMessage, stored.LastMessageAt
	r.s.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ticket, ok := r.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	t := cloneTicket(ticket)
	return &t, nil
}

func (r ticketRepo) UpdateChatSummary(_ context.Context, ticketID, lastMessage string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ticket, ok := r.s.tickets[ticketID]
	if !ok {
		return nil
	}
	if ticket.LastMessageAt != nil && ticket.LastMessageAt.After(at) {
		return nil
	}
	ticket.LastMessage = &lastMessage
	ticket.LastMessageAt = &at
	ticket.UpdatedAt = time.Now().UTC()
	r.s.tickets[ticketID] = ticket
	return nil
}

func (r ticketRepo) ListChats(_ context.Context, filter repository.ChatFilter) ([]domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := []domain.Ticket{}
	for _, ticket := range r.s.tickets {
		if filter.CreatorID != nil && ticket.CreatorID != *filter.CreatorID {
			continue
		}
		if filter.ParticipantID != nil && ticket.CreatorID != *filter.ParticipantID && !ticket.IsAssignee(*filter.ParticipantID) {
			continue
		}
		result = append(result, cloneTicket(ticket))
	}
	sort.Slice(result, func(i, j int) bool {
		ai, aj := result[i].ActivityAt(), result[j].ActivityAt()
		if ai.Equal(aj) {
			return result[i].ID > result[j].ID
		}
		return ai.After(aj)
	})
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) CreateMany(_ context.Context, items []*domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, n := range items {
		r.s.notifications = append(r.s.notifications, *n)
	}
	return nil
}

func (r notificationRepo) ListForUser(_ context.Context, userID string, limit int) (domain.NotificationPage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	page := domain.NotificationPage{Items: []domain.Notification{}}
	// Appended in creation order, so walking backwards yields newest first.
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		n := r.s.notifications[i]
		if n.UserID != userID {
			continue
		}
		if !n.Read {
			page.UnreadCount++
		}
		if len(page.Items) < limit {
			page.Items = append(page.Items, r.s.withTicket(n))
		}
	}
	return page, nil
}

func (r notificationRepo) MarkRead(_ context.Context, id, userID string) (*domain.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.notifications {
		n := &r.s.notifications[i]
		if n.ID == id && n.UserID == userID {
			n.Read = true
			out := r.s.withTicket(*n)
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r notificationRepo) MarkAllRead(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var changed int64
	for i := range r.s.notifications {
		n := &r.s.notifications[i]
		if n.UserID == userID && !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed, nil
}

type messageRepo struct{ s *Store }

func (r messageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := *msg
	stored.Sender = nil
	r.s.messages[msg.TicketID] = append(r.s.messages[msg.TicketID], stored)
	return nil
}

func (r messageRepo) ListNewestFirst(_ context.Context, ticketID string, limit, offset int) ([]domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	all := append([]domain.Message(nil), r.s.messages[ticketID]...)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	result := []domain.Message{}
	for i := offset; i < len(all) && len(result) < limit; i++ {
		msg := all[i]
		if user, ok := r.s.users[msg.SenderID]; ok {
			ref := user.Ref()
			msg.Sender = &ref
		}
		result = append(result, msg)
	}
	return result, nil
}

func (r messageRepo) CountByTicket(_ context.Context, ticketID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.messages[ticketID]), nil
}

// withTicket joins the ticket summary. Callers hold the lock.
func (s *Store) withTicket(n domain.Notification) domain.Notification {
	if n.TicketID == nil {
		return n
	}
	if ticket, ok := s.tickets[*n.TicketID]; ok {
		ref := ticket.Ref()
		n.Ticket = &ref
	}
	return n
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	if t.AssigneeID != nil {
		id := *t.AssigneeID
		t.AssigneeID = &id
	}
	if t.LastMessage != nil {
		msg := *t.LastMessage
		t.LastMessage = &msg
	}
	if t.LastMessageAt != nil {
		at := *t.LastMessageAt
		t.LastMessageAt = &at
	}
	if t.ResolvedAt != nil {
		at := *t.ResolvedAt
		t.ResolvedAt = &at
	}
	return t
}
