package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// ErrStatusChanged is returned by Update when the stored status no longer matches the status
// the caller read.
var ErrStatusChanged = errors.New("ticket status changed concurrently")

// ChatFilter scopes the "my chats" listing. A zero filter lists every ticket.
type ChatFilter struct {
	// CreatorID restricts to tickets created by this user.
	CreatorID *string
	// ParticipantID restricts to tickets created by or assigned to this user.
	ParticipantID *string
	Limit         int
}

// TicketRepository encapsulates ticket persistence for the fields this service reads and writes.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes ticket only while its stored status is still expected.
	Update(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// UpdateChatSummary moves the denormalized last-message fields forward. A summary older than
	// the stored one is ignored, so concurrent senders can never roll it back.
	UpdateChatSummary(ctx context.Context, ticketID, lastMessage string, at time.Time) error
	// ListChats returns tickets ordered by chat activity, falling back to last update.
	ListChats(ctx context.Context, filter ChatFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, description, status, priority, category, creator_id, assignee_id,
               organization_id, last_message, last_message_at, resolved_at, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, title, description, status, priority, category, creator_id, assignee_id, organization_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.ID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Category,
		ticket.CreatorID,
		ticket.AssigneeID,
		ticket.OrganizationID,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, status=$3, priority=$4, category=$5,
            assignee_id=$6, resolved_at=$7, updated_at=NOW()
        WHERE id=$8 AND status=$9
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Category,
		ticket.AssigneeID,
		ticket.ResolvedAt,
		ticket.ID,
		expected,
	).Scan(&ticket.UpdatedAt)
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrStatusChanged
	}
	return pgx.ErrNoRows
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) UpdateChatSummary(ctx context.Context, ticketID, lastMessage string, at time.Time) error {
	const query = `
        UPDATE tickets SET last_message=$1, last_message_at=$2, updated_at=NOW()
        WHERE id=$3 AND (last_message_at IS NULL OR last_message_at <= $2)`
	_, err := r.pool.Exec(ctx, query, lastMessage, at, ticketID)
	return err
}

func (r *ticketRepository) ListChats(ctx context.Context, filter ChatFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatorID != nil {
		args = append(args, *filter.CreatorID)
		clauses = append(clauses, fmt.Sprintf("creator_id=$%d", len(args)))
	}
	if filter.ParticipantID != nil {
		args = append(args, *filter.ParticipantID)
		clauses = append(clauses, fmt.Sprintf("(creator_id=$%d OR assignee_id=$%d)", len(args), len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s
        ORDER BY COALESCE(last_message_at, updated_at) DESC, id DESC
        LIMIT $%d`, ticketColumns, strings.Join(clauses, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var ticket domain.Ticket
	err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Category,
		&ticket.CreatorID,
		&ticket.AssigneeID,
		&ticket.OrganizationID,
		&ticket.LastMessage,
		&ticket.LastMessageAt,
		&ticket.ResolvedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	return ticket, err
}
