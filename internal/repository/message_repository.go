package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// MessageRepository is the append-only chat transcript store.
type MessageRepository interface {
	// Create appends msg. ID and CreatedAt must be set by the caller.
	Create(ctx context.Context, msg *domain.Message) error
	// ListNewestFirst returns up to limit messages of the ticket, newest first, skipping offset.
	// Sender is populated.
	ListNewestFirst(ctx context.Context, ticketID string, limit, offset int) ([]domain.Message, error)
	// CountByTicket returns the transcript length.
	CountByTicket(ctx context.Context, ticketID string) (int, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (id, ticket_id, sender_id, content, created_at)
        VALUES ($1,$2,$3,$4,$5)`
	_, err := r.pool.Exec(ctx, query,
		msg.ID,
		msg.TicketID,
		msg.SenderID,
		msg.Content,
		msg.CreatedAt,
	)
	return err
}

func (r *messageRepository) ListNewestFirst(ctx context.Context, ticketID string, limit, offset int) ([]domain.Message, error) {
	const query = `
        SELECT m.id, m.ticket_id, m.sender_id, m.content, m.created_at,
               u.name, u.email, u.role
        FROM messages m
        JOIN users u ON u.id = m.sender_id
        WHERE m.ticket_id=$1
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, ticketID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *messageRepository) CountByTicket(ctx context.Context, ticketID string) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE ticket_id=$1`, ticketID).Scan(&total)
	return total, err
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	result := []domain.Message{}
	for rows.Next() {
		var (
			msg    domain.Message
			sender domain.UserRef
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.SenderID,
			&msg.Content,
			&msg.CreatedAt,
			&sender.Name,
			&sender.Email,
			&sender.Role,
		); err != nil {
			return nil, err
		}
		sender.ID = msg.SenderID
		msg.Sender = &sender
		result = append(result, msg)
	}
	return result, rows.Err()
}
