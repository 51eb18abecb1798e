package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// NotificationRepository is the durable per-user inbox. Every read and write is scoped by
// recipient; an id that exists but belongs to someone else behaves exactly like a missing id.
type NotificationRepository interface {
	// CreateMany inserts all records in one transaction. IDs and timestamps must be set.
	CreateMany(ctx context.Context, items []*domain.Notification) error
	// ListForUser returns the newest limit records and the unread count from one snapshot.
	ListForUser(ctx context.Context, userID string, limit int) (domain.NotificationPage, error)
	// MarkRead flips one record owned by userID. pgx.ErrNoRows when no such owned record exists.
	MarkRead(ctx context.Context, id, userID string) (*domain.Notification, error)
	// MarkAllRead flips every unread record of userID and returns how many changed.
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository returns a Postgres-backed inbox.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) CreateMany(ctx context.Context, items []*domain.Notification) error {
	if len(items) == 0 {
		return nil
	}
	const query = `
        INSERT INTO notifications (id, user_id, type, title, message, ticket_id, read, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	batch := &pgx.Batch{}
	for _, n := range items {
		batch.Queue(query, n.ID, n.UserID, n.Type, n.Title, n.Message, n.TicketID, n.Read, n.CreatedAt)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	results := tx.SendBatch(ctx, batch)
	for range items {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *notificationRepository) ListForUser(ctx context.Context, userID string, limit int) (domain.NotificationPage, error) {
	const listQuery = `
        SELECT n.id, n.user_id, n.type, n.title, n.message, n.ticket_id, n.read, n.created_at,
               t.title, t.status, t.priority
        FROM notifications n
        LEFT JOIN tickets t ON t.id = n.ticket_id
        WHERE n.user_id=$1
        ORDER BY n.created_at DESC, n.id DESC
        LIMIT $2`
	const countQuery = `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND read=FALSE`

	page := domain.NotificationPage{Items: []domain.Notification{}}

	// Both reads share one snapshot so the count matches the list.
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return page, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, listQuery, userID, limit)
	if err != nil {
		return page, err
	}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			rows.Close()
			return page, err
		}
		page.Items = append(page.Items, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return page, err
	}

	if err := tx.QueryRow(ctx, countQuery, userID).Scan(&page.UnreadCount); err != nil {
		return page, err
	}
	return page, tx.Commit(ctx)
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID string) (*domain.Notification, error) {
	const query = `
        WITH updated AS (
            UPDATE notifications SET read=TRUE
            WHERE id=$1 AND user_id=$2
            RETURNING id, user_id, type, title, message, ticket_id, read, created_at
        )
        SELECT u.id, u.user_id, u.type, u.title, u.message, u.ticket_id, u.read, u.created_at,
               t.title, t.status, t.priority
        FROM updated u
        LEFT JOIN tickets t ON t.id = u.ticket_id`

	n, err := scanNotification(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	const query = `UPDATE notifications SET read=TRUE WHERE user_id=$1 AND read=FALSE`
	cmd, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanNotification(row pgx.Row) (domain.Notification, error) {
	var (
		n           domain.Notification
		ticketTitle *string
		status      *domain.TicketStatus
		priority    *domain.TicketPriority
		createdAt   time.Time
	)
	if err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.TicketID,
		&n.Read,
		&createdAt,
		&ticketTitle,
		&status,
		&priority,
	); err != nil {
		return n, err
	}
	n.CreatedAt = createdAt
	if n.TicketID != nil && ticketTitle != nil {
		ref := domain.TicketRef{ID: *n.TicketID, Title: *ticketTitle}
		if status != nil {
			ref.Status = *status
		}
		if priority != nil {
			ref.Priority = *priority
		}
		n.Ticket = &ref
	}
	return n, nil
}
