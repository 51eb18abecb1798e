package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// NotificationInput describes one inbox record to create.
type NotificationInput struct {
	RecipientID string
	Type        domain.NotificationType
	Title       string
	Message     string
	// Ticket links the record and supplies the embedded summary.
	Ticket *domain.Ticket
}

// NotificationService owns the per-user inbox.
type NotificationService struct {
	notifications repository.NotificationRepository
	cfg           config.NotificationConfig
	now           func() time.Time
}

// NewNotificationService creates the service.
func NewNotificationService(repo repository.NotificationRepository, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{notifications: repo, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// Create persists one unread notification.
func (s *NotificationService) Create(ctx context.Context, input NotificationInput) (*domain.Notification, error) {
	created, err := s.CreateMany(ctx, []NotificationInput{input})
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

// CreateMany validates every input, then persists the batch in one write. Nothing is written
// when any input is invalid.
func (s *NotificationService) CreateMany(ctx context.Context, inputs []NotificationInput) ([]domain.Notification, error) {
	if len(inputs) == 0 {
		return []domain.Notification{}, nil
	}

	now := s.now()
	records := make([]*domain.Notification, 0, len(inputs))
	for _, input := range inputs {
		n, err := s.build(input, now)
		if err != nil {
			return nil, err
		}
		records = append(records, n)
	}

	if err := s.notifications.CreateMany(ctx, records); err != nil {
		return nil, apperrors.NewInfrastructureError(err)
	}

	out := make([]domain.Notification, len(records))
	for i, n := range records {
		out[i] = *n
	}
	return out, nil
}

func (s *NotificationService) build(input NotificationInput, now time.Time) (*domain.Notification, error) {
	details := map[string]any{}
	if strings.TrimSpace(input.RecipientID) == "" {
		details["recipient_id"] = "required"
	}
	if !input.Type.Valid() {
		details["type"] = "unknown notification type"
	}
	if strings.TrimSpace(input.Title) == "" {
		details["title"] = "required"
	}
	if strings.TrimSpace(input.Message) == "" {
		details["message"] = "required"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid notification", details)
	}

	n := &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    input.RecipientID,
		Type:      input.Type,
		Title:     input.Title,
		Message:   input.Message,
		CreatedAt: now,
	}
	if input.Ticket != nil {
		id := input.Ticket.ID
		ref := input.Ticket.Ref()
		n.TicketID = &id
		n.Ticket = &ref
	}
	return n, nil
}

// ListForUser returns the newest limit notifications of userID and the unread total.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit int) (domain.NotificationPage, error) {
	page, err := s.notifications.ListForUser(ctx, userID, s.clampLimit(limit))
	if err != nil {
		return domain.NotificationPage{}, apperrors.NewInfrastructureError(err)
	}
	return page, nil
}

func (s *NotificationService) clampLimit(limit int) int {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if s.cfg.MaxLimit > 0 && limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	if limit <= 0 {
		limit = 50
	}
	return limit
}

// MarkRead flags one notification owned by userID as read. Missing and foreign ids are
// indistinguishable.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) (*domain.Notification, error) {
	if !isRecordID(id) {
		return nil, apperrors.NewNotFound("notification", nil)
	}
	n, err := s.notifications.MarkRead(ctx, id, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("notification", nil)
		}
		return nil, apperrors.NewInfrastructureError(err)
	}
	return n, nil
}

// MarkAllRead flags every unread notification of userID and reports how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	changed, err := s.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, apperrors.NewInfrastructureError(err)
	}
	return changed, nil
}

// isRecordID reports whether id can name a stored row. Anything else never resolves, and
// Postgres would reject it as a malformed UUID rather than miss it.
func isRecordID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
